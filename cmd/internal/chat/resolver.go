package chat

import (
	"context"
	"slices"
	"strings"

	"huddle/cmd/internal/docstore"
)

// ResolvePageSize is the number of candidate conversations scanned per resolution.
// It is a hard ceiling: a matching conversation beyond it is not found and a
// duplicate is created instead.
const ResolvePageSize = 100

// Resolver finds or creates the canonical conversation for a participant set.
type Resolver struct {
	store docstore.Store
	opts  options
}

// NewResolver constructs a Resolver.
func NewResolver(st docstore.Store, opts ...Option) *Resolver {
	return &Resolver{store: st, opts: buildOptions(opts)}
}

// Resolve returns the conversation whose sorted participants equal the sorted request,
// creating it when none is found in the scanned page.
//
// Exactly two participants resolve a direct conversation; three or more a group one.
// Check-then-create is not atomic: concurrent calls for the same set may each create
// a conversation.
func (r *Resolver) Resolve(ctx context.Context, participants []string) (Conversation, error) {
	const op = "chat.Resolve"

	sorted, err := normalizeParticipants(op, participants)
	if err != nil {
		r.opts.metrics.Resolve("invalid")
		return Conversation{}, err
	}
	kind := Direct
	if len(sorted) > 2 {
		kind = Group
	}

	docs, err := r.store.List(ctx, docstore.Conversations,
		docstore.NewQuery(docstore.Equal(fieldType, string(kind))).
			Asc(docstore.FieldCreatedAt).
			Page(ResolvePageSize, 0),
	)
	if err != nil {
		r.opts.metrics.Resolve("error")
		r.opts.log.Error("chat.resolve.list_fail", "err", err)
		return Conversation{}, err
	}

	for _, doc := range docs {
		existing := doc.Strings(fieldParticipants)
		slices.Sort(existing)
		if slices.Equal(existing, sorted) {
			r.opts.metrics.Resolve("found")
			return ConversationFromDocument(doc), nil
		}
	}

	doc, err := r.store.Create(ctx, docstore.Conversations, map[string]any{
		fieldParticipants:      sorted,
		fieldType:              string(kind),
		fieldLastMessage:       "",
		fieldLastMessageSender: "",
	})
	if err != nil {
		r.opts.metrics.Resolve("error")
		r.opts.log.Error("chat.resolve.create_fail", "err", err)
		return Conversation{}, err
	}

	r.opts.metrics.Resolve("created")
	r.opts.metrics.ConversationCreated()
	r.opts.log.Info("chat.conversation.created",
		"conversation_id", doc.ID,
		"type", string(kind),
		"participants", len(sorted),
	)
	return ConversationFromDocument(doc), nil
}

func normalizeParticipants(op string, in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, invalid(op, "blank participant")
		}
		out = append(out, p)
	}
	slices.Sort(out)
	if len(slices.Compact(slices.Clone(out))) != len(out) {
		return nil, invalid(op, "duplicate participant")
	}
	if len(out) < 2 {
		return nil, invalid(op, "at least two participants are required")
	}
	return out, nil
}
