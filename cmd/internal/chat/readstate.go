package chat

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"huddle/cmd/internal/docstore"
)

const (
	markReadPageSize   = 100
	defaultReadWorkers = 8
)

// ReadState records which viewers have seen which messages.
type ReadState struct {
	store docstore.Store
	opts  options
}

// NewReadState constructs a ReadState.
func NewReadState(st docstore.Store, opts ...Option) *ReadState {
	return &ReadState{store: st, opts: buildOptions(opts)}
}

// MarkMessageRead adds viewer to the message's readBy. It writes only when the set
// grows, so repeated calls are no-ops.
func (r *ReadState) MarkMessageRead(ctx context.Context, messageID, viewerID string) (Message, error) {
	const op = "chat.MarkMessageRead"

	messageID = strings.TrimSpace(messageID)
	viewerID = strings.TrimSpace(viewerID)
	if messageID == "" || viewerID == "" {
		return Message{}, invalid(op, "missing message or viewer id")
	}

	doc, err := r.store.Get(ctx, docstore.Messages, messageID)
	if err != nil {
		return Message{}, err
	}
	msg := MessageFromDocument(doc)
	if msg.ReadByViewer(viewerID) {
		return msg, nil
	}

	updated, err := r.addReader(ctx, msg, viewerID)
	if err != nil {
		return Message{}, err
	}
	r.opts.metrics.ReadStateUpdated(1)
	return updated, nil
}

// MarkConversationRead adds viewer to readBy on every message of the conversation that
// someone else sent and viewer has not read. It returns how many messages changed.
//
// Updates run in parallel and fail independently. When any fail, the others are kept
// and a *PartialWriteError with the counts is returned.
func (r *ReadState) MarkConversationRead(ctx context.Context, conversationID, viewerID string) (int, error) {
	const op = "chat.MarkConversationRead"

	conversationID = strings.TrimSpace(conversationID)
	viewerID = strings.TrimSpace(viewerID)
	if conversationID == "" || viewerID == "" {
		return 0, invalid(op, "missing conversation or viewer id")
	}

	var (
		g errgroup.Group

		mu       sync.Mutex
		done     int
		failed   int
		firstErr error
	)
	g.SetLimit(r.opts.workers)

	// The senderId filter does not depend on readBy, so offset paging stays stable
	// while earlier pages are being updated.
	q := docstore.NewQuery(
		docstore.Equal(fieldConversationID, conversationID),
		docstore.NotEqual(fieldSenderID, viewerID),
	).Asc(docstore.FieldCreatedAt)

	var listErr error
	for offset := 0; ; offset += markReadPageSize {
		docs, err := r.store.List(ctx, docstore.Messages, q.Page(markReadPageSize, offset))
		if err != nil {
			listErr = err
			break
		}
		for _, d := range docs {
			msg := MessageFromDocument(d)
			if msg.ReadByViewer(viewerID) {
				continue
			}
			g.Go(func() error {
				_, err := r.addReader(ctx, msg, viewerID)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failed++
					if firstErr == nil {
						firstErr = err
					}
					return nil
				}
				done++
				return nil
			})
		}
		if len(docs) < markReadPageSize {
			break
		}
	}
	_ = g.Wait()

	r.opts.metrics.ReadStateUpdated(done)

	if listErr != nil {
		r.opts.log.Error("chat.mark_read.list_fail",
			"conversation_id", conversationID,
			"updated", done,
			"err", listErr,
		)
		if done > 0 || failed > 0 {
			r.opts.metrics.PartialWrite("mark_conversation_read")
			return done, &PartialWriteError{Op: op, Done: done, Failed: failed, Err: listErr}
		}
		return 0, listErr
	}
	if failed > 0 {
		r.opts.metrics.PartialWrite("mark_conversation_read")
		r.opts.log.Warn("chat.mark_read.partial",
			"conversation_id", conversationID,
			"updated", done,
			"failed", failed,
			"err", firstErr,
		)
		return done, &PartialWriteError{Op: op, Done: done, Failed: failed, Err: firstErr}
	}
	return done, nil
}

func (r *ReadState) addReader(ctx context.Context, msg Message, viewerID string) (Message, error) {
	doc, err := r.store.AddToSet(ctx, docstore.Messages, msg.ID, fieldReadBy, viewerID)
	if err != nil {
		return Message{}, err
	}
	return MessageFromDocument(doc), nil
}
