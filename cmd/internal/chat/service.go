package chat

import (
	"context"
	"strings"

	"huddle/cmd/internal/docstore"
)

// ConversationsPageSize is how many recently updated conversations are scanned for a
// viewer's list. Membership is filtered after the read.
const ConversationsPageSize = 50

// ConversationView is a conversation as one viewer sees it.
type ConversationView struct {
	Conversation
	Unread bool `json:"unread"`
}

// Service bundles the chat components over one store.
type Service struct {
	*Resolver
	*Channel
	*ReadState

	store docstore.Store
	opts  options
}

// NewService constructs every component with the same options.
func NewService(st docstore.Store, opts ...Option) *Service {
	return &Service{
		Resolver:  NewResolver(st, opts...),
		Channel:   NewChannel(st, opts...),
		ReadState: NewReadState(st, opts...),
		store:     st,
		opts:      buildOptions(opts),
	}
}

// Conversation returns one conversation.
func (s *Service) Conversation(ctx context.Context, id string) (Conversation, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Conversation{}, invalid("chat.Conversation", "missing conversation id")
	}
	doc, err := s.store.Get(ctx, docstore.Conversations, id)
	if err != nil {
		return Conversation{}, err
	}
	return ConversationFromDocument(doc), nil
}

// ConversationFor returns the conversation only when viewer participates in it.
// Participants are stored trimmed, so viewerID is compared trimmed too.
func (s *Service) ConversationFor(ctx context.Context, id, viewerID string) (Conversation, error) {
	conv, err := s.Conversation(ctx, id)
	if err != nil {
		return Conversation{}, err
	}
	if viewerID = strings.TrimSpace(viewerID); viewerID == "" || !conv.HasParticipant(viewerID) {
		return Conversation{}, OpError{Op: "chat.ConversationFor", Kind: ErrForbidden, Msg: "not a participant"}
	}
	return conv, nil
}

// MessageFor returns a message when viewer participates in its conversation.
func (s *Service) MessageFor(ctx context.Context, messageID, viewerID string) (Message, error) {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return Message{}, invalid("chat.MessageFor", "missing message id")
	}
	doc, err := s.store.Get(ctx, docstore.Messages, messageID)
	if err != nil {
		return Message{}, err
	}
	msg := MessageFromDocument(doc)
	if _, err := s.ConversationFor(ctx, msg.ConversationID, viewerID); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Conversations lists the viewer's conversations, most recently updated first, with
// the derived unread flag. Only the newest ConversationsPageSize conversations overall
// are considered.
func (s *Service) Conversations(ctx context.Context, viewerID string) ([]ConversationView, error) {
	viewerID = strings.TrimSpace(viewerID)
	if viewerID == "" {
		return nil, invalid("chat.Conversations", "missing viewer id")
	}

	docs, err := s.store.List(ctx, docstore.Conversations,
		docstore.NewQuery().Desc(docstore.FieldUpdatedAt).Page(ConversationsPageSize, 0),
	)
	if err != nil {
		return nil, err
	}

	out := make([]ConversationView, 0, len(docs))
	for _, d := range docs {
		conv := ConversationFromDocument(d)
		if !conv.HasParticipant(viewerID) {
			continue
		}
		out = append(out, ConversationView{Conversation: conv, Unread: Unread(conv, viewerID)})
	}
	return out, nil
}
