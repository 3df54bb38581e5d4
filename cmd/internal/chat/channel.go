package chat

import (
	"context"
	"strings"
	"unicode/utf8"

	"huddle/cmd/internal/docstore"
)

// Message limits and paging.
const (
	MaxContentRunes = 4000

	DefaultPageSize = 50
	MaxPageSize     = 200
)

// SendInput is one outgoing message.
type SendInput struct {
	ConversationID string
	SenderID       string
	Content        string
	// Type defaults to Text.
	Type MessageType
}

// Channel appends messages and reads them back newest first.
type Channel struct {
	store docstore.Store
	opts  options
}

// NewChannel constructs a Channel.
func NewChannel(st docstore.Store, opts ...Option) *Channel {
	return &Channel{store: st, opts: buildOptions(opts)}
}

// Send persists the message, then writes the conversation summary.
//
// The conversation id is not checked. When the message is persisted but the summary
// write fails, Send returns the message together with a *PartialWriteError; the message
// is not rolled back.
func (c *Channel) Send(ctx context.Context, in SendInput) (Message, error) {
	const op = "chat.Send"

	in.ConversationID = strings.TrimSpace(in.ConversationID)
	in.SenderID = strings.TrimSpace(in.SenderID)
	in.Content = strings.TrimSpace(in.Content)
	if in.Type == "" {
		in.Type = Text
	}

	switch {
	case in.ConversationID == "":
		return Message{}, invalid(op, "missing conversation id")
	case in.SenderID == "":
		return Message{}, invalid(op, "missing sender id")
	case in.Content == "":
		return Message{}, invalid(op, "empty content")
	case utf8.RuneCountInString(in.Content) > MaxContentRunes:
		return Message{}, invalid(op, "content too long")
	case !in.Type.valid():
		return Message{}, invalid(op, "unknown message type")
	}

	doc, err := c.store.Create(ctx, docstore.Messages, map[string]any{
		fieldConversationID: in.ConversationID,
		fieldSenderID:       in.SenderID,
		fieldContent:        in.Content,
		fieldType:           string(in.Type),
		fieldReadBy:         []string{in.SenderID},
	})
	if err != nil {
		c.opts.log.Error("chat.send.create_fail", "conversation_id", in.ConversationID, "err", err)
		return Message{}, err
	}
	msg := MessageFromDocument(doc)
	c.opts.metrics.MessageSent()

	if _, err := c.store.Update(ctx, docstore.Conversations, in.ConversationID, map[string]any{
		fieldLastMessage:       in.Content,
		fieldLastMessageTime:   docstore.FormatTime(c.opts.now()),
		fieldLastMessageSender: in.SenderID,
	}); err != nil {
		c.opts.metrics.PartialWrite("send")
		c.opts.log.Warn("chat.send.summary_fail",
			"conversation_id", in.ConversationID,
			"message_id", msg.ID,
			"err", err,
		)
		return msg, &PartialWriteError{Op: op, Done: 1, Failed: 1, Err: err}
	}

	return msg, nil
}

// List returns one page of a conversation's messages, newest first.
// limit <= 0 means DefaultPageSize; limits above MaxPageSize are clamped.
func (c *Channel) List(ctx context.Context, conversationID string, limit, offset int) ([]Message, error) {
	const op = "chat.List"

	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, invalid(op, "missing conversation id")
	}
	if offset < 0 {
		return nil, invalid(op, "negative offset")
	}
	limit = ClampPageSize(limit)

	docs, err := c.store.List(ctx, docstore.Messages,
		docstore.NewQuery(docstore.Equal(fieldConversationID, conversationID)).
			Desc(docstore.FieldCreatedAt).
			Page(limit, offset),
	)
	if err != nil {
		return nil, err
	}

	out := make([]Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, MessageFromDocument(d))
	}
	return out, nil
}

// ClampPageSize applies the List paging rules to limit.
func ClampPageSize(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	return min(limit, MaxPageSize)
}
