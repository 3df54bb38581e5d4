package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"huddle/cmd/internal/docstore"
)

func TestSend_PersistsAndDenormalizes(t *testing.T) {
	t.Parallel()

	st := newTestStore()
	sentAt := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	opts := append(testOptions(), WithClock(func() time.Time { return sentAt }))
	svc := NewService(st, opts...)
	ctx := context.Background()

	conv := mustResolve(t, svc.Resolver, "u1", "u2")

	msg, err := svc.Send(ctx, SendInput{ConversationID: conv.ID, SenderID: "u1", Content: "  hello  "})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.Content != "hello" || msg.Type != Text {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if !msg.ReadByViewer("u1") || len(msg.ReadBy) != 1 {
		t.Fatalf("expected readBy=[sender], got %v", msg.ReadBy)
	}

	got, err := svc.Conversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if got.LastMessage != "hello" || got.LastMessageSender != "u1" {
		t.Fatalf("summary not updated: %+v", got)
	}
	if !got.LastMessageTime.Equal(sentAt) {
		t.Fatalf("expected lastMessageTime %v, got %v", sentAt, got.LastMessageTime)
	}
	if Unread(got, "u1") || !Unread(got, "u2") {
		t.Fatalf("unexpected unread flags for %+v", got)
	}
}

func TestSend_Validation(t *testing.T) {
	t.Parallel()

	c := NewChannel(newTestStore(), testOptions()...)

	tests := []struct {
		name string
		in   SendInput
	}{
		{"missing conversation", SendInput{SenderID: "u1", Content: "hi"}},
		{"missing sender", SendInput{ConversationID: "c1", Content: "hi"}},
		{"blank content", SendInput{ConversationID: "c1", SenderID: "u1", Content: " \n\t "}},
		{"too long", SendInput{ConversationID: "c1", SenderID: "u1", Content: strings.Repeat("é", MaxContentRunes+1)}},
		{"bad type", SendInput{ConversationID: "c1", SenderID: "u1", Content: "hi", Type: "video"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := c.Send(context.Background(), tt.in); !IsInvalidInput(err) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestSend_MaxLengthAccepted(t *testing.T) {
	t.Parallel()

	st := newTestStore()
	c := NewChannel(st, testOptions()...)
	conv := mustResolve(t, NewResolver(st, testOptions()...), "u1", "u2")

	content := strings.Repeat("é", MaxContentRunes)
	msg, err := c.Send(context.Background(), SendInput{ConversationID: conv.ID, SenderID: "u1", Content: content, Type: Image})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.Type != Image {
		t.Fatalf("expected image type, got %q", msg.Type)
	}
}

func TestSend_SummaryFailureKeepsMessage(t *testing.T) {
	t.Parallel()

	inner := newTestStore()
	st := &faultyStore{
		Store:      inner,
		failUpdate: func(collection, _ string) bool { return collection == docstore.Conversations },
	}
	c := NewChannel(st, testOptions()...)
	conv := mustResolve(t, NewResolver(inner, testOptions()...), "u1", "u2")
	ctx := context.Background()

	msg, err := c.Send(ctx, SendInput{ConversationID: conv.ID, SenderID: "u2", Content: "stale summary"})
	if !errors.Is(err, ErrPartialWrite) {
		t.Fatalf("expected partial write, got %v", err)
	}
	pw, ok := AsPartialWrite(err)
	if !ok || pw.Done != 1 || pw.Failed != 1 || !errors.Is(err, errInjected) {
		t.Fatalf("unexpected partial write: %+v", pw)
	}
	if msg.ID == "" {
		t.Fatalf("expected the persisted message with the error")
	}

	if _, err := inner.Get(ctx, docstore.Messages, msg.ID); err != nil {
		t.Fatalf("message must stay persisted: %v", err)
	}
	got, err := NewService(inner).Conversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if got.LastMessage != "" {
		t.Fatalf("expected stale summary, got %q", got.LastMessage)
	}
}

func TestSend_UnknownConversationIsNotChecked(t *testing.T) {
	t.Parallel()

	c := NewChannel(newTestStore(), testOptions()...)

	msg, err := c.Send(context.Background(), SendInput{ConversationID: "ghost", SenderID: "u1", Content: "hi"})
	if !errors.Is(err, ErrPartialWrite) || !IsNotFound(err) {
		t.Fatalf("expected partial write caused by missing conversation, got %v", err)
	}
	if msg.ConversationID != "ghost" {
		t.Fatalf("expected message persisted under the given id, got %+v", msg)
	}
}

func TestList_DescendingAndBounded(t *testing.T) {
	t.Parallel()

	st := newTestStore()
	svc := NewService(st, testOptions()...)
	ctx := context.Background()

	conv := mustResolve(t, svc.Resolver, "u1", "u2")
	other := mustResolve(t, svc.Resolver, "u1", "u3")
	for i := range 7 {
		sender := "u1"
		if i%2 == 1 {
			sender = "u2"
		}
		mustSend(t, svc.Channel, conv.ID, sender, "m")
	}
	mustSend(t, svc.Channel, other.ID, "u3", "elsewhere")

	tests := []struct {
		name          string
		limit, offset int
		want          int
	}{
		{"default", 0, 0, 7},
		{"limit", 3, 0, 3},
		{"offset", 3, 5, 2},
		{"past end", 10, 7, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			msgs, err := svc.List(ctx, conv.ID, tt.limit, tt.offset)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(msgs) != tt.want {
				t.Fatalf("expected %d messages, got %d", tt.want, len(msgs))
			}
			for i, m := range msgs {
				if m.ConversationID != conv.ID {
					t.Fatalf("foreign message %s in list", m.ID)
				}
				if i > 0 && !m.CreatedAt.Before(msgs[i-1].CreatedAt) {
					t.Fatalf("expected strictly descending createdAt at %d", i)
				}
			}
		})
	}
}

func TestList_Pages(t *testing.T) {
	t.Parallel()

	st := newTestStore()
	svc := NewService(st, testOptions()...)
	ctx := context.Background()
	conv := mustResolve(t, svc.Resolver, "u1", "u2")

	for range 5 {
		mustSend(t, svc.Channel, conv.ID, "u1", "m")
	}

	all, err := svc.List(ctx, conv.ID, 5, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	p1, _ := svc.List(ctx, conv.ID, 2, 0)
	p2, _ := svc.List(ctx, conv.ID, 2, 2)
	p3, _ := svc.List(ctx, conv.ID, 2, 4)

	joined := append(append(append([]Message(nil), p1...), p2...), p3...)
	if len(joined) != len(all) {
		t.Fatalf("expected %d messages across pages, got %d", len(all), len(joined))
	}
	for i := range all {
		if joined[i].ID != all[i].ID {
			t.Fatalf("page order mismatch at %d", i)
		}
	}
}

func TestList_Validation(t *testing.T) {
	t.Parallel()

	c := NewChannel(newTestStore(), testOptions()...)
	ctx := context.Background()

	if _, err := c.List(ctx, "", 10, 0); !IsInvalidInput(err) {
		t.Fatalf("expected invalid input for blank id, got %v", err)
	}
	if _, err := c.List(ctx, "c1", 10, -1); !IsInvalidInput(err) {
		t.Fatalf("expected invalid input for negative offset, got %v", err)
	}
}

func TestClampPageSize(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want int }{
		{-1, DefaultPageSize},
		{0, DefaultPageSize},
		{1, 1},
		{MaxPageSize, MaxPageSize},
		{MaxPageSize + 1, MaxPageSize},
	}
	for _, tt := range tests {
		if got := ClampPageSize(tt.in); got != tt.want {
			t.Fatalf("ClampPageSize(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
