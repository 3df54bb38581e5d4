package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"huddle/cmd/internal/docstore"
)

var errInjected = errors.New("injected failure")

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func newClock() *stepClock {
	return &stepClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func newTestStore() *docstore.InMemoryStore {
	return docstore.NewInMemoryStore(docstore.WithClock(newClock().now))
}

func testOptions() []Option {
	return []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(newClock().now),
	}
}

// faultyStore fails Update and AddToSet calls selected by failUpdate and counts every
// write to an existing document.
type faultyStore struct {
	docstore.Store

	failUpdate func(collection, id string) bool
	failList   bool
	updates    atomic.Int32
}

func (s *faultyStore) Update(ctx context.Context, collection, id string, patch map[string]any) (docstore.Document, error) {
	s.updates.Add(1)
	if s.failUpdate != nil && s.failUpdate(collection, id) {
		return docstore.Document{}, errInjected
	}
	return s.Store.Update(ctx, collection, id, patch)
}

func (s *faultyStore) AddToSet(ctx context.Context, collection, id, field string, values ...string) (docstore.Document, error) {
	s.updates.Add(1)
	if s.failUpdate != nil && s.failUpdate(collection, id) {
		return docstore.Document{}, errInjected
	}
	return s.Store.AddToSet(ctx, collection, id, field, values...)
}

func (s *faultyStore) List(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	if s.failList {
		return nil, errInjected
	}
	return s.Store.List(ctx, collection, q)
}

// gateStore holds every conversation List until n callers have listed, forcing
// concurrent resolutions to interleave check-then-create.
type gateStore struct {
	docstore.Store

	arrived sync.WaitGroup
}

func newGateStore(inner docstore.Store, n int) *gateStore {
	g := &gateStore{Store: inner}
	g.arrived.Add(n)
	return g
}

func (s *gateStore) List(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	docs, err := s.Store.List(ctx, collection, q)
	if collection == docstore.Conversations {
		s.arrived.Done()
		s.arrived.Wait()
	}
	return docs, err
}

func mustResolve(t *testing.T, r *Resolver, participants ...string) Conversation {
	t.Helper()
	conv, err := r.Resolve(context.Background(), participants)
	if err != nil {
		t.Fatalf("resolve %v: %v", participants, err)
	}
	return conv
}

func mustSend(t *testing.T, c *Channel, convID, sender, content string) Message {
	t.Helper()
	msg, err := c.Send(context.Background(), SendInput{ConversationID: convID, SenderID: sender, Content: content})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	return msg
}
