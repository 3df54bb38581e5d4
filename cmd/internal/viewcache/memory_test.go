package viewcache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryCache_GetSet(t *testing.T) {
	t.Parallel()

	c := NewMemoryCache()
	ctx := context.Background()

	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss, got %v", err)
	}

	val := []byte("v1")
	if err := c.Set(ctx, "k", val, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	val[0] = 'x'

	got, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "v1" {
		t.Fatalf("expected stored copy, got %q", got)
	}
}

func TestMemoryCache_TTL(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_ = c.Set(ctx, "k", []byte("v"), time.Minute)

	now = now.Add(59 * time.Second)
	if _, err := c.Get(ctx, "k"); err != nil {
		t.Fatalf("expected hit before expiry: %v", err)
	}
	now = now.Add(time.Second)
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss at expiry, got %v", err)
	}
	if n := c.Len(); n != 0 {
		t.Fatalf("expected no live entries, got %d", n)
	}
}

func TestMemoryCache_InvalidatePrefix(t *testing.T) {
	t.Parallel()

	c := NewMemoryCache()
	ctx := context.Background()

	keys := []string{
		MessagesKey("c1", 50, 0),
		MessagesKey("c1", 50, 50),
		MessagesKey("c10", 50, 0),
		ConversationsKey("u1"),
		ConversationsKey("u2"),
	}
	for _, k := range keys {
		_ = c.Set(ctx, k, []byte("x"), 0)
	}

	if err := c.Invalidate(ctx, MessagesPrefix("c1")); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := c.Get(ctx, MessagesKey("c1", 50, 50)); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected c1 page dropped")
	}
	if _, err := c.Get(ctx, MessagesKey("c10", 50, 0)); err != nil {
		t.Fatalf("expected c10 page kept: %v", err)
	}

	if err := c.Invalidate(ctx, AllConversationsPrefix()); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if n := c.Len(); n != 1 {
		t.Fatalf("expected only c10 page left, got %d entries", n)
	}
}

func TestKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		got, want string
	}{
		{MessagesKey("c1", 50, 100), "messages:c1:50:100"},
		{MessagesPrefix("c1"), "messages:c1:"},
		{ConversationsKey("u1"), "conversations:u1:"},
		{AllConversationsPrefix(), "conversations:"},
		{escapeGlob("a*b?[c]"), `a\*b\?\[c\]`},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Fatalf("expected %q, got %q", tt.want, tt.got)
		}
	}
}

func TestMemoryCache_SetIfCurrentRejectsFillAfterInvalidate(t *testing.T) {
	t.Parallel()

	c := NewMemoryCache()
	ctx := context.Background()
	key := MessagesKey("c1", 50, 0)

	gen, err := c.Generation(ctx, key)
	if err != nil {
		t.Fatalf("generation: %v", err)
	}
	if err := c.Invalidate(ctx, MessagesPrefix("c1")); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	ok, err := c.SetIfCurrent(ctx, key, gen, []byte("old"), 0)
	if err != nil || ok {
		t.Fatalf("expected fill rejected, got ok=%v err=%v", ok, err)
	}
	if _, err := c.Get(ctx, key); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss after rejected fill, got %v", err)
	}

	gen, _ = c.Generation(ctx, key)
	ok, err = c.SetIfCurrent(ctx, key, gen, []byte("new"), 0)
	if err != nil || !ok {
		t.Fatalf("expected fill stored, got ok=%v err=%v", ok, err)
	}
	if got, err := c.Get(ctx, key); err != nil || string(got) != "new" {
		t.Fatalf("expected new, got %q %v", got, err)
	}
}

func TestMemoryCache_GenerationScopes(t *testing.T) {
	t.Parallel()

	c := NewMemoryCache()
	ctx := context.Background()

	tests := []struct {
		name    string
		prefix  string
		key     string
		changes bool
	}{
		{name: "own conversation", prefix: MessagesPrefix("c1"), key: MessagesKey("c1", 50, 0), changes: true},
		{name: "other conversation", prefix: MessagesPrefix("c2"), key: MessagesKey("c1", 50, 0), changes: false},
		{name: "similar id", prefix: MessagesPrefix("c1"), key: MessagesKey("c10", 50, 0), changes: false},
		{name: "all lists", prefix: AllConversationsPrefix(), key: ConversationsKey("u1"), changes: true},
		{name: "other viewer", prefix: ConversationsPrefix("u2"), key: ConversationsKey("u1"), changes: false},
		{name: "everything", prefix: "", key: ConversationsKey("u1"), changes: true},
	}
	for _, tt := range tests {
		before, _ := c.Generation(ctx, tt.key)
		_ = c.Invalidate(ctx, tt.prefix)
		after, _ := c.Generation(ctx, tt.key)
		if (before != after) != tt.changes {
			t.Fatalf("%s: generation %d -> %d, want changed=%v", tt.name, before, after, tt.changes)
		}
	}
}
