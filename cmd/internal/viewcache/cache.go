// Package viewcache holds rendered read views (message pages, conversation lists)
// keyed so that the realtime bridge can drop them by prefix.
package viewcache

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("viewcache: miss")

// Cache stores opaque view bytes.
//
// Readers that render a view from the store fill it with Generation + SetIfCurrent so
// an Invalidate landing while the view is being rendered is not undone by the fill.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	// Generation snapshots the invalidation counters of every prefix covering key.
	Generation(ctx context.Context, key string) (int64, error)
	// SetIfCurrent stores val only when no covering prefix was invalidated since gen
	// was read. It reports whether val was stored.
	SetIfCurrent(ctx context.Context, key string, gen int64, val []byte, ttl time.Duration) (bool, error)
	// Invalidate removes every key starting with prefix. Prefixes are "" or end in ':'.
	Invalidate(ctx context.Context, prefix string) error
	Close() error
}

// Key layout:
//
//	messages:<conversationId>:<limit>:<offset>
//	conversations:<viewerId>:
const (
	messagesNS      = "messages:"
	conversationsNS = "conversations:"
)

// MessagesPrefix covers every cached page of one conversation's messages.
func MessagesPrefix(conversationID string) string {
	return messagesNS + conversationID + ":"
}

// MessagesKey is the key of one page.
func MessagesKey(conversationID string, limit, offset int) string {
	return MessagesPrefix(conversationID) + strconv.Itoa(limit) + ":" + strconv.Itoa(offset)
}

// ConversationsPrefix covers one viewer's conversation list.
func ConversationsPrefix(viewerID string) string {
	return conversationsNS + viewerID + ":"
}

// ConversationsKey is the key of a viewer's conversation list.
func ConversationsKey(viewerID string) string {
	return ConversationsPrefix(viewerID)
}

// AllConversationsPrefix covers the conversation lists of all viewers.
func AllConversationsPrefix() string {
	return conversationsNS
}

// scopes lists the invalidation prefixes covering key: "" and every prefix of key
// that ends in ':'.
func scopes(key string) []string {
	out := []string{""}
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			out = append(out, key[:i+1])
		}
	}
	return out
}
