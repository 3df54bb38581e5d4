package realtime

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"huddle/cmd/internal/chat"
	"huddle/cmd/internal/docstore"
	"huddle/cmd/internal/feed"
	"huddle/cmd/internal/metrics"
	"huddle/cmd/internal/viewcache"
)

// Invalidation names the cached views a change made stale. Keys are view-cache
// prefixes (see package viewcache).
type Invalidation struct {
	Keys           []string
	ConversationID string
	Collection     string
	Action         feed.Action
}

// Sink receives invalidations for one watch. It runs on the feed's delivery
// goroutine, must not block, and must not close its own Watch.
type Sink func(Invalidation)

// WatchState is the lifecycle of a Watch: inactive -> subscribed -> inactive.
type WatchState int32

const (
	WatchInactive WatchState = iota
	WatchSubscribed
)

func (s WatchState) String() string {
	if s == WatchSubscribed {
		return "subscribed"
	}
	return "inactive"
}

// Bridge turns the collection-wide change feed into scoped invalidations.
// The feed is only a trigger: data is always re-read from the document store.
type Bridge struct {
	feed    feed.Feed
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewBridge constructs a Bridge over f.
func NewBridge(f feed.Feed, log *slog.Logger, m *metrics.Metrics) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{feed: f, log: log, metrics: m}
}

// Watch is one live subscription set.
type Watch struct {
	bridge *Bridge
	kind   string
	scope  string

	mu    sync.RWMutex
	state WatchState
	subs  []feed.Subscription
}

// State reports whether the watch still delivers.
func (w *Watch) State() WatchState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Close unsubscribes unconditionally. It is idempotent; once it returns no further
// invalidation is delivered.
func (w *Watch) Close() error {
	w.mu.Lock()
	if w.state == WatchInactive {
		w.mu.Unlock()
		return nil
	}
	w.state = WatchInactive
	subs := w.subs
	w.subs = nil
	w.mu.Unlock()

	var errs []error
	for _, s := range subs {
		errs = append(errs, s.Close())
	}
	w.bridge.metrics.WatchClosed()
	w.bridge.log.Debug("bridge.watch.close", "kind", w.kind, "scope", w.scope)
	return errors.Join(errs...)
}

// deliver runs fn only while the watch is subscribed, holding off Close until fn returns.
func (w *Watch) deliver(fn func()) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.state != WatchSubscribed {
		return false
	}
	fn()
	return true
}

// WatchConversation invalidates the message list of conversationID on message
// creates and updates for it, and every viewer's conversation list on creates.
func (b *Bridge) WatchConversation(ctx context.Context, conversationID string, sink Sink) (*Watch, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, errors.New("bridge: missing conversation id")
	}
	if sink == nil {
		return nil, errors.New("bridge: nil sink")
	}

	return b.open(ctx, "conversation", conversationID, []string{docstore.Messages}, func(ev feed.Event) (Invalidation, bool) {
		inv, ok := messageInvalidation(ev)
		if !ok || inv.ConversationID != conversationID {
			return Invalidation{}, false
		}
		return inv, true
	}, sink)
}

// WatchConversations invalidates viewerID's conversation list when a conversation the
// viewer participates in is created or updated.
func (b *Bridge) WatchConversations(ctx context.Context, viewerID string, sink Sink) (*Watch, error) {
	viewerID = strings.TrimSpace(viewerID)
	if viewerID == "" {
		return nil, errors.New("bridge: missing viewer id")
	}
	if sink == nil {
		return nil, errors.New("bridge: nil sink")
	}

	return b.open(ctx, "conversations", viewerID, []string{docstore.Conversations}, func(ev feed.Event) (Invalidation, bool) {
		action, ok := changeAction(ev)
		if !ok || !slices.Contains(chat.ParticipantsOf(ev.Payload), viewerID) {
			return Invalidation{}, false
		}
		return Invalidation{
			Keys:           []string{viewcache.ConversationsPrefix(viewerID)},
			ConversationID: ev.Payload.ID,
			Collection:     docstore.Conversations,
			Action:         action,
		}, true
	}, sink)
}

// Mirror keeps cache coherent for every conversation and viewer, applying the same
// rules as the scoped watches with keys derived from each payload.
func (b *Bridge) Mirror(ctx context.Context, cache viewcache.Cache) (*Watch, error) {
	if cache == nil {
		return nil, errors.New("bridge: nil cache")
	}

	sink := func(inv Invalidation) {
		for _, key := range inv.Keys {
			if err := cache.Invalidate(context.Background(), key); err != nil {
				b.log.Warn("bridge.mirror.invalidate_fail", "key", key, "err", err)
			}
		}
	}

	return b.open(ctx, "mirror", "*", []string{docstore.Messages, docstore.Conversations}, func(ev feed.Event) (Invalidation, bool) {
		switch ev.Collection {
		case docstore.Messages:
			return messageInvalidation(ev)
		case docstore.Conversations:
			action, ok := changeAction(ev)
			if !ok {
				return Invalidation{}, false
			}
			participants := chat.ParticipantsOf(ev.Payload)
			keys := make([]string, 0, len(participants))
			for _, p := range participants {
				keys = append(keys, viewcache.ConversationsPrefix(p))
			}
			return Invalidation{Keys: keys, ConversationID: ev.Payload.ID, Collection: ev.Collection, Action: action}, len(keys) > 0
		default:
			return Invalidation{}, false
		}
	}, sink)
}

func (b *Bridge) open(ctx context.Context, kind, scope string, collections []string, match func(feed.Event) (Invalidation, bool), sink Sink) (*Watch, error) {
	w := &Watch{bridge: b, kind: kind, scope: scope, state: WatchSubscribed}

	handler := func(ev feed.Event) {
		action, _ := ev.Action()
		inv, ok := match(ev)
		if !ok {
			b.metrics.BridgeEvent(ev.Collection, string(action), "discarded")
			return
		}
		if w.deliver(func() { sink(inv) }) {
			b.metrics.BridgeEvent(ev.Collection, string(action), "matched")
		}
	}

	// Hold the lock while subscribing so an early event waits for a complete watch.
	w.mu.Lock()
	for _, c := range collections {
		sub, err := b.feed.Subscribe(ctx, c, handler)
		if err != nil {
			subs := w.subs
			w.subs = nil
			w.state = WatchInactive
			w.mu.Unlock()
			for _, s := range subs {
				_ = s.Close()
			}
			return nil, err
		}
		w.subs = append(w.subs, sub)
	}
	w.mu.Unlock()

	b.metrics.WatchOpened()
	b.log.Debug("bridge.watch.open", "kind", kind, "scope", scope)
	return w, nil
}

// messageInvalidation applies the message rules: a create makes the conversation's
// message list and every conversation list stale, an update only the message list.
func messageInvalidation(ev feed.Event) (Invalidation, bool) {
	if ev.Collection != docstore.Messages {
		return Invalidation{}, false
	}
	convID := chat.ConversationIDOf(ev.Payload)
	if convID == "" {
		return Invalidation{}, false
	}

	inv := Invalidation{ConversationID: convID, Collection: docstore.Messages}
	switch {
	case ev.Includes(feed.Tag(docstore.Messages, feed.ActionCreate)):
		inv.Action = feed.ActionCreate
		inv.Keys = []string{viewcache.MessagesPrefix(convID), viewcache.AllConversationsPrefix()}
	case ev.Includes(feed.Tag(docstore.Messages, feed.ActionUpdate)):
		inv.Action = feed.ActionUpdate
		inv.Keys = []string{viewcache.MessagesPrefix(convID)}
	default:
		return Invalidation{}, false
	}
	return inv, true
}

func changeAction(ev feed.Event) (feed.Action, bool) {
	switch {
	case ev.Includes(feed.Tag(ev.Collection, feed.ActionCreate)):
		return feed.ActionCreate, true
	case ev.Includes(feed.Tag(ev.Collection, feed.ActionUpdate)):
		return feed.ActionUpdate, true
	default:
		return "", false
	}
}
