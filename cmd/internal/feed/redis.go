package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	redis "github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix namespaces feed channels; the collection name is appended.
const DefaultChannelPrefix = "huddle:feed:"

// RedisFeed carries events between instances over Redis pub/sub.
//
// Publish only writes to Redis. One pump per collection relays what Redis delivers
// (including this instance's own publishes) into a local Broker, which owns fanout.
//
// Ownership model:
//   - RedisFeed does NOT own the *redis.Client. The caller must close it.
type RedisFeed struct {
	log    *slog.Logger
	client *redis.Client
	prefix string
	local  *Broker

	mu     sync.Mutex
	pumps  map[string]*redis.PubSub
	closed bool
}

// RedisOption configures a RedisFeed.
type RedisOption func(*RedisFeed)

// WithChannelPrefix overrides DefaultChannelPrefix.
func WithChannelPrefix(prefix string) RedisOption {
	return func(f *RedisFeed) {
		if prefix != "" {
			f.prefix = prefix
		}
	}
}

// NewRedisFeed constructs a RedisFeed. Broker options apply to local fanout.
func NewRedisFeed(log *slog.Logger, client *redis.Client, local []BrokerOption, opts ...RedisOption) (*RedisFeed, error) {
	if client == nil {
		return nil, errors.New("feed: nil redis client")
	}
	if log == nil {
		log = slog.Default()
	}
	f := &RedisFeed{
		log:    log,
		client: client,
		prefix: DefaultChannelPrefix,
		local:  NewBroker(log, local...),
		pumps:  make(map[string]*redis.PubSub),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

// Channel returns the Redis channel used for collection.
func (f *RedisFeed) Channel(collection string) string {
	return f.prefix + collection
}

// Publish serialises ev onto the collection's channel.
func (f *RedisFeed) Publish(ctx context.Context, ev Event) error {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return ErrClosed
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("feed: encode event: %w", err)
	}
	if err := f.client.Publish(ctx, f.Channel(ev.Collection), raw).Err(); err != nil {
		return fmt.Errorf("feed: publish: %w", err)
	}
	return nil
}

// Subscribe starts the collection pump on first use, then registers h locally.
func (f *RedisFeed) Subscribe(ctx context.Context, collection string, h Handler) (Subscription, error) {
	if err := f.ensurePump(ctx, collection); err != nil {
		return nil, err
	}
	return f.local.Subscribe(ctx, collection, h)
}

// Close stops every pump and the local broker.
func (f *RedisFeed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	pumps := f.pumps
	f.pumps = nil
	f.mu.Unlock()

	var errs []error
	for _, ps := range pumps {
		if err := ps.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, f.local.Close())
	return errors.Join(errs...)
}

func (f *RedisFeed) ensurePump(ctx context.Context, collection string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	if _, ok := f.pumps[collection]; ok {
		return nil
	}

	ps := f.client.Subscribe(ctx, f.Channel(collection))
	// Wait for the subscription confirmation so no publish after Subscribe returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("feed: subscribe %s: %w", collection, err)
	}
	f.pumps[collection] = ps

	go f.pump(collection, ps)
	f.log.Info("feed.redis.pump.start", "collection", collection, "channel", f.Channel(collection))
	return nil
}

func (f *RedisFeed) pump(collection string, ps *redis.PubSub) {
	for msg := range ps.Channel() {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			f.log.Warn("feed.redis.decode_fail", "collection", collection, "err", err)
			continue
		}
		if ev.Collection == "" {
			ev.Collection = collection
		}
		if err := f.local.Publish(context.Background(), ev); err != nil {
			return
		}
	}
	f.log.Info("feed.redis.pump.stop", "collection", collection)
}
