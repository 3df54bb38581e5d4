package feed

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrClosed is returned by operations on a closed feed.
var ErrClosed = errors.New("feed: closed")

const defaultQueueSize = 64

// Broker is the in-process Feed.
//
// Concurrency guarantees:
// - Subscribe/Close are safe under concurrent Publish.
// - Publish never blocks; a subscriber whose queue is full loses the event.
// - Each subscription delivers on its own goroutine, in publish order.
type Broker struct {
	log       *slog.Logger
	queueSize int
	onDrop    func(collection string)

	mu     sync.RWMutex
	topics map[string]map[string]*subscriber
	closed bool
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithQueueSize bounds each subscription's pending events.
func WithQueueSize(n int) BrokerOption {
	return func(b *Broker) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// WithDropHook is called whenever an event is dropped for a slow subscriber.
func WithDropHook(fn func(collection string)) BrokerOption {
	return func(b *Broker) { b.onDrop = fn }
}

// NewBroker constructs an empty Broker.
func NewBroker(log *slog.Logger, opts ...BrokerOption) *Broker {
	if log == nil {
		log = slog.Default()
	}
	b := &Broker{
		log:       log,
		queueSize: defaultQueueSize,
		topics:    make(map[string]map[string]*subscriber),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Publish fans ev out to the subscribers of ev.Collection.
func (b *Broker) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	for _, s := range b.topics[ev.Collection] {
		select {
		case <-s.done:
			continue
		default:
		}

		select {
		case s.queue <- ev:
		default:
			b.log.Warn("feed.drop", "collection", ev.Collection, "subscription_id", s.id)
			if b.onDrop != nil {
				b.onDrop(ev.Collection)
			}
		}
	}
	return nil
}

// Subscribe registers h for every event of collection.
func (b *Broker) Subscribe(ctx context.Context, collection string, h Handler) (Subscription, error) {
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return nil, errors.New("feed: missing collection")
	}
	if h == nil {
		return nil, errors.New("feed: nil handler")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := &subscriber{
		id:         uuid.NewString(),
		collection: collection,
		broker:     b,
		handler:    h,
		queue:      make(chan Event, b.queueSize),
		done:       make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	members := b.topics[collection]
	if members == nil {
		members = make(map[string]*subscriber)
		b.topics[collection] = members
	}
	members[s.id] = s
	b.mu.Unlock()

	go s.run()

	b.log.Debug("feed.subscribe", "collection", collection, "subscription_id", s.id)
	return s, nil
}

// Close drops every subscription. Later Publish/Subscribe calls fail with ErrClosed.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var subs []*subscriber
	for _, members := range b.topics {
		for _, s := range members {
			subs = append(subs, s)
		}
	}
	b.topics = make(map[string]map[string]*subscriber)
	b.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
	return nil
}

func (b *Broker) leave(s *subscriber) {
	b.mu.Lock()
	if members := b.topics[s.collection]; members != nil {
		delete(members, s.id)
		if len(members) == 0 {
			delete(b.topics, s.collection)
		}
	}
	b.mu.Unlock()

	// Stop after removing from membership so no publisher still targets the queue.
	s.stop()

	b.log.Debug("feed.unsubscribe", "collection", s.collection, "subscription_id", s.id)
}

// subscriber mirrors a websocket client: the queue is never closed, done signals shutdown.
type subscriber struct {
	id         string
	collection string
	broker     *Broker
	handler    Handler

	queue     chan Event
	done      chan struct{}
	closeOnce sync.Once
}

func (s *subscriber) ID() string         { return s.id }
func (s *subscriber) Collection() string { return s.collection }

func (s *subscriber) Close() error {
	s.broker.leave(s)
	return nil
}

func (s *subscriber) stop() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.queue:
			select {
			case <-s.done:
				return
			default:
			}
			s.handler(ev)
		}
	}
}
