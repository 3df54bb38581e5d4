package realtime

import (
	"sync"

	v1 "huddle/contracts/realtime/v1"
)

// Client represents one connected websocket session.
//
// Send is never closed by the server: bridge sinks enqueue from feed goroutines and
// a closed channel would make them panic. done signals shutdown; Close is idempotent.
type Client struct {
	SessionID string
	Send      chan v1.Envelope

	mu       sync.RWMutex
	viewerID string

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(sessionID string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Client{
		SessionID: sessionID,
		Send:      make(chan v1.Envelope, sendQueueSize),
		done:      make(chan struct{}),
	}
}

// ViewerID returns the authenticated viewer, or "" before authentication.
func (c *Client) ViewerID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viewerID
}

func (c *Client) setViewer(id string) {
	c.mu.Lock()
	c.viewerID = id
	c.mu.Unlock()
}

// Done returns a channel that is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals the client goroutines to stop (idempotent).
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Offer enqueues env without blocking. It reports false when the queue is full or the
// client is shutting down.
func (c *Client) Offer(env v1.Envelope) bool {
	select {
	case <-c.Done():
		return false
	default:
	}

	select {
	case c.Send <- env:
		return true
	default:
		return false
	}
}
