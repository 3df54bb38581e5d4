package realtime

import (
	"time"

	"huddle/cmd/internal/ids"
)

// NewSessionID returns a ULID used as websocket session id.
func NewSessionID(now time.Time) (string, error) {
	return ids.NewULID(now)
}

// newEnvelopeID returns a ULID for server-originated envelopes, so log lines sort by send order.
func newEnvelopeID(now time.Time) string {
	return ids.MustULID(now)
}
