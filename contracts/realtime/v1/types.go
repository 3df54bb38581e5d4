// Package v1 defines the Huddle Realtime Protocol v1 contract.
//
// The realtime channel only carries invalidations: clients watch a conversation or
// their conversation list and re-read over HTTP when told a view changed.
// This package is shared between server and clients to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Subprotocol is the websocket subprotocol clients must request.
const Subprotocol = "huddle.realtime.v1"

// Type constants (wire-stable).
const (
	// TypeHello starts a session handshake (client -> server).
	TypeHello = "hello"
	// TypeHelloAck acknowledges the session handshake (server -> client).
	TypeHelloAck = "hello_ack"

	// TypeWatchConversation subscribes to one conversation's message list (client -> server).
	TypeWatchConversation = "watch_conversation"
	// TypeWatchConversations subscribes to the viewer's conversation list (client -> server).
	TypeWatchConversations = "watch_conversations"
	// TypeUnwatch drops watches (client -> server).
	TypeUnwatch = "unwatch"
	// TypeWatching confirms the active watches (server -> client).
	TypeWatching = "watching"

	// TypeInvalidate tells the client which cached views to re-read (server -> client).
	TypeInvalidate = "invalidate"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitzero"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeHello,
		TypeHelloAck,
		TypeWatchConversation,
		TypeWatchConversations,
		TypeUnwatch,
		TypeWatching,
		TypeInvalidate,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Payloads ----

// HelloPayload is sent by the client to initiate a session. Token may be omitted when
// the upgrade request already carried a bearer token.
type HelloPayload struct {
	Token string `json:"token,omitempty"`
}

// HelloAckPayload carries the session id and the authenticated viewer.
type HelloAckPayload struct {
	SessionID string `json:"session_id"`
	ViewerID  string `json:"viewer_id"`
}

// WatchConversationPayload selects the conversation to watch. It replaces any
// previously watched conversation.
type WatchConversationPayload struct {
	ConversationID string `json:"conversation_id"`
}

// WatchConversationsPayload is empty: the viewer is the session's.
type WatchConversationsPayload struct{}

// UnwatchPayload drops the conversation watch when ConversationID is set (and matches),
// otherwise every watch.
type UnwatchPayload struct {
	ConversationID string `json:"conversation_id,omitempty"`
}

// WatchingPayload reports the session's active watches.
type WatchingPayload struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Conversations  bool   `json:"conversations"`
}

// InvalidatePayload lists the view key prefixes that went stale.
type InvalidatePayload struct {
	Keys           []string `json:"keys"`
	ConversationID string   `json:"conversation_id,omitempty"`
	Collection     string   `json:"collection"`
	Action         string   `json:"action"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
