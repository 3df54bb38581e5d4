package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"huddle/cmd/internal/auth"
	"huddle/cmd/internal/chat"
	"huddle/cmd/internal/docstore"
	"huddle/cmd/internal/feed"
	v1 "huddle/contracts/realtime/v1"
)

const gatewayTestSecret = "0123456789abcdef0123456789abcdef"

type gatewayFixture struct {
	srv   *httptest.Server
	chat  *chat.Service
	authn *auth.Authenticator
}

func newGatewayFixture(t *testing.T, cfg GatewayConfig) *gatewayFixture {
	t.Helper()

	log := discardLogger()
	broker := feed.NewBroker(log)
	t.Cleanup(func() { _ = broker.Close() })

	st := feed.Emitting(docstore.NewInMemoryStore(), broker, log)
	svc := chat.NewService(st, chat.WithLogger(log))

	authn, err := auth.NewAuthenticator(gatewayTestSecret, "huddle", time.Hour)
	if err != nil {
		t.Fatalf("authenticator: %v", err)
	}

	gw, err := NewWSGateway(log, NewBridge(broker, log, nil), authn, svc, nil, cfg)
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)

	return &gatewayFixture{srv: srv, chat: svc, authn: authn}
}

func (fx *gatewayFixture) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := fx.authn.GenerateToken(userID, "")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return tok
}

func (fx *gatewayFixture) dial(t *testing.T, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	if header == nil {
		header = http.Header{}
	}
	if header.Get("Origin") == "" {
		header.Set("Origin", "http://localhost")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(fx.srv.URL, "http")
	conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   header,
	})
	if conn != nil {
		t.Cleanup(func() { _ = conn.CloseNow() })
	}
	return conn, resp, err
}

func writeTestEnvelope(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()

	env := v1.Envelope{V: v1.Version, Type: typ}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		env.Payload = b
	}
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func readTestEnvelope(t *testing.T, conn *websocket.Conn) v1.Envelope {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

func expectType[P any](t *testing.T, conn *websocket.Conn, typ string) P {
	t.Helper()

	env := readTestEnvelope(t, conn)
	if env.Type != typ {
		t.Fatalf("expected %s, got %s (%s)", typ, env.Type, env.Payload)
	}
	var p P
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decode %s payload: %v", typ, err)
	}
	return p
}

func hello(t *testing.T, conn *websocket.Conn, token string) v1.HelloAckPayload {
	t.Helper()
	writeTestEnvelope(t, conn, v1.TypeHello, v1.HelloPayload{Token: token})
	return expectType[v1.HelloAckPayload](t, conn, v1.TypeHelloAck)
}

func TestWSGateway_WatchConversationInvalidates(t *testing.T) {
	t.Parallel()

	fx := newGatewayFixture(t, DefaultGatewayConfig())
	ctx := context.Background()

	conv, err := fx.chat.Resolve(ctx, []string{"u1", "u2"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	conn, _, err := fx.dial(t, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	ack := hello(t, conn, fx.token(t, "u2"))
	if ack.ViewerID != "u2" || ack.SessionID == "" {
		t.Fatalf("unexpected ack: %+v", ack)
	}

	writeTestEnvelope(t, conn, v1.TypeWatchConversation, v1.WatchConversationPayload{ConversationID: conv.ID})
	watching := expectType[v1.WatchingPayload](t, conn, v1.TypeWatching)
	if watching.ConversationID != conv.ID || watching.Conversations {
		t.Fatalf("unexpected watching: %+v", watching)
	}

	if _, err := fx.chat.Send(ctx, chat.SendInput{ConversationID: conv.ID, SenderID: "u1", Content: "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	inv := expectType[v1.InvalidatePayload](t, conn, v1.TypeInvalidate)
	if inv.ConversationID != conv.ID || inv.Collection != docstore.Messages || inv.Action != string(feed.ActionCreate) {
		t.Fatalf("unexpected invalidate: %+v", inv)
	}
	if len(inv.Keys) == 0 {
		t.Fatalf("invalidate without keys")
	}
}

func TestWSGateway_WatchConversationsAndUnwatch(t *testing.T) {
	t.Parallel()

	fx := newGatewayFixture(t, DefaultGatewayConfig())
	ctx := context.Background()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+fx.token(t, "u2"))
	conn, _, err := fx.dial(t, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	// The upgrade token already authenticated the session; hello only acks.
	if ack := hello(t, conn, ""); ack.ViewerID != "u2" {
		t.Fatalf("unexpected ack: %+v", ack)
	}

	writeTestEnvelope(t, conn, v1.TypeWatchConversations, v1.WatchConversationsPayload{})
	if w := expectType[v1.WatchingPayload](t, conn, v1.TypeWatching); !w.Conversations {
		t.Fatalf("expected list watch, got %+v", w)
	}

	conv, err := fx.chat.Resolve(ctx, []string{"u1", "u2"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	inv := expectType[v1.InvalidatePayload](t, conn, v1.TypeInvalidate)
	if inv.ConversationID != conv.ID || inv.Collection != docstore.Conversations {
		t.Fatalf("unexpected invalidate: %+v", inv)
	}

	writeTestEnvelope(t, conn, v1.TypeUnwatch, v1.UnwatchPayload{})
	if w := expectType[v1.WatchingPayload](t, conn, v1.TypeWatching); w.Conversations || w.ConversationID != "" {
		t.Fatalf("expected no watches, got %+v", w)
	}

	// Nothing is watched; the next frame is the reply to the bad unwatch below.
	if _, err := fx.chat.Resolve(ctx, []string{"u2", "u3"}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	writeTestEnvelope(t, conn, v1.TypeUnwatch, v1.UnwatchPayload{ConversationID: "nope"})
	if e := expectType[v1.ErrorPayload](t, conn, v1.TypeError); e.Code != "unwatch_failed" {
		t.Fatalf("unexpected error: %+v", e)
	}
}

func TestWSGateway_RejectsWatchBeforeHello(t *testing.T) {
	t.Parallel()

	fx := newGatewayFixture(t, DefaultGatewayConfig())

	conn, _, err := fx.dial(t, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	writeTestEnvelope(t, conn, v1.TypeWatchConversations, v1.WatchConversationsPayload{})
	if e := expectType[v1.ErrorPayload](t, conn, v1.TypeError); e.Code != "unauthenticated" {
		t.Fatalf("unexpected error: %+v", e)
	}
}

func TestWSGateway_NonParticipantForbidden(t *testing.T) {
	t.Parallel()

	fx := newGatewayFixture(t, DefaultGatewayConfig())
	conv, err := fx.chat.Resolve(context.Background(), []string{"u1", "u2"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	conn, _, err := fx.dial(t, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	hello(t, conn, fx.token(t, "u9"))

	writeTestEnvelope(t, conn, v1.TypeWatchConversation, v1.WatchConversationPayload{ConversationID: conv.ID})
	if e := expectType[v1.ErrorPayload](t, conn, v1.TypeError); e.Code != "forbidden" {
		t.Fatalf("unexpected error: %+v", e)
	}

	writeTestEnvelope(t, conn, v1.TypeWatchConversation, v1.WatchConversationPayload{ConversationID: "missing"})
	if e := expectType[v1.ErrorPayload](t, conn, v1.TypeError); e.Code != "not_found" {
		t.Fatalf("unexpected error: %+v", e)
	}
}

func TestWSGateway_BadHelloToken(t *testing.T) {
	t.Parallel()

	fx := newGatewayFixture(t, DefaultGatewayConfig())
	conn, _, err := fx.dial(t, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	writeTestEnvelope(t, conn, v1.TypeHello, v1.HelloPayload{Token: "garbage"})
	if e := expectType[v1.ErrorPayload](t, conn, v1.TypeError); e.Code != "hello_failed" {
		t.Fatalf("unexpected error: %+v", e)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, _, err := conn.Read(ctx); websocket.CloseStatus(err) != websocket.StatusPolicyViolation {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestWSGateway_UpgradeRejections(t *testing.T) {
	t.Parallel()

	fx := newGatewayFixture(t, DefaultGatewayConfig())

	tests := []struct {
		name   string
		header http.Header
		status int
	}{
		{
			name:   "foreign origin",
			header: http.Header{"Origin": []string{"https://evil.example"}},
			status: http.StatusForbidden,
		},
		{
			name:   "bad bearer",
			header: http.Header{"Authorization": []string{"Bearer garbage"}},
			status: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := fx.dial(t, tt.header)
			if err == nil {
				t.Fatalf("expected dial error")
			}
			if resp == nil || resp.StatusCode != tt.status {
				t.Fatalf("expected status %d, got %+v", tt.status, resp)
			}
		})
	}
}

func TestWSGateway_EnforceOrigin(t *testing.T) {
	t.Parallel()

	g := &WSGateway{cfg: GatewayConfig{
		OriginRequired: true,
		AllowedOrigins: []string{"http://localhost", "https://app.example.com:8443"},
	}}

	tests := []struct {
		origin string
		ok     bool
	}{
		{"", false},
		{"http://localhost", true},
		{"http://localhost:3000", true},
		{"https://app.example.com:8443", true},
		{"https://APP.example.com", true},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		err := g.enforceOrigin(r)
		if (err == nil) != tt.ok {
			t.Fatalf("origin %q: ok=%v err=%v", tt.origin, tt.ok, err)
		}
	}

	got := deriveOriginPatternsFromAllowedOrigins([]string{"http://localhost:3000", "*", "https://b.example", "http://localhost"})
	if strings.Join(got, ",") != "b.example,localhost" {
		t.Fatalf("unexpected patterns: %v", got)
	}
}

func TestNewWSGateway_Validation(t *testing.T) {
	t.Parallel()

	log := discardLogger()
	broker := feed.NewBroker(log)
	defer func() { _ = broker.Close() }()
	authn, _ := auth.NewAuthenticator(gatewayTestSecret, "huddle", time.Hour)
	svc := chat.NewService(docstore.NewInMemoryStore())

	if _, err := NewWSGateway(log, nil, authn, svc, nil, GatewayConfig{}); err == nil {
		t.Fatalf("expected error for nil bridge")
	}
	if _, err := NewWSGateway(log, NewBridge(broker, log, nil), nil, svc, nil, GatewayConfig{}); err == nil {
		t.Fatalf("expected error for nil verifier")
	}
	gw, err := NewWSGateway(log, NewBridge(broker, log, nil), authn, svc, nil, GatewayConfig{SendQueueSize: 1})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if gw.cfg.SendQueueSize != wsMinSendQueueSize || gw.cfg.HelloTimeout != helloTimeout {
		t.Fatalf("defaults not applied: %+v", gw.cfg)
	}
}

func TestWatchErrorCode(t *testing.T) {
	t.Parallel()

	if got := watchErrorCode(errors.New("boom")); got != "watch_failed" {
		t.Fatalf("got %q", got)
	}
	if got := watchErrorCode(chat.ErrForbidden); got != "forbidden" {
		t.Fatalf("got %q", got)
	}
}
