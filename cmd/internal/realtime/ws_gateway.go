package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"huddle/cmd/internal/auth"
	"huddle/cmd/internal/chat"
	"huddle/cmd/internal/metrics"
	v1 "huddle/contracts/realtime/v1"
)

const (
	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3

	// Security defaults:
	// - Origin is required by default.
	// - Only localhost is allowed by default (secure-by-default for dev).
	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// ConversationAccess authorizes a viewer for a conversation watch.
type ConversationAccess interface {
	ConversationFor(ctx context.Context, conversationID, viewerID string) (chat.Conversation, error)
}

// GatewayConfig holds the websocket knobs. Zero values fall back to defaults.
type GatewayConfig struct {
	DevInsecure    bool
	OriginRequired bool
	AllowedOrigins []string

	WriteTimeout    time.Duration
	ReadIdleTimeout time.Duration
	SendQueueSize   int

	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration

	RateEvents int
	RateWindow time.Duration

	HelloTimeout time.Duration
}

// DefaultGatewayConfig returns the secure defaults.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		OriginRequired:   wsDefaultOriginRequired,
		AllowedOrigins:   splitCSV(wsDefaultAllowedOrigins),
		WriteTimeout:     wsDefaultWriteTimeout,
		ReadIdleTimeout:  wsDefaultReadIdle,
		SendQueueSize:    wsDefaultSendQueueSize,
		HeartbeatEvery:   heartbeatInterval,
		HeartbeatTimeout: heartbeatTimeout,
		RateEvents:       rateLimitEvents,
		RateWindow:       rateLimitWindow,
		HelloTimeout:     helloTimeout,
	}
}

// LoadGatewayConfig reads HUDDLE_WS_* over the defaults.
func LoadGatewayConfig() GatewayConfig {
	cfg := DefaultGatewayConfig()

	// NOTE: InsecureSkipVerify is a dev-only knob for websocket.Accept. It is not an origin policy.
	cfg.DevInsecure = envBoolWS("HUDDLE_WS_DEV_INSECURE", false)
	cfg.OriginRequired = envBoolWS("HUDDLE_WS_ORIGIN_REQUIRED", cfg.OriginRequired)
	cfg.AllowedOrigins = envCSVWS("HUDDLE_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins)

	cfg.WriteTimeout = envDurationWS("HUDDLE_WS_WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.ReadIdleTimeout = envDurationWS("HUDDLE_WS_READ_IDLE_TIMEOUT", cfg.ReadIdleTimeout)
	cfg.SendQueueSize = envIntWS("HUDDLE_WS_SEND_QUEUE", cfg.SendQueueSize)

	cfg.HeartbeatEvery = envDurationWS("HUDDLE_WS_HEARTBEAT_INTERVAL", cfg.HeartbeatEvery)
	cfg.HeartbeatTimeout = envDurationWS("HUDDLE_WS_HEARTBEAT_TIMEOUT", cfg.HeartbeatTimeout)

	cfg.RateEvents = envIntWS("HUDDLE_WS_RATE_EVENTS", cfg.RateEvents)
	cfg.RateWindow = envDurationWS("HUDDLE_WS_RATE_WINDOW", cfg.RateWindow)
	cfg.HelloTimeout = envDurationWS("HUDDLE_WS_HELLO_TIMEOUT", cfg.HelloTimeout)
	return cfg
}

func (c GatewayConfig) withDefaults() GatewayConfig {
	d := DefaultGatewayConfig()
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.ReadIdleTimeout <= 0 {
		c.ReadIdleTimeout = d.ReadIdleTimeout
	}
	if c.SendQueueSize < wsMinSendQueueSize {
		c.SendQueueSize = wsMinSendQueueSize
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = d.HeartbeatEvery
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = d.HeartbeatTimeout
	}
	if c.RateEvents <= 0 {
		c.RateEvents = d.RateEvents
	}
	if c.RateWindow <= 0 {
		c.RateWindow = d.RateWindow
	}
	if c.HelloTimeout <= 0 {
		c.HelloTimeout = d.HelloTimeout
	}
	return c
}

// WSGateway is the WebSocket entrypoint for realtime invalidations.
//
// It enforces origin policy, subprotocol selection, authentication, rate limits and
// heartbeats, and turns watch requests into Bridge watches whose invalidations are
// pushed to the client.
type WSGateway struct {
	log     *slog.Logger
	bridge  *Bridge
	auth    auth.Verifier
	access  ConversationAccess
	metrics *metrics.Metrics
	cfg     GatewayConfig

	// Derived for websocket.Accept origin checks.
	// Accept() authorizes same-host origins by default, but for cross-origin it requires OriginPatterns.
	originPatterns []string
}

// NewWSGateway constructs a gateway.
func NewWSGateway(log *slog.Logger, bridge *Bridge, verifier auth.Verifier, access ConversationAccess, m *metrics.Metrics, cfg GatewayConfig) (*WSGateway, error) {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if bridge == nil {
		return nil, errors.New("realtime: nil bridge")
	}
	if verifier == nil {
		return nil, errors.New("realtime: nil verifier")
	}
	if access == nil {
		return nil, errors.New("realtime: nil conversation access")
	}

	cfg = cfg.withDefaults()
	return &WSGateway{
		log:     log,
		bridge:  bridge,
		auth:    verifier,
		access:  access,
		metrics: m,
		cfg:     cfg,

		// websocket.Accept enforces its own origin policy:
		// - same-host is ok
		// - cross-origin requires OriginPatterns (host patterns)
		// We derive these patterns from allowed origins so the two layers agree.
		originPatterns: deriveOriginPatternsFromAllowedOrigins(cfg.AllowedOrigins),
	}, nil
}

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// session is the per-connection state owned by the read loop.
type session struct {
	client *Client

	mu        sync.Mutex
	convWatch *Watch
	convID    string
	listWatch *Watch
}

func (s *session) swapConversation(id string, w *Watch) (old *Watch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old = s.convWatch
	s.convWatch, s.convID = w, id
	return old
}

func (s *session) swapList(w *Watch) (old *Watch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old = s.listWatch
	s.listWatch = w
	return old
}

func (s *session) watching() v1.WatchingPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return v1.WatchingPayload{ConversationID: s.convID, Conversations: s.listWatch != nil}
}

func (s *session) closeAll() {
	s.mu.Lock()
	cw, lw := s.convWatch, s.listWatch
	s.convWatch, s.convID, s.listWatch = nil, "", nil
	s.mu.Unlock()

	if cw != nil {
		_ = cw.Close()
	}
	if lw != nil {
		_ = lw.Close()
	}
}

// HandleWS upgrades an HTTP request to a WebSocket session and runs the realtime loop.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	// A bearer token on the upgrade request authenticates up front; otherwise hello must carry one.
	var viewerID string
	if token := auth.BearerToken(r); token != "" {
		id, err := g.auth.Verify(token)
		if err != nil {
			g.log.Info("ws.reject.auth", "err", err, "remote", r.RemoteAddr)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		viewerID = id
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{v1.Subprotocol},

		// Authorize allowed origin hosts (e.g. localhost) for cross-origin requests.
		OriginPatterns: g.originPatterns,

		// Dev-only escape hatch.
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != v1.Subprotocol {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", v1.Subprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	sessionID, err := NewSessionID(time.Now().UTC())
	if err != nil {
		g.log.Error("ws.session_id.fail", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "internal error")
		return
	}
	client := NewClient(sessionID, g.cfg.SendQueueSize)
	if viewerID != "" {
		client.setViewer(viewerID)
	}
	sess := &session{client: client}

	g.metrics.SessionOpened()
	defer g.metrics.SessionClosed()
	g.log.Info("ws.session.open", "session_id", sessionID, "viewer_id", viewerID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once

	// shutdown is idempotent. It does NOT close client.Send.
	// Watches are closed before client.Close so no sink targets a dead session.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			sess.closeAll()
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	rl := NewRateLimiter(g.cfg.RateEvents, g.cfg.RateWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout); err != nil {
					g.log.Info("ws.write.fail", "session_id", sessionID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.cfg.HeartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "session_id", sessionID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	helloDeadline := time.Now().Add(g.cfg.HelloTimeout)

readLoop:
	for {
		idle := g.cfg.ReadIdleTimeout
		if client.ViewerID() == "" {
			idle = min(idle, time.Until(helloDeadline))
		}
		readCtx, readCancel := context.WithTimeout(ctx, idle)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				if client.ViewerID() == "" && ctx.Err() == nil {
					g.writeError(ctx, conn, "unauthenticated", "hello timeout")
					shutdown(websocket.StatusPolicyViolation, "hello timeout")
					break readLoop
				}
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.trySendError(client, "bad_json", "invalid JSON")
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "session_id", sessionID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		now := time.Now().UTC()
		if !rl.Allow(now) {
			g.writeError(ctx, conn, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			g.trySendError(client, "bad_envelope", err.Error())
			continue readLoop
		}

		if env.Type != v1.TypeHello && client.ViewerID() == "" {
			g.trySendError(client, "unauthenticated", "hello first")
			continue readLoop
		}

		switch env.Type {
		case v1.TypeHello:
			if err := g.onHello(client, env); err != nil {
				g.writeError(ctx, conn, "hello_failed", err.Error())
				shutdown(websocket.StatusPolicyViolation, "hello failed")
				break readLoop
			}

		case v1.TypeWatchConversation:
			if err := g.onWatchConversation(ctx, sess, env); err != nil {
				g.trySendError(client, watchErrorCode(err), err.Error())
				continue readLoop
			}

		case v1.TypeWatchConversations:
			if err := g.onWatchConversations(ctx, sess); err != nil {
				g.trySendError(client, "watch_failed", err.Error())
				continue readLoop
			}

		case v1.TypeUnwatch:
			if err := g.onUnwatch(sess, env); err != nil {
				g.trySendError(client, "unwatch_failed", err.Error())
				continue readLoop
			}

		default:
			g.trySendError(client, "unsupported", fmt.Sprintf("unsupported type: %s", env.Type))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
	g.log.Info("ws.session.close", "session_id", sessionID, "viewer_id", client.ViewerID())
}

// ---- handlers ----

func (g *WSGateway) onHello(client *Client, env v1.Envelope) error {
	var p v1.HelloPayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("invalid payload: %w", err)
		}
	}

	viewerID := client.ViewerID()
	if token := strings.TrimSpace(p.Token); token != "" {
		id, err := g.auth.Verify(token)
		if err != nil {
			return errors.New("invalid token")
		}
		if viewerID != "" && viewerID != id {
			return errors.New("token does not match the session viewer")
		}
		viewerID = id
	}
	if viewerID == "" {
		return errors.New("missing token")
	}
	client.setViewer(viewerID)

	ack := newEnvelope(v1.TypeHelloAck, mustPayload(v1.HelloAckPayload{
		SessionID: client.SessionID,
		ViewerID:  viewerID,
	}), time.Now().UTC())
	if !client.Offer(ack) {
		return errors.New("backpressure: hello_ack")
	}
	return nil
}

func (g *WSGateway) onWatchConversation(ctx context.Context, sess *session, env v1.Envelope) error {
	var p v1.WatchConversationPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	convID := strings.TrimSpace(p.ConversationID)
	if convID == "" {
		return errors.New("missing conversation_id")
	}

	client := sess.client
	if _, err := g.access.ConversationFor(ctx, convID, client.ViewerID()); err != nil {
		return err
	}

	w, err := g.bridge.WatchConversation(ctx, convID, g.sink(client))
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	// Swap, then close the old watch: teardown on id change is unconditional.
	if old := sess.swapConversation(convID, w); old != nil {
		_ = old.Close()
	}

	g.log.Info("ws.watch.conversation", "session_id", client.SessionID, "conversation_id", convID)
	g.sendWatching(sess)
	return nil
}

func (g *WSGateway) onWatchConversations(ctx context.Context, sess *session) error {
	client := sess.client
	w, err := g.bridge.WatchConversations(ctx, client.ViewerID(), g.sink(client))
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	if old := sess.swapList(w); old != nil {
		_ = old.Close()
	}

	g.log.Info("ws.watch.conversations", "session_id", client.SessionID)
	g.sendWatching(sess)
	return nil
}

func (g *WSGateway) onUnwatch(sess *session, env v1.Envelope) error {
	var p v1.UnwatchPayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("invalid payload: %w", err)
		}
	}

	convID := strings.TrimSpace(p.ConversationID)
	if convID == "" {
		sess.closeAll()
	} else {
		sess.mu.Lock()
		matches := sess.convID == convID
		sess.mu.Unlock()
		if !matches {
			return errors.New("conversation_id is not watched")
		}
		if old := sess.swapConversation("", nil); old != nil {
			_ = old.Close()
		}
	}

	g.sendWatching(sess)
	return nil
}

// sink pushes invalidations to the client. A full queue drops the invalidation
// rather than blocking the feed.
func (g *WSGateway) sink(client *Client) Sink {
	return func(inv Invalidation) {
		env := newEnvelope(v1.TypeInvalidate, mustPayload(v1.InvalidatePayload{
			Keys:           slices.Clone(inv.Keys),
			ConversationID: inv.ConversationID,
			Collection:     inv.Collection,
			Action:         string(inv.Action),
		}), time.Now().UTC())
		if !client.Offer(env) {
			g.log.Debug("ws.invalidate.drop", "session_id", client.SessionID, "conversation_id", inv.ConversationID)
		}
	}
}

func (g *WSGateway) sendWatching(sess *session) {
	env := newEnvelope(v1.TypeWatching, mustPayload(sess.watching()), time.Now().UTC())
	_ = sess.client.Offer(env)
}

func watchErrorCode(err error) string {
	switch {
	case errors.Is(err, chat.ErrForbidden):
		return "forbidden"
	case errors.Is(err, chat.ErrNotFound):
		return "not_found"
	case errors.Is(err, chat.ErrInvalidInput):
		return "bad_request"
	default:
		return "watch_failed"
	}
}

// ---- send helpers ----

func (g *WSGateway) trySendError(client *Client, code, msg string) {
	env := newEnvelope(v1.TypeError, mustPayload(v1.ErrorPayload{Code: code, Message: msg}), time.Now().UTC())
	_ = client.Offer(env)
}

// writeError bypasses the send queue for errors that precede a close, so the frame is
// on the wire before the close handshake starts.
func (g *WSGateway) writeError(ctx context.Context, conn *websocket.Conn, code, msg string) {
	env := newEnvelope(v1.TypeError, mustPayload(v1.ErrorPayload{Code: code, Message: msg}), time.Now().UTC())
	if err := writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout); err != nil {
		g.log.Debug("ws.write_error.fail", "code", code, "err", err)
	}
}

// ---- envelope IO ----

func mustPayload(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func newEnvelope(typ string, payload json.RawMessage, ts time.Time) v1.Envelope {
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      newEnvelopeID(ts),
		TS:      ts,
		Payload: payload,
	}
}

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, err
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return readErrBadJSON
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.cfg.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			// Strongly discouraged, but honored if explicitly configured.
			return nil
		}

		// Full origin match (scheme + host + optional port).
		if origin == a {
			return nil
		}

		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// URL form.
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	// host[:port] form.
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	// websocket.Accept matches OriginPatterns against the origin host using filepath.Match patterns.
	// Only hosts extracted from the allowlist are accepted.
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}

// ---- env helpers ----

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSVWS(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	return splitCSV(raw)
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
