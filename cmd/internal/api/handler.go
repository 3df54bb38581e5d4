// Package api serves the versioned HTTP surface: conversations, messages, read state
// and the social endpoints. Every route requires a bearer token.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"huddle/cmd/internal/auth"
	"huddle/cmd/internal/chat"
	"huddle/cmd/internal/realtime"
	"huddle/cmd/internal/social"
	"huddle/cmd/internal/viewcache"
)

// Config holds request limits.
type Config struct {
	MaxBodyBytes int64
	CacheTTL     time.Duration

	// Per-viewer message send budget.
	SendRateEvents int
	SendRateWindow time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:   64 << 10,
		CacheTTL:       30 * time.Second,
		SendRateEvents: 30,
		SendRateWindow: 10 * time.Second,
	}
}

// Handler wires HTTP routes to the chat and social services.
//
// Ownership model: does NOT own the services or the cache.
type Handler struct {
	log    *slog.Logger
	cfg    Config
	auth   auth.Verifier
	chat   *chat.Service
	social *social.Service
	cache  viewcache.Cache

	sends *realtime.KeyedLimiter
	now   func() time.Time
}

// NewHandler constructs a Handler. cache may be nil to disable view caching.
func NewHandler(log *slog.Logger, cfg Config, verifier auth.Verifier, chatSvc *chat.Service, socialSvc *social.Service, cache viewcache.Cache) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if verifier == nil {
		return nil, errors.New("api: nil verifier")
	}
	if chatSvc == nil || socialSvc == nil {
		return nil, errors.New("api: nil service")
	}

	d := DefaultConfig()
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = d.MaxBodyBytes
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = d.CacheTTL
	}
	if cfg.SendRateEvents <= 0 {
		cfg.SendRateEvents = d.SendRateEvents
	}
	if cfg.SendRateWindow <= 0 {
		cfg.SendRateWindow = d.SendRateWindow
	}

	return &Handler{
		log:    log,
		cfg:    cfg,
		auth:   verifier,
		chat:   chatSvc,
		social: socialSvc,
		cache:  cache,
		sends:  realtime.NewKeyedLimiter(cfg.SendRateEvents, cfg.SendRateWindow),
		now:    time.Now,
	}, nil
}

// Routes returns the /v1 router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(auth.RequireBearer(h.log, h.auth))

	r.Route("/conversations", func(r chi.Router) {
		r.Post("/", h.handleResolve)
		r.Get("/", h.handleConversations)
		r.Get("/{id}", h.handleConversation)
		r.Get("/{id}/messages", h.handleListMessages)
		r.Post("/{id}/messages", h.handleSend)
		r.Post("/{id}/read", h.handleMarkConversationRead)
	})
	r.Post("/messages/{id}/read", h.handleMarkMessageRead)

	r.Route("/users", func(r chi.Router) {
		r.Get("/search", h.handleSearchUsers)
		r.Put("/{id}/follow", h.handleFollow)
		r.Delete("/{id}/follow", h.handleUnfollow)
		r.Get("/{id}/follow-stats", h.handleFollowStats)
	})
	r.Get("/feed", h.handleFeed)

	return r
}

func viewer(r *http.Request) string {
	id, _ := auth.ViewerFromContext(r.Context())
	return id
}
