// Package app wires the Huddle server runtime: config, logging, storage, the change
// feed, HTTP routes and the realtime gateway.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"huddle/cmd/internal/api"
	"huddle/cmd/internal/auth"
	"huddle/cmd/internal/chat"
	"huddle/cmd/internal/docstore"
	"huddle/cmd/internal/feed"
	"huddle/cmd/internal/metrics"
	"huddle/cmd/internal/realtime"
	"huddle/cmd/internal/social"
	"huddle/cmd/internal/viewcache"
)

// App is the Huddle server runtime.
//
// Ownership model: App owns the pool, the redis client, the feed, the cache and the
// mirror watch, and releases them in reverse order on shutdown.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	sqlDB     *sql.DB
	dbEnabled bool
	redis     *redis.Client

	store   docstore.Store
	feed    feed.Feed
	cache   viewcache.Cache
	mirror  *realtime.Watch
	metrics *metrics.Metrics

	handler http.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (_ *App, err error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log, metrics: metrics.New()}
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	if err := a.openFeedAndCache(ctx); err != nil {
		return nil, err
	}

	// Every write goes through the emitting store so watchers and the cache mirror see it.
	st := feed.Emitting(a.store, a.feed, log)

	chatSvc := chat.NewService(st, chat.WithLogger(log), chat.WithMetrics(a.metrics))
	socialSvc := social.NewService(st, log)

	authn, err := auth.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTValidity)
	if err != nil {
		return nil, err
	}

	bridge := realtime.NewBridge(a.feed, log, a.metrics)
	a.mirror, err = bridge.Mirror(ctx, a.cache)
	if err != nil {
		return nil, fmt.Errorf("cache mirror: %w", err)
	}

	ws, err := realtime.NewWSGateway(log, bridge, authn, chatSvc, a.metrics, cfg.WS)
	if err != nil {
		return nil, err
	}
	apiHandler, err := api.NewHandler(log, cfg.API, authn, chatSvc, socialSvc, a.cache)
	if err != nil {
		return nil, err
	}

	a.handler = newRouter(routes{
		log:       log,
		cfg:       cfg,
		dbPool:    a.dbPool,
		dbEnabled: a.dbEnabled,
		redis:     a.redis,
		metrics:   a.metrics,
		ws:        ws,
		api:       apiHandler,
	})
	return a, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// openStore decides between Postgres-backed persistence and the in-memory dev store.
func (a *App) openStore(ctx context.Context) error {
	if a.cfg.DatabaseURL == "" {
		a.log.Info("db.disabled.inmemory_store")
		a.store = docstore.NewInMemoryStore()
		return nil
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	a.dbPool = pool

	st, db, err := OpenDocStore(ctx, pool, a.cfg.DBSchema)
	if err != nil {
		return fmt.Errorf("docstore: %w", err)
	}
	a.store, a.sqlDB, a.dbEnabled = st, db, true
	a.log.Info("db.enabled.postgres_store", "schema", a.cfg.DBSchema)
	return nil
}

// openFeedAndCache selects Redis when configured so several instances share one feed
// and one view cache; otherwise both stay in process.
func (a *App) openFeedAndCache(ctx context.Context) error {
	brokerOpts := []feed.BrokerOption{
		feed.WithQueueSize(a.cfg.FeedQueueSize),
		feed.WithDropHook(a.metrics.FeedDrop),
	}

	if a.cfg.RedisURL == "" {
		a.log.Info("redis.disabled.local_feed")
		a.feed = feed.NewBroker(a.log, brokerOpts...)
		a.cache = viewcache.NewMemoryCache()
		return nil
	}

	client, err := NewRedisClient(ctx, a.cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	a.redis = client

	f, err := feed.NewRedisFeed(a.log, client, brokerOpts)
	if err != nil {
		return err
	}
	a.feed = f

	cache, err := viewcache.NewRedisCache(client, a.cfg.CacheNamespace)
	if err != nil {
		return err
	}
	a.cache = cache
	a.log.Info("redis.enabled.shared_feed")
	return nil
}

// NewRedisClient parses url and checks connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := PingRedis(ctx, client, 3*time.Second); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// PingRedis checks the server answers within timeout.
func PingRedis(parent context.Context, client *redis.Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	return client.Ping(ctx).Err()
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	base := runtimeBaseURL(a.cfg.HTTPAddr)
	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"base_url", base,
		"ws_url", wsBaseURL(base)+"/ws",
		"db_enabled", a.dbEnabled,
		"redis_enabled", a.redis != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		a.release()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		a.release()
		return err
	}

	a.release()
	a.log.Info("server.stopped")
	return nil
}

// release closes owned resources in reverse dependency order. It is idempotent.
func (a *App) release() {
	if a.mirror != nil {
		_ = a.mirror.Close()
		a.mirror = nil
	}
	if a.feed != nil {
		if err := a.feed.Close(); err != nil {
			a.log.Error("feed.close.fail", "err", err)
		}
		a.feed = nil
	}
	if a.cache != nil {
		_ = a.cache.Close()
		a.cache = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Error("redis.close.fail", "err", err)
		}
		a.redis = nil
	}
	if a.store != nil {
		_ = a.store.Close()
		a.store = nil
	}
	if a.sqlDB != nil {
		_ = a.sqlDB.Close()
		a.sqlDB = nil
	}
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// runtimeBaseURL turns a listen address into a URL a local client can dial.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return "http://" + strings.TrimSpace(addr)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func wsBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return "ws://" + base
	}
}
