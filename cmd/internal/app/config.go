package app

import (
	"time"

	"huddle/cmd/internal/api"
	"huddle/cmd/internal/realtime"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// Empty selects the in-memory document store.
	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	// Empty selects the in-process change feed and view cache.
	RedisURL       string
	FeedQueueSize  int
	CacheNamespace string

	JWTSecret   string
	JWTIssuer   string
	JWTValidity time.Duration

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	API api.Config
	WS  realtime.GatewayConfig
}

// LoadConfig loads an optional .env file, then Config from environment variables
// with defaults.
func LoadConfig() Config {
	loadDotEnv(EnvString("HUDDLE_ENV_FILE", ".env"))

	return Config{
		HTTPAddr:  EnvString("HUDDLE_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("HUDDLE_LOG_LEVEL", "info"),
		LogFormat: EnvString("HUDDLE_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("HUDDLE_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("HUDDLE_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("HUDDLE_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("HUDDLE_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("HUDDLE_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("HUDDLE_DATABASE_URL", ""),
		DBSchema:    EnvString("HUDDLE_DB_SCHEMA", "huddle"),
		DBMaxConns:  EnvInt32("HUDDLE_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("HUDDLE_DB_MIN_CONNS", 0),

		RedisURL:       EnvString("HUDDLE_REDIS_URL", ""),
		FeedQueueSize:  EnvInt("HUDDLE_FEED_QUEUE", 64),
		CacheNamespace: EnvString("HUDDLE_CACHE_NAMESPACE", "huddle:view:"),

		JWTSecret:   EnvString("HUDDLE_JWT_SECRET", ""),
		JWTIssuer:   EnvString("HUDDLE_JWT_ISSUER", "huddle"),
		JWTValidity: EnvDuration("HUDDLE_JWT_VALIDITY", 24*time.Hour),

		ReadinessRequireDB: EnvBool("HUDDLE_READINESS_REQUIRE_DB", false),

		CORSAllowedOrigins:   EnvCSV("HUDDLE_CORS_ALLOWED_ORIGINS", nil),
		CORSAllowCredentials: EnvBool("HUDDLE_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("HUDDLE_CORS_MAX_AGE", 600),

		API: api.Config{
			MaxBodyBytes:   int64(EnvInt("HUDDLE_API_MAX_BODY_BYTES", 64<<10)),
			CacheTTL:       EnvDuration("HUDDLE_CACHE_TTL", 30*time.Second),
			SendRateEvents: EnvInt("HUDDLE_SEND_RATE_EVENTS", 30),
			SendRateWindow: EnvDuration("HUDDLE_SEND_RATE_WINDOW", 10*time.Second),
		},
		WS: realtime.LoadGatewayConfig(),
	}
}
