package realtime

import "time"

// Security/performance limits.
const (
	// Max bytes per websocket frame read (hard limit). Client frames are small control
	// requests; no message content travels over the socket.
	maxFrameBytes = 8 << 10 // 8 KiB
)

const (
	// Heartbeat defaults (overridable through GatewayConfig).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection rate limits (events per window).
	rateLimitEvents = 60
	rateLimitWindow = 10 * time.Second

	// Sessions that have not authenticated by then are closed.
	helloTimeout = 10 * time.Second
)
