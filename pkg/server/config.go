package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/edoloughlin/nasc/pkg/metrics"
	"github.com/edoloughlin/nasc/pkg/schema"
)

// Config configures the transport server.
type Config struct {
	// BasePath is the URL prefix for all endpoints (default: "/nasc").
	BasePath string

	// KeepAliveInterval is how often the SSE channel emits comment
	// keep-alives (default: 20s).
	KeepAliveInterval time.Duration

	// WriteTimeout bounds socket writes (default: 10s).
	WriteTimeout time.Duration

	// ReadLimit bounds inbound socket message size in bytes (default: 1MiB).
	ReadLimit int64

	// CheckOrigin validates socket upgrade origins. Default accepts all,
	// matching the SSE endpoint's posture; deployments fronting browsers
	// should restrict it.
	CheckOrigin func(r *http.Request) bool

	// Schemas serves the schema GET endpoint. May differ from the
	// processor's provider, but usually doesn't.
	Schemas schema.Provider

	// Metrics is the optional instrumentation sink.
	Metrics *metrics.Metrics

	// Logger is the server's logger.
	Logger *slog.Logger
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *Config {
	return &Config{
		BasePath:          "/nasc",
		KeepAliveInterval: 20 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadLimit:         1 << 20,
		CheckOrigin:       func(*http.Request) bool { return true },
	}
}

func (c *Config) fillDefaults() {
	defaults := DefaultConfig()
	if c.BasePath == "" {
		c.BasePath = defaults.BasePath
	}
	if c.KeepAliveInterval == 0 {
		c.KeepAliveInterval = defaults.KeepAliveInterval
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaults.WriteTimeout
	}
	if c.ReadLimit == 0 {
		c.ReadLimit = defaults.ReadLimit
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = defaults.CheckOrigin
	}
	if c.Logger == nil {
		c.Logger = slog.Default().With("component", "server")
	}
}
