package node

import (
	"os"
	"strconv"
	"time"
)

// Config holds the server runtime settings.
type Config struct {
	// ListenAddr is the TCP address the chat listener binds to.
	ListenAddr string

	// MetricsAddr is the address the prometheus endpoint binds to.
	MetricsAddr string

	// MaxConnections caps the number of simultaneously connected clients.
	// Accepted sockets beyond the cap are closed immediately.
	MaxConnections int

	// ReadBufferSize is the size of the scratch buffer each read task uses
	// per read(2) call.
	ReadBufferSize int

	// PollTimeout bounds each epoll_wait call so the loop can run periodic
	// housekeeping instead of blocking forever.
	PollTimeout time.Duration
}

func defaultConfig() Config {
	return Config{
		ListenAddr:     ":9000",
		MetricsAddr:    ":9100",
		MaxConnections: 1024,
		ReadBufferSize: 4096,
		PollTimeout:    time.Second,
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":9000"
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 1024
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = 4096
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Second
	}
	return cfg
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv builds a Config from environment variables, falling back
// to defaults for anything unset or unparsable.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	if addr := os.Getenv("METRICS_ADDR"); addr != "" {
		cfg.MetricsAddr = addr
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		cfg.MaxConnections = parseIntValue(v, cfg.MaxConnections)
	}
	if v := os.Getenv("READ_BUFFER_SIZE"); v != "" {
		cfg.ReadBufferSize = parseIntValue(v, cfg.ReadBufferSize)
	}
	if v := os.Getenv("POLL_TIMEOUT_MS"); v != "" {
		if ms := parseIntValue(v, 0); ms > 0 {
			cfg.PollTimeout = time.Duration(ms) * time.Millisecond
		}
	}

	cfg = sanitizeConfig(cfg)
	return &cfg
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}
