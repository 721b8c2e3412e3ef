// Package config holds runtime settings for the Marketgram client and loads
// them from defaults, an optional JSON file, and command-line flags, in that
// order (later sources win).
package config

import "time"

// Config holds runtime settings for the client.
//
// Fields:
//   - APIBaseURL: base URL of the backend REST API (scheme + host).
//   - NotificationsWSURL / ChatWSURL: WebSocket endpoints for the two
//     realtime channels.
//   - DatabasePath: path of the local SQLite database (resume metadata,
//     tokens, preferences).
//   - ChunkSize: byte length of one upload chunk.
//   - HeartbeatInterval, ConnectTimeout, ReconnectBase, ReconnectMax:
//     realtime channel timings.
type Config struct {
	APIBaseURL         string
	NotificationsWSURL string
	ChatWSURL          string
	DatabasePath       string
	ChunkSize          int64
	HeartbeatInterval  time.Duration
	ConnectTimeout     time.Duration
	ReconnectBase      time.Duration
	ReconnectMax       time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.APIBaseURL = "http://127.0.0.1:8000"
	c.NotificationsWSURL = "ws://127.0.0.1:8000/ws/notifications"
	c.ChatWSURL = "ws://127.0.0.1:8000/chat/ws"
	c.DatabasePath = "marketgram.db"
	c.ChunkSize = 1 << 20
	c.HeartbeatInterval = 30 * time.Second
	c.ConnectTimeout = 10 * time.Second
	c.ReconnectBase = 2 * time.Second
	c.ReconnectMax = 30 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
