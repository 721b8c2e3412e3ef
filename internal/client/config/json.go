package config

import (
	"encoding/json"
	"os"

	"github.com/m1tka051209/marketgram-client/internal/flagx"
	"github.com/m1tka051209/marketgram-client/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "30s"
// or as integer nanoseconds. After parsing, values are copied into the
// runtime Config (which uses time.Duration).
type JsonConfig struct {
	APIBaseURL         string         `json:"api_base_url"`
	NotificationsWSURL string         `json:"notifications_ws_url"`
	ChatWSURL          string         `json:"chat_ws_url"`
	DatabasePath       string         `json:"database_path"`
	ChunkSize          int64          `json:"chunk_size"`
	HeartbeatInterval  timex.Duration `json:"heartbeat_interval"`
	ConnectTimeout     timex.Duration `json:"connect_timeout"`
	ReconnectBase      timex.Duration `json:"reconnect_base"`
	ReconnectMax       timex.Duration `json:"reconnect_max"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// Lookup order for the JSON file path:
//  1. Command-line flags (-c or -config) via flagx.JsonConfigFlags().
//  2. If empty, no JSON is loaded and the function returns.
//
// Zero-valued JSON fields leave the existing Config values untouched, so a
// partial config file only overrides what it names.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.APIBaseURL != "" {
		cfg.APIBaseURL = jc.APIBaseURL
	}
	if jc.NotificationsWSURL != "" {
		cfg.NotificationsWSURL = jc.NotificationsWSURL
	}
	if jc.ChatWSURL != "" {
		cfg.ChatWSURL = jc.ChatWSURL
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.ChunkSize > 0 {
		cfg.ChunkSize = jc.ChunkSize
	}
	if jc.HeartbeatInterval.Duration > 0 {
		cfg.HeartbeatInterval = jc.HeartbeatInterval.Duration
	}
	if jc.ConnectTimeout.Duration > 0 {
		cfg.ConnectTimeout = jc.ConnectTimeout.Duration
	}
	if jc.ReconnectBase.Duration > 0 {
		cfg.ReconnectBase = jc.ReconnectBase.Duration
	}
	if jc.ReconnectMax.Duration > 0 {
		cfg.ReconnectMax = jc.ReconnectMax.Duration
	}
}
