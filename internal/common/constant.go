package common

import "time"

// DefaultChunkSize is the byte length of a single upload chunk.
const DefaultChunkSize = 1 << 20

// Realtime channel timings. The channel constructor accepts overrides;
// these are the production values.
const (
	HeartbeatInterval = 30 * time.Second
	ConnectTimeout    = 10 * time.Second
	ReconnectBase     = 2 * time.Second
	ReconnectMax      = 30 * time.Second
)
