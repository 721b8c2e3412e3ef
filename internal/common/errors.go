// Package common defines shared constants and sentinel errors used across
// the Marketgram client layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Remote API errors.
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("server unavailable")

	// Upload lifecycle errors.
	ErrCancelled      = errors.New("upload cancelled")
	ErrInvalidOffset  = errors.New("invalid server offset")
	ErrSessionUnknown = errors.New("unknown upload session")

	// Realtime channel errors.
	ErrNotConnected = errors.New("channel not connected")
)
