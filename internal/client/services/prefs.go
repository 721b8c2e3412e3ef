package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/m1tka051209/marketgram-client/internal/client/repositories/metadata"
)

// QuietHours silences notification banners between From and To, both in
// "HH:MM" local time. Zero value means the feature is off.
type QuietHours struct {
	Enabled bool   `json:"enabled"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// PrefsService stores user preferences in the durable metadata table.
type PrefsService struct {
	meta metadata.Repository
}

func NewPrefsService(meta metadata.Repository) *PrefsService {
	return &PrefsService{meta: meta}
}

func (p *PrefsService) QuietHours(ctx context.Context) (QuietHours, error) {
	raw, err := p.meta.Get(ctx, metadata.KeyQuietHours)
	if err != nil {
		return QuietHours{}, err
	}
	if len(raw) == 0 {
		return QuietHours{}, nil
	}
	var qh QuietHours
	if err := json.Unmarshal(raw, &qh); err != nil {
		return QuietHours{}, fmt.Errorf("decoding quiet hours: %w", err)
	}
	return qh, nil
}

func (p *PrefsService) SetQuietHours(ctx context.Context, qh QuietHours) error {
	raw, err := json.Marshal(qh)
	if err != nil {
		return err
	}
	return p.meta.Set(ctx, metadata.KeyQuietHours, raw)
}

func (p *PrefsService) Theme(ctx context.Context) (string, error) {
	v, err := p.meta.Get(ctx, metadata.KeyTheme)
	return string(v), err
}

func (p *PrefsService) SetTheme(ctx context.Context, theme string) error {
	return p.meta.Set(ctx, metadata.KeyTheme, []byte(theme))
}
