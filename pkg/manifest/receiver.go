package manifest

import (
	"errors"
	"strings"
)

// Handoff configures where near-side dispatches that matched a far route
// are published.
type Handoff struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Topic   string `toml:"topic" yaml:"topic"`
}

// Receiver describes the far-side receiving hop. Transport security comes
// from the ELECTRICIAN_RX_* environment.
type Receiver struct {
	Address    string `toml:"address" yaml:"address"`         // host:port
	BufferSize int    `toml:"buffer_size" yaml:"buffer_size"` // default 1024 if 0
}

func (h *Handoff) validate() error {
	h.Topic = strings.TrimSpace(h.Topic)
	if h.Enabled && h.Topic == "" {
		return errors.New("handoff.topic required when handoff is enabled")
	}
	return nil
}

func (r *Receiver) validate() error {
	r.Address = strings.TrimSpace(r.Address)
	if r.Address == "" {
		return errors.New("receiver.address is required")
	}
	if r.BufferSize < 0 {
		return errors.New("receiver.buffer_size must be >= 0")
	}
	if r.BufferSize == 0 {
		r.BufferSize = 1024
	}
	return nil
}
