package electrician

import (
	"context"
	"errors"
	"time"
)

// RelayRequest is the byte-level publish/request envelope.
type RelayRequest struct {
	Topic   string
	Body    []byte
	Headers map[string]string
	Timeout time.Duration
}

// RelayClient is the minimal interface the router needs.
type RelayClient interface {
	Request(ctx context.Context, rr RelayRequest) ([]byte, error)
	Publish(ctx context.Context, rr RelayRequest) error
}

// ErrRequestUnsupported is returned by Request: electrician relays are
// stream/publish only.
var ErrRequestUnsupported = errors.New("electrician: request/reply unsupported")

// noopRelay accepts publishes and discards them; Request is unsupported.
type noopRelay struct{}

func (noopRelay) Request(context.Context, RelayRequest) ([]byte, error) {
	return nil, ErrRequestUnsupported
}
func (noopRelay) Publish(context.Context, RelayRequest) error { return nil }
