// pkg/core/relay.go
package core

import (
	"context"
	"errors"
	"time"
)

type RelayRequest struct {
	Topic   string
	Body    []byte
	Headers map[string]string
	Timeout time.Duration
}

// RelayClient carries publishes and request/replies to other processes.
type RelayClient interface {
	Request(ctx context.Context, rr RelayRequest) ([]byte, error)
	Publish(ctx context.Context, rr RelayRequest) error
}

type NoopRelay struct{}

func (NoopRelay) Request(context.Context, RelayRequest) ([]byte, error) {
	return nil, ErrNoRelay
}

func (NoopRelay) Publish(context.Context, RelayRequest) error {
	return ErrNoRelay
}

var ErrNoRelay = errors.New("relay: no client configured")
