package core

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	chimd "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/joeydtaylor/steeze-stack/pkg/codec"
	"github.com/joeydtaylor/steeze-stack/pkg/middleware/auth"
	"github.com/joeydtaylor/steeze-stack/pkg/stack"
	"go.uber.org/zap"
)

// EnvelopeHeader carries the envelope id on hand-off publishes and on the
// near-side 202 response.
const EnvelopeHeader = "X-Envelope-Id"

// Envelope is a near-side dispatch handed off to the far side.
type Envelope struct {
	ID        string              `json:"id"`
	URL       string              `json:"url"`
	Method    string              `json:"method"`
	Params    map[string]string   `json:"params,omitempty"`
	Headers   map[string][]string `json:"headers,omitempty"`
	Body      []byte              `json:"body,omitempty"`
	User      *auth.User          `json:"user,omitempty"`
	RequestID string              `json:"requestId,omitempty"`
	SentAt    time.Time           `json:"sentAt"`
}

// HandoffHook publishes every dispatch that matched a far-side handler as
// an Envelope on topic.
func HandoffHook(rel RelayClient, topic string, zl *zap.Logger) stack.FarSideHook {
	return func(c *stack.Context, url string, o stack.DispatchOptions) error {
		env := Envelope{
			ID:     uuid.NewString(),
			URL:    url,
			Method: c.Method,
			Params: c.CopyParams(),
			SentAt: time.Now().UTC(),
		}
		ctx := c.Context()
		if r, ok := c.Request.(*http.Request); ok && r != nil {
			ctx = r.Context()
			env.Headers = r.Header.Clone()
			env.RequestID = chimd.GetReqID(ctx)
			if u, ok := auth.UserFrom(ctx); ok {
				env.User = &u
			}
			b, err := readBody(r)
			if err != nil {
				return &StatusError{Status: http.StatusBadRequest, Err: err}
			}
			env.Body = b
		}

		data, err := codec.JSONStrict.Marshal(env)
		if err != nil {
			return fmt.Errorf("handoff encode: %w", err)
		}
		if err := rel.Publish(ctx, RelayRequest{
			Topic:   topic,
			Body:    data,
			Headers: map[string]string{"x-envelope-id": env.ID, "content-type": "application/json"},
		}); err != nil {
			zl.Error("handoff publish failed", zap.String("topic", topic), zap.String("url", url), zap.Error(err))
			return &StatusError{Status: http.StatusBadGateway, Err: fmt.Errorf("handoff publish: %w", err)}
		}
		if w, ok := c.Response.(http.ResponseWriter); ok && w != nil {
			w.Header().Set(EnvelopeHeader, env.ID)
		}
		zl.Debug("handed off", zap.String("id", env.ID), zap.String("topic", topic), zap.String("url", url))
		return nil
	}
}

// Reply is the far-side outcome of one Envelope.
type Reply struct {
	ID     string      `json:"id"`
	Status int         `json:"status"`
	Header http.Header `json:"header,omitempty"`
	Body   []byte      `json:"body,omitempty"`
	Err    string      `json:"error,omitempty"`
}

// ServeEnvelope decodes data and replays it through s on the far side.
// It returns once the chain ended or a handler wrote a response, or when
// ctx is done.
func ServeEnvelope(ctx context.Context, s *stack.Stack, data []byte, opts ...stack.DispatchOption) (*Reply, error) {
	var env Envelope
	if err := codec.JSONStrict.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("handoff decode: %w", err)
	}

	rctx := ctx
	if env.User != nil {
		rctx = auth.WithUser(rctx, *env.User)
	}
	if env.RequestID != "" {
		rctx = context.WithValue(rctx, chimd.RequestIDKey, env.RequestID)
	}
	r, err := http.NewRequestWithContext(rctx, env.Method, env.URL, bytes.NewReader(env.Body))
	if err != nil {
		return nil, fmt.Errorf("handoff request: %w", err)
	}
	for k, vs := range env.Headers {
		r.Header[k] = vs
	}

	w := newRecorder()
	var final error
	all := append([]stack.DispatchOption{
		stack.WithMethod(env.Method),
		stack.WithContext(rctx),
		stack.WithRequest(r, w),
		stack.WithOnDone(func(_ *stack.Context, err error) error {
			final = err
			return nil
		}),
	}, opts...)
	all = append(all, stack.AsSide(stack.Far))

	c, err := s.Dispatch(env.URL, all...)
	if err == nil && !w.written() {
		select {
		case <-c.Done():
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	if err == nil {
		err = final
	}
	if err != nil && !w.written() {
		WriteError(w, r, err)
	}

	rep := &Reply{ID: env.ID, Status: w.status(), Header: w.header, Body: w.snapshot()}
	if err != nil {
		rep.Err = err.Error()
	}
	return rep, nil
}

// recorder is a minimal in-memory http.ResponseWriter for far-side replays.
// Deferred handlers may write from another goroutine, so state is guarded.
type recorder struct {
	mu     sync.Mutex
	header http.Header
	body   bytes.Buffer
	code   int
}

func newRecorder() *recorder { return &recorder{header: http.Header{}} }

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(code int) {
	r.mu.Lock()
	if r.code == 0 {
		r.code = code
	}
	r.mu.Unlock()
}

func (r *recorder) Write(b []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.code == 0 {
		r.code = http.StatusOK
	}
	return r.body.Write(b)
}

func (r *recorder) snapshot() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return bytes.Clone(r.body.Bytes())
}

func (r *recorder) written() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.code != 0
}

func (r *recorder) status() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.code == 0 {
		return http.StatusNoContent
	}
	return r.code
}
