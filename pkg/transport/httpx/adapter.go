package httpx

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/joeydtaylor/steeze-stack/pkg/stack"
	"go.uber.org/zap"
)

// ErrorWriter renders a dispatch error that no handler turned into a
// response.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Adapter serves a dispatch stack as an http.Handler. The stack can be
// replaced at any time with Swap; in-flight requests finish on the stack
// they started with.
type Adapter struct {
	cur      atomic.Pointer[stack.Stack]
	side     stack.Side
	receiver any
	onError  ErrorWriter
	log      *zap.Logger
}

type AdapterOption func(*Adapter)

// AdapterSide sets the side requests are dispatched as. Defaults to Near.
func AdapterSide(s stack.Side) AdapterOption { return func(a *Adapter) { a.side = s } }

// AdapterReceiver sets the receiver name-based handlers resolve against.
func AdapterReceiver(r any) AdapterOption { return func(a *Adapter) { a.receiver = r } }

func AdapterErrors(fn ErrorWriter) AdapterOption { return func(a *Adapter) { a.onError = fn } }

func AdapterLogger(l *zap.Logger) AdapterOption {
	return func(a *Adapter) {
		if l != nil {
			a.log = l
		}
	}
}

func NewAdapter(s *stack.Stack, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		side: stack.Near,
		log:  zap.NewNop(),
		onError: func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		},
	}
	for _, o := range opts {
		o(a)
	}
	a.cur.Store(s)
	return a
}

// Swap installs s and returns the stack it replaced.
func (a *Adapter) Swap(s *stack.Stack) *stack.Stack { return a.cur.Swap(s) }

// Stack returns the stack new requests are dispatched on.
func (a *Adapter) Stack() *stack.Stack { return a.cur.Load() }

func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s := a.cur.Load()
	if s == nil {
		http.NotFound(w, r)
		return
	}

	tw := &trackingWriter{ResponseWriter: w}
	// a deferred chain can reach OnDone after a synchronous write ended
	// the request
	var (
		mu    sync.Mutex
		final error
	)
	opts := []stack.DispatchOption{
		stack.WithMethod(r.Method),
		stack.WithContext(r.Context()),
		stack.WithRequest(r, tw),
		stack.AsSide(a.side),
		stack.WithOnDone(func(_ *stack.Context, err error) error {
			mu.Lock()
			final = err
			mu.Unlock()
			return nil
		}),
	}
	if a.receiver != nil {
		opts = append(opts, stack.WithReceiver(a.receiver))
	}

	c, err := s.Dispatch(r.URL.Path, opts...)
	if err != nil {
		a.fail(tw, r, err)
		return
	}
	if !tw.wrote.Load() {
		// a handler kept its continuation; wait for it
		select {
		case <-c.Done():
		case <-r.Context().Done():
			a.log.Debug("request ended before dispatch finished", zap.String("url", r.URL.Path))
			return
		}
	}

	mu.Lock()
	ferr := final
	mu.Unlock()
	if ferr == nil {
		ferr = c.HandoffErr()
	}

	switch {
	case ferr != nil:
		a.fail(tw, r, ferr)
	case tw.wrote.Load():
	case a.side == stack.Near && c.Seen(stack.Far) && s.HasFarSideHook():
		tw.Header().Set("Content-Type", "application/json")
		tw.WriteHeader(http.StatusAccepted)
		_, _ = tw.Write([]byte(`{"status":"handed off"}`))
	default:
		http.NotFound(tw, r)
	}
}

func (a *Adapter) fail(w *trackingWriter, r *http.Request, err error) {
	if w.wrote.Load() {
		a.log.Warn("dispatch error after response started", zap.String("url", r.URL.Path), zap.Error(err))
		return
	}
	a.onError(w, r, err)
}

// trackingWriter records whether a response was started. Deferred
// handlers may write from another goroutine.
type trackingWriter struct {
	http.ResponseWriter
	wrote atomic.Bool
}

func (t *trackingWriter) WriteHeader(code int) {
	t.wrote.Store(true)
	t.ResponseWriter.WriteHeader(code)
}

func (t *trackingWriter) Write(b []byte) (int, error) {
	t.wrote.Store(true)
	return t.ResponseWriter.Write(b)
}

func (t *trackingWriter) Flush() {
	if f, ok := t.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (t *trackingWriter) Unwrap() http.ResponseWriter { return t.ResponseWriter }
