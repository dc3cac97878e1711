package stack

import (
	"context"
	"sync"
)

// Params accumulates path parameters across matched handlers. Later
// handlers overwrite earlier keys.
type Params map[string]string

// Get returns the value of key, or "".
func (p Params) Get(key string) string { return p[key] }

func (p Params) clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func (p Params) merge(other Params) {
	for k, v := range other {
		p[k] = v
	}
}

// Context is the per-dispatch record shared by every handler turn. It is
// never reused across dispatches. Handlers that continue later from another
// goroutine must do so one at a time; the dispatch is a single logical
// thread of control. URL and Params are written as the cursor moves, so
// code outside the chain (hooks, the caller of Dispatch) should read them
// through CopyParams or after Done.
type Context struct {
	// URL is the working path. Inside a mount handler's turn it is the part
	// of OriginalURL below the mount prefix.
	URL         string
	OriginalURL string
	Method      string
	Params      Params

	// Receiver is the object name-based bodies are resolved against.
	Receiver any
	// Request and Response are opaque values supplied by the embedding
	// transport (e.g. *http.Request and http.ResponseWriter).
	Request  any
	Response any

	ctx context.Context

	// mu is owned by the dispatch and guards the cursor state below along
	// with URL and Params while the cursor moves.
	mu         *sync.Mutex
	handled    bool
	seen       sideSet
	err        error
	next       Next
	handoffErr error

	done     chan struct{}
	doneOnce sync.Once
}

func newContext(ctx context.Context, mu *sync.Mutex, url string, o *DispatchOptions) *Context {
	recv := o.Receiver
	if recv == nil {
		recv = Locals{}
	}
	return &Context{
		URL:         url,
		OriginalURL: url,
		Method:      o.Method,
		Params:      Params{},
		Receiver:    recv,
		Request:     o.Request,
		Response:    o.Response,
		ctx:         ctx,
		mu:          mu,
		done:        make(chan struct{}),
	}
}

// Context returns the context.Context the dispatch was started with.
func (c *Context) Context() context.Context { return c.ctx }

// Handled reports whether any handler body ran on this side.
func (c *Context) Handled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handled
}

// Seen reports whether a handler tagged for side matched, whether or not
// it could run here. Seen(Both) is true if either side was seen.
func (c *Context) Seen(side Side) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen.has(side)
}

// Err returns the error currently being punted down the chain.
func (c *Context) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// HandoffErr returns the hand-off hook's error when the hook ran after
// Dispatch had already returned.
func (c *Context) HandoffErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handoffErr
}

// CopyParams returns a snapshot of the params merged so far.
func (c *Context) CopyParams() Params {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Params.clone()
}

// Next continues the chain from the current turn. It is only valid while
// the dispatch is unwinding; handlers that continue later must keep the
// next argument they were called with instead.
func (c *Context) Next(err error) error {
	c.mu.Lock()
	next := c.next
	c.mu.Unlock()
	if next == nil {
		return ErrContinuationClosed
	}
	return next(err)
}

// Done is closed once the chain reaches its terminal continuation.
func (c *Context) Done() <-chan struct{} { return c.done }

func (c *Context) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}
