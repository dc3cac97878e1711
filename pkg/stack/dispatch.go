package stack

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/joeydtaylor/steeze-stack/pkg/pathmatch"
	"go.uber.org/zap"
)

// DispatchOptions are the recognized dispatch inputs.
type DispatchOptions struct {
	Receiver any
	Method   string
	Request  any
	Response any
	// OnDone is the terminal continuation. It is called once the chain is
	// exhausted, with the pending error if any. An error it returns is
	// marked do-not-reprocess and unwinds to the caller.
	OnDone func(c *Context, err error) error
	// Side is the side this dispatch executes on. Defaults to Near.
	Side Side
	Ctx  context.Context
}

// DispatchOption configures one Dispatch call.
type DispatchOption func(*DispatchOptions)

func WithReceiver(r any) DispatchOption  { return func(o *DispatchOptions) { o.Receiver = r } }
func WithMethod(m string) DispatchOption { return func(o *DispatchOptions) { o.Method = m } }
func AsSide(s Side) DispatchOption       { return func(o *DispatchOptions) { o.Side = s } }

func WithContext(ctx context.Context) DispatchOption {
	return func(o *DispatchOptions) { o.Ctx = ctx }
}

func WithRequest(req, res any) DispatchOption {
	return func(o *DispatchOptions) { o.Request, o.Response = req, res }
}

func WithOnDone(fn func(c *Context, err error) error) DispatchOption {
	return func(o *DispatchOptions) { o.OnDone = fn }
}

// Dispatch runs url through the stack and returns the dispatch context.
//
// The returned error is whatever unwound out of the chain synchronously:
// an *UnhandledError when a pending error reached the end with no OnDone, a
// *PuntError when OnDone failed, or the hand-off hook's error. Handlers that
// keep their next and continue later finish after Dispatch has returned;
// wait on Context.Done for those.
//
// On Near, the hand-off decision is taken once the chain has reached its
// end and Dispatch has unwound, whichever comes last. A chain still
// running when Dispatch returns hands off from the goroutine that
// finishes it and reports the hook's error through Context.HandoffErr. A
// chain that never finishes never hands off.
func (s *Stack) Dispatch(url string, opts ...DispatchOption) (*Context, error) {
	o := DispatchOptions{Side: Near}
	for _, fn := range opts {
		fn(&o)
	}
	o.Side = execSide(o.Side)
	if o.Ctx == nil {
		o.Ctx = context.Background()
	}
	o.Method = strings.ToUpper(o.Method)
	url = pathmatch.Normalize(url)

	d := &dispatch{
		s:        s,
		handlers: s.handlers,
		url:      url,
		opts:     o,
	}
	d.c = newContext(o.Ctx, &d.mu, url, &o)

	err := d.advance(nil)

	d.mu.Lock()
	d.c.next = nil
	d.unwound = true
	finished := d.finished
	d.mu.Unlock()

	if finished {
		if herr := d.handoff(); herr != nil && err == nil {
			err = herr
		}
	}
	return d.c, err
}

type dispatch struct {
	s        *Stack
	handlers []*Handler
	url      string
	opts     DispatchOptions
	c        *Context

	// mu guards the cursor and the Context fields it writes. Bodies,
	// hooks and observers always run with it released.
	mu       sync.Mutex
	i        int
	unwound  bool
	finished bool
}

// advance walks forward from the cursor until a handler is invoked or the
// sequence is exhausted.
func (d *dispatch) advance(err error) error {
	h := d.step(err)
	if h == nil {
		return d.finish(err)
	}
	return d.invoke(h, err)
}

// step moves the cursor past the next handler that runs here and returns
// it, or nil at the end of the sequence.
func (d *dispatch) step(err error) *Handler {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.c.err = err
	for d.i < len(d.handlers) {
		h := d.handlers[d.i]
		d.i++

		t := h.TurnFor(d.url, d.c.Method, d.opts.Side, err != nil)
		if !t.Matched {
			continue
		}
		d.c.seen.see(h.Side, d.opts.Side)
		if !t.Here {
			continue
		}
		if d.s.cfg.trackHandled {
			d.c.handled = true
		}
		d.c.Params.merge(t.Params)
		d.c.URL = d.workingURL(h)
		if t.Runs {
			return h
		}
	}
	return nil
}

func (d *dispatch) workingURL(h *Handler) string {
	if !h.Mount || !d.s.cfg.mountRewrite {
		return d.c.OriginalURL
	}
	prefix := h.matcher.Prefix(d.url)
	if len(prefix) <= 1 {
		return d.c.OriginalURL
	}
	rest := strings.TrimPrefix(d.url, prefix)
	if !strings.HasPrefix(rest, "/") {
		rest = "/" + rest
	}
	return rest
}

func (d *dispatch) invoke(h *Handler, pending error) (out error) {
	var used atomic.Bool
	next := Next(func(err error) error {
		if !used.CompareAndSwap(false, true) {
			return ErrContinuationUsed
		}
		return d.advance(err)
	})
	d.mu.Lock()
	d.c.next = next
	d.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			out = d.fault(asError(r), next, &used)
		}
	}()

	plain, onErr, err := h.body.resolve(d.c.Receiver, h.Signature)
	if err != nil {
		return d.fault(err, next, &used)
	}
	d.s.cfg.obs.HandlerRan(h, d.opts.Side)

	if pending != nil {
		err = onErr(pending, d.c, next)
	} else {
		err = plain(d.c, next)
	}
	if err == nil {
		return nil
	}
	return d.fault(err, next, &used)
}

// fault is the per-turn failure boundary.
func (d *dispatch) fault(err error, next Next, used *atomic.Bool) error {
	if IsDoNotReprocess(err) {
		return err
	}
	if used.Load() {
		// the handler already continued; hand the error back to our caller
		return err
	}
	return next(err)
}

func (d *dispatch) finish(err error) (out error) {
	defer d.c.finish()
	defer func() {
		d.mu.Lock()
		d.finished = true
		late := d.unwound
		d.mu.Unlock()
		if late {
			if herr := d.handoff(); herr != nil {
				d.mu.Lock()
				d.c.handoffErr = herr
				d.mu.Unlock()
				if out == nil {
					out = herr
				}
			}
		}
		d.s.cfg.obs.Finished(d.c, out)
	}()

	if d.opts.OnDone == nil {
		if err != nil {
			d.s.cfg.log.Warn("unhandled dispatch error",
				zap.String("url", d.url),
				zap.Error(err),
			)
			return &UnhandledError{Err: err}
		}
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			out = &PuntError{Err: asError(r)}
		}
	}()
	if ferr := d.opts.OnDone(d.c, err); ferr != nil {
		return &PuntError{Err: ferr}
	}
	return nil
}

// handoff runs the far-side hook when a Near chain saw a Far match. It is
// called exactly once per finished dispatch.
func (d *dispatch) handoff() error {
	d.mu.Lock()
	far := d.c.seen.has(Far)
	handled := d.c.handled
	d.mu.Unlock()
	if d.opts.Side != Near || !far {
		return nil
	}

	d.s.cfg.obs.Handoff(d.url)
	if d.s.hook == nil {
		return nil
	}
	d.s.cfg.log.Debug("far side dispatch",
		zap.String("url", d.url),
		zap.String("method", d.opts.Method),
		zap.Bool("handledNear", handled),
	)
	return d.s.hook(d.c, d.url, d.opts)
}
