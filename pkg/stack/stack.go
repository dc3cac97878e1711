// Package stack is an ordered, path-scoped handler stack with explicit
// continuations, error punting, mount rewriting and a near/far hand-off
// decision.
//
// A Stack is built at setup time and is read-only while dispatching: it may
// be shared by any number of concurrent Dispatch calls, but Push, Insert*,
// Append and OnFarSideDispatch must not be called while a dispatch is in
// flight.
package stack

import (
	"fmt"
	"slices"

	"go.uber.org/zap"
)

// FarSideHook is called after a Near-side dispatch unwinds when at least
// one Far-tagged handler matched.
type FarSideHook func(c *Context, url string, o DispatchOptions) error

type config struct {
	mountRewrite bool
	trackHandled bool
	defaultSide  Side
	log          *zap.Logger
	obs          Observer
}

// StackOption configures a Stack.
type StackOption func(*config)

// WithMountRewrite toggles Context.URL narrowing for mount handlers.
func WithMountRewrite(on bool) StackOption { return func(c *config) { c.mountRewrite = on } }

// WithHandledTracking toggles Context.Handled bookkeeping.
func WithHandledTracking(on bool) StackOption { return func(c *config) { c.trackHandled = on } }

// WithDefaultSide sets the side of handlers created without Where.
func WithDefaultSide(s Side) StackOption { return func(c *config) { c.defaultSide = s } }

// WithLogger sets the logger used for hand-offs and unhandled errors.
func WithLogger(l *zap.Logger) StackOption {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// WithObserver attaches dispatch instrumentation.
func WithObserver(o Observer) StackOption {
	return func(c *config) {
		if o != nil {
			c.obs = o
		}
	}
}

// Stack is an ordered sequence of handlers with a name index.
type Stack struct {
	handlers []*Handler
	byName   map[string]*Handler
	hook     FarSideHook
	cfg      config
}

// New returns an empty stack.
func New(opts ...StackOption) *Stack {
	cfg := config{
		mountRewrite: true,
		trackHandled: true,
		defaultSide:  Near,
		log:          zap.NewNop(),
		obs:          nopObserver{},
	}
	for _, o := range opts {
		o(&cfg)
	}
	return &Stack{byName: map[string]*Handler{}, cfg: cfg}
}

// Len is the number of handlers in the sequence.
func (s *Stack) Len() int { return len(s.handlers) }

// Handlers returns a copy of the sequence.
func (s *Stack) Handlers() []*Handler { return slices.Clone(s.handlers) }

// FindByName returns the handler registered under name, or nil.
func (s *Stack) FindByName(name string) *Handler { return s.byName[name] }

// Create builds a handler and registers its name without adding it to the
// sequence.
func (s *Stack) Create(pathOrBody, body any, opts ...Option) (*Handler, error) {
	h, err := newHandler(pathOrBody, body, s.cfg.defaultSide, opts)
	if err != nil {
		return nil, err
	}
	if _, taken := s.byName[h.name]; taken && h.derived {
		h.name = ""
	}
	if h.name != "" {
		if _, ok := s.byName[h.name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, h.name)
		}
		s.byName[h.name] = h
	}
	return h, nil
}

// Push appends a handler.
func (s *Stack) Push(pathOrBody, body any, opts ...Option) (*Handler, error) {
	h, err := s.Create(pathOrBody, body, opts...)
	if err != nil {
		return nil, err
	}
	s.handlers = append(s.handlers, h)
	return h, nil
}

// Use appends a root catch-all handler.
func (s *Stack) Use(body any, opts ...Option) (*Handler, error) {
	return s.Push(body, nil, opts...)
}

// InsertAt inserts with splice semantics: an index past the end appends,
// a negative index counts from the end.
func (s *Stack) InsertAt(index int, pathOrBody, body any, opts ...Option) (*Handler, error) {
	h, err := s.Create(pathOrBody, body, opts...)
	if err != nil {
		return nil, err
	}
	s.handlers = slices.Insert(s.handlers, spliceIndex(index, len(s.handlers)), h)
	return h, nil
}

// InsertBefore inserts directly before the handler called name.
func (s *Stack) InsertBefore(name string, pathOrBody, body any, opts ...Option) (*Handler, error) {
	i, err := s.indexOf(name)
	if err != nil {
		return nil, err
	}
	return s.InsertAt(i, pathOrBody, body, opts...)
}

// InsertAfter inserts directly after the handler called name.
func (s *Stack) InsertAfter(name string, pathOrBody, body any, opts ...Option) (*Handler, error) {
	i, err := s.indexOf(name)
	if err != nil {
		return nil, err
	}
	return s.InsertAt(i+1, pathOrBody, body, opts...)
}

// Append pushes every callable in items as a root catch-all. Slices are
// flattened recursively and Option values apply to every handler at their
// level and below.
func (s *Stack) Append(items ...any) error {
	return s.appendAll(items, nil)
}

func (s *Stack) appendAll(items []any, inherited []Option) error {
	opts := slices.Clone(inherited)
	var bodies []any
	for _, it := range items {
		if o, ok := it.(Option); ok {
			opts = append(opts, o)
			continue
		}
		bodies = append(bodies, it)
	}

	for _, it := range bodies {
		switch v := it.(type) {
		case nil:
			continue
		case []any:
			if err := s.appendAll(v, opts); err != nil {
				return err
			}
		case []HandlerFunc:
			for _, fn := range v {
				if _, err := s.Use(fn, opts...); err != nil {
					return err
				}
			}
		case []ErrorHandlerFunc:
			for _, fn := range v {
				if _, err := s.Use(fn, opts...); err != nil {
					return err
				}
			}
		default:
			if !isCallable(v) {
				return fmt.Errorf("%w: can only append functions or slices, got %T", ErrInvalidHandler, it)
			}
			if _, err := s.Use(v, opts...); err != nil {
				return err
			}
		}
	}
	return nil
}

// Concat returns a new stack holding clones of this stack's handlers
// followed by clones of each other stack's handlers. The result keeps this
// stack's configuration but has an empty name index and no hand-off hook.
func (s *Stack) Concat(others ...*Stack) *Stack {
	out := &Stack{byName: map[string]*Handler{}, cfg: s.cfg}
	for _, src := range append([]*Stack{s}, others...) {
		if src == nil {
			continue
		}
		for _, h := range src.handlers {
			out.handlers = append(out.handlers, h.Clone())
		}
	}
	return out
}

// OnFarSideDispatch registers the hand-off hook, replacing any previous one.
func (s *Stack) OnFarSideDispatch(hook FarSideHook) *Stack {
	s.hook = hook
	return s
}

// HasFarSideHook reports whether a hand-off hook is registered.
func (s *Stack) HasFarSideHook() bool { return s.hook != nil }

func (s *Stack) indexOf(name string) (int, error) {
	h, ok := s.byName[name]
	if !ok {
		return -1, fmt.Errorf("%w: %q", ErrHandlerNotFound, name)
	}
	i := slices.Index(s.handlers, h)
	if i < 0 {
		return -1, fmt.Errorf("%w: %q is not in the sequence", ErrHandlerNotFound, name)
	}
	return i, nil
}

func spliceIndex(i, n int) int {
	if i < 0 {
		i += n
		if i < 0 {
			i = 0
		}
	}
	if i > n {
		i = n
	}
	return i
}
