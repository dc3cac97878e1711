package stack

import (
	"fmt"
	"strings"

	"github.com/joeydtaylor/steeze-stack/pkg/pathmatch"
)

// Handler is one path-scoped entry of a Stack.
type Handler struct {
	Side      Side
	Method    string // lower-cased; empty matches every method
	Mount     bool
	Signature Signature

	name    string
	derived bool
	path    string
	end     bool
	matcher *pathmatch.Matcher
	body    body
}

type handlerConfig struct {
	name      string
	side      Side
	method    string
	mount     *bool
	end       *bool
	signature *Signature
	actionKey string
	path      string
}

// Option configures a Handler at construction time.
type Option func(*handlerConfig)

// Name sets an explicit, unique handler name.
func Name(n string) Option { return func(c *handlerConfig) { c.name = n } }

// Where pins the side the handler body runs on.
func Where(s Side) Option { return func(c *handlerConfig) { c.side = s } }

// Method restricts the handler to one request method (case-insensitive).
func Method(m string) Option { return func(c *handlerConfig) { c.method = m } }

// Mount narrows Context.URL to the part below the matched prefix during the
// handler's turn.
func Mount(on bool) Option { return func(c *handlerConfig) { c.mount = &on } }

// End forces a full (true) or prefix (false) path match. Mount handlers
// default to prefix matching, everything else to a full match.
func End(on bool) Option { return func(c *handlerConfig) { c.end = &on } }

// WithSignature declares the calling convention of a name-based body.
func WithSignature(s Signature) Option { return func(c *handlerConfig) { c.signature = &s } }

// ActionKey changes the key read from map bodies.
func ActionKey(k string) Option { return func(c *handlerConfig) { c.actionKey = k } }

// At supplies the pattern when the path argument is a bare name.
func At(path string) Option { return func(c *handlerConfig) { c.path = path } }

// NewHandler builds a handler. pathOrBody is either a path pattern (or a bare
// name) followed by body, or the body itself, in which case body must be nil
// and the handler becomes a catch-all mounted at the root.
//
// The name is the Name option, else the bare name, else the body's
// function or lookup name, else one derived from the path ("items.id" for
// "/items/:id"). A Stack drops a derived name that is already taken, so
// several anonymous handlers may share a path; they cannot be found by
// name.
func NewHandler(pathOrBody, b any, opts ...Option) (*Handler, error) {
	return newHandler(pathOrBody, b, Near, opts)
}

func newHandler(pathOrBody, b any, defaultSide Side, opts []Option) (*Handler, error) {
	cfg := handlerConfig{actionKey: DefaultActionKey}
	for _, o := range opts {
		o(&cfg)
	}

	var (
		path      string
		pathName  string
		catchAll  bool
		bodyValue = b
	)
	switch p := pathOrBody.(type) {
	case string:
		switch {
		case p == "":
			path = "/"
		case strings.HasPrefix(p, "/"):
			path = p
		default:
			pathName = p
			path = cfg.path
			if path == "" {
				path = "/" + p
			}
		}
	default:
		if bodyValue != nil {
			return nil, fmt.Errorf("%w: body given twice", ErrInvalidHandler)
		}
		catchAll = true
		path = "/"
		bodyValue = p
	}

	bd, sig, err := toBody(bodyValue, cfg.actionKey)
	if err != nil {
		return nil, err
	}
	if cfg.signature != nil {
		if bd.lookup == "" && *cfg.signature != sig {
			return nil, fmt.Errorf("%w: declared %s but body is %s", ErrInvalidHandler, *cfg.signature, sig)
		}
		sig = *cfg.signature
	}

	mount := catchAll
	if cfg.mount != nil {
		mount = *cfg.mount
	}
	end := !mount && !catchAll
	if cfg.end != nil {
		end = *cfg.end
	}

	m, err := pathmatch.Compile(path, pathmatch.Options{End: end})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHandler, err)
	}

	side := cfg.side
	if side == 0 {
		side = defaultSide
	}
	if side == 0 {
		side = Near
	}

	h := &Handler{
		Side:      side,
		Method:    strings.ToLower(strings.TrimSpace(cfg.method)),
		Mount:     mount,
		Signature: sig,
		path:      m.Pattern(),
		end:       end,
		matcher:   m,
		body:      bd,
	}
	h.name = firstNonEmpty(cfg.name, pathName, funcName(bd.fn), bd.lookup)
	if h.name == "" {
		h.name, h.derived = derivedName(h.path), true
	}
	return h, nil
}

// Name returns the handler's name, or "" for an unnamed handler.
func (h *Handler) Name() string { return h.name }

// Path returns the normalized pattern.
func (h *Handler) Path() string { return h.path }

// Test reports whether the handler matches path and method.
func (h *Handler) Test(path, method string) bool {
	if h.Method != "" && !strings.EqualFold(h.Method, method) {
		return false
	}
	return h.matcher.Test(path)
}

// Params extracts the path parameters of path.
func (h *Handler) Params(path string) Params {
	return Params(h.matcher.Params(path))
}

// Resolve builds a concrete path for this handler from params.
func (h *Handler) Resolve(params Params, opts pathmatch.ResolveOptions) (string, error) {
	return h.matcher.Resolve(params, opts)
}

// Clone returns an independent copy sharing the compiled pattern and body.
// The resolved name is kept verbatim.
func (h *Handler) Clone() *Handler {
	c := *h
	return &c
}

func (h *Handler) String() string {
	name := h.name
	if name == "" {
		name = "<anonymous>"
	}
	return fmt.Sprintf("%s %s [%s]", name, h.path, h.Side)
}

// derivedName turns "/items/:id" into "items.id".
func derivedName(path string) string {
	var parts []string
	for _, s := range strings.Split(path, "/") {
		s = strings.Trim(s, ":{}*?")
		if i := strings.Index(s, ":"); i >= 0 {
			s = s[:i]
		}
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ".")
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}
