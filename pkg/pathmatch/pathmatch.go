// pkg/pathmatch/pathmatch.go
package pathmatch

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
)

// ErrBadPattern is returned by Compile when a pattern cannot be routed.
var ErrBadPattern = errors.New("pathmatch: bad pattern")

// ErrMissingParam is returned by Resolve when a named segment has no value.
var ErrMissingParam = errors.New("pathmatch: missing param")

// Options control how a pattern is compiled.
type Options struct {
	// End requires the whole path to match. When false the pattern also
	// matches every path below it (prefix match).
	End bool
}

// ResolveOptions decorate a resolved path.
type ResolveOptions struct {
	Query url.Values
	Hash  string
}

type segment struct {
	literal  string
	param    string // name only, regexp stripped
	raw      string // chi form, e.g. {id:[0-9]+}
	wildcard bool
}

// Matcher is a compiled path pattern. It is immutable and safe for
// concurrent use.
type Matcher struct {
	pattern string
	route   string
	end     bool
	segs    []segment
	mux     *chi.Mux
}

var noop = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

// Compile turns a pattern such as "/items/:id" or "/items/{id}/*" into a
// Matcher backed by a chi routing tree.
func Compile(pattern string, opts Options) (m *Matcher, err error) {
	p := Normalize(pattern)
	segs, err := parse(p)
	if err != nil {
		return nil, err
	}
	route := build(segs)

	// chi panics on malformed routes; surface those as errors.
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, fmt.Errorf("%w %q: %v", ErrBadPattern, pattern, r)
		}
	}()

	mux := chi.NewRouter()
	mux.Handle(route, noop)
	if !opts.End && !hasWildcard(segs) {
		mux.Handle(strings.TrimSuffix(route, "/")+"/*", noop)
	}

	return &Matcher{pattern: p, route: route, end: opts.End, segs: segs, mux: mux}, nil
}

// MustCompile is Compile that panics on error.
func MustCompile(pattern string, opts Options) *Matcher {
	m, err := Compile(pattern, opts)
	if err != nil {
		panic(err)
	}
	return m
}

// Pattern returns the normalized source pattern.
func (m *Matcher) Pattern() string { return m.pattern }

// Route returns the pattern in chi syntax.
func (m *Matcher) Route() string { return m.route }

// End reports whether the matcher requires a full match.
func (m *Matcher) End() bool { return m.end }

// Test reports whether path matches. Query and fragment are ignored.
func (m *Matcher) Test(path string) bool {
	_, ok := m.match(path)
	return ok
}

// Params returns the named segments extracted from path, or nil when the
// path does not match.
func (m *Matcher) Params(path string) map[string]string {
	rctx, ok := m.match(path)
	if !ok {
		return nil
	}
	explicit := hasWildcard(m.segs)
	out := make(map[string]string, len(rctx.URLParams.Keys))
	for i, k := range rctx.URLParams.Keys {
		if k == "*" && !explicit {
			continue
		}
		v := rctx.URLParams.Values[i]
		if u, err := url.PathUnescape(v); err == nil {
			v = u
		}
		out[k] = v
	}
	return out
}

// Prefix returns the leading part of path consumed by the pattern itself,
// excluding any wildcard tail. It returns "" when path does not match.
func (m *Matcher) Prefix(path string) string {
	if !m.Test(path) {
		return ""
	}
	n := 0
	for _, s := range m.segs {
		if !s.wildcard {
			n++
		}
	}
	if n == 0 {
		return "/"
	}
	parts := strings.Split(strings.TrimPrefix(stripQuery(Normalize(path)), "/"), "/")
	if n > len(parts) {
		n = len(parts)
	}
	return "/" + strings.Join(parts[:n], "/")
}

// Resolve materializes a concrete path from params. It is the inverse of
// Params for the same pattern.
func (m *Matcher) Resolve(params map[string]string, opts ResolveOptions) (string, error) {
	var b strings.Builder
	for _, s := range m.segs {
		switch {
		case s.wildcard:
			if rest := strings.Trim(params["*"], "/"); rest != "" {
				b.WriteString("/")
				b.WriteString(rest)
			}
		case s.param != "":
			v, ok := params[s.param]
			if !ok || v == "" {
				return "", fmt.Errorf("%w %q for %s", ErrMissingParam, s.param, m.pattern)
			}
			b.WriteString("/")
			b.WriteString(url.PathEscape(v))
		default:
			b.WriteString("/")
			b.WriteString(s.literal)
		}
	}
	out := b.String()
	if out == "" {
		out = "/"
	}
	if len(opts.Query) > 0 {
		out += "?" + opts.Query.Encode()
	}
	if opts.Hash != "" {
		out += "#" + strings.TrimPrefix(opts.Hash, "#")
	}
	return out, nil
}

func (m *Matcher) match(path string) (*chi.Context, bool) {
	rctx := chi.NewRouteContext()
	if !m.mux.Match(rctx, http.MethodGet, stripQuery(Normalize(path))) {
		return nil, false
	}
	return rctx, true
}

// Normalize ensures a leading separator and drops a trailing one. A query
// string or fragment is preserved untouched.
func Normalize(path string) string {
	path = strings.TrimSpace(path)
	p, tail := path, ""
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		p, tail = path[:i], path[i:]
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p + tail
}

func stripQuery(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		return path[:i]
	}
	return path
}

func parse(p string) ([]segment, error) {
	p = stripQuery(p)
	if p == "/" {
		return nil, nil
	}
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	segs := make([]segment, 0, len(parts))
	for i, part := range parts {
		switch {
		case part == "":
			return nil, fmt.Errorf("%w %q: empty segment", ErrBadPattern, p)
		case part == "*":
			if i != len(parts)-1 {
				return nil, fmt.Errorf("%w %q: wildcard must be last", ErrBadPattern, p)
			}
			segs = append(segs, segment{wildcard: true, raw: "*"})
		case strings.HasPrefix(part, ":"):
			name := strings.TrimSuffix(part[1:], "?")
			if name == "" {
				return nil, fmt.Errorf("%w %q: unnamed param", ErrBadPattern, p)
			}
			segs = append(segs, segment{param: name, raw: "{" + name + "}"})
		case strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}"):
			inner := part[1 : len(part)-1]
			name := inner
			if j := strings.Index(inner, ":"); j >= 0 {
				name = inner[:j]
			}
			if name == "" {
				return nil, fmt.Errorf("%w %q: unnamed param", ErrBadPattern, p)
			}
			segs = append(segs, segment{param: name, raw: part})
		default:
			segs = append(segs, segment{literal: part, raw: part})
		}
	}
	return segs, nil
}

func build(segs []segment) string {
	if len(segs) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, s := range segs {
		b.WriteString("/")
		b.WriteString(s.raw)
	}
	return b.String()
}

func hasWildcard(segs []segment) bool {
	return len(segs) > 0 && segs[len(segs)-1].wildcard
}
