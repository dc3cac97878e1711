package stack

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// Next continues the dispatch. Passing a non-nil error punts it down the
// chain. The returned error is whatever unwound back out of the rest of the
// chain; handlers normally return it.
type Next func(err error) error

// HandlerFunc is the plain calling convention.
type HandlerFunc func(c *Context, next Next) error

// ErrorHandlerFunc is the error-aware calling convention. It only runs while
// an error is pending.
type ErrorHandlerFunc func(err error, c *Context, next Next) error

// Signature is the calling convention of a handler body.
type Signature uint8

const (
	Plain Signature = iota
	ErrorAware
)

func (s Signature) String() string {
	if s == ErrorAware {
		return "error-aware"
	}
	return "plain"
}

// MethodLookup is implemented by receivers that can resolve name-based
// handler bodies at call time.
type MethodLookup interface {
	LookupHandler(name string) (any, bool)
}

// LookupFunc adapts a function to MethodLookup.
type LookupFunc func(name string) (any, bool)

func (f LookupFunc) LookupHandler(name string) (any, bool) { return f(name) }

// Locals is the default dispatch receiver: a bag of values that doubles as a
// MethodLookup over any handler functions stored in it.
type Locals map[string]any

func (l Locals) LookupHandler(name string) (any, bool) {
	v, ok := l[name]
	return v, ok
}

// DefaultActionKey is the key read from map bodies.
const DefaultActionKey = "action"

type body struct {
	plain  HandlerFunc
	onErr  ErrorHandlerFunc
	lookup string
	fn     any // original callable, for naming
}

// toBody classifies v by its static shape.
func toBody(v any, actionKey string) (body, Signature, error) {
	switch f := v.(type) {
	case nil:
		return body{}, Plain, fmt.Errorf("%w: nil body", ErrInvalidHandler)
	case HandlerFunc:
		if f == nil {
			return body{}, Plain, fmt.Errorf("%w: nil func", ErrInvalidHandler)
		}
		return body{plain: f, fn: f}, Plain, nil
	case func(*Context, Next) error:
		if f == nil {
			return body{}, Plain, fmt.Errorf("%w: nil func", ErrInvalidHandler)
		}
		return body{plain: f, fn: f}, Plain, nil
	case ErrorHandlerFunc:
		if f == nil {
			return body{}, Plain, fmt.Errorf("%w: nil func", ErrInvalidHandler)
		}
		return body{onErr: f, fn: f}, ErrorAware, nil
	case func(error, *Context, Next) error:
		if f == nil {
			return body{}, Plain, fmt.Errorf("%w: nil func", ErrInvalidHandler)
		}
		return body{onErr: f, fn: f}, ErrorAware, nil
	case string:
		if strings.TrimSpace(f) == "" {
			return body{}, Plain, fmt.Errorf("%w: empty handler name", ErrInvalidHandler)
		}
		return body{lookup: f}, Plain, nil
	case map[string]any:
		action, ok := f[actionKey]
		if !ok {
			return body{}, Plain, fmt.Errorf("%w: map body has no %q key", ErrInvalidHandler, actionKey)
		}
		if _, nested := action.(map[string]any); nested {
			return body{}, Plain, fmt.Errorf("%w: %q must be callable", ErrInvalidHandler, actionKey)
		}
		return toBody(action, actionKey)
	default:
		return body{}, Plain, fmt.Errorf("%w: unsupported body %T", ErrInvalidHandler, v)
	}
}

func isCallable(v any) bool {
	switch v.(type) {
	case HandlerFunc, ErrorHandlerFunc, func(*Context, Next) error, func(error, *Context, Next) error:
		return true
	}
	return false
}

// resolve returns the callable for this turn. Name-based bodies are looked
// up on the receiver every time.
func (b body) resolve(recv any, sig Signature) (HandlerFunc, ErrorHandlerFunc, error) {
	if b.lookup == "" {
		return b.plain, b.onErr, nil
	}
	ml, ok := recv.(MethodLookup)
	if !ok {
		return nil, nil, &LookupError{Name: b.lookup, Receiver: fmt.Sprintf("%T", recv), Reason: "receiver does not implement MethodLookup"}
	}
	v, ok := ml.LookupHandler(b.lookup)
	if !ok || v == nil {
		return nil, nil, &LookupError{Name: b.lookup, Receiver: fmt.Sprintf("%T", recv), Reason: "not found"}
	}
	got, gotSig, err := toBody(v, DefaultActionKey)
	if err != nil || got.lookup != "" {
		return nil, nil, &LookupError{Name: b.lookup, Receiver: fmt.Sprintf("%T", recv), Reason: fmt.Sprintf("%T is not callable", v)}
	}
	if gotSig != sig {
		return nil, nil, &LookupError{Name: b.lookup, Receiver: fmt.Sprintf("%T", recv), Reason: "expected " + sig.String() + " handler"}
	}
	return got.plain, got.onErr, nil
}

// funcName returns the declared name of a named function or method value.
// Closures are anonymous.
func funcName(fn any) string {
	if fn == nil {
		return ""
	}
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return ""
	}
	rf := runtime.FuncForPC(rv.Pointer())
	if rf == nil {
		return ""
	}
	full := rf.Name()
	if i := strings.LastIndex(full, "/"); i >= 0 {
		full = full[i+1:]
	}
	full = strings.TrimSuffix(full, "-fm")
	if i := strings.Index(full, "[...]"); i >= 0 {
		full = full[:i] + full[i+len("[...]"):]
	}
	parts := strings.Split(full, ".")
	if len(parts) < 2 {
		return ""
	}
	for _, p := range parts[1:] {
		if isClosureName(p) {
			return ""
		}
	}
	return parts[len(parts)-1]
}

func isClosureName(s string) bool {
	if s == "" {
		return true
	}
	for _, prefix := range []string{"func", "gowrap", "deferwrap"} {
		if strings.HasPrefix(s, prefix) && digits(s[len(prefix):]) {
			return true
		}
	}
	return digits(s)
}

func digits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
