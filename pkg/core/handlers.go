// pkg/core/handlers.go
package core

import (
	"context"
	"sort"
	"sync"

	"github.com/joeydtaylor/steeze-stack/pkg/stack"
)

// InprocHandler is the signature for user-defined in-process handlers.
// 'in' is the raw request body, 'status' is HTTP status code to send.
// Path parameters are available through ParamsFrom(ctx).
type InprocHandler func(ctx context.Context, in []byte) (out []byte, status int, err error)

var (
	registryMu sync.RWMutex
	registry   = map[string]InprocHandler{}
)

// Register makes a handler available under a name referenced in the manifest.
func Register(name string, h InprocHandler) {
	registryMu.Lock()
	registry[name] = h
	registryMu.Unlock()
}

// Lookup retrieves a registered in-proc handler by name.
func Lookup(name string) (InprocHandler, bool) {
	registryMu.RLock()
	h, ok := registry[name]
	registryMu.RUnlock()
	return h, ok
}

// Registered lists the registered handler names in sorted order.
func Registered() []string {
	registryMu.RLock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	registryMu.RUnlock()
	sort.Strings(out)
	return out
}

// Handlers is the dispatch receiver for manifest stacks. inproc routes are
// name-based stack bodies; it resolves them against the registry on every
// call, so handlers registered after the stack was built are still found.
var Handlers stack.MethodLookup = registryLookup{}

type registryLookup struct{}

func (registryLookup) LookupHandler(name string) (any, bool) {
	h, ok := Lookup(name)
	if !ok {
		return nil, false
	}
	return inprocBody(h), true
}

type paramsKey struct{}

// ParamsFrom returns the path parameters of the dispatch that invoked an
// inproc handler.
func ParamsFrom(ctx context.Context) stack.Params {
	if p, ok := ctx.Value(paramsKey{}).(stack.Params); ok {
		return p
	}
	return stack.Params{}
}

func withParams(ctx context.Context, p stack.Params) context.Context {
	cp := make(stack.Params, len(p))
	for k, v := range p {
		cp[k] = v
	}
	return context.WithValue(ctx, paramsKey{}, cp)
}
