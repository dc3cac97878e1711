package stack

// Observer receives dispatch events. Implementations must be safe for
// concurrent use since a stack is shared between dispatches.
type Observer interface {
	HandlerRan(h *Handler, exec Side)
	Handoff(url string)
	Finished(c *Context, err error)
}

type nopObserver struct{}

func (nopObserver) HandlerRan(*Handler, Side) {}
func (nopObserver) Handoff(string)            {}
func (nopObserver) Finished(*Context, error)  {}
