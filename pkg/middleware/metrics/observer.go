package metrics

import "github.com/joeydtaylor/steeze-stack/pkg/stack"

// DispatchObserver feeds stack dispatch events into the stack_* collectors.
type DispatchObserver struct{}

func (DispatchObserver) HandlerRan(h *stack.Handler, side stack.Side) {
	stackHandlersRun.WithLabelValues(h.Name(), side.String()).Inc()
}

func (DispatchObserver) Handoff(string) { stackHandoffs.Inc() }

func (DispatchObserver) Finished(c *stack.Context, err error) {
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "failed"
	case c.Err() != nil:
		outcome = "error"
	case !c.Handled():
		outcome = "unhandled"
	}
	stackDispatches.WithLabelValues(outcome).Inc()
}
