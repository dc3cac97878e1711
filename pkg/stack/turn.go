package stack

import "github.com/joeydtaylor/steeze-stack/pkg/pathmatch"

// Turn is what a dispatch does with one handler at one point of the walk.
type Turn struct {
	// Matched is true when the path and method match.
	Matched bool
	// Here is true when the handler's side may run on the executing side.
	// Only then do its params and mount apply.
	Here bool
	// Runs is true when the body is invoked: Here, and the signature fits
	// whether an error is pending.
	Runs   bool
	Params Params
}

// TurnFor decides how a dispatch executing on exec treats h for url and
// method. pending reports whether an error is being punted down the chain.
func (h *Handler) TurnFor(url, method string, exec Side, pending bool) Turn {
	if !h.Test(url, method) {
		return Turn{}
	}
	t := Turn{Matched: true, Here: h.Side.runsOn(exec)}
	if !t.Here {
		return t
	}
	t.Params = h.Params(url)
	// error-aware handlers only see errors, plain ones only see success
	t.Runs = pending == (h.Signature == ErrorAware)
	return t
}

// Step is one matched handler of a Trace.
type Step struct {
	Handler *Handler
	Turn
}

// Trace is a dry run of Dispatch that invokes no bodies.
type Trace struct {
	URL    string
	Method string
	Side   Side
	Steps  []Step
	// Params is the merged result of every step that applied here.
	Params Params

	seen sideSet
}

// Seen reports whether a handler tagged for side matched.
func (t *Trace) Seen(side Side) bool { return t.seen.has(side) }

// HandsOff reports whether Dispatch would consider the far-side hook.
func (t *Trace) HandsOff() bool { return t.Side == Near && t.seen.has(Far) }

// Trace walks the sequence the way Dispatch would on side, assuming every
// handler continues without an error. It shows the longest possible chain.
func (s *Stack) Trace(url, method string, side Side) *Trace {
	t := &Trace{
		URL:    pathmatch.Normalize(url),
		Method: method,
		Side:   execSide(side),
		Params: Params{},
	}
	for _, h := range s.handlers {
		turn := h.TurnFor(t.URL, method, t.Side, false)
		if !turn.Matched {
			continue
		}
		t.seen.see(h.Side, t.Side)
		if turn.Here {
			t.Params.merge(turn.Params)
		}
		t.Steps = append(t.Steps, Step{Handler: h, Turn: turn})
	}
	return t
}
