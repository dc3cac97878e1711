package core

import "github.com/joeydtaylor/steeze-stack/pkg/stack"

// Match is one handler a dry run would reach.
type Match struct {
	Name   string `json:"name" yaml:"name"`
	Path   string `json:"path" yaml:"path"`
	Method string `json:"method,omitempty" yaml:"method,omitempty"`
	Side   string `json:"side" yaml:"side"`
	Runs   bool   `json:"runs" yaml:"runs"`

	// OnError marks an error-aware handler; it only runs for a punted error.
	OnError bool              `json:"onError,omitempty" yaml:"onError,omitempty"`
	Params  map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

// Explanation is the static view of dispatching one url.
type Explanation struct {
	URL      string            `json:"url" yaml:"url"`
	Method   string            `json:"method,omitempty" yaml:"method,omitempty"`
	Side     string            `json:"side" yaml:"side"`
	Matches  []Match           `json:"matches" yaml:"matches"`
	Params   map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
	SeenNear bool              `json:"seenNear" yaml:"seenNear"`
	SeenFar  bool              `json:"seenFar" yaml:"seenFar"`
	Handoff  bool              `json:"handoff" yaml:"handoff"`
}

// Explain lists, in order, the handlers of s matching url and method and
// whether each would run as side. It assumes every handler continues
// without an error, so it shows the longest possible chain; error-aware
// handlers are listed but do not run.
func Explain(s *stack.Stack, url, method string, side stack.Side) Explanation {
	tr := s.Trace(url, method, side)
	ex := Explanation{
		URL:      tr.URL,
		Method:   method,
		Side:     tr.Side.String(),
		Params:   map[string]string(tr.Params),
		SeenNear: tr.Seen(stack.Near),
		SeenFar:  tr.Seen(stack.Far),
		Handoff:  tr.HandsOff(),
	}
	for _, st := range tr.Steps {
		h := st.Handler
		m := Match{
			Name:    h.Name(),
			Path:    h.Path(),
			Method:  h.Method,
			Side:    h.Side.String(),
			Runs:    st.Runs,
			OnError: h.Signature == stack.ErrorAware,
		}
		if st.Here {
			m.Params = map[string]string(st.Params)
		}
		ex.Matches = append(ex.Matches, m)
	}
	return ex
}
