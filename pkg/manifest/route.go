package manifest

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/joeydtaylor/steeze-stack/pkg/pathmatch"
	"github.com/joeydtaylor/steeze-stack/pkg/stack"
)

// Route describes one handler of the dispatch stack. Routes are pushed in
// file order, so their order is their dispatch priority.
type Route struct {
	Name    string   `toml:"name" yaml:"name"`
	Path    string   `toml:"path" yaml:"path"`
	Method  string   `toml:"method" yaml:"method"` // empty matches every method
	Side    string   `toml:"side" yaml:"side"`     // near | far | both (client/server accepted)
	Mount   *bool    `toml:"mount" yaml:"mount"`
	End     *bool    `toml:"end" yaml:"end"`
	Guard   Guard    `toml:"guard" yaml:"guard"`
	Policy  Policy   `toml:"policy" yaml:"policy"`
	Handler HSpec    `toml:"handler" yaml:"handler"`
	Tags    []string `toml:"tags" yaml:"tags"`
}

type Guard struct {
	Roles       []string `toml:"roles" yaml:"roles"`
	Users       []string `toml:"users" yaml:"users"`
	RequireAuth bool     `toml:"require_auth" yaml:"require_auth"`
}

// Empty reports whether the guard imposes no restriction.
func (g Guard) Empty() bool {
	return !g.RequireAuth && len(g.Roles) == 0 && len(g.Users) == 0
}

type Policy struct {
	TimeoutMS int `toml:"timeout_ms" yaml:"timeout_ms"`
}

type HSpec struct {
	Type        HandlerType `toml:"type" yaml:"type"`
	Name        string      `toml:"name" yaml:"name"`
	Status      int         `toml:"status" yaml:"status"`
	Body        string      `toml:"body" yaml:"body"`
	ContentType string      `toml:"content_type" yaml:"content_type"`
	Relay       *RelaySpec  `toml:"relay" yaml:"relay"`
}

type RelaySpec struct {
	Topic      string `toml:"topic" yaml:"topic"`
	DeadlineMS int    `toml:"deadline_ms" yaml:"deadline_ms"`
}

// StackSide returns the parsed side, defaulting to def when unset.
func (r Route) StackSide(def stack.Side) stack.Side {
	if r.Side == "" {
		return def
	}
	s, err := stack.ParseSide(r.Side)
	if err != nil {
		return def
	}
	return s
}

// normalize path/method/side/name
func (r *Route) normalize() error {
	if strings.TrimSpace(r.Path) == "" {
		return errors.New("path is required")
	}
	r.Path = strings.TrimSpace(r.Path)
	if !strings.HasPrefix(r.Path, "/") {
		r.Path = "/" + r.Path
	}
	if r.Path != "/" {
		r.Path = path.Clean(r.Path)
	}
	r.Method = strings.ToUpper(strings.TrimSpace(r.Method))
	r.Side = strings.ToLower(strings.TrimSpace(r.Side))
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		r.Name = strings.TrimSpace(r.Method + " " + r.Path)
	}
	if r.Handler.Type == "" && r.Handler.Name != "" {
		r.Handler.Type = HandlerInproc
	}
	return nil
}

// validate fields that are independent of global state.
func (r *Route) validate() error {
	if _, err := pathmatch.Compile(r.Path, pathmatch.Options{}); err != nil {
		return err
	}
	if r.Side != "" {
		if _, err := stack.ParseSide(r.Side); err != nil {
			return fmt.Errorf("side %q invalid", r.Side)
		}
	}

	switch r.Handler.Type {
	case HandlerInproc:
		if strings.TrimSpace(r.Handler.Name) == "" {
			return errors.New("handler.name required for inproc")
		}
	case HandlerStatic:
		if r.Handler.Status != 0 && (r.Handler.Status < 100 || r.Handler.Status > 599) {
			return fmt.Errorf("handler.status %d invalid", r.Handler.Status)
		}
	case HandlerRelayReq, HandlerRelayPublish:
		if r.Handler.Relay == nil || strings.TrimSpace(r.Handler.Relay.Topic) == "" {
			return errors.New("handler.relay.topic required for relay")
		}
		if r.Handler.Relay.DeadlineMS < 0 {
			return errors.New("handler.relay.deadline_ms must be >= 0")
		}
	case HandlerError:
		if !r.Guard.Empty() {
			return errors.New("guard is not supported on error handlers")
		}
	default:
		return fmt.Errorf("unknown handler type %q", r.Handler.Type)
	}

	if r.Policy.TimeoutMS < 0 {
		return errors.New("policy.timeout_ms must be >= 0")
	}
	return nil
}
