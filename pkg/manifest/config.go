package manifest

import "fmt"

// Config is the top-level manifest.
type Config struct {
	Routes   []Route   `toml:"route" yaml:"route"`
	Handoff  Handoff   `toml:"handoff" yaml:"handoff"`
	Receiver *Receiver `toml:"receiver" yaml:"receiver"`
}

// Validate normalizes the manifest in place and reports the first problem.
func (c *Config) Validate() error {
	if len(c.Routes) == 0 {
		return fmt.Errorf("manifest: at least one route is required")
	}
	if err := c.validateRoutes(); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	if err := c.Handoff.validate(); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	if c.Receiver != nil {
		if err := c.Receiver.validate(); err != nil {
			return fmt.Errorf("manifest: %w", err)
		}
	}
	return nil
}

// HasFarRoutes reports whether any route runs on the far side only.
func (c *Config) HasFarRoutes() bool {
	for _, rt := range c.Routes {
		if rt.Side == "far" || rt.Side == "server" {
			return true
		}
	}
	return false
}
