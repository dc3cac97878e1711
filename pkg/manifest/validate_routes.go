package manifest

import "fmt"

// validateRoutes normalizes every route and enforces unique names.
func (c *Config) validateRoutes() error {
	seen := make(map[string]int, len(c.Routes))
	for i := range c.Routes {
		rt := &c.Routes[i]
		if err := rt.normalize(); err != nil {
			return fmt.Errorf("route %d: %w", i, err)
		}
		if err := rt.validate(); err != nil {
			return fmt.Errorf("route %d (%s): %w", i, rt.Name, err)
		}
		if j, dup := seen[rt.Name]; dup {
			return fmt.Errorf("route %d: name %q already used by route %d", i, rt.Name, j)
		}
		seen[rt.Name] = i
	}
	return nil
}
