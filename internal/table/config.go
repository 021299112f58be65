package table

import "fmt"

// Config is the merged per-instance configuration. It is writable while the
// initializer pipeline runs and frozen once construction completes.
type Config struct {
	v      *Value
	frozen bool
}

func newConfig(s *Schema) *Config {
	return &Config{v: &Value{schema: s, attrs: make(map[string]any)}}
}

// Schema returns the resolved config schema of the table type.
func (c *Config) Schema() *Schema { return c.v.schema }

// Has reports whether name is a config option of the table type.
func (c *Config) Has(name string) bool { return c.v.schema.HasField(name) }

// Get returns the option value, or nil.
func (c *Config) Get(name string) any { return c.v.Get(name) }

// IsSet reports whether the option holds a non-nil value.
func (c *Config) IsSet(name string) bool { return c.v.IsSet(name) }

func (c *Config) String(name string) string { return c.v.String(name) }
func (c *Config) Bool(name string) bool     { return c.v.Bool(name) }
func (c *Config) Int(name string) int       { return c.v.Int(name) }
func (c *Config) Strings(name string) []string {
	return c.v.Strings(name)
}
func (c *Config) Ints(name string) []int { return c.v.Ints(name) }

// Set assigns an option.
func (c *Config) Set(name string, value any) error {
	if c.frozen {
		return fmt.Errorf("%w: cannot set %q", ErrConfigFrozen, name)
	}
	return c.v.Set(name, value)
}

// SetDefault assigns an option only when it is unset.
func (c *Config) SetDefault(name string, value any) error {
	if c.IsSet(name) {
		return nil
	}
	return c.Set(name, value)
}

// SetClassDefault copies the class-level default of name from d when the
// instance did not set it.
func (c *Config) SetClassDefault(d *Definition, name string) error {
	if c.IsSet(name) {
		return nil
	}
	if v, ok := d.Default(name); ok {
		return c.Set(name, v)
	}
	return nil
}

// Frozen reports whether construction has completed.
func (c *Config) Frozen() bool { return c.frozen }

// Map returns a copy of every assigned option.
func (c *Config) Map() map[string]any { return c.v.Map() }

func (c *Config) freeze() { c.frozen = true }
