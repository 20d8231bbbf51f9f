package serializer

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// Config is an immutable mapping of named serializer options.
// Values may be strings, numbers or booleans; getters convert on read.
type Config map[string]any

// Has reports whether key is present with a non-empty value.
func (c Config) Has(key string) bool {
	v, ok := c[key]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// GetString returns the value for key, or def when absent.
func (c Config) GetString(key, def string) string {
	if !c.Has(key) {
		return def
	}
	return cast.ToString(c[key])
}

// GetInt returns the value for key as an int, or def when absent.
// A present value that is not an integer is an error.
func (c Config) GetInt(key string, def int) (int, error) {
	if !c.Has(key) {
		return def, nil
	}
	v := c[key]
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, fmt.Errorf("option %s: %w", key, err)
	}
	return n, nil
}

// With returns a copy of c with key set to value.
func (c Config) With(key string, value any) Config {
	out := make(Config, len(c)+1)
	for k, v := range c {
		out[k] = v
	}
	out[key] = value
	return out
}
