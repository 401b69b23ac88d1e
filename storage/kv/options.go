package kv

import (
	"fmt"
	"strconv"
	"time"
)

// PluginOptions configures a plugin store. Values
// may be given in their native type or as strings,
// which is how they arrive when parsed from a URL.
type PluginOptions map[string]interface{}

// String returns the string option named key or def
// if it is not set
func (options PluginOptions) String(key string, def string) (string, error) {
	raw, ok := options[key]

	if !ok || raw == nil {
		return def, nil
	}

	s, ok := raw.(string)

	if !ok {
		return "", fmt.Errorf("%q must be a string", key)
	}

	return s, nil
}

// Strings returns the string list option named key
func (options PluginOptions) Strings(key string) ([]string, error) {
	raw, ok := options[key]

	if !ok || raw == nil {
		return nil, nil
	}

	switch v := raw.(type) {
	case []string:
		return v, nil
	case string:
		return []string{v}, nil
	}

	return nil, fmt.Errorf("%q must be a list of strings", key)
}

// Bool returns the boolean option named key or def
// if it is not set
func (options PluginOptions) Bool(key string, def bool) (bool, error) {
	raw, ok := options[key]

	if !ok || raw == nil {
		return def, nil
	}

	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)

		if err != nil {
			return false, fmt.Errorf("%q must be a boolean: %s", key, err)
		}

		return b, nil
	}

	return false, fmt.Errorf("%q must be a boolean", key)
}

// Int returns the integer option named key or def
// if it is not set
func (options PluginOptions) Int(key string, def int) (int, error) {
	raw, ok := options[key]

	if !ok || raw == nil {
		return def, nil
	}

	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case string:
		i, err := strconv.Atoi(v)

		if err != nil {
			return 0, fmt.Errorf("%q must be an integer: %s", key, err)
		}

		return i, nil
	}

	return 0, fmt.Errorf("%q must be an integer", key)
}

// Duration returns the duration option named key or def
// if it is not set
func (options PluginOptions) Duration(key string, def time.Duration) (time.Duration, error) {
	raw, ok := options[key]

	if !ok || raw == nil {
		return def, nil
	}

	switch v := raw.(type) {
	case time.Duration:
		return v, nil
	case string:
		d, err := time.ParseDuration(v)

		if err != nil {
			return 0, fmt.Errorf("%q must be a duration: %s", key, err)
		}

		return d, nil
	}

	return 0, fmt.Errorf("%q must be a duration", key)
}

// Copy returns a shallow copy of options
func (options PluginOptions) Copy() PluginOptions {
	cp := make(PluginOptions, len(options))

	for k, v := range options {
		cp[k] = v
	}

	return cp
}
