// Package config loads runtime settings from built-in defaults, an optional
// .env file and the process environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Values is a flat key-value store addressed by dotted locators such as
// "general.record" or "opencv.collision-box-width".
type Values struct {
	data map[string]string
}

// NewValues returns a store seeded with a copy of defaults.
func NewValues(defaults map[string]string) *Values {
	v := &Values{data: make(map[string]string, len(defaults))}
	for k, val := range defaults {
		v.data[normalizeKey(k)] = val
	}
	return v
}

// Set stores value under key.
func (v *Values) Set(key, value string) {
	v.data[normalizeKey(key)] = value
}

// Has reports whether key is present.
func (v *Values) Has(key string) bool {
	_, ok := v.data[normalizeKey(key)]
	return ok
}

// String returns the raw value for key, or "" when it is missing.
func (v *Values) String(key string) string {
	return v.data[normalizeKey(key)]
}

// Bool returns true only when the value is "true" (any case).
func (v *Values) Bool(key string) bool {
	return strings.EqualFold(strings.TrimSpace(v.String(key)), "true")
}

// Int parses the value as a base-10 integer. Malformed values yield 0; use
// ParseInt to see the error.
func (v *Values) Int(key string) int {
	n, _ := v.ParseInt(key)
	return n
}

// ParseInt parses the value as a base-10 integer.
func (v *Values) ParseInt(key string) (int, error) {
	raw := strings.TrimSpace(v.String(key))
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s (%s): invalid integer %q", key, EnvName(key), raw)
	}
	return n, nil
}

// Duration parses the value with time.ParseDuration. A bare integer is read
// as milliseconds. Malformed values yield 0; use ParseDuration to see the
// error.
func (v *Values) Duration(key string) time.Duration {
	d, _ := v.ParseDuration(key)
	return d
}

// ParseDuration is Duration with the parse error returned. An empty value
// is zero.
func (v *Values) ParseDuration(key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.String(key))
	if raw == "" {
		return 0, nil
	}
	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s (%s): invalid duration %q", key, EnvName(key), raw)
	}
	return d, nil
}

// ApplyEnv overrides every known key whose environment variable is set.
// "groundstation.query-port" is read from GROUNDSTATION_QUERY_PORT.
func (v *Values) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for key := range v.data {
		if val, ok := lookup(EnvName(key)); ok {
			v.data[key] = val
		}
	}
}

// EnvName maps a locator to its environment variable name.
func EnvName(key string) string {
	r := strings.NewReplacer(".", "_", "-", "_")
	return strings.ToUpper(r.Replace(normalizeKey(key)))
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
