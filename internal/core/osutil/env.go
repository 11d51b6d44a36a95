package osutil

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvBool parses common truthy/falsy spellings, returning def when unset or unrecognized.
func EnvBool(name string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

// EnvFloat parses a float, returning def when unset or malformed.
func EnvFloat(name string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// EnvSeconds reads a duration given in (fractional) seconds and clamps it to
// [lo, hi]. A zero bound disables that side of the clamp.
func EnvSeconds(name string, def, lo, hi time.Duration) time.Duration {
	d := time.Duration(EnvFloat(name, def.Seconds()) * float64(time.Second))
	if lo > 0 && d < lo {
		d = lo
	}
	if hi > 0 && d > hi {
		d = hi
	}
	return d
}

// EnvString returns the first non-empty value among names.
func EnvString(names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(os.Getenv(n)); v != "" {
			return v
		}
	}
	return ""
}
