// Package env reads process environment variables for the few knobs that are
// consulted before config parsing runs (log format, for one). Everything else
// goes through pkg/config.
package env

import (
	"os"
	"strings"
)

// Prefix is the namespace first-party variables share.
const Prefix = "PLATEWISE_"

// Get returns the value of key, or fallback when key is unset or blank.
func Get(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

// GetPrefixed reads the PLATEWISE_-namespaced form of name first, then the
// bare name for variables shared with other tooling, then the fallback.
func GetPrefixed(name, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(Prefix + name)); val != "" {
		return val
	}
	return Get(name, fallback)
}
