// Package dbg reads process-wide debug knobs from the environment, the way
// erigon-lib's common/dbg package does: cheap, read-once-ish, safe to call
// from package-level var initializers.
package dbg

import (
	"os"
	"strconv"
)

// EnvBool returns the boolean value of the named environment variable, or
// def if unset/unparseable.
func EnvBool(envVarName string, def bool) bool {
	v, ok := os.LookupEnv(envVarName)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// EnvString returns the named environment variable, or def if unset.
func EnvString(envVarName string, def string) string {
	v, ok := os.LookupEnv(envVarName)
	if !ok || v == "" {
		return def
	}
	return v
}

// EnvInt returns the named environment variable parsed as int, or def if
// unset/unparseable.
func EnvInt(envVarName string, def int) int {
	v, ok := os.LookupEnv(envVarName)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// TraceSTW gates verbose per-domain logging of the STW protocol.
var TraceSTW = EnvBool("DOMAINCORE_TRACE_STW", false)

// MaxDomainsOverride lets tests force a small registry without touching
// production defaults; 0 means "no override".
var MaxDomainsOverride = EnvInt("DOMAINCORE_MAX_DOMAINS", 0)

// MinorHeapWordsOverride lets tests force a small minor-heap reservation.
var MinorHeapWordsOverride = EnvInt("DOMAINCORE_MINOR_HEAP_WORDS", 0)
