package domain

import "github.com/erigontech/domaincore/domain/dbg"

// Config is read once at Runtime construction time (spec section 6).
type Config struct {
	// MaxDomains caps the number of concurrent domains and fixes the
	// slot-array size.
	MaxDomains int
	// InitMinorHeapWords is the default per-domain minor-heap size, in
	// words, for newly spawned domains.
	InitMinorHeapWords int
	// BacktraceEnabled is accepted for interface parity with the source
	// runtime's configuration surface; backtrace buffers are explicitly
	// out of scope (spec section 1) so this value is otherwise unused.
	BacktraceEnabled bool
}

// DefaultConfig returns sane defaults, honoring the DOMAINCORE_MAX_DOMAINS
// / DOMAINCORE_MINOR_HEAP_WORDS test overrides from domain/dbg.
func DefaultConfig() Config {
	maxDomains := 128
	if dbg.MaxDomainsOverride > 0 {
		maxDomains = dbg.MaxDomainsOverride
	}
	minorHeapWords := 1 << 22 // 32 MiB of words at 8 bytes/word
	if dbg.MinorHeapWordsOverride > 0 {
		minorHeapWords = dbg.MinorHeapWordsOverride
	}
	return Config{
		MaxDomains:         maxDomains,
		InitMinorHeapWords: minorHeapWords,
		BacktraceEnabled:   false,
	}
}
