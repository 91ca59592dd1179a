package domain

import (
	"errors"
	"fmt"
	"os"

	"github.com/erigontech/domaincore/domain/dlog"
)

// Spawn failures (spec section 7): surfaced to the caller as plain errors,
// state fully unwound before returning.
var (
	ErrNoFreeSlot          = errors.New("domain: no free slot")
	ErrCreationFailed      = errors.New("domain: creation failed")
	ErrBackupInstallFailed = errors.New("domain: backup thread install failed")
	ErrLostMainDomain      = errors.New("domain: main domain terminated while others are running")
)

var fatalLogger = dlog.New("fatal")

// Fatal is the Go analogue of the source runtime's fatal_error: conditions
// that leave process-wide invariants unrecoverable (failure to reserve
// the initial minor-heap region, failure to grow the participant array,
// an allocation failure inside an STW callback, loss of the main domain).
// It logs at Crit level and terminates the process; there is no portable
// way for an arbitrary goroutine to raise a POSIX-style abort from a Go
// program, so os.Exit is the closest equivalent that still guarantees no
// further mutator code runs.
func Fatal(format string, args ...any) {
	fatalLogger.Crit(fmt.Sprintf(format, args...))
	os.Exit(2)
}
