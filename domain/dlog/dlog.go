// Package dlog centralizes logger construction so every domaincore
// subsystem gets a child logger tagged with its component name, the way
// erigon's state.SharedDomains carries a log.Logger field threaded in at
// construction time.
package dlog

import (
	"github.com/ledgerwatch/log/v3"
)

var root = log.Root()

// New returns a logger tagged with "component"=name.
func New(name string) log.Logger {
	return root.New("component", name)
}

// SetRoot overrides the root logger (tests redirect this to a buffer).
func SetRoot(l log.Logger) {
	root = l
}
