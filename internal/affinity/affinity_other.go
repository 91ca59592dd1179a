//go:build !linux

package affinity

// platformCoreCount on non-Linux platforms is runtime.NumCPU(): the
// Windows GetSystemInfo path and the generic sysconf(_SC_NPROCESSORS_ONLN)
// path both reduce to it in a Go program, since the Go runtime itself
// resolves processor count from the same OS facilities at startup.
func platformCoreCount() int {
	return defaultCoreCount()
}
