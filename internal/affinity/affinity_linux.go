//go:build linux

package affinity

import (
	"golang.org/x/sys/unix"
)

// platformCoreCount prefers sched_getaffinity so a process confined to a
// cgroup/cpuset sees its actual usable core count rather than the host's
// total, mirroring the C runtime's own preference order.
func platformCoreCount() int {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return defaultCoreCount()
	}
	n := set.Count()
	if n < 1 {
		return defaultCoreCount()
	}
	return n
}
