//go:build !linux

package heuristics

// ProcessMemoryLimit returns 0: cgroup limit discovery is only supported on
// linux.
func ProcessMemoryLimit() uint64 {
	return 0
}
