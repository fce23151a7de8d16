package heuristics

import (
	"fmt"

	"github.com/elastic/gosigar"
)

// sysmemFn reads the system memory statistics; it is a variable so that it
// can be replaced.
var sysmemFn = (*gosigar.Mem).Get

// TotalSystemMemory returns the total physical memory of the machine, for
// callers sizing a heap to the host. On linux, prefer the smaller of this
// and ProcessMemoryLimit when running inside a container.
func TotalSystemMemory() (uint64, error) {
	var sysmem gosigar.Mem
	if err := sysmemFn(&sysmem); err != nil {
		return 0, fmt.Errorf("failed to get system memory stats: %w", err)
	}
	return sysmem.Total, nil
}
