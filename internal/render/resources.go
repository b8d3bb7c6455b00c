package render

import (
	"github.com/shirou/gopsutil/mem"
)

// DefaultSessionMemoryMB is the rough footprint of one headless Chrome tab.
const DefaultSessionMemoryMB = 300

// maxAutoSessions caps the derived value so a large host does not spawn dozens
// of browsers against two retailers.
const maxAutoSessions = 8

// MaxSessions returns configured when positive. Otherwise it derives a bound from
// available memory, falling back to 1 if memory cannot be read.
func MaxSessions(configured int, perSessionMB uint64) int {
	if configured > 0 {
		return configured
	}
	if perSessionMB == 0 {
		perSessionMB = DefaultSessionMemoryMB
	}

	vm, err := mem.VirtualMemory()
	if err != nil || vm == nil {
		return 1
	}
	return sessionsFor(vm.Available, perSessionMB)
}

func sessionsFor(availableBytes, perSessionMB uint64) int {
	n := int(availableBytes / (perSessionMB * 1024 * 1024))
	switch {
	case n < 1:
		return 1
	case n > maxAutoSessions:
		return maxAutoSessions
	default:
		return n
	}
}
