//go:build !windows && !linux

package procmem

import "offsetdump/internal/memory"

// Open always fails on this platform.
func Open(pid int) (memory.Process, error) {
	return nil, ErrUnsupported
}
