// Package procmem opens live processes as memory.Process capabilities.
package procmem

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v4/process"

	"offsetdump/internal/memory"
)

var (
	ErrProcessNotFound = errors.New("process not found")
	ErrUnsupported     = errors.New("process access not supported on this platform")
)

// Target identifies a process to attach to.
type Target struct {
	PID  int32
	Name string
}

// FindByName returns the first running process whose executable name
// contains name, ignoring case.
func FindByName(ctx context.Context, name string) (Target, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return Target{}, fmt.Errorf("list processes: %w", err)
	}

	for _, p := range procs {
		pname, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if matchName(pname, name) {
			return Target{PID: p.Pid, Name: pname}, nil
		}
	}
	return Target{}, fmt.Errorf("%q: %w", name, ErrProcessNotFound)
}

// FindByPID checks that pid is running and returns its name.
func FindByPID(ctx context.Context, pid int32) (Target, error) {
	ok, err := process.PidExistsWithContext(ctx, pid)
	if err != nil {
		return Target{}, fmt.Errorf("pid %d: %w", pid, err)
	}
	if !ok {
		return Target{}, fmt.Errorf("pid %d: %w", pid, ErrProcessNotFound)
	}

	t := Target{PID: pid}
	if p, err := process.NewProcessWithContext(ctx, pid); err == nil {
		t.Name, _ = p.NameWithContext(ctx)
	}
	return t, nil
}

// OpenTarget opens t for reading.
func OpenTarget(t Target) (memory.Process, error) {
	proc, err := Open(int(t.PID))
	if err != nil {
		return nil, fmt.Errorf("open %s (pid %d): %w", t.Name, t.PID, err)
	}
	return proc, nil
}

func matchName(procName, want string) bool {
	if want == "" {
		return false
	}
	return strings.Contains(strings.ToLower(procName), strings.ToLower(want))
}
