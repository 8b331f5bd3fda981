package memory

import (
	"fmt"
	"sync"
)

// Snapshotter takes module snapshots from a Process and caches them by name
// for the lifetime of the Snapshotter. Cached images are never refreshed.
type Snapshotter struct {
	proc Process

	mu     sync.Mutex
	images map[string]*ModuleImage
}

// NewSnapshotter returns a Snapshotter reading from proc.
func NewSnapshotter(proc Process) *Snapshotter {
	return &Snapshotter{
		proc:   proc,
		images: make(map[string]*ModuleImage),
	}
}

// Process returns the underlying capability.
func (s *Snapshotter) Process() Process {
	return s.proc
}

// Acquire returns the snapshot of the module whose display name equals name.
// The first successful call copies the module; later calls return the same
// image. A failed copy is reported as ErrModuleNotFound and is not cached.
func (s *Snapshotter) Acquire(name string) (*ModuleImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if img, ok := s.images[name]; ok {
		return img, nil
	}

	modules, err := s.proc.Modules()
	if err != nil {
		return nil, fmt.Errorf("%s: enumerate modules: %v: %w", name, err, ErrModuleNotFound)
	}

	for _, mod := range modules {
		if mod.Name != name {
			continue
		}
		buf := make([]byte, mod.Size)
		if err := s.proc.ReadMemory(mod.Base, buf); err != nil {
			return nil, fmt.Errorf("%s: copy %#x bytes at %#x: %v: %w", name, mod.Size, mod.Base, err, ErrModuleNotFound)
		}
		img := NewModuleImage(mod.Name, mod.Base, buf)
		s.images[name] = img
		return img, nil
	}

	return nil, fmt.Errorf("%s: %w", name, ErrModuleNotFound)
}

// FirstOf acquires the first module in names that can be snapshotted.
func (s *Snapshotter) FirstOf(names ...string) (*ModuleImage, error) {
	var lastErr error
	for _, name := range names {
		img, err := s.Acquire(name)
		if err == nil {
			return img, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no module names given: %w", ErrModuleNotFound)
	}
	return nil, lastErr
}

// Cached returns the images taken so far, keyed by module name.
func (s *Snapshotter) Cached() map[string]*ModuleImage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*ModuleImage, len(s.images))
	for k, v := range s.images {
		out[k] = v
	}
	return out
}
