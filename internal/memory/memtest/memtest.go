// Package memtest provides an in-memory memory.Process for tests.
package memtest

import (
	"encoding/binary"
	"errors"
	"fmt"

	"offsetdump/internal/memory"
)

// Module is a fake loaded module backed by a byte slice.
type Module struct {
	Name string
	Base uint64
	Data []byte
}

// Process is a fake target process. Reads must fall entirely inside one
// module; anything else fails like a partial ReadProcessMemory would.
type Process struct {
	Width      memory.PointerWidth
	Mods       []*Module
	ModulesErr error

	// Reads counts ReadMemory calls.
	Reads int
}

// New returns a fake process with the given pointer width.
func New(width memory.PointerWidth) *Process {
	return &Process{Width: width}
}

// AddModule registers a zeroed module of size bytes at base and returns it so
// the test can poke bytes into it.
func (p *Process) AddModule(name string, base uint64, size int) *Module {
	m := &Module{Name: name, Base: base, Data: make([]byte, size)}
	p.Mods = append(p.Mods, m)
	return m
}

func (p *Process) Modules() ([]memory.ModuleInfo, error) {
	if p.ModulesErr != nil {
		return nil, p.ModulesErr
	}
	out := make([]memory.ModuleInfo, 0, len(p.Mods))
	for _, m := range p.Mods {
		out = append(out, memory.ModuleInfo{Name: m.Name, Base: m.Base, Size: uint64(len(m.Data))})
	}
	return out, nil
}

func (p *Process) ReadMemory(addr uint64, buf []byte) error {
	p.Reads++
	for _, m := range p.Mods {
		if addr < m.Base {
			continue
		}
		off := addr - m.Base
		if off+uint64(len(buf)) > uint64(len(m.Data)) {
			continue
		}
		copy(buf, m.Data[off:])
		return nil
	}
	return errors.New("partial copy")
}

func (p *Process) PointerWidth() memory.PointerWidth {
	return p.Width
}

func (p *Process) Close() error {
	return nil
}

// Put copies b into the module at the relative offset off.
func (m *Module) Put(off uint64, b ...byte) {
	if off+uint64(len(b)) > uint64(len(m.Data)) {
		panic(fmt.Sprintf("memtest: write at %#x overflows %s", off, m.Name))
	}
	copy(m.Data[off:], b)
}

// PutUint32 writes a little endian uint32 at the relative offset off.
func (m *Module) PutUint32(off uint64, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	m.Put(off, b[:]...)
}

// PutUint64 writes a little endian uint64 at the relative offset off.
func (m *Module) PutUint64(off uint64, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	m.Put(off, b[:]...)
}

// PutString writes s followed by a NUL byte at the relative offset off.
func (m *Module) PutString(off uint64, s string) {
	m.Put(off, append([]byte(s), 0)...)
}

// Abs converts a relative offset into an absolute address in m.
func (m *Module) Abs(off uint64) uint64 {
	return m.Base + off
}
