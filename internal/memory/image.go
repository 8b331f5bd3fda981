package memory

import (
	"encoding/binary"
	"fmt"

	"github.com/zeebo/xxh3"
)

// ModuleImage is a private copy of one module's memory taken at a single
// point in time. Addresses passed to its accessors are either absolute remote
// virtual addresses or offsets relative to Base.
type ModuleImage struct {
	Name string
	Base uint64
	Size uint64

	data []byte
}

// NewModuleImage wraps data as a snapshot of a module loaded at base.
// The slice is owned by the image afterwards.
func NewModuleImage(name string, base uint64, data []byte) *ModuleImage {
	return &ModuleImage{
		Name: name,
		Base: base,
		Size: uint64(len(data)),
		data: data,
	}
}

// Bytes returns the whole snapshot. Callers must not modify it.
func (m *ModuleImage) Bytes() []byte {
	return m.data
}

// offset converts addr to an index into the snapshot. Absolute addresses below
// the base wrap around to huge values and fail the bounds check.
func (m *ModuleImage) offset(addr uint64, relative bool) uint64 {
	if relative {
		return addr
	}
	return addr - m.Base
}

// At returns the snapshot bytes from addr to the end of the module.
func (m *ModuleImage) At(addr uint64, relative bool) ([]byte, error) {
	off := m.offset(addr, relative)
	if off >= uint64(len(m.data)) {
		return nil, fmt.Errorf("%s+%#x: %w", m.Name, off, ErrOutOfBounds)
	}
	return m.data[off:], nil
}

// Slice returns exactly n bytes starting at addr.
func (m *ModuleImage) Slice(addr, n uint64, relative bool) ([]byte, error) {
	off := m.offset(addr, relative)
	end := off + n
	if end < off || end > uint64(len(m.data)) {
		return nil, fmt.Errorf("%s+%#x (len %#x): %w", m.Name, off, n, ErrOutOfBounds)
	}
	return m.data[off:end], nil
}

// ReadPointer decodes a pointer of the given width at addr.
func (m *ModuleImage) ReadPointer(addr uint64, width PointerWidth, relative bool) (uint64, error) {
	if !width.Valid() {
		return 0, fmt.Errorf("read pointer: unsupported width %d", int(width))
	}
	b, err := m.Slice(addr, uint64(width), relative)
	if err != nil {
		return 0, err
	}
	return width.decode(b), nil
}

// ReadUint32 decodes a little endian uint32 at addr.
func (m *ModuleImage) ReadUint32(addr uint64, relative bool) (uint32, error) {
	b, err := m.Slice(addr, 4, relative)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadInt32 decodes a little endian int32 at addr.
func (m *ModuleImage) ReadInt32(addr uint64, relative bool) (int32, error) {
	v, err := m.ReadUint32(addr, relative)
	return int32(v), err
}

// Fingerprint hashes the snapshot so two runs can tell whether they looked
// at the same build of a module.
func (m *ModuleImage) Fingerprint() string {
	return fmt.Sprintf("%016x", xxh3.Hash(m.data))
}
