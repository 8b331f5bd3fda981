// Package memory provides read-only snapshots of modules loaded in a target
// process, and the narrow capability interface the scanner consumes to take them.
package memory

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// PointerWidth is the size in bytes of a pointer in the target process.
type PointerWidth int

const (
	Width32 PointerWidth = 4
	Width64 PointerWidth = 8
)

func (w PointerWidth) String() string {
	switch w {
	case Width32:
		return "x86"
	case Width64:
		return "x64"
	default:
		return fmt.Sprintf("PointerWidth(%d)", int(w))
	}
}

// Valid reports whether w is one of the supported widths.
func (w PointerWidth) Valid() bool {
	return w == Width32 || w == Width64
}

// ParsePointerWidth accepts the bitness names used on the command line
// ("x86", "x64", "32", "64").
func ParsePointerWidth(s string) (PointerWidth, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x86", "32", "i386":
		return Width32, nil
	case "x64", "64", "amd64":
		return Width64, nil
	}
	return 0, fmt.Errorf("invalid bitness %q, try 'x86' or 'x64'", s)
}

// decode reads a width-tagged little endian value from b.
func (w PointerWidth) decode(b []byte) uint64 {
	if w == Width32 {
		return uint64(binary.LittleEndian.Uint32(b))
	}
	return binary.LittleEndian.Uint64(b)
}

// ModuleInfo describes one loaded module as enumerated by a Process.
type ModuleInfo struct {
	Name string
	Base uint64
	Size uint64
}

// Process is the capability a target process exposes to the scanner.
//
// ReadMemory is all-or-nothing for readable memory: an implementation must
// return an error rather than a partially filled buffer when any readable
// byte in the range cannot be copied. Holes inside the range, such as
// unmapped gaps between a module's segments or PROT_NONE guard pages, read
// as zero. A range containing no readable byte at all is an error.
type Process interface {
	Modules() ([]ModuleInfo, error)
	ReadMemory(addr uint64, buf []byte) error
	PointerWidth() PointerWidth
	Close() error
}

var (
	ErrModuleNotFound = errors.New("module not found")
	ErrOutOfBounds    = errors.New("address outside module snapshot")
)
