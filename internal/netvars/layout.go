package netvars

import (
	"errors"
	"fmt"

	"offsetdump/internal/memory"
)

var ErrInvalidLayout = errors.New("invalid layout")

// Layout describes where the walker finds each field in the remote records.
// All offsets are relative to the start of their record.
type Layout struct {
	Width memory.PointerWidth

	ClassSize  uint64
	ClassName  uint64
	ClassTable uint64
	ClassNext  uint64
	ClassID    uint64

	TableSize  uint64
	TableProps uint64
	TableCount uint64
	TableName  uint64

	// PropSize is the number of bytes read per property; PropStride is the
	// distance between consecutive properties in the array.
	PropSize   uint64
	PropStride uint64
	PropName   uint64
	PropTable  uint64
	PropOffset uint64
}

// DefaultLayout is the 32-bit ClientClass / RecvTable / RecvProp layout.
func DefaultLayout() Layout {
	return Layout{
		Width: memory.Width32,

		ClassSize:  0x18,
		ClassName:  0x08,
		ClassTable: 0x0C,
		ClassNext:  0x10,
		ClassID:    0x14,

		TableSize:  0x10,
		TableProps: 0x00,
		TableCount: 0x04,
		TableName:  0x0C,

		PropSize:   0x30,
		PropStride: 0x3C,
		PropName:   0x00,
		PropTable:  0x28,
		PropOffset: 0x2C,
	}
}

// Validate checks that every field lies inside its record.
func (l Layout) Validate() error {
	if !l.Width.Valid() {
		return fmt.Errorf("%w: pointer width %d", ErrInvalidLayout, int(l.Width))
	}
	if l.PropStride == 0 {
		return fmt.Errorf("%w: zero property stride", ErrInvalidLayout)
	}

	ptr, i32 := uint64(l.Width), uint64(4)
	fields := []struct {
		name       string
		off, n, in uint64
	}{
		{"class name", l.ClassName, ptr, l.ClassSize},
		{"class table", l.ClassTable, ptr, l.ClassSize},
		{"class next", l.ClassNext, ptr, l.ClassSize},
		{"class id", l.ClassID, i32, l.ClassSize},
		{"table props", l.TableProps, ptr, l.TableSize},
		{"table count", l.TableCount, i32, l.TableSize},
		{"table name", l.TableName, ptr, l.TableSize},
		{"prop name", l.PropName, ptr, l.PropSize},
		{"prop table", l.PropTable, ptr, l.PropSize},
		{"prop offset", l.PropOffset, i32, l.PropSize},
	}
	for _, f := range fields {
		if f.off+f.n > f.in {
			return fmt.Errorf("%w: %s at %#x does not fit a %#x byte record", ErrInvalidLayout, f.name, f.off, f.in)
		}
	}
	return nil
}
