// Package disasm decodes the x86 instructions around a signature match so
// they can be shown next to the resolved address.
package disasm

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"

	"offsetdump/internal/memory"
)

// Inst is a simplified decoded instruction.
type Inst struct {
	VA   uint64 // virtual address of instruction
	Text string // Intel syntax
	Op   string // mnemonic in lowercase
	Raw  []byte

	inst x86asm.Inst
}

// Stream is a linear sequence of instructions.
type Stream []Inst

func mode(w memory.PointerWidth) int {
	if w == memory.Width32 {
		return 32
	}
	return 64
}

// Decode decodes the instruction at the start of code, which lives at va.
func Decode(code []byte, va uint64, w memory.PointerWidth) (Inst, error) {
	inst, err := x86asm.Decode(code, mode(w))
	if err != nil {
		return Inst{}, fmt.Errorf("decode at %#x: %w", va, err)
	}
	return Inst{
		VA:   va,
		Text: x86asm.IntelSyntax(inst, va, nil),
		Op:   strings.ToLower(inst.Op.String()),
		Raw:  code[:inst.Len],
		inst: inst,
	}, nil
}

// DecodeN decodes up to n consecutive instructions. Decoding stops at the
// first invalid encoding.
func DecodeN(code []byte, va uint64, w memory.PointerWidth, n int) Stream {
	var out Stream
	for off := 0; len(out) < n && off < len(code); {
		inst, err := Decode(code[off:], va+uint64(off), w)
		if err != nil {
			break
		}
		out = append(out, inst)
		off += len(inst.Raw)
	}
	return out
}

// Target returns the address a relative branch or a RIP-relative memory
// operand refers to.
func (i Inst) Target() (uint64, bool) {
	next := i.VA + uint64(i.inst.Len)
	for _, arg := range i.inst.Args {
		switch a := arg.(type) {
		case x86asm.Rel:
			return next + uint64(int64(a)), true
		case x86asm.Mem:
			if a.Base == x86asm.RIP {
				return next + uint64(a.Disp), true
			}
		}
	}
	return 0, false
}

// String formats the instruction as "address  bytes  text".
func (i Inst) String() string {
	return fmt.Sprintf("%08x  %-24s %s", i.VA, fmt.Sprintf("% x", i.Raw), i.Text)
}

func (s Stream) String() string {
	var b strings.Builder
	for _, inst := range s {
		b.WriteString(inst.String())
		b.WriteByte('\n')
	}
	return b.String()
}
