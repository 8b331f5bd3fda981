package disasm

import (
	"strings"
	"testing"

	"offsetdump/internal/memory"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name   string
		code   []byte
		width  memory.PointerWidth
		op     string
		length int
	}{
		{name: "mov eax moffs x86", code: []byte{0xA1, 0x10, 0x20, 0x30, 0x40}, width: memory.Width32, op: "mov", length: 5},
		{name: "mov rcx rip x64", code: []byte{0x48, 0x8B, 0x0D, 0x10, 0x00, 0x00, 0x00}, width: memory.Width64, op: "mov", length: 7},
		{name: "ret", code: []byte{0xC3, 0xCC}, width: memory.Width32, op: "ret", length: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := Decode(tt.code, 0x1000, tt.width)
			if err != nil {
				t.Fatal(err)
			}
			if inst.Op != tt.op {
				t.Errorf("Op = %q, want %q", inst.Op, tt.op)
			}
			if len(inst.Raw) != tt.length {
				t.Errorf("len = %d, want %d", len(inst.Raw), tt.length)
			}
			if !strings.Contains(inst.String(), "00001000") {
				t.Errorf("String() = %q", inst.String())
			}
		})
	}
}

func TestTarget(t *testing.T) {
	// mov rcx, [rip+0x10] at 0x1000 refers to 0x1000 + 7 + 0x10.
	inst, err := Decode([]byte{0x48, 0x8B, 0x0D, 0x10, 0x00, 0x00, 0x00}, 0x1000, memory.Width64)
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := inst.Target(); !ok || got != 0x1017 {
		t.Errorf("Target() = %#x, %v, want 0x1017", got, ok)
	}

	// call rel32 -8 at 0x2000 lands on 0x2000 + 5 - 8.
	inst, err = Decode([]byte{0xE8, 0xF8, 0xFF, 0xFF, 0xFF}, 0x2000, memory.Width32)
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := inst.Target(); !ok || got != 0x1FFD {
		t.Errorf("call Target() = %#x, %v, want 0x1ffd", got, ok)
	}

	inst, err = Decode([]byte{0xC3}, 0, memory.Width32)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := inst.Target(); ok {
		t.Error("ret has no target")
	}
}

func TestDecodeN(t *testing.T) {
	code := []byte{0x55, 0x8B, 0xEC, 0xC3, 0xFF, 0xFF}
	s := DecodeN(code, 0x400000, memory.Width32, 10)
	if len(s) < 3 {
		t.Fatalf("decoded %d instructions, want at least 3", len(s))
	}
	if s[0].Op != "push" || s[2].Op != "ret" {
		t.Errorf("ops = %q %q", s[0].Op, s[2].Op)
	}
	if s[1].VA != 0x400001 {
		t.Errorf("second VA = %#x", s[1].VA)
	}
	if got := DecodeN(code, 0, memory.Width32, 2); len(got) != 2 {
		t.Errorf("limit ignored: %d", len(got))
	}
}
