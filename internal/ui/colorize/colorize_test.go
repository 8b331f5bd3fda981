package colorize

import (
	"strings"
	"testing"
)

func TestSourceNoColor(t *testing.T) {
	t.Setenv("OFFSETDUMP_NO_COLOR", "1")

	code := "constexpr ::std::ptrdiff_t m_iHealth = 0x100;\n"
	got, err := Source(code, "hpp")
	if err != nil {
		t.Fatal(err)
	}
	if got != code {
		t.Errorf("Source with colors disabled = %q", got)
	}
	if InstructionLine("00401000  a1 10 20 30 40") != "00401000  a1 10 20 30 40" {
		t.Error("InstructionLine changed text with colors disabled")
	}
}

func TestSourceHighlights(t *testing.T) {
	t.Setenv("OFFSETDUMP_NO_COLOR", "")

	code := "namespace offsetdump {\nconstexpr ::std::ptrdiff_t dwLocalPlayer = 0xD3FC5C;\n}\n"
	got, err := Source(code, "hpp")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "\x1b[") {
		t.Errorf("no escape codes in %q", got)
	}
	if !strings.Contains(StripANSI(got), "dwLocalPlayer = 0xD3FC5C") {
		t.Errorf("StripANSI(Source()) = %q", StripANSI(got))
	}

	plain, err := Source("anything", "txt")
	if err != nil || plain != "anything" {
		t.Errorf("unknown extension = %q, %v", plain, err)
	}
}

func TestInstructionLine(t *testing.T) {
	t.Setenv("OFFSETDUMP_NO_COLOR", "")

	line := "00401000  a1 10 20 30 40           mov eax, dword ptr [0x40302010]"
	got := InstructionLine(line)
	if !strings.HasPrefix(got, "\033[38;2;79;79;79m00401000") {
		t.Errorf("address not gray: %q", got)
	}
	if !strings.Contains(StripANSI(got), "mov eax") {
		t.Errorf("instruction text lost: %q", StripANSI(got))
	}
}
