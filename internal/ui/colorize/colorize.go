package colorize

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// Disabled reports whether OFFSETDUMP_NO_COLOR is set.
func Disabled() bool {
	return os.Getenv("OFFSETDUMP_NO_COLOR") != ""
}

// getLexer returns the first lexer known to chroma among candidates
func getLexer(candidates ...string) chroma.Lexer {
	for _, name := range candidates {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

// getStyle returns the dump style with fallbacks
func getStyle() *chroma.Style {
	candidates := []string{"offsetdump-dark", "dracula", "monokai"}
	for _, name := range candidates {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

// getTerminalFormatter returns an appropriate terminal formatter
func getTerminalFormatter() chroma.Formatter {
	// Try high-color first, then fallback
	candidates := []string{"terminal16m", "terminal256"}
	for _, name := range candidates {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

func highlight(lexer chroma.Lexer, code string) (string, error) {
	if Disabled() || lexer == nil {
		return code, nil
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code, err
	}

	var buf strings.Builder
	if err := getTerminalFormatter().Format(&buf, getStyle(), iterator); err != nil {
		return code, err
	}
	return buf.String(), nil
}

// languages maps output file extensions to chroma lexer names.
var languages = map[string][]string{
	"hpp":      {"cpp", "c++"},
	"cs":       {"csharp", "c#"},
	"vb":       {"vb.net", "vbnet"},
	"rs":       {"rust"},
	"json":     {"json"},
	"min.json": {"json"},
	"yaml":     {"yaml"},
}

// Source highlights generated output for the given file extension. Unknown
// extensions are returned unchanged.
func Source(code, ext string) (string, error) {
	candidates, ok := languages[ext]
	if !ok {
		return code, nil
	}
	return highlight(getLexer(candidates...), code)
}

// Assembly highlights x86 disassembly in Intel syntax.
func Assembly(code string) (string, error) {
	return highlight(getLexer("nasm", "gas"), code)
}

// InstructionLine colorizes one "address  bytes  text" line, keeping the
// address and raw bytes in gray.
func InstructionLine(line string) string {
	if Disabled() {
		return line
	}

	addr, rest, ok := strings.Cut(line, "  ")
	if !ok || !isHex(addr) {
		s, _ := Assembly(line)
		return s
	}

	// Raw bytes are padded to a fixed column before the instruction text.
	const bytesWidth = 24
	raw, text := rest, ""
	if len(rest) > bytesWidth {
		raw, text = rest[:bytesWidth], rest[bytesWidth:]
	}

	colored, err := Assembly(text)
	if err != nil {
		colored = text
	}
	return fmt.Sprintf("\033[38;2;79;79;79m%s  %s\033[0m%s", addr, raw, strings.TrimRight(colored, "\n"))
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if !((ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')) {
			return false
		}
	}
	return true
}

// StripANSI removes ANSI escape codes.
func StripANSI(s string) string {
	var result strings.Builder
	inEscape := false

	for _, r := range s {
		if r == '\x1b' {
			inEscape = true
		} else if inEscape {
			if r == 'm' {
				inEscape = false
			}
		} else {
			result.WriteRune(r)
		}
	}

	return result.String()
}
