package output

import (
	"fmt"
	"math"
	"strings"
)

// hexLiteral formats v in the given language's hex notation.
func hexLiteral(f Format, v int64) string {
	sign := ""
	u := uint64(v)
	if v < 0 {
		sign, u = "-", uint64(-v)
	}
	if f == VBNet {
		return fmt.Sprintf("%s&H%X", sign, u)
	}
	return fmt.Sprintf("%s0x%X", sign, u)
}

func fits32(v int64) bool {
	return v >= math.MinInt32 && v <= math.MaxInt32
}

// constant renders one named constant.
func constant(f Format, name string, v int64) string {
	lit := hexLiteral(f, v)
	switch f {
	case HPP:
		return fmt.Sprintf("constexpr ::std::ptrdiff_t %s = %s;", name, lit)
	case CSharp:
		typ := "Int32"
		if !fits32(v) {
			typ = "Int64"
		}
		return fmt.Sprintf("        public const %s %s = %s;", typ, name, lit)
	case VBNet:
		typ := "Integer"
		if !fits32(v) {
			typ = "Long"
		}
		return fmt.Sprintf("        Public Const %s as %s = %s", name, typ, lit)
	case Rust:
		return fmt.Sprintf("        pub const %s: isize = %s;", name, lit)
	}
	return ""
}

// block wraps constants in the language's namespace or class syntax.
func block(b *strings.Builder, f Format, name string, lines []string) {
	switch f {
	case HPP:
		fmt.Fprintf(b, "namespace %s {\n", name)
		for _, l := range lines {
			b.WriteString(l + "\n")
		}
		fmt.Fprintf(b, "} // namespace %s\n", name)
	case CSharp:
		fmt.Fprintf(b, "    public static class %s\n    {\n", name)
		for _, l := range lines {
			b.WriteString(l + "\n")
		}
		b.WriteString("    }\n")
	case VBNet:
		fmt.Fprintf(b, "    Public Shared Class %s\n", name)
		for _, l := range lines {
			b.WriteString(l + "\n")
		}
		b.WriteString("    End Class\n")
	case Rust:
		fmt.Fprintf(b, "    pub mod %s {\n", name)
		for _, l := range lines {
			b.WriteString(l + "\n")
		}
		b.WriteString("    }\n")
	}
}

func (r *Results) source(f Format) string {
	ns := r.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	stamp := r.Timestamp.UTC().Format("2006-01-02 15:04:05.000000000 UTC")

	var b strings.Builder
	switch f {
	case HPP:
		b.WriteString("#pragma once\n#include <cstddef>\n\n")
		fmt.Fprintf(&b, "// %s\n\n", stamp)
		fmt.Fprintf(&b, "namespace %s {\n", ns)
	case CSharp:
		b.WriteString("using System;\n\n")
		fmt.Fprintf(&b, "// %s\n\n", stamp)
		fmt.Fprintf(&b, "namespace %s\n{\n", ns)
		fmt.Fprintf(&b, "    public const Int32 timestamp = %d;\n", r.Timestamp.Unix())
	case VBNet:
		fmt.Fprintf(&b, "' %s\n\n", stamp)
		fmt.Fprintf(&b, "Namespace %s\n", ns)
	case Rust:
		b.WriteString("#![allow(warnings)]\n\n")
		fmt.Fprintf(&b, "// %s\n\n", stamp)
		fmt.Fprintf(&b, "pub mod %s {\n", ns)
	}

	if r.Netvars != nil {
		var lines []string
		for _, k := range sortedKeys(r.Netvars) {
			lines = append(lines, constant(f, k, r.Netvars[k]))
		}
		block(&b, f, "netvars", lines)
	}

	var lines []string
	for _, k := range sortedKeys(r.Signatures) {
		lines = append(lines, constant(f, k, int64(r.Signatures[k])))
	}
	block(&b, f, "signatures", lines)

	switch f {
	case HPP:
		fmt.Fprintf(&b, "} // namespace %s\n", ns)
	case CSharp:
		fmt.Fprintf(&b, "} // namespace %s\n", ns)
	case VBNet:
		b.WriteString("End Namespace\n")
	case Rust:
		b.WriteString("}\n")
	}
	return b.String()
}
