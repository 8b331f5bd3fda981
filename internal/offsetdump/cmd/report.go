package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/lipgloss/v2/table"

	"offsetdump/internal/dump"
	"offsetdump/internal/offsetdump/styles"
	"offsetdump/internal/procmem"
)

// reportMarkdown summarizes a run as markdown for glamour.
func reportMarkdown(rep *dump.Report, target procmem.Target) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", target.Name)
	fmt.Fprintf(&b, "pid **%d**, pointer width **%s**\n\n", target.PID, rep.Width)

	if len(rep.Modules) > 0 {
		b.WriteString("## Modules\n\n")
		b.WriteString("| Module | Base | Size | XXH3 |\n")
		b.WriteString("|---|---|---|---|\n")
		for _, m := range rep.Modules {
			fmt.Fprintf(&b, "| %s | `0x%X` | `0x%X` | `%s` |\n", m.Name, m.Base, m.Size, m.Fingerprint)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Signatures (%d/%d)\n\n", rep.SignaturesOK(), len(rep.Signatures))
	if len(rep.Signatures) > 0 {
		b.WriteString("| Name | Module | Value | Matches |\n")
		b.WriteString("|---|---|---|---|\n")
		for _, s := range rep.Signatures {
			value := fmt.Sprintf("`0x%X`", s.Address)
			if !s.OK() {
				value = "failed"
			}
			matches := "-"
			if s.Matches > 0 {
				matches = fmt.Sprint(s.Matches)
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", s.Name, s.Module, value, matches)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Netvars (%d/%d)\n\n", rep.NetvarsOK(), len(rep.Netvars))
	if rep.Root != 0 {
		fmt.Fprintf(&b, "class list at `0x%X` in %s, %d classes, %d tables\n\n",
			rep.Root, rep.NetvarModule, len(rep.Classes), rep.Tree.Len())
	}
	if len(rep.Netvars) > 0 {
		b.WriteString("| Name | Table | Property | Offset |\n")
		b.WriteString("|---|---|---|---|\n")
		for _, n := range rep.Netvars {
			value := "`" + signedHex(n.Offset) + "`"
			if !n.OK() {
				value = "failed"
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", n.Name, n.Table, n.Prop, value)
		}
		b.WriteString("\n")
	}

	if failures := rep.Failures(); len(failures) > 0 {
		b.WriteString("## Failures\n\n")
		for _, err := range failures {
			fmt.Fprintf(&b, "- %s\n", err)
		}
		b.WriteString("\n")
	}

	for _, s := range rep.Signatures {
		code, ok := rep.Code[s.Name]
		if !ok || len(code) == 0 {
			continue
		}
		fmt.Fprintf(&b, "### %s\n\n```asm\n%s```\n\n", s.Name, code)
	}

	return b.String()
}

func renderMarkdown(rep *dump.Report, target procmem.Target, width int) string {
	md := reportMarkdown(rep, target)
	renderer := styles.GetMarkdownRenderer(width - 2)
	if renderer == nil {
		return md
	}
	out, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}

// renderPlain is the summary used when stdout is not a terminal.
func renderPlain(rep *dump.Report, target procmem.Target) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (pid %d, %s)\n", target.Name, target.PID, rep.Width)
	fmt.Fprintf(&b, "signatures %d/%d, netvars %d/%d\n\n",
		rep.SignaturesOK(), len(rep.Signatures), rep.NetvarsOK(), len(rep.Netvars))

	var rows [][]string
	for _, s := range rep.Signatures {
		if s.OK() {
			rows = append(rows, []string{s.Name, fmt.Sprintf("0x%X", s.Address), s.Module})
		} else {
			rows = append(rows, []string{s.Name, "!", s.Err.Error()})
		}
	}
	for _, n := range rep.Netvars {
		if n.OK() {
			rows = append(rows, []string{n.Name, signedHex(n.Offset), n.Table + "." + n.Prop})
		} else {
			rows = append(rows, []string{n.Name, "!", n.Err.Error()})
		}
	}
	if len(rows) == 0 {
		return b.String()
	}

	cell := lipgloss.NewStyle().PaddingRight(2)
	t := table.New().
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(false).
		BorderColumn(false).
		BorderRow(false).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 2 {
				return lipgloss.NewStyle()
			}
			return cell
		}).
		Headers("NAME", "VALUE", "WHERE").
		Rows(rows...)

	for _, line := range strings.Split(t.String(), "\n") {
		b.WriteString(strings.TrimRight(line, " ") + "\n")
	}
	return b.String()
}

func signedHex(v int64) string {
	if v < 0 {
		return fmt.Sprintf("-0x%X", uint64(-v))
	}
	return fmt.Sprintf("0x%X", v)
}
