package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"offsetdump/internal/config"
	"offsetdump/internal/disasm"
	"offsetdump/internal/dump"
	"offsetdump/internal/memory"
	"offsetdump/internal/netvars"
	"offsetdump/internal/procmem"
	"offsetdump/internal/sigscan"
	"offsetdump/internal/ui/colorize"
)

var testTarget = procmem.Target{PID: 4242, Name: "game.exe"}

func testReport() *dump.Report {
	tree := &netvars.Tree{Tables: []netvars.PropertyTable{
		{Name: "DT_Local", Addr: 0x20001000, Props: []netvars.Property{
			{Name: "m_aimPunch", Offset: 0x70, Table: netvars.NoTable},
		}},
		{Name: "DT_Player", Addr: 0x20002000, Props: []netvars.Property{
			{Name: "m_iHealth", Offset: 0x100, Table: netvars.NoTable},
			{Name: "m_Local", Offset: 0x2FBC, Table: 0},
		}},
	}}
	classes := []netvars.ClassDescriptor{{ID: 40, Name: "CPlayer", Addr: 0x20000000, Table: 1}}

	code := disasm.DecodeN([]byte{0x8b, 0x0d, 0x5c, 0xfc, 0xd3, 0x00, 0xc3}, 0x10000010, memory.Width32, 2)

	return &dump.Report{
		Width: memory.Width32,
		Signatures: []sigscan.Result{
			{Name: "dwLocalPlayer", Module: "client.dll", Address: 0xD3FC5C, Relative: true, Base: 0x10000000, Match: 0x10},
			{Name: "dwBroken", Module: "engine.dll", Match: -1, Err: errors.New("dwBroken: pattern not found")},
		},
		Netvars: []netvars.Result{
			{Name: "m_iHealth", Table: "DT_Player", Prop: "m_iHealth", Offset: 0x100},
			{Name: "m_back", Table: "DT_Player", Prop: "m_iHealth", Offset: -0x10},
			{Name: "m_nope", Table: "DT_Nope", Prop: "m_x", Err: netvars.ErrTableNotFound},
		},
		Root:         0x20000000,
		NetvarModule: "client.dll",
		Classes:      classes,
		Tree:         tree,
		Index:        netvars.BuildIndex(tree, classes),
		Code:         map[string]disasm.Stream{"dwLocalPlayer": code},
		Modules: []dump.Module{
			{Name: "client.dll", Base: 0x10000000, Size: 0x1000, Fingerprint: "00112233aabbccdd"},
		},
	}
}

func TestReportMarkdown(t *testing.T) {
	md := reportMarkdown(testReport(), testTarget)

	for _, want := range []string{
		"# game.exe",
		"pid **4242**",
		"| client.dll | `0x10000000` | `0x1000` | `00112233aabbccdd` |",
		"## Signatures (1/2)",
		"| dwLocalPlayer | client.dll | `0xD3FC5C` | - |",
		"| dwBroken | engine.dll | failed | - |",
		"## Netvars (2/3)",
		"1 classes, 2 tables",
		"| m_back | DT_Player | m_iHealth | `-0x10` |",
		"- dwBroken: pattern not found",
		"### dwLocalPlayer",
		"```asm",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q\n%s", want, md)
		}
	}
	if strings.Contains(md, "### dwBroken") {
		t.Error("failed signature should not get a code block")
	}
}

func TestReportMarkdownWithoutNetvars(t *testing.T) {
	rep := testReport()
	rep.Root, rep.Tree, rep.Index, rep.Classes, rep.Netvars = 0, nil, nil, nil, nil

	md := reportMarkdown(rep, testTarget)
	if !strings.Contains(md, "## Netvars (0/0)") {
		t.Errorf("markdown:\n%s", md)
	}
	if strings.Contains(md, "class list") {
		t.Error("class list line without a root")
	}
}

func TestRenderPlain(t *testing.T) {
	out := renderPlain(testReport(), testTarget)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if lines[0] != "game.exe (pid 4242, x86)" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "signatures 1/2, netvars 2/3" {
		t.Errorf("counts = %q", lines[1])
	}
	if lines[3] != "NAME           VALUE     WHERE" {
		t.Errorf("table header = %q", lines[3])
	}
	for _, want := range []string{
		"dwLocalPlayer  0xD3FC5C",
		"m_iHealth      0x100",
		"m_back         -0x10",
		"dwBroken       !",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("plain output missing %q\n%s", want, out)
		}
	}
	if last := lines[len(lines)-1]; !strings.HasPrefix(last, "m_nope         !") {
		t.Errorf("last row = %q", last)
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("plain output carries escape codes\n%s", out)
	}
}

func TestSignedHex(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0x0"},
		{0x2FBC, "0x2FBC"},
		{-4, "-0x4"},
	}
	for _, tt := range tests {
		if got := signedHex(tt.in); got != tt.want {
			t.Errorf("signedHex(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	lg := log.New(os.Stderr)
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		cfg := loadConfig(filepath.Join(dir, "nope.json"), lg)
		if cfg.Executable != config.DefaultExecutable {
			t.Errorf("executable = %q, want default", cfg.Executable)
		}
	})

	t.Run("broken file", func(t *testing.T) {
		path := filepath.Join(dir, "broken.json")
		if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
			t.Fatal(err)
		}
		cfg := loadConfig(path, lg)
		if cfg.Executable != config.DefaultExecutable {
			t.Errorf("executable = %q, want default", cfg.Executable)
		}
	})

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(dir, "ok.json")
		body := `{"executable": "other.exe", "signatures": [], "netvars": []}`
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		cfg := loadConfig(path, lg)
		if cfg.Executable != "other.exe" {
			t.Errorf("executable = %q", cfg.Executable)
		}
	})
}

func TestTableDetail(t *testing.T) {
	out := colorize.StripANSI(tableDetail(testReport(), "DT_Player"))

	for _, want := range []string{"DT_Player", "0x0100  m_iHealth", "0x2FBC  m_Local", "-> DT_Local", "    0x0070  m_aimPunch"} {
		if !strings.Contains(out, want) {
			t.Errorf("detail missing %q\n%s", want, out)
		}
	}

	if got := tableDetail(testReport(), "DT_Nope"); got != "DT_Nope: not found" {
		t.Errorf("unknown table = %q", got)
	}
}

func TestSignatureDetail(t *testing.T) {
	t.Setenv("OFFSETDUMP_NO_COLOR", "1")
	rep := testReport()

	out := colorize.StripANSI(signatureDetail(rep, "dwLocalPlayer"))
	for _, want := range []string{"value     0xD3FC5C", "absolute  0x10D3FC5C", "match     0x10", "10000010", "ret"} {
		if !strings.Contains(out, want) {
			t.Errorf("detail missing %q\n%s", want, out)
		}
	}

	out = colorize.StripANSI(signatureDetail(rep, "dwBroken"))
	if !strings.Contains(out, "pattern not found") {
		t.Errorf("failed detail = %q", out)
	}
}
