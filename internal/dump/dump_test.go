package dump

import (
	"context"
	"errors"
	"testing"

	"offsetdump/internal/config"
	"offsetdump/internal/memory"
	"offsetdump/internal/memory/memtest"
	"offsetdump/internal/netvars"
	"offsetdump/internal/sigscan"
	"offsetdump/internal/trace"
)

const clientBase = 0x10000000

// newClient lays out a client.dll whose code references a pointer to a one
// class list with a two property table.
func newClient() *memtest.Process {
	proc := memtest.New(memory.Width32)
	m := proc.AddModule("client.dll", clientBase, 0x400)

	// mov eax, [g_pClassHead]; mov ...
	m.Put(0x10, 0xA1)
	m.PutUint32(0x11, clientBase+0x40)
	m.Put(0x15, 0x8B, 0x00)
	m.PutUint32(0x40, clientBase+0x100)

	// class
	m.PutUint32(0x108, clientBase+0x200)
	m.PutUint32(0x10C, clientBase+0x120)
	m.PutUint32(0x114, 35)

	// table
	m.PutUint32(0x120, clientBase+0x140)
	m.PutUint32(0x124, 2)
	m.PutUint32(0x12C, clientBase+0x210)

	// properties
	m.PutUint32(0x140, clientBase+0x220)
	m.PutUint32(0x16C, 0x100)
	m.PutUint32(0x17C, clientBase+0x230)
	m.PutUint32(0x1A8, 0x104)

	m.PutString(0x200, "CBasePlayer")
	m.PutString(0x210, "DT_BasePlayer")
	m.PutString(0x220, "m_iHealth")
	m.PutString(0x230, "m_fFlags")
	return proc
}

func newConfig() *config.Config {
	cfg := config.Default()
	cfg.Signatures = []config.Signature{
		{Name: "dwGetAllClasses", Pattern: "A1 ?? ?? ?? ?? 8B", Module: "client.dll", Offsets: []int64{1, 0}, Relative: true},
		{Name: "dwMissing", Pattern: "DE AD BE EF", Module: "client.dll"},
	}
	cfg.Netvars = []config.Netvar{
		{Name: "m_iHealth", Table: "DT_BasePlayer", Prop: "m_iHealth"},
		{Name: "m_bMissing", Table: "DT_BasePlayer", Prop: "m_bMissing"},
		{Name: "m_fFlags", Table: "DT_BasePlayer", Prop: "m_fFlags", Offset: 4},
	}
	return cfg
}

func TestRun(t *testing.T) {
	rec := &trace.Recorder{}
	rep, err := Run(context.Background(), newClient(), newConfig(), Options{Trace: rec})
	if err != nil {
		t.Fatal(err)
	}

	if rep.SignaturesOK() != 1 || rep.NetvarsOK() != 2 {
		t.Fatalf("ok = %d signatures, %d netvars", rep.SignaturesOK(), rep.NetvarsOK())
	}
	if rep.Signatures[0].Address != 0x100 {
		t.Errorf("dwGetAllClasses = %#x, want 0x100", rep.Signatures[0].Address)
	}
	if !errors.Is(rep.Signatures[1].Err, sigscan.ErrPatternNotFound) {
		t.Errorf("dwMissing error = %v", rep.Signatures[1].Err)
	}

	if rep.Root != clientBase+0x100 || rep.NetvarModule != "client.dll" {
		t.Errorf("root = %#x in %q", rep.Root, rep.NetvarModule)
	}
	if len(rep.Classes) != 1 || rep.Classes[0].Name != "CBasePlayer" || rep.Classes[0].ID != 35 {
		t.Errorf("classes = %+v", rep.Classes)
	}

	want := []struct {
		name   string
		offset int64
		ok     bool
	}{
		{"m_iHealth", 0x100, true},
		{"m_bMissing", 0, false},
		{"m_fFlags", 0x108, true},
	}
	for i, w := range want {
		n := rep.Netvars[i]
		if n.Name != w.name || n.OK() != w.ok || n.Offset != w.offset {
			t.Errorf("netvars[%d] = %+v, want %s ok=%v %#x", i, n, w.name, w.ok, w.offset)
		}
	}
	if !errors.Is(rep.Netvars[1].Err, netvars.ErrNetvarNotFound) {
		t.Errorf("m_bMissing error = %v", rep.Netvars[1].Err)
	}
	if got := len(rep.Failures()); got != 2 {
		t.Errorf("Failures() = %d, want 2", got)
	}

	if len(rep.Modules) != 1 || rep.Modules[0].Fingerprint == "" {
		t.Errorf("modules = %+v", rep.Modules)
	}
	code := rep.Code["dwGetAllClasses"]
	if len(code) == 0 || code[0].Op != "mov" || code[0].VA != clientBase+0x10 {
		t.Errorf("code = %v", code)
	}
	if rec.Count(trace.LevelWarn) != 2 {
		t.Errorf("warn events = %d, want 2", rec.Count(trace.LevelWarn))
	}
}

func TestRunNetvarsFailTogether(t *testing.T) {
	tests := []struct {
		name   string
		modify func(cfg *config.Config)
		want   error
	}{
		{
			name:   "root signature unknown",
			modify: func(cfg *config.Config) { cfg.RootSignature = "dwNope" },
			want:   ErrRootNotResolved,
		},
		{
			name:   "root signature failed",
			modify: func(cfg *config.Config) { cfg.RootSignature = "dwMissing" },
			want:   ErrRootNotResolved,
		},
		{
			name:   "netvar module missing",
			modify: func(cfg *config.Config) { cfg.NetvarModules = []string{"engine.dll"} },
			want:   memory.ErrModuleNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newConfig()
			tt.modify(cfg)

			rep, err := Run(context.Background(), newClient(), cfg, Options{})
			if err != nil {
				t.Fatal(err)
			}
			if rep.SignaturesOK() != 1 {
				t.Errorf("signatures ok = %d, want 1", rep.SignaturesOK())
			}
			if len(rep.Netvars) != 3 || rep.NetvarsOK() != 0 {
				t.Fatalf("netvars = %+v", rep.Netvars)
			}
			for _, n := range rep.Netvars {
				if !errors.Is(n.Err, tt.want) {
					t.Errorf("%s: %v, want %v", n.Name, n.Err, tt.want)
				}
			}
		})
	}
}

func TestRunFallbackModule(t *testing.T) {
	proc := newClient()
	proc.Mods[0].Name = "client_panorama.dll"
	cfg := newConfig()
	for i := range cfg.Signatures {
		cfg.Signatures[i].Module = "client_panorama.dll"
	}

	rep, err := Run(context.Background(), proc, cfg, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if rep.NetvarModule != "client_panorama.dll" || rep.NetvarsOK() != 2 {
		t.Errorf("module %q, %d netvars", rep.NetvarModule, rep.NetvarsOK())
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := Run(ctx, newClient(), newConfig(), Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(rep.Signatures) != 2 || rep.Netvars != nil {
		t.Errorf("report after cancel: %d signatures, %v netvars", len(rep.Signatures), rep.Netvars)
	}
}

func TestRunWarnsOnLayoutWidth(t *testing.T) {
	const msg = "netvar layout is for a different pointer width"
	hasWarning := func(rec *trace.Recorder) bool {
		for _, e := range rec.Events {
			if e.Level == trace.LevelWarn && e.Message == msg {
				return true
			}
		}
		return false
	}

	rec := &trace.Recorder{}
	if _, err := Run(context.Background(), newClient(), newConfig(), Options{Trace: rec}); err != nil {
		t.Fatal(err)
	}
	if hasWarning(rec) {
		t.Error("warned with matching widths")
	}

	rec = &trace.Recorder{}
	if _, err := Run(context.Background(), newClient(), newConfig(), Options{Width: memory.Width64, Trace: rec}); err != nil {
		t.Fatal(err)
	}
	if !hasWarning(rec) {
		t.Error("no warning for a 64-bit target with the 32-bit layout")
	}

	rec = &trace.Recorder{}
	l := netvars.DefaultLayout()
	if _, err := Run(context.Background(), newClient(), newConfig(), Options{Layout: &l, Trace: rec}); err != nil {
		t.Fatal(err)
	}
	if hasWarning(rec) {
		t.Error("warned with an explicit matching layout")
	}
}
