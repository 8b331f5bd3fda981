// Package dump runs the two phase scan: resolve every signature, then walk the
// class list found through the root signature and resolve the netvars.
package dump

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"

	"offsetdump/internal/config"
	"offsetdump/internal/disasm"
	"offsetdump/internal/memory"
	"offsetdump/internal/netvars"
	"offsetdump/internal/sigscan"
	"offsetdump/internal/trace"
)

var ErrRootNotResolved = errors.New("root signature not resolved")

// disasmCount is the number of instructions decoded at each match.
const disasmCount = 4

// Options tune a run. The zero value scans with the process pointer width.
type Options struct {
	Width      memory.PointerWidth
	MatchCount bool
	Trace      trace.Sink

	// Layout defaults to the 32-bit netvars.DefaultLayout whatever Width is.
	Layout *netvars.Layout
}

// Module records a snapshot the run used.
type Module struct {
	Name        string
	Base        uint64
	Size        uint64
	Fingerprint string
}

// Report is everything one run produced. Per-item failures live in the
// results; Run itself only fails when cancelled.
type Report struct {
	Width      memory.PointerWidth
	Signatures []sigscan.Result
	Netvars    []netvars.Result

	// Root is the absolute address of the first class descriptor, zero when
	// the root signature did not resolve.
	Root         uint64
	NetvarModule string
	Classes      []netvars.ClassDescriptor
	Tree         *netvars.Tree
	Index        *netvars.Index

	// Code holds the instructions at each signature match, keyed by name.
	Code    map[string]disasm.Stream
	Modules []Module
}

// SignaturesOK counts resolved signatures.
func (r *Report) SignaturesOK() int {
	return lo.CountBy(r.Signatures, func(s sigscan.Result) bool { return s.OK() })
}

// NetvarsOK counts resolved netvars.
func (r *Report) NetvarsOK() int {
	return lo.CountBy(r.Netvars, func(n netvars.Result) bool { return n.OK() })
}

// Failures returns the error of every failed item, signatures first.
func (r *Report) Failures() []error {
	var errs []error
	for _, s := range r.Signatures {
		if !s.OK() {
			errs = append(errs, s.Err)
		}
	}
	for _, n := range r.Netvars {
		if !n.OK() {
			errs = append(errs, n.Err)
		}
	}
	return errs
}

// Run scans proc with cfg.
func Run(ctx context.Context, proc memory.Process, cfg *config.Config, opts Options) (*Report, error) {
	sink := opts.Trace
	if sink == nil {
		sink = trace.Discard
	}
	tr := trace.Emitter{Sink: sink, Stage: "dump"}

	snaps := memory.NewSnapshotter(proc)
	resolver := sigscan.NewResolver(snaps,
		sigscan.WithPointerWidth(opts.Width),
		sigscan.WithMatchCount(opts.MatchCount),
		sigscan.WithTrace(sink),
	)

	rep := &Report{
		Width: resolver.PointerWidth(),
		Code:  make(map[string]disasm.Stream),
	}

	rep.Signatures = resolver.ResolveAll(cfg.Signatures)
	decodeMatches(rep, snaps)

	if err := ctx.Err(); err != nil {
		return rep, err
	}

	if len(cfg.Netvars) > 0 {
		if err := walkNetvars(rep, snaps, cfg, opts, tr); err != nil {
			rep.Netvars = failAll(cfg.Netvars, err)
			tr.Warn("skipping netvars", "error", err)
		}
	}

	rep.Modules = modules(snaps)
	tr.Info("dump finished",
		"signatures", fmt.Sprintf("%d/%d", rep.SignaturesOK(), len(rep.Signatures)),
		"netvars", fmt.Sprintf("%d/%d", rep.NetvarsOK(), len(rep.Netvars)),
	)
	return rep, nil
}

func walkNetvars(rep *Report, snaps *memory.Snapshotter, cfg *config.Config, opts Options, tr trace.Emitter) error {
	layout := netvars.DefaultLayout()
	if opts.Layout != nil {
		layout = *opts.Layout
	}
	if layout.Width != rep.Width {
		tr.Warn("netvar layout is for a different pointer width",
			"layout", layout.Width, "target", rep.Width)
	}

	root, ok := lo.Find(rep.Signatures, func(s sigscan.Result) bool { return s.Name == cfg.RootSignature })
	if !ok {
		return fmt.Errorf("%w: no signature named %q", ErrRootNotResolved, cfg.RootSignature)
	}
	if !root.OK() {
		return fmt.Errorf("%w: %v", ErrRootNotResolved, root.Err)
	}
	rep.Root = root.Absolute()

	img, err := snaps.FirstOf(cfg.NetvarModules...)
	if err != nil {
		return fmt.Errorf("netvar module: %w", err)
	}
	rep.NetvarModule = img.Name
	tr.Debug("walking class list", "root", fmt.Sprintf("%#x", rep.Root), "module", img.Name)

	w := netvars.NewWalker(img, netvars.WithLayout(layout), netvars.WithTrace(tr.Sink))
	rep.Classes = slices.Collect(w.Walk(rep.Root))
	rep.Tree = w.Tree()
	rep.Index = netvars.BuildIndex(rep.Tree, rep.Classes)
	tr.Info("parsed class list", "classes", len(rep.Classes), "tables", rep.Index.Len())

	tr.Info("starting netvar resolution", "items", len(cfg.Netvars))
	rep.Netvars = rep.Index.ResolveAll(cfg.Netvars)
	for _, n := range rep.Netvars {
		if !n.OK() {
			tr.Warn("netvar failed", "netvar", n.Name, "error", n.Err)
		}
	}
	return nil
}

func failAll(queries []config.Netvar, err error) []netvars.Result {
	return lo.Map(queries, func(q config.Netvar, _ int) netvars.Result {
		return netvars.Result{Name: q.Name, Table: q.Table, Prop: q.Prop, Err: fmt.Errorf("%s: %w", q.Name, err)}
	})
}

func decodeMatches(rep *Report, snaps *memory.Snapshotter) {
	cached := snaps.Cached()
	for _, s := range rep.Signatures {
		img, ok := cached[s.Module]
		if !ok || s.Match < 0 {
			continue
		}
		code, err := img.At(uint64(s.Match), true)
		if err != nil {
			continue
		}
		rep.Code[s.Name] = disasm.DecodeN(code, img.Base+uint64(s.Match), rep.Width, disasmCount)
	}
}

func modules(snaps *memory.Snapshotter) []Module {
	mods := lo.MapToSlice(snaps.Cached(), func(_ string, img *memory.ModuleImage) Module {
		return Module{Name: img.Name, Base: img.Base, Size: img.Size, Fingerprint: img.Fingerprint()}
	})
	slices.SortFunc(mods, func(a, b Module) int { return strings.Compare(a.Name, b.Name) })
	return mods
}
