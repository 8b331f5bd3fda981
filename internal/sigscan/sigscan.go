// Package sigscan resolves configured signatures to addresses inside module
// snapshots: pattern search, pointer dereference chain, RIP-relative
// displacement and final normalisation.
package sigscan

import (
	"errors"
	"fmt"

	"offsetdump/internal/config"
	"offsetdump/internal/memory"
	"offsetdump/internal/pattern"
	"offsetdump/internal/trace"
)

var (
	ErrModuleNotFound    = errors.New("module not found")
	ErrPatternNotFound   = errors.New("pattern not found")
	ErrOffsetOutOfBounds = errors.New("offset out of module bounds")
	ErrRIPRelativeFailed = errors.New("rip_relative failed")
)

// ripFieldSize is the width of the displacement operand a RIP-relative
// address is computed from.
const ripFieldSize = 4

// Result is the outcome for one signature. Address is only meaningful when
// Err is nil.
type Result struct {
	Name    string
	Module  string
	Address uint64

	// Relative mirrors the signature flag: Address excludes Base.
	Relative bool
	Base     uint64

	// Match is the module relative position of the pattern match, or -1.
	Match int
	// Matches counts every occurrence of the pattern when counting is
	// enabled, 0 otherwise.
	Matches int

	Err error
}

// OK reports whether the signature resolved.
func (r Result) OK() bool {
	return r.Err == nil
}

// Absolute returns the address with the module base applied.
func (r Result) Absolute() uint64 {
	if r.Relative {
		return r.Address + r.Base
	}
	return r.Address
}

// Resolver resolves signatures against one process.
type Resolver struct {
	snaps      *memory.Snapshotter
	width      memory.PointerWidth
	countMatch bool
	tr         trace.Emitter
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPointerWidth overrides the pointer width reported by the process.
func WithPointerWidth(w memory.PointerWidth) Option {
	return func(r *Resolver) {
		if w.Valid() {
			r.width = w
		}
	}
}

// WithMatchCount makes the resolver count every occurrence of each pattern
// and warn about signatures that are not unique.
func WithMatchCount(enabled bool) Option {
	return func(r *Resolver) { r.countMatch = enabled }
}

// WithTrace sends resolver events to sink.
func WithTrace(sink trace.Sink) Option {
	return func(r *Resolver) { r.tr.Sink = sink }
}

// NewResolver returns a Resolver taking snapshots through snaps.
func NewResolver(snaps *memory.Snapshotter, opts ...Option) *Resolver {
	r := &Resolver{
		snaps: snaps,
		width: snaps.Process().PointerWidth(),
		tr:    trace.Emitter{Sink: trace.Discard, Stage: "sigscan"},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PointerWidth returns the width used for dereferencing.
func (r *Resolver) PointerWidth() memory.PointerWidth {
	return r.width
}

// ResolveAll resolves every signature in order. A failing signature is
// recorded in its Result and does not stop the others.
func (r *Resolver) ResolveAll(sigs []config.Signature) []Result {
	r.tr.Info("starting signature scanning", "items", len(sigs))

	results := make([]Result, 0, len(sigs))
	ok := 0
	for _, sig := range sigs {
		res := r.Resolve(sig)
		if res.OK() {
			ok++
		} else {
			r.tr.Warn("sigscan failed", "signature", sig.Name, "error", res.Err)
		}
		results = append(results, res)
	}

	r.tr.Info("finished signature scanning", "successful", ok, "items", len(sigs))
	return results
}

// Resolve runs the pipeline for a single signature.
func (r *Resolver) Resolve(sig config.Signature) Result {
	res := Result{Name: sig.Name, Module: sig.Module, Relative: sig.Relative, Match: -1}

	r.tr.Debug("begin scan", "signature", sig.Name, "bitness", r.width, "module", sig.Module)

	img, err := r.snaps.Acquire(sig.Module)
	if err != nil {
		res.Err = fmt.Errorf("%s: %w: %v", sig.Name, ErrModuleNotFound, err)
		return res
	}
	res.Base = img.Base
	r.tr.Debug("module found", "module", img.Name, "base", hex(img.Base), "size", hex(img.Size))

	m, err := pattern.Compile(sig.Pattern)
	if err != nil {
		res.Err = fmt.Errorf("%s: %w", sig.Name, err)
		return res
	}

	pos, found := m.Search(img.Bytes())
	if !found {
		res.Err = fmt.Errorf("%s: %w", sig.Name, ErrPatternNotFound)
		return res
	}
	res.Match = pos
	r.tr.Debug("pattern found", "signature", sig.Name, "at", hex(uint64(pos)))

	if r.countMatch {
		res.Matches = m.Count(img.Bytes())
		if res.Matches > 1 {
			r.tr.Warn("pattern is not unique, using leftmost match", "signature", sig.Name, "matches", res.Matches)
		}
	}

	addr, err := r.follow(sig, img, uint64(pos))
	if err != nil {
		res.Err = fmt.Errorf("%s: %w", sig.Name, err)
		return res
	}
	res.Address = addr
	return res
}

// follow applies the offset chain, RIP-relative step, extra and
// normalisation to a module relative position.
func (r *Resolver) follow(sig config.Signature, img *memory.ModuleImage, cur uint64) (uint64, error) {
	for i, o := range sig.Offsets {
		pos := cur + uint64(o)
		raw, err := img.ReadPointer(pos, r.width, true)
		if err != nil {
			r.tr.Debug("offset out of bounds", "index", i, "ptr", hex(pos), "module_size", hex(img.Size))
			return 0, fmt.Errorf("offset #%d (%+d): %w", i, o, ErrOffsetOutOfBounds)
		}
		cur = raw - img.Base
		r.tr.Debug("offset applied", "index", i, "raw", hex(raw), "relative", hex(cur))
	}

	if sig.RIPRelative {
		at := cur + uint64(sig.RIPOffset)
		disp, err := img.ReadInt32(at, true)
		if err != nil {
			return 0, fmt.Errorf("%w: displacement at %#x: %v", ErrRIPRelativeFailed, at, err)
		}
		cur = at + uint64(int64(disp)) + ripFieldSize
		r.tr.Debug("rip relative applied", "at", hex(at), "displacement", disp, "result", hex(cur))
	}

	cur += uint64(sig.Extra)

	if !sig.Relative {
		cur += img.Base
	}
	return cur, nil
}

func hex(v uint64) string {
	return fmt.Sprintf("%#x", v)
}
