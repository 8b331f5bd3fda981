// Package netvars parses the target's class list and property tables into a
// local tree and resolves cumulative property offsets from it.
package netvars

import (
	"bytes"
	"errors"
	"fmt"
	"iter"
	"strings"

	"offsetdump/internal/memory"
	"offsetdump/internal/trace"
)

const (
	DefaultMaxDepth = 64
	DefaultMaxProps = 4096

	maxNameLen = 256
)

var (
	ErrNullPointer     = errors.New("null pointer")
	ErrCycle           = errors.New("table references itself")
	ErrTooDeep         = errors.New("table nesting too deep")
	ErrImplausibleSize = errors.New("implausible property count")
)

// Walker parses the remote structures from a module snapshot. A Walker is not
// safe for concurrent use.
type Walker struct {
	img      *memory.ModuleImage
	layout   Layout
	maxDepth int
	maxProps uint32
	tr       trace.Emitter

	tree       *Tree
	memo       map[uint64]memoEntry
	inProgress map[uint64]bool
}

type memoEntry struct {
	id        TableID
	depth     int
	truncated bool
}

// WalkerOption configures a Walker.
type WalkerOption func(*Walker)

func WithLayout(l Layout) WalkerOption {
	return func(w *Walker) { w.layout = l }
}

func WithMaxDepth(n int) WalkerOption {
	return func(w *Walker) {
		if n > 0 {
			w.maxDepth = n
		}
	}
}

func WithMaxProps(n uint32) WalkerOption {
	return func(w *Walker) {
		if n > 0 {
			w.maxProps = n
		}
	}
}

func WithTrace(sink trace.Sink) WalkerOption {
	return func(w *Walker) { w.tr.Sink = sink }
}

// NewWalker returns a walker reading from img.
func NewWalker(img *memory.ModuleImage, opts ...WalkerOption) *Walker {
	w := &Walker{
		img:      img,
		layout:   DefaultLayout(),
		maxDepth: DefaultMaxDepth,
		maxProps: DefaultMaxProps,
		tr:       trace.Emitter{Sink: trace.Discard, Stage: "netvars"},
	}
	for _, opt := range opts {
		opt(w)
	}
	w.reset()
	return w
}

func (w *Walker) reset() {
	w.tree = &Tree{}
	w.memo = make(map[uint64]memoEntry)
	w.inProgress = make(map[uint64]bool)
}

// Tree returns the tables parsed by the most recent walk. It is complete
// once the sequence returned by Walk has been fully consumed.
func (w *Walker) Tree() *Tree {
	return w.tree
}

// Walk returns the class list starting at the absolute address root. Each
// iteration starts a fresh tree; stopping early leaves it partial.
//
// If the head class cannot be parsed the sequence is empty. Later classes
// with an unreadable name are skipped, and the list ends at a null next
// pointer, an unreadable record, or a class already visited.
func (w *Walker) Walk(root uint64) iter.Seq[ClassDescriptor] {
	return func(yield func(ClassDescriptor) bool) {
		w.reset()
		l := w.layout
		if err := l.Validate(); err != nil {
			w.tr.Warn("invalid layout, nothing to walk", "error", err)
			return
		}
		seen := make(map[uint64]bool)

		for cur, head := root, true; cur != 0; head = false {
			if seen[cur] {
				w.tr.Warn("class list loops", "addr", hex(cur))
				return
			}
			seen[cur] = true

			if _, err := w.img.Slice(cur, l.ClassSize, false); err != nil {
				w.tr.Warn("unreadable class record", "addr", hex(cur), "error", err)
				return
			}
			r := w.reader()
			namePtr := r.pointer(cur + l.ClassName)
			tablePtr := r.pointer(cur + l.ClassTable)
			next := r.pointer(cur + l.ClassNext)
			id := int32(r.uint32(cur + l.ClassID))
			if r.err != nil {
				w.tr.Warn("unreadable class record", "addr", hex(cur), "error", r.err)
				return
			}

			name, err := w.readName(namePtr)
			if err != nil {
				if head {
					w.tr.Warn("first class unreadable, nothing to walk", "addr", hex(cur), "error", err)
					return
				}
				w.tr.Debug("skipping class", "addr", hex(cur), "error", err)
				cur = next
				continue
			}

			cd := ClassDescriptor{ID: id, Name: name, Addr: cur, Table: NoTable}
			if tablePtr != 0 {
				tid, _, err := w.table(tablePtr, 0)
				if err != nil {
					w.tr.Debug("dropping class table", "class", name, "addr", hex(tablePtr), "error", err)
				} else {
					cd.Table = tid
				}
			}
			w.tr.Debug("class parsed", "class", name, "id", id, "addr", hex(cur))

			if !yield(cd) {
				return
			}
			cur = next
		}
	}
}

// table parses the table at addr. truncated reports that a depth or cycle
// guard cut part of its subtree; such a table is only reused for references
// at the same depth or deeper, where the cut would be no smaller.
func (w *Walker) table(addr uint64, depth int) (id TableID, truncated bool, err error) {
	if e, ok := w.memo[addr]; ok && (!e.truncated || depth >= e.depth) {
		return e.id, e.truncated, nil
	}
	if w.inProgress[addr] {
		return NoTable, true, fmt.Errorf("%s: %w", hex(addr), ErrCycle)
	}
	if depth >= w.maxDepth {
		return NoTable, true, fmt.Errorf("%s at depth %d: %w", hex(addr), depth, ErrTooDeep)
	}

	l := w.layout
	if _, err := w.img.Slice(addr, l.TableSize, false); err != nil {
		return NoTable, false, err
	}
	r := w.reader()
	propsPtr := r.pointer(addr + l.TableProps)
	count := r.uint32(addr + l.TableCount)
	namePtr := r.pointer(addr + l.TableName)
	if r.err != nil {
		return NoTable, false, fmt.Errorf("table at %s: %w", hex(addr), r.err)
	}

	name, err := w.readName(namePtr)
	if err != nil {
		return NoTable, false, fmt.Errorf("table name: %w", err)
	}
	if count > w.maxProps {
		return NoTable, false, fmt.Errorf("%s has %d properties: %w", name, count, ErrImplausibleSize)
	}

	w.inProgress[addr] = true
	defer delete(w.inProgress, addr)

	tbl := PropertyTable{Name: name, Addr: addr, Props: make([]Property, 0, count)}
	for i := range uint64(count) {
		p, cut, err := w.property(propsPtr+i*l.PropStride, depth)
		truncated = truncated || cut
		if err != nil {
			w.tr.Debug("dropping property", "table", name, "index", i, "error", err)
			continue
		}
		tbl.Props = append(tbl.Props, p)
	}

	id = w.tree.add(tbl)
	w.memo[addr] = memoEntry{id: id, depth: depth, truncated: truncated}
	return id, truncated, nil
}

func (w *Walker) property(addr uint64, depth int) (Property, bool, error) {
	l := w.layout
	if _, err := w.img.Slice(addr, l.PropSize, false); err != nil {
		return Property{}, false, err
	}
	r := w.reader()
	namePtr := r.pointer(addr + l.PropName)
	tablePtr := r.pointer(addr + l.PropTable)
	offset := int32(r.uint32(addr + l.PropOffset))
	if r.err != nil {
		return Property{}, false, fmt.Errorf("property at %s: %w", hex(addr), r.err)
	}

	name, err := w.readName(namePtr)
	if err != nil {
		return Property{}, false, fmt.Errorf("property name: %w", err)
	}

	p := Property{Name: name, Offset: offset, Table: NoTable}
	if tablePtr == 0 {
		return p, false, nil
	}
	tid, truncated, err := w.table(tablePtr, depth+1)
	if err != nil {
		w.tr.Debug("dropping nested table", "property", name, "addr", hex(tablePtr), "error", err)
		return p, truncated, nil
	}
	p.Table = tid
	return p, truncated, nil
}

// fieldReader reads record fields at absolute addresses and keeps the first
// error.
type fieldReader struct {
	img   *memory.ModuleImage
	width memory.PointerWidth
	err   error
}

func (w *Walker) reader() *fieldReader {
	return &fieldReader{img: w.img, width: w.layout.Width}
}

func (r *fieldReader) pointer(addr uint64) uint64 {
	if r.err != nil {
		return 0
	}
	v, err := r.img.ReadPointer(addr, r.width, false)
	r.err = err
	return v
}

func (r *fieldReader) uint32(addr uint64) uint32 {
	if r.err != nil {
		return 0
	}
	v, err := r.img.ReadUint32(addr, false)
	r.err = err
	return v
}

// readName reads a NUL terminated string of at most maxNameLen bytes. Longer
// strings are truncated and invalid UTF-8 is replaced.
func (w *Walker) readName(ptr uint64) (string, error) {
	if ptr == 0 {
		return "", ErrNullPointer
	}
	b, err := w.img.At(ptr, false)
	if err != nil {
		return "", err
	}
	if len(b) > maxNameLen {
		b = b[:maxNameLen]
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.ToValidUTF8(string(b), "\uFFFD"), nil
}

func hex(v uint64) string {
	return fmt.Sprintf("%#x", v)
}
