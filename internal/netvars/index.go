package netvars

import (
	"errors"
	"fmt"
	"slices"

	"offsetdump/internal/config"
)

var (
	ErrNetvarNotFound = errors.New("netvar not found")
	ErrTableNotFound  = fmt.Errorf("%w: table not found", ErrNetvarNotFound)
)

// Index maps table names to parsed tables.
type Index struct {
	tree   *Tree
	tables map[string]TableID
}

// BuildIndex keys the table of every class by its name, in list order. When
// two classes share a table name the later one wins.
func BuildIndex(tree *Tree, classes []ClassDescriptor) *Index {
	ix := &Index{tree: tree, tables: make(map[string]TableID)}
	for _, c := range classes {
		tbl := tree.Table(c.Table)
		if tbl == nil {
			continue
		}
		ix.tables[tbl.Name] = c.Table
	}
	return ix
}

// Len returns the number of indexed tables.
func (ix *Index) Len() int {
	return len(ix.tables)
}

// Names returns the indexed table names, sorted.
func (ix *Index) Names() []string {
	names := make([]string, 0, len(ix.tables))
	for name := range ix.tables {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Table returns the indexed table called name.
func (ix *Index) Table(name string) (*PropertyTable, bool) {
	id, ok := ix.tables[name]
	if !ok {
		return nil, false
	}
	return ix.tree.Table(id), true
}

// Offset returns the offset of prop within table. Properties are searched
// depth first in declaration order and the first match wins; a match inside
// an embedded table adds the embedding property's offset.
func (ix *Index) Offset(table, prop string) (int32, error) {
	id, ok := ix.tables[table]
	if !ok {
		return 0, fmt.Errorf("%s: %w", table, ErrTableNotFound)
	}
	if off, ok := ix.search(id, prop); ok {
		return off, nil
	}
	return 0, fmt.Errorf("%s.%s: %w", table, prop, ErrNetvarNotFound)
}

// search terminates because a table only ever references tables stored
// before it.
func (ix *Index) search(id TableID, prop string) (int32, bool) {
	tbl := ix.tree.Table(id)
	if tbl == nil {
		return 0, false
	}
	for _, p := range tbl.Props {
		if p.Name == prop {
			return p.Offset, true
		}
		if p.Table == NoTable {
			continue
		}
		if off, ok := ix.search(p.Table, prop); ok {
			return off + p.Offset, true
		}
	}
	return 0, false
}

// Result is the outcome of one netvar query.
type Result struct {
	Name   string
	Table  string
	Prop   string
	Offset int64
	Err    error
}

func (r Result) OK() bool {
	return r.Err == nil
}

// ResolveAll answers every query in order. The query's own Offset is added
// to a successful lookup; a failed lookup does not affect the others.
func (ix *Index) ResolveAll(queries []config.Netvar) []Result {
	results := make([]Result, 0, len(queries))
	for _, q := range queries {
		res := Result{Name: q.Name, Table: q.Table, Prop: q.Prop}
		off, err := ix.Offset(q.Table, q.Prop)
		if err != nil {
			res.Err = fmt.Errorf("%s: %w", q.Name, err)
		} else {
			res.Offset = int64(off) + q.Offset
		}
		results = append(results, res)
	}
	return results
}
