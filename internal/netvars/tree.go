package netvars

// TableID indexes a PropertyTable inside a Tree.
type TableID int32

// NoTable marks a class or property without a (readable) table.
const NoTable TableID = -1

// ClassDescriptor is one entry of the remote class list.
type ClassDescriptor struct {
	ID    int32
	Name  string
	Addr  uint64
	Table TableID
}

// PropertyTable is a parsed table. Addr is the remote address it was read from.
type PropertyTable struct {
	Name  string
	Addr  uint64
	Props []Property
}

// Property is one table entry. Table is NoTable unless the property embeds
// another table.
type Property struct {
	Name   string
	Offset int32
	Table  TableID
}

// Tree owns every table parsed during one walk. Nested tables are always
// stored before the tables that reference them.
type Tree struct {
	Tables []PropertyTable
}

// Table returns the table with the given id, or nil.
func (t *Tree) Table(id TableID) *PropertyTable {
	if t == nil || id < 0 || int(id) >= len(t.Tables) {
		return nil
	}
	return &t.Tables[id]
}

// Len returns the number of parsed tables.
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Tables)
}

func (t *Tree) add(tbl PropertyTable) TableID {
	t.Tables = append(t.Tables, tbl)
	return TableID(len(t.Tables) - 1)
}
