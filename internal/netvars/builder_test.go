package netvars

import (
	"encoding/binary"

	"offsetdump/internal/memory"
)

const testBase = 0x20000000

// image is a little 32-bit address space used to lay out class lists,
// tables and properties the way the target does.
type image struct {
	data []byte
}

type prop struct {
	name   string
	offset int32
	table  uint64
}

func newImage() *image {
	// Keep the first bytes unused so no record sits at the base address.
	return &image{data: make([]byte, 0x10)}
}

func (m *image) alloc(n int) uint64 {
	addr := testBase + uint64(len(m.data))
	m.data = append(m.data, make([]byte, n)...)
	return addr
}

func (m *image) put32(addr uint64, v uint32) {
	binary.LittleEndian.PutUint32(m.data[addr-testBase:], v)
}

func (m *image) str(s string) uint64 {
	addr := m.alloc(len(s) + 1)
	copy(m.data[addr-testBase:], s)
	return addr
}

func (m *image) rawStr(b []byte) uint64 {
	addr := m.alloc(len(b))
	copy(m.data[addr-testBase:], b)
	return addr
}

// table allocates a table header and its property array.
func (m *image) table(name string, props ...prop) uint64 {
	hdr := m.alloc(0x10)
	m.fillTable(hdr, name, props...)
	return hdr
}

// fillTable writes a table at an already allocated header, which lets tests
// build self references.
func (m *image) fillTable(hdr uint64, name string, props ...prop) {
	arr := m.alloc(len(props) * 0x3C)
	for i, p := range props {
		rec := arr + uint64(i)*0x3C
		if p.name != "" {
			m.put32(rec, uint32(m.str(p.name)))
		}
		m.put32(rec+0x28, uint32(p.table))
		m.put32(rec+0x2C, uint32(p.offset))
	}
	m.put32(hdr, uint32(arr))
	m.put32(hdr+0x04, uint32(len(props)))
	m.put32(hdr+0x0C, uint32(m.str(name)))
}

// class allocates a class record. An empty name leaves the name pointer null.
func (m *image) class(id int32, name string, table uint64) uint64 {
	rec := m.alloc(0x18)
	if name != "" {
		m.put32(rec+0x08, uint32(m.str(name)))
	}
	m.put32(rec+0x0C, uint32(table))
	m.put32(rec+0x14, uint32(id))
	return rec
}

// link chains the class records in order.
func (m *image) link(classes ...uint64) {
	for i := 0; i+1 < len(classes); i++ {
		m.put32(classes[i]+0x10, uint32(classes[i+1]))
	}
}

func (m *image) snapshot() *memory.ModuleImage {
	return memory.NewModuleImage("client.dll", testBase, m.data)
}
