// Package pattern compiles hex signatures such as "8B 0D ?? ?? ?? ?? 85 C9"
// and searches byte buffers for them.
package pattern

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidPattern = errors.New("invalid pattern")

// Matcher is a compiled signature. A position with mask false matches any byte.
type Matcher struct {
	text   string
	bytes  []byte
	mask   []bool
	anchor int // index of the first literal byte, -1 if all wildcards
}

// Compile parses whitespace separated tokens: two hex digits for a literal
// byte, "?" or "??" for a wildcard.
func Compile(text string) (*Matcher, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPattern)
	}

	m := &Matcher{
		text:   text,
		bytes:  make([]byte, len(fields)),
		mask:   make([]bool, len(fields)),
		anchor: -1,
	}
	for i, tok := range fields {
		if tok == "?" || tok == "??" {
			continue
		}
		if len(tok) != 2 {
			return nil, fmt.Errorf("%w: token %d %q is not a byte", ErrInvalidPattern, i, tok)
		}
		v, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: token %d %q is not hex", ErrInvalidPattern, i, tok)
		}
		m.bytes[i] = byte(v)
		m.mask[i] = true
		if m.anchor < 0 {
			m.anchor = i
		}
	}
	return m, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(text string) *Matcher {
	m, err := Compile(text)
	if err != nil {
		panic(err)
	}
	return m
}

// Len returns the number of bytes the pattern covers.
func (m *Matcher) Len() int {
	return len(m.bytes)
}

func (m *Matcher) String() string {
	return m.text
}

// matchAt reports whether the pattern matches buf at i. The caller guarantees
// i+len(pattern) <= len(buf).
func (m *Matcher) matchAt(buf []byte, i int) bool {
	for j, b := range m.bytes {
		if m.mask[j] && buf[i+j] != b {
			return false
		}
	}
	return true
}

// next returns the lowest match position >= from, or -1.
func (m *Matcher) next(buf []byte, from int) int {
	last := len(buf) - len(m.bytes)
	if m.anchor < 0 {
		if from <= last {
			return from
		}
		return -1
	}

	lit := m.bytes[m.anchor]
	for i := from; i <= last; {
		idx := bytes.IndexByte(buf[i+m.anchor:last+m.anchor+1], lit)
		if idx < 0 {
			return -1
		}
		i += idx
		if m.matchAt(buf, i) {
			return i
		}
		i++
	}
	return -1
}

// Search returns the offset of the leftmost match in buf.
func (m *Matcher) Search(buf []byte) (int, bool) {
	i := m.next(buf, 0)
	return i, i >= 0
}

// Count returns how many (possibly overlapping) matches buf contains. It is a
// diagnostic for signatures that are not unique; Search still reports only the
// leftmost one.
func (m *Matcher) Count(buf []byte) int {
	n := 0
	for i := m.next(buf, 0); i >= 0; i = m.next(buf, i+1) {
		n++
	}
	return n
}
