// Package output serialises resolved offsets to JSON, YAML, TOML and source
// headers for C++, C#, VB.NET and Rust.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"offsetdump/internal/dump"
)

// Format names an output file extension.
type Format string

const (
	JSON    Format = "json"
	MinJSON Format = "min.json"
	YAML    Format = "yaml"
	TOML    Format = "toml"
	HPP     Format = "hpp"
	CSharp  Format = "cs"
	VBNet   Format = "vb"
	Rust    Format = "rs"
)

// AllFormats lists every format in the order files are written.
var AllFormats = []Format{JSON, MinJSON, YAML, TOML, HPP, CSharp, VBNet, Rust}

// ParseFormats validates a list of format names. An empty list means all.
func ParseFormats(names []string) ([]Format, error) {
	if len(names) == 0 {
		return slices.Clone(AllFormats), nil
	}
	var out []Format
	for _, n := range names {
		f := Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(n)), "."))
		if !slices.Contains(AllFormats, f) {
			return nil, fmt.Errorf("unknown format %q", n)
		}
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out, nil
}

// DefaultNamespace wraps the generated source headers.
const DefaultNamespace = "offsetdump"

// Results are the resolved name to value maps of one run. Netvars is nil
// when no netvar resolved and is then left out of every format.
type Results struct {
	Timestamp  time.Time
	Namespace  string
	Signatures map[string]uint64
	Netvars    map[string]int64
}

// FromReport keeps the successful items of rep.
func FromReport(rep *dump.Report, now time.Time) *Results {
	r := &Results{
		Timestamp:  now,
		Namespace:  DefaultNamespace,
		Signatures: make(map[string]uint64),
	}
	for _, s := range rep.Signatures {
		if s.OK() {
			r.Signatures[s.Name] = s.Address
		}
	}
	for _, n := range rep.Netvars {
		if !n.OK() {
			continue
		}
		if r.Netvars == nil {
			r.Netvars = make(map[string]int64)
		}
		r.Netvars[n.Name] = n.Offset
	}
	return r
}

// document is the JSON and YAML shape, with the timestamp in unix seconds.
type document struct {
	Timestamp  int64             `json:"timestamp" yaml:"timestamp" toml:"timestamp"`
	Signatures map[string]uint64 `json:"signatures" yaml:"signatures" toml:"signatures"`
	Netvars    map[string]int64  `json:"netvars,omitempty" yaml:"netvars,omitempty" toml:"netvars,omitempty"`
}

func (r *Results) document() document {
	sigs := r.Signatures
	if sigs == nil {
		sigs = map[string]uint64{}
	}
	return document{Timestamp: r.Timestamp.Unix(), Signatures: sigs, Netvars: r.Netvars}
}

// Encode writes r in format f.
func (r *Results) Encode(w io.Writer, f Format) error {
	switch f {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r.document())
	case MinJSON:
		return json.NewEncoder(w).Encode(r.document())
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r.document()); err != nil {
			return err
		}
		return enc.Close()
	case TOML:
		return toml.NewEncoder(w).Encode(r.document())
	case HPP, CSharp, VBNet, Rust:
		_, err := io.WriteString(w, r.source(f))
		return err
	}
	return fmt.Errorf("unknown format %q", f)
}

// Bytes returns r encoded in format f.
func (r *Results) Bytes(f Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Encode(&buf, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFiles writes <base>.<format> for every format and returns the paths
// written.
func (r *Results) WriteFiles(base string, formats []Format) ([]string, error) {
	var written []string
	for _, f := range formats {
		data, err := r.Bytes(f)
		if err != nil {
			return written, fmt.Errorf("encode %s: %w", f, err)
		}
		path := base + "." + string(f)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

// sortedKeys returns the keys of m in ascending order.
func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}
