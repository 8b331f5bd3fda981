// Package config loads the signature and netvar definitions a dump runs with.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"offsetdump/internal/pattern"
)

const (
	DefaultExecutable    = "csgo.exe"
	DefaultFilename      = "csgo"
	DefaultRootSignature = "dwGetAllClasses"
)

// DefaultNetvarModules are tried in order when locating the module that holds
// the class descriptor list.
var DefaultNetvarModules = []string{"client.dll", "client_panorama.dll"}

// Signature locates one address inside a module.
type Signature struct {
	Name    string  `json:"name" yaml:"name" jsonschema:"title=Name,description=Name of the resolved address"`
	Pattern string  `json:"pattern" yaml:"pattern" jsonschema:"title=Pattern,description=Hex bytes separated by spaces; ? or ?? for wildcards"`
	Module  string  `json:"module" yaml:"module" jsonschema:"title=Module,description=Display name of the module to scan"`
	Offsets []int64 `json:"offsets,omitempty" yaml:"offsets,omitempty" jsonschema:"description=Offsets dereferenced in order from the match"`
	Extra   int64   `json:"extra,omitempty" yaml:"extra,omitempty" jsonschema:"description=Constant added to the result"`

	// Relative keeps the result module relative instead of absolute.
	Relative bool `json:"relative,omitempty" yaml:"relative,omitempty" jsonschema:"description=Keep the result relative to the module base"`

	RIPRelative bool  `json:"rip_relative,omitempty" yaml:"rip_relative,omitempty" jsonschema:"description=Resolve a 32-bit displacement at the position"`
	RIPOffset   int64 `json:"rip_offset,omitempty" yaml:"rip_offset,omitempty" jsonschema:"description=Added to the position before the displacement is read"`
}

// Netvar is a (table, property) query against the target's property metadata.
type Netvar struct {
	Name   string `json:"name" yaml:"name" jsonschema:"title=Name,description=Name of the resolved offset"`
	Table  string `json:"table" yaml:"table" jsonschema:"title=Table,description=Property table name"`
	Prop   string `json:"prop" yaml:"prop" jsonschema:"title=Property,description=Property name searched depth first"`
	Offset int64  `json:"offset,omitempty" yaml:"offset,omitempty" jsonschema:"description=Added to the resolved offset"`
}

// Config is the whole input of a dump.
type Config struct {
	Executable string `json:"executable" yaml:"executable" jsonschema:"title=Executable,description=Target process executable name"`
	Filename   string `json:"filename,omitempty" yaml:"filename,omitempty" jsonschema:"title=Filename,description=Base name of the output files"`
	Bitness    string `json:"bitness,omitempty" yaml:"bitness,omitempty" jsonschema:"enum=x86,enum=x64,description=Overrides the detected pointer width"`

	RootSignature string   `json:"root_signature,omitempty" yaml:"root_signature,omitempty" jsonschema:"description=Signature whose address is the first class descriptor"`
	NetvarModules []string `json:"netvar_modules,omitempty" yaml:"netvar_modules,omitempty" jsonschema:"description=Modules searched for the class descriptor list"`

	Signatures []Signature `json:"signatures" yaml:"signatures"`
	Netvars    []Netvar    `json:"netvars" yaml:"netvars"`
}

// Default returns the configuration used when no file can be loaded.
func Default() *Config {
	c := &Config{Executable: DefaultExecutable}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Executable == "" {
		c.Executable = DefaultExecutable
	}
	if c.Filename == "" {
		c.Filename = DefaultFilename
	}
	if c.RootSignature == "" {
		c.RootSignature = DefaultRootSignature
	}
	if len(c.NetvarModules) == 0 {
		c.NetvarModules = append([]string(nil), DefaultNetvarModules...)
	}
}

// Load reads a JSON or YAML config depending on the file extension, fills in
// defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse yaml config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse json config %s: %w", path, err)
		}
	}

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &c, nil
}

var ErrInvalid = errors.New("invalid config")

// Validate rejects records the scanner cannot run with. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	seen := make(map[string]bool)
	for i, s := range c.Signatures {
		switch {
		case s.Name == "":
			errs = append(errs, fmt.Errorf("signature #%d: missing name", i))
			continue
		case seen[s.Name]:
			errs = append(errs, fmt.Errorf("signature %s: duplicate name", s.Name))
		}
		seen[s.Name] = true
		if s.Module == "" {
			errs = append(errs, fmt.Errorf("signature %s: missing module", s.Name))
		}
		if _, err := pattern.Compile(s.Pattern); err != nil {
			errs = append(errs, fmt.Errorf("signature %s: %w", s.Name, err))
		}
	}

	seen = make(map[string]bool)
	for i, n := range c.Netvars {
		switch {
		case n.Name == "":
			errs = append(errs, fmt.Errorf("netvar #%d: missing name", i))
			continue
		case seen[n.Name]:
			errs = append(errs, fmt.Errorf("netvar %s: duplicate name", n.Name))
		}
		seen[n.Name] = true
		if n.Table == "" || n.Prop == "" {
			errs = append(errs, fmt.Errorf("netvar %s: table and prop are required", n.Name))
		}
	}

	if c.Bitness != "" {
		switch strings.ToLower(c.Bitness) {
		case "x86", "x64":
		default:
			errs = append(errs, fmt.Errorf("bitness %q: want x86 or x64", c.Bitness))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Signature returns the named signature.
func (c *Config) Signature(name string) (Signature, bool) {
	for _, s := range c.Signatures {
		if s.Name == name {
			return s, true
		}
	}
	return Signature{}, false
}
