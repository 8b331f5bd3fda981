package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jsonConfig = `{
  "executable": "csgo.exe",
  "filename": "csgo",
  "signatures": [
    {
      "name": "dwGetAllClasses",
      "pattern": "A1 ? ? ? ? C3 CC CC CC CC CC CC CC CC CC CC A1 ? ? ? ? B9",
      "module": "client.dll",
      "offsets": [1, 0],
      "relative": true
    },
    {
      "name": "dwClientState",
      "pattern": "A1 ? ? ? ? 33 D2 6A 00 6A 00 33 C9 89 B0",
      "module": "engine.dll",
      "offsets": [1],
      "extra": -4,
      "rip_relative": true,
      "rip_offset": 3
    }
  ],
  "netvars": [
    {"name": "m_iHealth", "table": "DT_BasePlayer", "prop": "m_iHealth"},
    {"name": "m_vecViewOffset", "table": "DT_CSPlayer", "prop": "m_vecViewOffset[0]", "offset": 4}
  ]
}`

const yamlConfig = `
executable: hl2.exe
netvar_modules: [client.dll]
signatures:
  - name: dwLocalPlayer
    pattern: "8D 34 85 ?? ?? ?? ?? 89 15"
    module: client.dll
    offsets: [3]
    extra: 4
netvars:
  - name: m_fFlags
    table: DT_BasePlayer
    prop: m_fFlags
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_JSON(t *testing.T) {
	c, err := Load(writeFile(t, "config.json", jsonConfig))
	require.NoError(t, err)

	assert.Equal(t, "csgo.exe", c.Executable)
	require.Len(t, c.Signatures, 2)
	assert.Equal(t, []int64{1, 0}, c.Signatures[0].Offsets)
	assert.True(t, c.Signatures[0].Relative)
	assert.True(t, c.Signatures[1].RIPRelative)
	assert.Equal(t, int64(3), c.Signatures[1].RIPOffset)
	assert.Equal(t, int64(-4), c.Signatures[1].Extra)
	require.Len(t, c.Netvars, 2)
	assert.Equal(t, int64(4), c.Netvars[1].Offset)

	// Defaults fill what the file leaves out.
	assert.Equal(t, DefaultRootSignature, c.RootSignature)
	assert.Equal(t, DefaultNetvarModules, c.NetvarModules)
}

func TestLoad_YAML(t *testing.T) {
	c, err := Load(writeFile(t, "config.yaml", yamlConfig))
	require.NoError(t, err)

	assert.Equal(t, "hl2.exe", c.Executable)
	assert.Equal(t, DefaultFilename, c.Filename)
	assert.Equal(t, []string{"client.dll"}, c.NetvarModules)
	require.Len(t, c.Signatures, 1)
	assert.Equal(t, "8D 34 85 ?? ?? ?? ?? 89 15", c.Signatures[0].Pattern)
	assert.Equal(t, int64(4), c.Signatures[0].Extra)

	sig, ok := c.Signature("dwLocalPlayer")
	assert.True(t, ok)
	assert.Equal(t, "client.dll", sig.Module)
	_, ok = c.Signature("missing")
	assert.False(t, ok)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "broken.json", "{"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad pattern", mutate: func(c *Config) { c.Signatures[0].Pattern = "XYZ" }, wantErr: true},
		{name: "missing module", mutate: func(c *Config) { c.Signatures[0].Module = "" }, wantErr: true},
		{name: "duplicate signature", mutate: func(c *Config) { c.Signatures = append(c.Signatures, c.Signatures[0]) }, wantErr: true},
		{name: "netvar without prop", mutate: func(c *Config) { c.Netvars[0].Prop = "" }, wantErr: true},
		{name: "unnamed netvar", mutate: func(c *Config) { c.Netvars[0].Name = "" }, wantErr: true},
		{name: "bad bitness", mutate: func(c *Config) { c.Bitness = "arm64" }, wantErr: true},
		{name: "bitness case insensitive", mutate: func(c *Config) { c.Bitness = "X64" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			c.Signatures = []Signature{{Name: "a", Pattern: "AA ??", Module: "m.dll"}}
			c.Netvars = []Netvar{{Name: "n", Table: "DT_X", Prop: "m_x"}}
			tt.mutate(c)

			err := c.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, DefaultExecutable, c.Executable)
	assert.Equal(t, DefaultFilename, c.Filename)
	assert.NoError(t, c.Validate())

	// Mutating a default must not leak into the package level list.
	c.NetvarModules[0] = "changed.dll"
	assert.Equal(t, "client.dll", DefaultNetvarModules[0])
}
