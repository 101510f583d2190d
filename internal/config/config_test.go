package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/rigkit/api"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(EnvGDTFPath, "")
	t.Setenv(EnvLogLevel, "")
	t.Chdir(t.TempDir())
	return home
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	home := isolate(t)

	cfg, resolved, exists, err := Load("")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, filepath.Join(home, ".config", "rigkit", "config.hcl"), resolved)

	def := Default()
	assert.Equal(t, def.UniverseSize, cfg.UniverseSize)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Empty(t, cfg.GDTFSearchPaths)

	mvrMax, gdtfMax, err := cfg.Versions()
	require.NoError(t, err)
	assert.Equal(t, api.DefaultMVRMaxVersion, mvrMax)
	assert.Equal(t, api.DefaultGDTFMaxVersion, gdtfMax)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(t.TempDir(), "rigkit.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`
universe_size     = 1024
gdtf_search_paths = ["~/gdtf", "~/gdtf"]
mvr_max_version   = "1.5"
log_level         = "DEBUG"
geometry_eager    = true
`), 0o644))

	cfg, resolved, exists, err := Load(path)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, path, resolved)
	assert.Equal(t, 1024, cfg.UniverseSize)
	assert.Equal(t, defaultWorkers, cfg.Workers, "unset keys keep defaults")
	assert.Equal(t, []string{filepath.Join(home, "gdtf")}, cfg.GDTFSearchPaths)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.GeometryEager)

	mvrMax, _, err := cfg.Versions()
	require.NoError(t, err)
	assert.Equal(t, api.Version{Major: 1, Minor: 5}, mvrMax)
}

func TestLoad_ProjectFile(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile("rigkit.hcl", []byte(`workers = 9`), 0o644))

	cfg, resolved, exists, err := Load("")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "rigkit.hcl", filepath.Base(resolved))
	assert.Equal(t, 9, cfg.Workers)
}

func TestLoad_EnvFallbacks(t *testing.T) {
	isolate(t)
	a, b := t.TempDir(), t.TempDir()
	t.Setenv(EnvGDTFPath, a+string(os.PathListSeparator)+b)
	t.Setenv(EnvLogLevel, "warn")

	cfg, _, _, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, cfg.GDTFSearchPaths)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_FileWinsOverEnv(t *testing.T) {
	isolate(t)
	t.Setenv(EnvLogLevel, "warn")
	path := filepath.Join(t.TempDir(), "c.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`log_level = "error"`), 0o644))

	cfg, _, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	isolate(t)
	_, _, exists, err := Load(filepath.Join(t.TempDir(), "absent.hcl"))
	require.Error(t, err)
	assert.False(t, exists)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"syntax":        `universe_size = `,
		"unknown key":   `colour = "red"`,
		"universe size": `universe_size = 0`,
		"workers":       `workers = -1`,
		"version":       `gdtf_max_version = "one"`,
		"log level":     `log_level = "loud"`,
		"log format":    `log_format = "xml"`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse("rigkit.hcl", []byte(src))
			assert.Error(t, err)
		})
	}
}

func TestValidate_SearchPathMustBeDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain.gdtf")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	cfg := Default()
	cfg.GDTFSearchPaths = []string{file}
	assert.ErrorContains(t, cfg.Validate(), "not a directory")

	cfg.GDTFSearchPaths = []string{filepath.Join(t.TempDir(), "later")}
	assert.NoError(t, cfg.Validate(), "missing directories are tolerated")
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.hcl")
	require.NoError(t, CreateSample(path))

	cfg, _, exists, err := Load(path)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, 512, cfg.UniverseSize)
	require.Len(t, cfg.GDTFSearchPaths, 1)

	assert.Error(t, CreateSample(path), "refuses to overwrite")
}
