package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/rdfsearch/internal/config"
)

func TestConfigInit_CreatesProjectConfig(t *testing.T) {
	// Given
	dir := isolate(t)

	// When
	out, err := run(t, "--dir", dir, "config", "init")

	// Then: the written file loads back as the defaults
	require.NoError(t, err)
	assert.Contains(t, out, "Created project configuration")
	path := filepath.Join(dir, ".rdfsearch.yaml")
	require.FileExists(t, path)

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	defaults := config.NewConfig()
	assert.Equal(t, defaults.Index.Path, cfg.Index.Path)
	assert.Equal(t, defaults.Index.WKTFields, cfg.Index.WKTFields)
	assert.Equal(t, defaults.Index.TypeBacktrace, cfg.Index.TypeBacktrace)
	assert.Equal(t, defaults.Store.Path, cfg.Store.Path)
}

func TestConfigInit_KeepsExistingWithoutForce(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, ".rdfsearch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("index:\n  max_documents: 7\n"), 0644))

	out, err := run(t, "--dir", dir, "config", "init")

	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "index:\n  max_documents: 7\n", string(data))
}

func TestConfigInit_ForceBacksUp(t *testing.T) {
	// Given: an existing project config
	dir := isolate(t)
	path := filepath.Join(dir, ".rdfsearch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("index:\n  max_documents: 7\n"), 0644))

	// When
	out, err := run(t, "--dir", dir, "config", "init", "--force")

	// Then: the old file survives as a backup and the new one has the defaults
	require.NoError(t, err)
	assert.Contains(t, out, "Backup:")
	backups, err := config.ListBackups(path)
	require.NoError(t, err)
	require.Len(t, backups, 1)

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Index.MaxDocuments)
}

func TestConfigShow(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"yaml", nil, "max_documents: 42"},
		{"json", []string{"--json"}, `"max_documents": 42`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			require.NoError(t, os.WriteFile(filepath.Join(dir, ".rdfsearch.yaml"),
				[]byte("index:\n  max_documents: 42\n"), 0644))

			out, err := run(t, append([]string{"--dir", dir, "config", "show"}, tt.args...)...)

			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestConfigShow_EnvOverrides(t *testing.T) {
	dir := isolate(t)
	t.Setenv("RDFSEARCH_MAX_DOCUMENTS", "9")

	out, err := run(t, "--dir", dir, "config", "show", "--json")

	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, 9, cfg.Index.MaxDocuments)
}

func TestConfigPath(t *testing.T) {
	dir := isolate(t)

	out, err := run(t, "--dir", dir, "config", "path")

	require.NoError(t, err)
	assert.Contains(t, out, config.GetUserConfigPath())
	assert.Contains(t, out, filepath.Join(dir, ".rdfsearch.yaml"))
}
