package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCmd_RequiresFile(t *testing.T) {
	isolate(t)

	_, err := run(t, "load")

	require.Error(t, err)
}

func TestLoadCmd_ReportsStatements(t *testing.T) {
	// Given
	dir := isolate(t)
	path := filepath.Join(dir, "places.yaml")
	require.NoError(t, os.WriteFile(path, []byte(places), 0644))

	// When
	out, err := run(t, "--dir", dir, "load", path)

	// Then: the default data directory holds the store and the index
	require.NoError(t, err)
	assert.Contains(t, out, "5 statements")
	assert.FileExists(t, filepath.Join(dir, ".rdfsearch", "store.db"))
	assert.DirExists(t, filepath.Join(dir, ".rdfsearch", "index"))
}

func TestLoadCmd_MalformedDataset(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("statements:\n  - {subject: ex:a}\n"), 0644))

	_, err := run(t, "--dir", dir, "load", path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "statement 1")
}

func TestLoadCmd_Clear(t *testing.T) {
	// Given: places loaded
	dir := isolate(t)
	loadPlaces(t, dir)
	other := filepath.Join(dir, "other.yaml")
	require.NoError(t, os.WriteFile(other, []byte("statements:\n  - {subject: urn:x, predicate: urn:name, literal: zebra}\n"), 0644))

	// When: another file is loaded with --clear
	_, err := run(t, "--dir", dir, "load", "--clear", other)
	require.NoError(t, err)

	// Then: only the new statement is left
	out, err := run(t, "--dir", dir, "stats", "--json")
	require.NoError(t, err)
	var st StatsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 1, st.Statements)
}
