package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupFile_MissingFile(t *testing.T) {
	path, err := BackupFile(filepath.Join(t.TempDir(), "config.yaml"))

	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestBackupFile_CopiesContent(t *testing.T) {
	// Given
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "version: 1\n")

	// When
	backup, err := BackupFile(path)

	// Then
	require.NoError(t, err)
	data, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, "version: 1\n", string(data))
}

func TestBackupFile_PrunesOldBackups(t *testing.T) {
	// Given: more stale backups than are kept
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "version: 1\n")
	for _, stamp := range []string{"20200101-000000.000", "20200102-000000.000", "20200103-000000.000", "20200104-000000.000"} {
		writeFile(t, path+BackupSuffix+"."+stamp, "old\n")
	}

	// When
	backup, err := BackupFile(path)
	require.NoError(t, err)

	// Then: the new backup and the two newest stale ones survive
	backups, err := ListBackups(path)
	require.NoError(t, err)
	require.Len(t, backups, MaxBackups)
	assert.Equal(t, backup, backups[0])
	assert.Equal(t, path+BackupSuffix+".20200104-000000.000", backups[1])
	assert.Equal(t, path+BackupSuffix+".20200103-000000.000", backups[2])
}

func TestListBackups_MissingDirectory(t *testing.T) {
	backups, err := ListBackups(filepath.Join(t.TempDir(), "nope", "config.yaml"))

	require.NoError(t, err)
	assert.Empty(t, backups)
}
