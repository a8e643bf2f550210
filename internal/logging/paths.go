package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.rdfsearch/logs, or a directory under the temp dir
// when there is no home directory.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".rdfsearch", "logs")
	}
	return filepath.Join(home, ".rdfsearch", "logs")
}

// DefaultLogPath returns the log file used by the CLI.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "rdfsearch.log")
}
