// Package config loads and validates the invoice tool configuration.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath substitutes environment variables, then resolves a leading ~ to
// the home directory and cleans the result. Substituting first lets a
// variable such as INVOICE_DATA=~/invoices point below the home directory.
func ExpandPath(path string) string {
	path = os.ExpandEnv(path)
	if path == "" {
		return ""
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = home + path[1:]
		}
	}
	return filepath.Clean(path)
}

// expandPaths applies ExpandPath to every file or directory the config names.
func (c *Config) expandPaths() {
	for _, p := range []*string{
		&c.Paths.RawDir,
		&c.Paths.OutputDir,
		&c.Paths.Reference,
		&c.Archive.Path,
		&c.Logging.File,
	} {
		*p = ExpandPath(*p)
	}
}
