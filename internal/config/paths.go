package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths contains the filesystem locations used by the node-locking tools.
// Relative settings resolve against the working directory, which is where
// the client looks for its license blob.
type Paths struct {
	WorkingDir string
	StoreFile  string
	LogsDir    string
	ExportDir  string
	LedgerFile string
}

// ResolvePaths turns the configured locations into absolute paths
func (c *Config) ResolvePaths() (*Paths, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return resolvePathsFrom(wd, c), nil
}

func resolvePathsFrom(wd string, c *Config) *Paths {
	p := &Paths{
		WorkingDir: wd,
		StoreFile:  absFrom(wd, c.License.StorePath),
		LogsDir:    filepath.Dir(absFrom(wd, c.Logging.FilePath)),
		ExportDir:  absFrom(wd, c.Issuer.ExportDir),
	}
	if c.Issuer.LedgerPath != "" {
		p.LedgerFile = absFrom(wd, c.Issuer.LedgerPath)
	}
	return p
}

func absFrom(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// EnsureDirectories creates the directories that writers expect to exist
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.LogsDir, p.ExportDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
