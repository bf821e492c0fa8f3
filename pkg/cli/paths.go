package cli

import (
	"os"
	"path/filepath"
)

// Paths describes the retrieva directory layout under the user's home.
type Paths struct {
	// HomeDir is the user's home directory
	HomeDir string
}

// NewPaths creates a new Paths instance for the current user.
func NewPaths() (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Paths{HomeDir: home}, nil
}

// BaseDir returns the base directory (~/.retrieva)
func (p *Paths) BaseDir() string {
	return filepath.Join(p.HomeDir, DefaultBaseDir)
}

// ConfigFile returns the config file path (~/.retrieva/config.yaml)
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.BaseDir(), DefaultConfigFile)
}

// DataLayout is the on-disk layout of a data directory.
type DataLayout struct {
	Root string
}

// MetadataDir is the badger directory of the session table.
func (d DataLayout) MetadataDir() string {
	return filepath.Join(d.Root, "metadata")
}

// MetadataFile is the bbolt file of the session table.
func (d DataLayout) MetadataFile() string {
	return filepath.Join(d.Root, "metadata.db")
}

// SessionsDir holds one directory of snapshot files per session when
// storage is local.
func (d DataLayout) SessionsDir() string {
	return filepath.Join(d.Root, "sessions")
}

// UploadsDir holds uploads while the server extracts them.
func (d DataLayout) UploadsDir() string {
	return filepath.Join(d.Root, "uploads")
}

// Ensure creates the directories of the layout.
func (d DataLayout) Ensure() error {
	for _, dir := range []string{d.Root, d.SessionsDir(), d.UploadsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
