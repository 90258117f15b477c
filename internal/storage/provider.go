// Package storage manages the local photo directory that events point at.
package storage

import "io"

// Provider is the interface for managed photo file operations. Names are
// plain file names; nested paths are rejected.
type Provider interface {
	// Root returns the absolute photo directory.
	Root() string
	// Path returns the absolute path a photo with this name is stored at.
	Path(name string) (string, error)
	// Exists reports whether a photo with this name is stored.
	Exists(name string) bool
	// Put atomically stores r under name, replacing any existing photo, and
	// returns the absolute path.
	Put(name string, r io.Reader) (string, error)
	// Import copies the file at src into the directory under name.
	Import(name, src string) (string, error)
	// List returns the stored photo names.
	List() ([]string, error)
}
