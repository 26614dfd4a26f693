// Package vfs abstracts the storage a write operation runs against.
//
// A Volume exposes the path-level primitives the engine needs: lstat-based
// inspection, directory listing, create/remove/rename, symlink handling,
// identity and volume comparison, and free-space queries. Paths are absolute
// within the volume's namespace. Implementations must not follow symlinks
// unless the method says so.
package vfs

import (
	"io"
	"io/fs"
)

// SpaceInfo reports capacity for the filesystem holding a path.
type SpaceInfo struct {
	// Total is the size of the filesystem in bytes.
	Total uint64
	// Available is the number of bytes usable by an unprivileged caller.
	Available uint64
}

// Volume is the storage backend contract for write operations.
type Volume interface {
	// Name identifies the volume in logs and events.
	Name() string

	// Lstat returns info for the path itself, never following a symlink.
	Lstat(path string) (fs.FileInfo, error)

	// Stat returns info for the path, following symlinks.
	Stat(path string) (fs.FileInfo, error)

	// Open opens the file at path for reading.
	Open(path string) (io.ReadCloser, error)

	// Create opens the file at path for writing, truncating it if present.
	Create(path string) (io.WriteCloser, error)

	// ReadDir lists the entries of a directory.
	ReadDir(path string) ([]fs.DirEntry, error)

	Mkdir(path string, perm fs.FileMode) error
	MkdirAll(path string, perm fs.FileMode) error
	Remove(path string) error
	RemoveAll(path string) error

	// Rename moves the object at from to to. It fails when from and to sit
	// on different filesystems.
	Rename(from, to string) error

	Symlink(target, link string) error
	Readlink(path string) (string, error)
	Chmod(path string, mode fs.FileMode) error

	// SameObject reports whether a and b refer to the same underlying
	// object (same device and inode on POSIX volumes). Either path missing
	// means false.
	SameObject(a, b string) bool

	// SameVolume reports whether a and b live on the same filesystem, so a
	// Rename between them can succeed.
	SameVolume(a, b string) (bool, error)

	// Space reports capacity for the filesystem holding path.
	Space(path string) (SpaceInfo, error)

	// Canonical resolves path to its canonical absolute form.
	Canonical(path string) (string, error)
}

// Cloner is an optional Volume capability: whole-object duplication that
// preserves permissions, using copy-on-write where the platform offers it.
//
// The progress callback receives the running byte count and returns false to
// abort; on abort Clone returns ErrCloneAborted and the caller removes the
// partial destination.
type Cloner interface {
	Clone(src, dst string, progress func(copied int64) bool) (int64, error)
}
