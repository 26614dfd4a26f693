package vfs

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrCloneAborted is returned by Clone when the progress callback asks to
// stop. The partial destination is left in place for the caller to remove.
var ErrCloneAborted = errors.New("clone aborted")

// cloneChunkSize is the buffer size for Local's whole-file duplication.
const cloneChunkSize = 1 << 20

// Local implements Volume over the host filesystem.
type Local struct {
	name string
}

// NewLocal creates a Local volume. The name is used for logging only.
func NewLocal(name string) *Local {
	if name == "" {
		name = "local"
	}
	return &Local{name: name}
}

func (l *Local) Name() string { return l.name }

func (l *Local) Lstat(path string) (fs.FileInfo, error) { return os.Lstat(path) }

func (l *Local) Stat(path string) (fs.FileInfo, error) { return os.Stat(path) }

func (l *Local) Open(path string) (io.ReadCloser, error) { return os.Open(path) }

func (l *Local) Create(path string) (io.WriteCloser, error) { return os.Create(path) }

func (l *Local) ReadDir(path string) ([]fs.DirEntry, error) { return os.ReadDir(path) }

func (l *Local) Mkdir(path string, perm fs.FileMode) error { return os.Mkdir(path, perm) }

func (l *Local) MkdirAll(path string, perm fs.FileMode) error { return os.MkdirAll(path, perm) }

func (l *Local) Remove(path string) error { return os.Remove(path) }

func (l *Local) RemoveAll(path string) error { return os.RemoveAll(path) }

func (l *Local) Rename(from, to string) error { return os.Rename(from, to) }

func (l *Local) Symlink(target, link string) error { return os.Symlink(target, link) }

func (l *Local) Readlink(path string) (string, error) { return os.Readlink(path) }

func (l *Local) Chmod(path string, mode fs.FileMode) error { return os.Chmod(path, mode) }

func (l *Local) Canonical(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", err
	}
	return filepath.Abs(resolved)
}

// Clone duplicates a regular file preserving its permission bits. It reports
// progress per chunk and honors an abort from the callback.
func (l *Local) Clone(src, dst string, progress func(copied int64) bool) (int64, error) {
	info, err := os.Lstat(src)
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, &fs.PathError{Op: "clone", Path: src, Err: fs.ErrInvalid}
	}

	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return 0, err
	}

	var copied int64
	buf := make([]byte, cloneChunkSize)
	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				_ = out.Close()
				return copied, werr
			}
			copied += int64(n)
			if progress != nil && !progress(copied) {
				_ = out.Close()
				return copied, ErrCloneAborted
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			_ = out.Close()
			return copied, rerr
		}
	}
	if err := out.Close(); err != nil {
		return copied, err
	}
	return copied, os.Chmod(dst, info.Mode().Perm())
}
