//go:build !unix

package vfs

import (
	"os"
	"strings"
)

// SameObject falls back to comparing cleaned absolute paths case-insensitively
// on platforms without inode identity.
func (l *Local) SameObject(a, b string) bool {
	ca, err := l.Canonical(a)
	if err != nil {
		return false
	}
	cb, err := l.Canonical(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(ca, cb)
}

// SameVolume compares volume name prefixes (drive letters on Windows).
func (l *Local) SameVolume(a, b string) (bool, error) {
	if _, err := os.Lstat(a); err != nil {
		return false, err
	}
	return strings.EqualFold(volumePrefix(a), volumePrefix(b)), nil
}

// Space reports an effectively unlimited volume where no syscall is wired.
// Space preflight checks pass and real write failures surface at copy time.
func (l *Local) Space(path string) (SpaceInfo, error) {
	const unbounded = 1 << 62
	return SpaceInfo{Total: unbounded, Available: unbounded}, nil
}

func volumePrefix(path string) string {
	if len(path) >= 2 && path[1] == ':' {
		return path[:2]
	}
	return ""
}
