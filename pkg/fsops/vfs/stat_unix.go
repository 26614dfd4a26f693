//go:build unix

package vfs

import (
	"os"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"
)

// SameObject compares device and inode numbers. A missing path or a stat
// backend without inode info yields false.
func (l *Local) SameObject(a, b string) bool {
	ai, err := os.Lstat(a)
	if err != nil {
		return false
	}
	bi, err := os.Lstat(b)
	if err != nil {
		return false
	}
	as, ok := ai.Sys().(*syscall.Stat_t)
	if !ok {
		return false
	}
	bs, ok := bi.Sys().(*syscall.Stat_t)
	if !ok {
		return false
	}
	return as.Dev == bs.Dev && as.Ino == bs.Ino
}

// SameVolume compares device numbers. When b does not exist yet, its nearest
// existing ancestor is used instead.
func (l *Local) SameVolume(a, b string) (bool, error) {
	ad, err := deviceOf(a)
	if err != nil {
		return false, err
	}
	bd, err := deviceOf(nearestExisting(b))
	if err != nil {
		return false, err
	}
	return ad == bd, nil
}

func (l *Local) Space(path string) (SpaceInfo, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return SpaceInfo{}, err
	}
	bsize := uint64(st.Bsize)
	return SpaceInfo{
		Total:     st.Blocks * bsize,
		Available: st.Bavail * bsize,
	}, nil
}

func deviceOf(path string) (uint64, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return 0, err
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, &os.PathError{Op: "stat", Path: path, Err: syscall.ENOTSUP}
	}
	return uint64(st.Dev), nil
}

func nearestExisting(path string) string {
	for {
		if _, err := os.Lstat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}
