package fsops

import (
	"errors"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/vdavid/fsops/pkg/fsops/vfs"
)

// chunkSize is the read/write unit of the fallback copy path. Cancellation
// is checked between chunks.
const chunkSize = 64 * 1024

// transferer duplicates scanned items into their targets, recording every
// created object in the transaction and feeding the progress counters.
type transferer struct {
	vol    vfs.Volume
	st     *opState
	em     *progressEmitter
	tx     *Transaction
	logger zerolog.Logger
}

// transferItem writes one item at target. Directories are created or merged,
// symlinks re-created from their target string, files duplicated. A file
// whose target already exists is replaced through a temp sibling, and a
// target that is the source itself is skipped rather than truncated.
func (tr *transferer) transferItem(it Item, target string) error {
	if tr.st.isCancelled() {
		return cancelled()
	}
	tr.st.setCurrentFile(it.Path)
	tr.em.emit(false)

	switch {
	case it.IsDir():
		return tr.transferDir(it, target)
	case it.IsSymlink():
		return tr.transferSymlink(it, target)
	default:
		return tr.transferFile(it, target)
	}
}

func (tr *transferer) transferDir(it Item, target string) error {
	if _, err := tr.vol.Lstat(target); err == nil {
		// Merging into an existing directory: nothing created, nothing to
		// roll back.
		return nil
	}
	if err := tr.vol.Mkdir(target, it.Info.Mode().Perm()); err != nil {
		return ioError(target, err)
	}
	tr.tx.RecordDir(target)
	return nil
}

func (tr *transferer) transferSymlink(it Item, target string) error {
	linkTarget, err := tr.vol.Readlink(it.Path)
	if err != nil {
		return ioError(it.Path, err)
	}
	if _, err := tr.vol.Lstat(target); err == nil {
		if err := tr.vol.Remove(target); err != nil {
			return ioError(target, err)
		}
	}
	if err := tr.vol.Symlink(linkTarget, target); err != nil {
		return ioError(target, err)
	}
	tr.tx.RecordFile(target)
	tr.st.addDone(0)
	tr.em.emit(false)
	return nil
}

func (tr *transferer) transferFile(it Item, target string) error {
	if tr.vol.SameObject(it.Path, target) {
		// Writing the file onto itself would truncate it. Count it as done
		// and move on.
		tr.st.addDone(it.Size())
		tr.em.emit(false)
		return nil
	}

	if _, err := tr.vol.Lstat(target); err == nil {
		if err := tr.overwriteFile(it, target); err != nil {
			return err
		}
	} else {
		tr.tx.RecordFile(target)
		if err := tr.copyFile(it, target); err != nil {
			return err
		}
	}

	tr.st.filesDone.Add(1)
	tr.em.emit(false)
	return nil
}

// copyFile duplicates a regular file at target. Native whole-object
// duplication is preferred when the volume offers it; any failure other than
// a cancellation abort falls back to the chunked path.
//
// counted is the file's high-water mark in the shared byte counter. The
// fallback resumes accounting from it instead of zero, so the counter never
// runs backwards even though the copy itself restarts.
func (tr *transferer) copyFile(it Item, target string) error {
	var counted int64
	if cloner, ok := tr.vol.(vfs.Cloner); ok {
		_, err := cloner.Clone(it.Path, target, func(copied int64) bool {
			if copied > counted {
				tr.st.bytesDone.Add(copied - counted)
				counted = copied
			}
			tr.em.emit(false)
			return !tr.st.isCancelled()
		})
		if err == nil {
			return nil
		}
		// The partial object goes away; the counted bytes stay.
		_ = tr.vol.Remove(target)
		if errors.Is(err, vfs.ErrCloneAborted) {
			return cancelled()
		}
		tr.logger.Debug().
			Str("source", it.Path).
			Err(err).
			Msg("native duplication failed, falling back to chunked copy")
	}
	return tr.chunkedCopy(it.Path, target, it.Info.Mode().Perm(), counted)
}

// chunkedCopy streams src to target in fixed-size chunks, checking for
// cancellation after each one. Bytes already in the shared counter (counted)
// are not added again; on cancellation the partial target is removed but the
// counters keep their high-water mark.
func (tr *transferer) chunkedCopy(src, target string, perm fs.FileMode, counted int64) error {
	in, err := tr.vol.Open(src)
	if err != nil {
		return ioError(src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := tr.vol.Create(target)
	if err != nil {
		return ioError(target, err)
	}

	var written int64
	buf := make([]byte, chunkSize)
	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				_ = out.Close()
				return ioError(target, werr)
			}
			written += int64(n)
			if written > counted {
				tr.st.bytesDone.Add(written - counted)
				counted = written
			}
			tr.em.emit(false)
		}
		if tr.st.isCancelled() {
			_ = out.Close()
			_ = tr.vol.Remove(target)
			return cancelled()
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			_ = out.Close()
			return ioError(src, rerr)
		}
	}
	if err := out.Close(); err != nil {
		return ioError(target, err)
	}
	if err := tr.vol.Chmod(target, perm); err != nil {
		return ioError(target, err)
	}
	return nil
}

// overwriteFile replaces target with a copy of the source without a window
// where target is missing or truncated: the copy lands in a temp sibling,
// target moves aside to a backup, the sibling renames into place, and the
// backup is dropped. A failed promotion restores the backup.
//
// The replaced content is not recorded in the transaction: once the backup
// is gone the overwrite cannot be undone, so rollback leaves it alone.
func (tr *transferer) overwriteFile(it Item, target string) error {
	suffix := shortHash(target)
	tmp := filepath.Join(filepath.Dir(target), filepath.Base(target)+".fsops-tmp-"+suffix)
	backup := filepath.Join(filepath.Dir(target), filepath.Base(target)+".fsops-backup-"+suffix)

	if err := tr.copyFile(it, tmp); err != nil {
		_ = tr.vol.Remove(tmp)
		return err
	}
	if err := tr.vol.Rename(target, backup); err != nil {
		_ = tr.vol.Remove(tmp)
		return ioError(target, err)
	}
	if err := tr.vol.Rename(tmp, target); err != nil {
		if rerr := tr.vol.Rename(backup, target); rerr != nil {
			tr.logger.Error().
				Str("path", target).
				Err(rerr).
				Msg("could not restore the original after a failed overwrite")
		}
		_ = tr.vol.Remove(tmp)
		return ioError(target, err)
	}
	if err := tr.vol.Remove(backup); err != nil {
		tr.logger.Warn().Str("path", backup).Err(err).Msg("could not remove overwrite backup")
	}
	return nil
}
