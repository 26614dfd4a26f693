package fsops

import (
	"errors"
	"io/fs"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vdavid/fsops/pkg/fsops/vfs"
)

// Transaction records every object an operation creates so a failure can
// undo the partial work. Files are removed before directories, each in
// reverse creation order, so children go before their parents.
//
// Callers bind Rollback to scope exit with defer and call Commit on the
// success path; a committed or already rolled back transaction is inert.
type Transaction struct {
	vol    vfs.Volume
	logger zerolog.Logger

	mu     sync.Mutex
	files  []string
	dirs   []string
	closed bool
}

func NewTransaction(vol vfs.Volume, logger zerolog.Logger) *Transaction {
	return &Transaction{vol: vol, logger: logger}
}

// RecordFile registers a created file or symlink for rollback.
func (t *Transaction) RecordFile(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.files = append(t.files, path)
}

// RecordDir registers a created directory for rollback.
func (t *Transaction) RecordDir(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.dirs = append(t.dirs, path)
}

// Commit discards the rollback records, making the created objects
// permanent. Later Rollback calls do nothing.
func (t *Transaction) Commit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.files = nil
	t.dirs = nil
}

// Rollback removes recorded objects best-effort and reports anything it
// could not remove. Objects already gone are not errors. Safe to call more
// than once; only the first call does work.
func (t *Transaction) Rollback() []error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	files := t.files
	dirs := t.dirs
	t.files = nil
	t.dirs = nil
	t.mu.Unlock()

	var errs []error
	for i := len(files) - 1; i >= 0; i-- {
		if err := t.vol.Remove(files[i]); err != nil && !errors.Is(err, fs.ErrNotExist) {
			t.logger.Warn().Str("path", files[i]).Err(err).Msg("rollback could not remove file")
			errs = append(errs, err)
		}
	}
	for i := len(dirs) - 1; i >= 0; i-- {
		if err := t.vol.Remove(dirs[i]); err != nil && !errors.Is(err, fs.ErrNotExist) {
			t.logger.Warn().Str("path", dirs[i]).Err(err).Msg("rollback could not remove directory")
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		t.logger.Warn().Int("failures", len(errs)).Msg("rollback finished with failures")
	}
	return errs
}

// Size returns the number of recorded objects. Used for logging.
func (t *Transaction) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.files) + len(t.dirs)
}
