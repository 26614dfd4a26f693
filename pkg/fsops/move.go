package fsops

import (
	"fmt"
	"path/filepath"
)

// runMove executes a move operation. Roots on the destination's volume move
// by rename; everything else goes through the staging protocol: copy into a
// hidden staging directory inside the destination, promote each staged root
// into its final name, delete the sources, then drop the staging directory.
//
// A root whose rename fails unexpectedly falls back to the staging protocol
// on its own; the rest of the batch is not affected. Before any promotion
// the sources are untouched, so a pre-commit failure only has staging to
// clean up. Once a root is promoted it stays: source deletion failures
// after that point are warnings, not errors.
func (e *Engine) runMove(st *opState, sources []string, dest string, cfg Config) (warnings []string, err error) {
	em := newProgressEmitter(e.bus, st, cfg.ProgressInterval)
	em.phase(PhaseScan)

	scan, err := scanSources(e.vol, sources, st, cfg)
	if err != nil {
		return nil, err
	}
	st.setTotals(scan.filesTotal, scan.bytesTotal)
	em.emit(true)

	plan, err := e.resolveConflicts(st, scan.roots(), dest, cfg)
	if err != nil {
		return nil, err
	}

	roots := scan.roots()
	itemsByRoot := make(map[string][]Item, len(roots))
	for _, it := range scan.items {
		itemsByRoot[it.Root] = append(itemsByRoot[it.Root], it)
	}

	// Only payload that crosses volumes needs destination space.
	cross := make(map[string]bool, len(roots))
	var crossBytes int64
	for _, root := range roots {
		if plan.skip[root.Root] {
			continue
		}
		same, err := e.vol.SameVolume(root.Path, dest)
		if err != nil {
			return nil, ioError(root.Path, err)
		}
		if !same {
			cross[root.Root] = true
			crossBytes += scan.perRoot[root.Root].bytes
		}
	}
	if err := e.checkSpace(dest, crossBytes); err != nil {
		return nil, err
	}

	stagingDir := filepath.Join(dest, ".fsops-staging-"+string(st.id))
	tx := NewTransaction(e.vol, e.logger)
	committed := false
	stagingMade := false
	defer func() {
		if !committed && !st.keepPartial.Load() {
			tx.Rollback()
		}
		if stagingMade {
			_ = e.vol.RemoveAll(stagingDir)
		}
	}()

	em.phase(PhaseTransfer)
	tr := &transferer{vol: e.vol, st: st, em: em, tx: tx, logger: e.logger}

	var staged []Item
	for _, root := range roots {
		if st.isCancelled() {
			return nil, cancelled()
		}
		if plan.skip[root.Root] {
			stats := scan.perRoot[root.Root]
			st.filesDone.Add(stats.files)
			st.bytesDone.Add(stats.bytes)
			em.emit(false)
			continue
		}

		target := filepath.Join(dest, plan.targetName[root.Root])
		if !cross[root.Root] {
			renameErr := e.renameRoot(root, target, plan.overwrite[root.Root])
			if renameErr == nil {
				stats := scan.perRoot[root.Root]
				st.filesDone.Add(stats.files)
				st.bytesDone.Add(stats.bytes)
				em.emit(false)
				continue
			}
			e.logger.Warn().
				Str("op_id", string(st.id)).
				Str("source", root.Path).
				Err(renameErr).
				Msg("rename failed, falling back to staged move")
			cross[root.Root] = true
		}

		if !stagingMade {
			if err := e.vol.Mkdir(stagingDir, 0o755); err != nil {
				return nil, ioError(stagingDir, err)
			}
			stagingMade = true
		}
		for _, it := range itemsByRoot[root.Root] {
			if err := tr.transferItem(it, filepath.Join(stagingDir, plan.targetRel(it))); err != nil {
				return nil, err
			}
		}
		staged = append(staged, root)
	}

	// Promote staged roots. A failure here stops the batch: promoted roots
	// stay at the destination with their sources intact, unpromoted staging
	// is cleaned up by the deferred rollback.
	var promoted []Item
	if len(staged) > 0 {
		em.phase(PhaseCommit)
		for _, root := range staged {
			name := plan.targetName[root.Root]
			if err := e.promoteStaged(filepath.Join(stagingDir, name), filepath.Join(dest, name), plan.overwrite[root.Root]); err != nil {
				return nil, err
			}
			promoted = append(promoted, root)
		}
	}

	// The destination is authoritative from here on. Source trees that
	// refuse to delete are reported, not fatal.
	if len(promoted) > 0 {
		em.phase(PhaseDelete)
		for _, root := range promoted {
			warnings = append(warnings, e.deleteSourceTree(itemsByRoot[root.Root])...)
		}
	}

	em.phase(PhaseCleanup)
	if stagingMade {
		if err := e.vol.RemoveAll(stagingDir); err != nil {
			warnings = append(warnings, fmt.Sprintf("staging cleanup failed: %v", err))
		}
		stagingMade = false
	}

	committed = true
	tx.Commit()
	e.logger.Info().
		Str("op_id", string(st.id)).
		Int("renamed_or_staged", len(roots)).
		Int("warnings", len(warnings)).
		Msg("move finished")
	return warnings, nil
}

// renameRoot moves one root by rename, handling the overwrite backup dance
// when the target name is taken.
func (e *Engine) renameRoot(root Item, target string, overwrite bool) error {
	if _, err := e.vol.Lstat(target); err != nil {
		return e.vol.Rename(root.Path, target)
	}
	if e.vol.SameObject(root.Path, target) {
		// Case-only rename on a case-insensitive volume.
		return e.vol.Rename(root.Path, target)
	}
	if !overwrite {
		return &OpError{Code: CodeDestinationExists, Path: target}
	}
	return e.replaceByRename(root.Path, target)
}

// promoteStaged renames one fully staged root into its final destination
// name.
func (e *Engine) promoteStaged(stagedPath, target string, overwrite bool) error {
	if _, err := e.vol.Lstat(target); err != nil {
		if err := e.vol.Rename(stagedPath, target); err != nil {
			return ioError(target, err)
		}
		return nil
	}
	if !overwrite {
		return &OpError{Code: CodeDestinationExists, Path: target}
	}
	return e.replaceByRename(stagedPath, target)
}

// replaceByRename swaps source into target's name: target steps aside to a
// backup, source renames in, the backup goes away. A failed swap restores
// the backup so target is never lost.
func (e *Engine) replaceByRename(source, target string) error {
	backup := target + ".fsops-backup-" + shortHash(target)
	if err := e.vol.Rename(target, backup); err != nil {
		return ioError(target, err)
	}
	if err := e.vol.Rename(source, target); err != nil {
		if rerr := e.vol.Rename(backup, target); rerr != nil {
			e.logger.Error().
				Str("path", target).
				Err(rerr).
				Msg("could not restore the original after a failed replace")
		}
		return ioError(target, err)
	}
	if err := e.vol.RemoveAll(backup); err != nil {
		e.logger.Warn().Str("path", backup).Err(err).Msg("could not remove replace backup")
	}
	return nil
}

// deleteSourceTree removes a moved root's source, children before parents.
// Failures come back as warning strings.
func (e *Engine) deleteSourceTree(items []Item) []string {
	var warnings []string
	for i := len(items) - 1; i >= 0; i-- {
		if err := e.vol.Remove(items[i].Path); err != nil {
			warnings = append(warnings, fmt.Sprintf("source not removed: %s: %v", items[i].Path, err))
		}
	}
	return warnings
}
