package fsops

import (
	"path/filepath"
)

// runCopy executes a copy operation: scan, space preflight, conflict
// resolution, then transfer. The transaction's rollback is bound to scope
// exit so any abnormal unwind removes the partial work, unless the
// cancellation asked to keep it.
func (e *Engine) runCopy(st *opState, sources []string, dest string, cfg Config) (warnings []string, err error) {
	em := newProgressEmitter(e.bus, st, cfg.ProgressInterval)
	em.phase(PhaseScan)

	scan, err := scanSources(e.vol, sources, st, cfg)
	if err != nil {
		return nil, err
	}
	st.setTotals(scan.filesTotal, scan.bytesTotal)
	em.emit(true)

	if err := e.checkSpace(dest, scan.bytesTotal); err != nil {
		return nil, err
	}

	plan, err := e.resolveConflicts(st, scan.roots(), dest, cfg)
	if err != nil {
		return nil, err
	}

	tx := NewTransaction(e.vol, e.logger)
	committed := false
	defer func() {
		if !committed && !st.keepPartial.Load() {
			tx.Rollback()
		}
	}()

	em.phase(PhaseTransfer)
	tr := &transferer{vol: e.vol, st: st, em: em, tx: tx, logger: e.logger}

	for _, it := range scan.items {
		if plan.skip[it.Root] {
			if it.Path == it.Root {
				// The whole root is skipped. Its items still count toward
				// completion so the totals reconcile.
				stats := scan.perRoot[it.Root]
				st.filesDone.Add(stats.files)
				st.bytesDone.Add(stats.bytes)
				em.emit(false)
			}
			continue
		}
		target := filepath.Join(dest, plan.targetRel(it))
		if err := tr.transferItem(it, target); err != nil {
			return nil, err
		}
	}

	committed = true
	tx.Commit()
	e.logger.Info().
		Str("op_id", string(st.id)).
		Int64("files", st.filesDone.Load()).
		Int64("bytes", st.bytesDone.Load()).
		Msg("copy finished")
	return nil, nil
}

// checkSpace verifies the destination filesystem can hold the payload.
func (e *Engine) checkSpace(dest string, required int64) error {
	if required <= 0 {
		return nil
	}
	info, err := e.vol.Space(dest)
	if err != nil {
		return ioError(dest, err)
	}
	if uint64(required) > info.Available {
		return &OpError{
			Code:      CodeInsufficientSpace,
			Path:      dest,
			Required:  required,
			Available: int64(info.Available),
		}
	}
	return nil
}
