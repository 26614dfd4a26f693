package fsops

import (
	"path/filepath"
	"sort"

	"github.com/gammazero/toposort"
)

// runDelete executes a delete operation: files go first in scan order, then
// directories children before parents. Deletes are not transactional; a
// failure or cancellation leaves the remaining items in place.
func (e *Engine) runDelete(st *opState, sources []string, cfg Config) (warnings []string, err error) {
	em := newProgressEmitter(e.bus, st, cfg.ProgressInterval)
	em.phase(PhaseScan)

	scan, err := scanSources(e.vol, sources, st, cfg)
	if err != nil {
		return nil, err
	}
	st.setTotals(scan.filesTotal, scan.bytesTotal)
	em.emit(true)

	em.phase(PhaseDelete)

	var dirs []Item
	for _, it := range scan.items {
		if it.IsDir() {
			dirs = append(dirs, it)
			continue
		}
		if st.isCancelled() {
			return nil, cancelled()
		}
		st.setCurrentFile(it.Path)
		if err := e.vol.Remove(it.Path); err != nil {
			return nil, ioError(it.Path, err)
		}
		st.addDone(it.Size())
		em.emit(false)
	}

	ordered, err := orderDirsForDelete(dirs)
	if err != nil {
		return nil, err
	}
	for _, path := range ordered {
		if st.isCancelled() {
			return nil, cancelled()
		}
		st.setCurrentFile(path)
		if err := e.vol.Remove(path); err != nil {
			return nil, ioError(path, err)
		}
		em.emit(false)
	}

	e.logger.Info().
		Str("op_id", string(st.id)).
		Int64("files", st.filesDone.Load()).
		Int("dirs", len(ordered)).
		Msg("delete finished")
	return nil, nil
}

// orderDirsForDelete returns directory paths children-first. The dependency
// graph has an edge from each parent to its child, the topological order
// puts parents first, and walking it backwards empties every directory
// before its parent regardless of how the scan interleaved multiple roots.
func orderDirsForDelete(dirs []Item) ([]string, error) {
	if len(dirs) == 0 {
		return nil, nil
	}

	inSet := make(map[string]bool, len(dirs))
	for _, d := range dirs {
		inSet[d.Path] = true
	}

	edges := make([]toposort.Edge, 0, len(dirs))
	hasEdge := make(map[string]bool, len(dirs))
	for _, d := range dirs {
		parent := filepath.Dir(d.Path)
		if inSet[parent] {
			edges = append(edges, toposort.Edge{parent, d.Path})
			hasEdge[parent] = true
			hasEdge[d.Path] = true
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, &OpError{Code: CodeIoError, Cause: err}
	}

	ordered := make([]string, 0, len(dirs))
	for i := len(sorted) - 1; i >= 0; i-- {
		if path, ok := sorted[i].(string); ok {
			ordered = append(ordered, path)
		}
	}

	// Directories with no parent/child relation in the set carry no edges
	// and stay out of the sort. Deepest first keeps them safe too.
	var isolated []string
	for _, d := range dirs {
		if !hasEdge[d.Path] {
			isolated = append(isolated, d.Path)
		}
	}
	sort.Slice(isolated, func(i, j int) bool {
		return len(isolated[i]) > len(isolated[j])
	})
	return append(ordered, isolated...), nil
}
