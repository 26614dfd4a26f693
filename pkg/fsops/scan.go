package fsops

import (
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/vdavid/fsops/pkg/fsops/vfs"
)

// rootStats sizes one top-level source, used for skip accounting.
type rootStats struct {
	files int64
	bytes int64
}

// scanResult is the sized work list for an operation. Items are ordered
// parents before children within each root.
type scanResult struct {
	items      []Item
	filesTotal int64
	bytesTotal int64
	perRoot    map[string]rootStats
}

// roots returns the top-level items, one per source, in input order.
func (sr *scanResult) roots() []Item {
	var out []Item
	for _, it := range sr.items {
		if it.Path == it.Root {
			out = append(out, it)
		}
	}
	return out
}

// scanner walks sources without following symlinks. Directories visited are
// tracked by canonical path so a loop (or overlapping sources) is caught
// instead of recursing forever.
type scanner struct {
	vol     vfs.Volume
	st      *opState
	cfg     Config
	visited map[string]struct{}
	result  *scanResult
}

// scanSources enumerates all sources. The returned items include each source
// itself. Cancellation is polled between directory expansions.
func scanSources(vol vfs.Volume, sources []string, st *opState, cfg Config) (*scanResult, error) {
	s := &scanner{
		vol:     vol,
		st:      st,
		cfg:     cfg,
		visited: make(map[string]struct{}),
		result: &scanResult{
			perRoot: make(map[string]rootStats),
		},
	}
	for _, src := range sources {
		info, err := s.vol.Lstat(src)
		if err != nil {
			return nil, sourceNotFound(src)
		}
		root := filepath.Clean(src)
		if err := s.walk(root, filepath.Base(root), root, info); err != nil {
			return nil, err
		}
	}
	return s.result, nil
}

func (s *scanner) walk(path, rel, root string, info fs.FileInfo) error {
	if s.st != nil && s.st.isCancelled() {
		return cancelled()
	}

	item := Item{Path: path, Rel: rel, Root: root, Info: info}
	s.record(item)

	if !info.IsDir() {
		return nil
	}

	canon, err := s.vol.Canonical(path)
	if err != nil {
		return ioError(path, err)
	}
	if _, seen := s.visited[canon]; seen {
		return &OpError{Code: CodeSymlinkLoopDetected, Path: path}
	}
	s.visited[canon] = struct{}{}

	entries, err := s.vol.ReadDir(path)
	if err != nil {
		return ioError(path, err)
	}
	sortEntries(entries, s.cfg.SortColumn, s.cfg.SortOrder)

	for _, entry := range entries {
		childInfo, err := entry.Info()
		if err != nil {
			return ioError(filepath.Join(path, entry.Name()), err)
		}
		child := filepath.Join(path, entry.Name())
		if err := s.walk(child, filepath.Join(rel, entry.Name()), root, childInfo); err != nil {
			return err
		}
	}
	return nil
}

func (s *scanner) record(it Item) {
	s.result.items = append(s.result.items, it)
	stats := s.result.perRoot[it.Root]
	if !it.IsDir() {
		s.result.filesTotal++
		s.result.bytesTotal += it.Size()
		stats.files++
		stats.bytes += it.Size()
	}
	s.result.perRoot[it.Root] = stats
}

// sortEntries fixes the processing order of one directory's entries. An
// entry whose metadata cannot be read sorts by name.
func sortEntries(entries []fs.DirEntry, column SortColumn, order SortOrder) {
	less := func(a, b fs.DirEntry) bool { return a.Name() < b.Name() }
	switch column {
	case SortBySize:
		less = func(a, b fs.DirEntry) bool {
			ai, aerr := a.Info()
			bi, berr := b.Info()
			if aerr != nil || berr != nil {
				return a.Name() < b.Name()
			}
			if ai.Size() != bi.Size() {
				return ai.Size() < bi.Size()
			}
			return a.Name() < b.Name()
		}
	case SortByModified:
		less = func(a, b fs.DirEntry) bool {
			ai, aerr := a.Info()
			bi, berr := b.Info()
			if aerr != nil || berr != nil {
				return a.Name() < b.Name()
			}
			if !ai.ModTime().Equal(bi.ModTime()) {
				return ai.ModTime().Before(bi.ModTime())
			}
			return a.Name() < b.Name()
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if order == SortDesc {
			return less(entries[j], entries[i])
		}
		return less(entries[i], entries[j])
	})
}
