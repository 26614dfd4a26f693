package fsops

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/vdavid/fsops/pkg/fsops/events"
	"github.com/vdavid/fsops/pkg/fsops/vfs"
)

// renameProbeLimit bounds the "name (n)" search for a free destination name.
const renameProbeLimit = 10000

// conflictPlan is the per-root outcome of conflict resolution. Roots absent
// from all maps transfer under their own name.
type conflictPlan struct {
	// targetName maps a root path to its final base name in the destination.
	targetName map[string]string
	// skip marks roots left untouched. Their totals still count as done.
	skip map[string]bool
	// overwrite marks roots whose colliding destination entries are replaced.
	overwrite map[string]bool
}

func newConflictPlan() *conflictPlan {
	return &conflictPlan{
		targetName: make(map[string]string),
		skip:       make(map[string]bool),
		overwrite:  make(map[string]bool),
	}
}

// targetRel rewrites an item's relative path under the root's resolved name.
func (p *conflictPlan) targetRel(it Item) string {
	name, ok := p.targetName[it.Root]
	if !ok {
		return it.Rel
	}
	parts := strings.SplitN(filepath.ToSlash(it.Rel), "/", 2)
	if len(parts) == 1 {
		return name
	}
	return filepath.Join(name, filepath.FromSlash(parts[1]))
}

// resolveConflicts classifies every top-level root against the destination
// and produces the transfer plan. Identity is checked before anything else:
// a source that is the destination entry itself (case-only rename on a
// case-insensitive volume, or a copy over itself) never raises a conflict.
func (e *Engine) resolveConflicts(st *opState, roots []Item, dest string, cfg Config) (*conflictPlan, error) {
	plan := newConflictPlan()
	for _, root := range roots {
		if st.isCancelled() {
			return nil, cancelled()
		}

		name := filepath.Base(root.Path)
		destPath := filepath.Join(dest, name)
		plan.targetName[root.Root] = name

		destInfo, err := e.vol.Lstat(destPath)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, ioError(destPath, err)
		}

		if e.vol.SameObject(root.Path, destPath) {
			if st.kind == KindMove {
				// Case-only rename: the move itself is the resolution.
				continue
			}
			// Copying an object over itself would truncate it. Rename
			// policy duplicates it, everything else skips.
			if cfg.Policy == PolicyRename {
				unique, err := findUniqueName(e.vol, dest, name)
				if err != nil {
					return nil, err
				}
				plan.targetName[root.Root] = unique
			} else {
				plan.skip[root.Root] = true
			}
			continue
		}

		resolution, err := e.resolveOne(st, root, destPath, destInfo, cfg)
		if err != nil {
			return nil, err
		}
		switch resolution {
		case ResolutionSkip:
			plan.skip[root.Root] = true
		case ResolutionOverwrite:
			plan.overwrite[root.Root] = true
		case ResolutionRename:
			unique, err := findUniqueName(e.vol, dest, name)
			if err != nil {
				return nil, err
			}
			plan.targetName[root.Root] = unique
		}
	}
	return plan, nil
}

// resolveOne maps one collision to a resolution. PolicyStop publishes a
// Conflict event and blocks until the caller answers, the operation is
// cancelled, or the wait times out.
func (e *Engine) resolveOne(st *opState, root Item, destPath string, destInfo fs.FileInfo, cfg Config) (Resolution, error) {
	switch cfg.Policy {
	case PolicySkip:
		return ResolutionSkip, nil
	case PolicyOverwrite:
		return ResolutionOverwrite, nil
	case PolicyRename:
		return ResolutionRename, nil
	}

	if saved, ok := st.savedResolution(); ok {
		return e.checkResolution(saved.resolution)
	}

	e.bus.Publish(context.Background(), events.New(events.TypeConflict, events.Conflict{
		OperationID:    string(st.id),
		Kind:           string(st.kind),
		SourcePath:     root.Path,
		DestPath:       destPath,
		SourceSize:     root.Info.Size(),
		DestSize:       destInfo.Size(),
		SourceModified: root.Info.ModTime(),
		DestModified:   destInfo.ModTime(),
		SourceIsDir:    root.IsDir(),
		DestIsDir:      destInfo.IsDir(),
		DestIsNewer:    destInfo.ModTime().After(root.Info.ModTime()),
		SizeDifference: root.Info.Size() - destInfo.Size(),
	}))

	e.logger.Debug().
		Str("op_id", string(st.id)).
		Str("source", root.Path).
		Str("dest", destPath).
		Msg("waiting for conflict resolution")

	reply, err := st.awaitResolution(e.conflictTimeout)
	if err != nil {
		return "", err
	}
	return e.checkResolution(reply.resolution)
}

func (e *Engine) checkResolution(r Resolution) (Resolution, error) {
	switch r {
	case ResolutionSkip, ResolutionOverwrite, ResolutionRename:
		return r, nil
	case ResolutionCancel:
		return "", cancelled()
	default:
		return "", &OpError{Code: CodeIoError, Cause: fmt.Errorf("unknown resolution %q", r)}
	}
}

// findUniqueName probes "name (1)", "name (2)", ... until a free destination
// name is found. The extension stays at the end for files.
func findUniqueName(vol vfs.Volume, dir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; n <= renameProbeLimit; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if _, err := vol.Lstat(filepath.Join(dir, candidate)); errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
	}
	return "", &OpError{Code: CodeDestinationExists, Path: filepath.Join(dir, name)}
}
