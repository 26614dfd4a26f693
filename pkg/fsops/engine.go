package fsops

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vdavid/fsops/pkg/fsops/events"
	"github.com/vdavid/fsops/pkg/fsops/vfs"
)

// Filesystem name and path limits enforced before an operation starts.
const (
	maxNameBytes = 255
	maxPathBytes = 4096
)

// Engine runs write operations against a volume and tracks them in a
// registry until they reach a terminal event. One Engine serves any number
// of concurrent operations.
type Engine struct {
	vol             vfs.Volume
	bus             *events.Bus
	logger          zerolog.Logger
	idgen           IDGenerator
	conflictTimeout time.Duration

	mu  sync.RWMutex
	ops map[OperationID]*opState
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. The event bus inherits it.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithConflictTimeout bounds how long a PolicyStop conflict waits for an
// answer before the operation cancels itself.
func WithConflictTimeout(d time.Duration) Option {
	return func(e *Engine) { e.conflictTimeout = d }
}

// WithIDGenerator overrides how operation IDs are produced.
func WithIDGenerator(gen IDGenerator) Option {
	return func(e *Engine) { e.idgen = gen }
}

// New creates an Engine over the given volume.
func New(vol vfs.Volume, opts ...Option) *Engine {
	e := &Engine{
		vol:             vol,
		logger:          DefaultLogger(),
		idgen:           HashIDGenerator,
		conflictTimeout: DefaultConflictTimeout,
		ops:             make(map[OperationID]*opState),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.bus = events.NewBus(e.logger)
	return e
}

// Bus exposes the event stream for subscription.
func (e *Engine) Bus() *events.Bus { return e.bus }

// Copy starts copying sources into the dest directory. Validation runs
// synchronously; the returned ID identifies the spawned operation.
func (e *Engine) Copy(sources []string, dest string, cfg Config) (OperationID, error) {
	cfg = cfg.withDefaults()
	if err := e.validateTransfer(KindCopy, sources, dest); err != nil {
		return "", err
	}
	st := e.register(KindCopy, sources[0])
	e.spawn(st, func() ([]string, error) {
		return e.runCopy(st, sources, dest, cfg)
	})
	return st.id, nil
}

// Move starts moving sources into the dest directory.
func (e *Engine) Move(sources []string, dest string, cfg Config) (OperationID, error) {
	cfg = cfg.withDefaults()
	if err := e.validateTransfer(KindMove, sources, dest); err != nil {
		return "", err
	}
	st := e.register(KindMove, sources[0])
	e.spawn(st, func() ([]string, error) {
		return e.runMove(st, sources, dest, cfg)
	})
	return st.id, nil
}

// Delete starts deleting sources.
func (e *Engine) Delete(sources []string, cfg Config) (OperationID, error) {
	cfg = cfg.withDefaults()
	if err := e.validateDelete(sources); err != nil {
		return "", err
	}
	st := e.register(KindDelete, sources[0])
	e.spawn(st, func() ([]string, error) {
		return e.runDelete(st, sources, cfg)
	})
	return st.id, nil
}

// Cancel asks one operation to stop. With rollback true, work created so
// far is removed; with false, partial output stays. Cancelling an already
// cancelled operation is a no-op; an unknown ID returns ErrNotFound.
func (e *Engine) Cancel(id OperationID, rollback bool) error {
	e.mu.RLock()
	st, ok := e.ops[id]
	e.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	st.cancel(rollback)
	e.logger.Info().Str("op_id", string(id)).Bool("rollback", rollback).Msg("cancel requested")
	return nil
}

// CancelAll cancels every registered operation and returns how many were
// signalled.
func (e *Engine) CancelAll(rollback bool) int {
	e.mu.RLock()
	states := make([]*opState, 0, len(e.ops))
	for _, st := range e.ops {
		states = append(states, st)
	}
	e.mu.RUnlock()

	for _, st := range states {
		st.cancel(rollback)
	}
	if len(states) > 0 {
		e.logger.Info().Int("count", len(states)).Msg("cancel-all requested")
	}
	return len(states)
}

// Resolve answers a pending conflict prompt. With applyToAll, the answer
// also covers every later conflict of the operation.
func (e *Engine) Resolve(id OperationID, r Resolution, applyToAll bool) error {
	switch r {
	case ResolutionCancel, ResolutionSkip, ResolutionOverwrite, ResolutionRename:
	default:
		return fmt.Errorf("unknown resolution %q", r)
	}
	e.mu.RLock()
	st, ok := e.ops[id]
	e.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	st.offerResolution(r, applyToAll)
	return nil
}

// Status returns a snapshot of one operation, or ErrNotFound once it has
// reached a terminal event and left the registry.
func (e *Engine) Status(id OperationID) (Status, error) {
	e.mu.RLock()
	st, ok := e.ops[id]
	e.mu.RUnlock()
	if !ok {
		return Status{}, ErrNotFound
	}
	return st.snapshot(), nil
}

// List returns snapshots of all registered operations.
func (e *Engine) List() []Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Status, 0, len(e.ops))
	for _, st := range e.ops {
		out = append(out, st.snapshot())
	}
	return out
}

// DryRun sizes an operation and samples its conflicts without writing
// anything. The sample is bounded by cfg.MaxConflicts.
func (e *Engine) DryRun(kind Kind, sources []string, dest string, cfg Config) (*DryRunReport, error) {
	cfg = cfg.withDefaults()
	if kind == KindDelete {
		if err := e.validateDelete(sources); err != nil {
			return nil, err
		}
	} else {
		if err := e.validateTransfer(kind, sources, dest); err != nil {
			return nil, err
		}
	}

	st := newOpState("dry-run", kind)
	scan, err := scanSources(e.vol, sources, st, cfg)
	if err != nil {
		return nil, err
	}

	report := &DryRunReport{
		Kind:       kind,
		FilesTotal: scan.filesTotal,
		BytesTotal: scan.bytesTotal,
	}
	if kind == KindDelete {
		return report, nil
	}

	for _, root := range scan.roots() {
		destPath := filepath.Join(dest, filepath.Base(root.Path))
		destInfo, err := e.vol.Lstat(destPath)
		if err != nil {
			continue
		}
		if kind == KindMove && e.vol.SameObject(root.Path, destPath) {
			continue
		}
		if len(report.Conflicts) >= cfg.MaxConflicts {
			report.ConflictsTruncated = true
			break
		}
		report.Conflicts = append(report.Conflicts, ConflictPreview{
			SourcePath: root.Path,
			DestPath:   destPath,
			SourceSize: root.Info.Size(),
			DestSize:   destInfo.Size(),
			IsDir:      root.IsDir(),
		})
	}
	return report, nil
}

// register issues a fresh ID and places the operation in the registry.
func (e *Engine) register(kind Kind, seed string) *opState {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.idgen(kind, seed)
	for _, taken := e.ops[id]; taken; _, taken = e.ops[id] {
		id = e.idgen(kind, seed)
	}
	st := newOpState(id, kind)
	e.ops[id] = st
	e.logger.Info().Str("op_id", string(id)).Str("kind", string(kind)).Msg("operation registered")
	return st
}

func (e *Engine) unregister(id OperationID) {
	e.mu.Lock()
	delete(e.ops, id)
	e.mu.Unlock()
}

// spawn runs one operation on its own goroutine. A panic in the worker is
// recovered, surfaced as a failure event, and the operation is retired like
// any other terminal outcome.
func (e *Engine) spawn(st *opState, run func() ([]string, error)) {
	go func() {
		var warnings []string
		var err error
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error().
					Str("op_id", string(st.id)).
					Interface("panic", r).
					Msg("operation worker panicked")
				err = &OpError{Code: CodeIoError, Cause: fmt.Errorf("internal error: %v", r)}
			}
			e.finish(st, warnings, err)
		}()
		warnings, err = run()
	}()
}

// finish publishes the terminal event and retires the operation.
func (e *Engine) finish(st *opState, warnings []string, err error) {
	ctx := context.Background()
	switch {
	case err == nil:
		s := st.snapshot()
		e.bus.Publish(ctx, events.New(events.TypeComplete, events.Complete{
			OperationID: string(st.id),
			Kind:        string(st.kind),
			FilesDone:   s.FilesDone,
			BytesDone:   s.BytesDone,
			Duration:    time.Since(st.startedAt),
			Warnings:    warnings,
		}))
	case IsCode(err, CodeCancelled):
		// A conflict-wait timeout lands here without the flag set.
		st.cancelled.Store(true)
		e.bus.Publish(ctx, events.New(events.TypeCancelled, events.Cancelled{
			OperationID: string(st.id),
			Kind:        string(st.kind),
			FilesDone:   st.filesDone.Load(),
			RolledBack:  !st.keepPartial.Load(),
		}))
	default:
		var opErr *OpError
		if !errors.As(err, &opErr) {
			opErr = &OpError{Code: CodeIoError, Cause: err}
		}
		e.logger.Error().
			Str("op_id", string(st.id)).
			Str("code", string(opErr.Code)).
			Err(err).
			Msg("operation failed")
		e.bus.Publish(ctx, events.New(events.TypeFailed, events.Failed{
			OperationID: string(st.id),
			Kind:        string(st.kind),
			Code:        string(opErr.Code),
			Message:     opErr.Message(),
			Path:        opErr.Path,
		}))
	}
	e.unregister(st.id)
}

// validateTransfer rejects impossible copy/move setups before a worker is
// spawned: missing sources, a non-directory destination, oversized names,
// a destination inside a source, and moves into the current directory.
func (e *Engine) validateTransfer(kind Kind, sources []string, dest string) error {
	if len(sources) == 0 {
		return &OpError{Code: CodeIoError, Cause: errors.New("no sources given")}
	}
	destInfo, err := e.vol.Stat(dest)
	if err != nil {
		return ioError(dest, err)
	}
	if !destInfo.IsDir() {
		return &OpError{Code: CodeIoError, Path: dest, Cause: errors.New("destination is not a directory")}
	}
	canonDest, err := e.vol.Canonical(dest)
	if err != nil {
		return ioError(dest, err)
	}

	for _, src := range sources {
		info, err := e.vol.Lstat(src)
		if err != nil {
			return sourceNotFound(src)
		}
		name := filepath.Base(filepath.Clean(src))
		if len(name) > maxNameBytes {
			return &OpError{Code: CodeIoError, Path: src, Cause: errors.New("name too long")}
		}
		if len(filepath.Join(dest, name)) > maxPathBytes {
			return &OpError{Code: CodeIoError, Path: dest, Cause: errors.New("destination path too long")}
		}

		canonParent, err := e.vol.Canonical(filepath.Dir(filepath.Clean(src)))
		if err != nil {
			return ioError(src, err)
		}
		if kind == KindMove && canonParent == canonDest {
			return &OpError{Code: CodeSameLocation, Path: src, Dest: dest}
		}
		if info.IsDir() {
			canonSrc := filepath.Join(canonParent, name)
			if canonDest == canonSrc || strings.HasPrefix(canonDest, canonSrc+string(filepath.Separator)) {
				return &OpError{Code: CodeDestinationInsideSource, Path: src, Dest: dest}
			}
		}
	}
	return nil
}

func (e *Engine) validateDelete(sources []string) error {
	if len(sources) == 0 {
		return &OpError{Code: CodeIoError, Cause: errors.New("no sources given")}
	}
	for _, src := range sources {
		if _, err := e.vol.Lstat(src); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return sourceNotFound(src)
			}
			return ioError(src, err)
		}
	}
	return nil
}
