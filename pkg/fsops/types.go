// Package fsops implements transactional write operations for file managers:
// copy, move, and delete against a storage volume, with conflict resolution,
// throttled progress events, cancellation, and rollback of partial work.
package fsops

import (
	"io/fs"
	"time"
)

// OperationID identifies a running or completed operation.
type OperationID string

// Kind is the operation type.
type Kind string

const (
	KindCopy   Kind = "copy"
	KindMove   Kind = "move"
	KindDelete Kind = "delete"
)

// Phase describes what an operation is currently doing.
type Phase string

const (
	// PhaseScan enumerates sources and sizes the work.
	PhaseScan Phase = "scan"
	// PhaseTransfer duplicates data into the destination (or staging area).
	PhaseTransfer Phase = "transfer"
	// PhaseCommit promotes staged items into their final names.
	PhaseCommit Phase = "commit"
	// PhaseDelete removes source items (move) or targets (delete).
	PhaseDelete Phase = "delete"
	// PhaseCleanup removes staging scaffolding.
	PhaseCleanup Phase = "cleanup"
)

// ConflictPolicy selects how destination collisions are handled.
type ConflictPolicy string

const (
	// PolicyStop pauses the operation and asks the caller per conflict.
	PolicyStop ConflictPolicy = "stop"
	// PolicySkip leaves the destination untouched and skips the source item.
	PolicySkip ConflictPolicy = "skip"
	// PolicyOverwrite replaces the destination item.
	PolicyOverwrite ConflictPolicy = "overwrite"
	// PolicyRename writes the source under a non-colliding name.
	PolicyRename ConflictPolicy = "rename"
)

// Resolution is an interactive answer to a single conflict under PolicyStop.
type Resolution string

const (
	ResolutionCancel    Resolution = "cancel"
	ResolutionSkip      Resolution = "skip"
	ResolutionOverwrite Resolution = "overwrite"
	ResolutionRename    Resolution = "rename"
)

// SortColumn orders items within each scanned directory.
type SortColumn string

const (
	SortByName     SortColumn = "name"
	SortBySize     SortColumn = "size"
	SortByModified SortColumn = "modified"
)

// SortOrder is ascending or descending.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Default tuning values.
const (
	DefaultProgressInterval = 200 * time.Millisecond
	DefaultConflictTimeout  = 30 * time.Second
	DefaultMaxConflicts     = 100
)

// Config tunes a single operation.
type Config struct {
	// Policy is the conflict policy. Defaults to PolicyStop.
	Policy ConflictPolicy
	// ProgressInterval throttles progress events. Defaults to 200ms; values
	// are clamped to the 200ms to 500ms window.
	ProgressInterval time.Duration
	// MaxConflicts bounds the conflict sample in dry-run previews.
	// Defaults to 100.
	MaxConflicts int
	// SortColumn and SortOrder fix the processing order of directory
	// entries. Defaults to name ascending.
	SortColumn SortColumn
	SortOrder  SortOrder
}

// withDefaults fills zero values and clamps the progress interval.
func (c Config) withDefaults() Config {
	if c.Policy == "" {
		c.Policy = PolicyStop
	}
	if c.ProgressInterval == 0 {
		c.ProgressInterval = DefaultProgressInterval
	}
	if c.ProgressInterval < 200*time.Millisecond {
		c.ProgressInterval = 200 * time.Millisecond
	}
	if c.ProgressInterval > 500*time.Millisecond {
		c.ProgressInterval = 500 * time.Millisecond
	}
	if c.MaxConflicts <= 0 {
		c.MaxConflicts = DefaultMaxConflicts
	}
	if c.SortColumn == "" {
		c.SortColumn = SortByName
	}
	if c.SortOrder == "" {
		c.SortOrder = SortAsc
	}
	return c
}

// Item is one scanned filesystem object.
type Item struct {
	// Path is the absolute path on the volume.
	Path string
	// Rel is the path relative to the parent of the scanned root, so it
	// starts with the root's base name.
	Rel string
	// Root is the top-level source this item belongs to.
	Root string
	// Info is the lstat result; symlinks are never followed.
	Info fs.FileInfo
}

// IsDir reports whether the item is a directory (not a symlink to one).
func (it Item) IsDir() bool { return it.Info.IsDir() }

// IsSymlink reports whether the item is a symlink.
func (it Item) IsSymlink() bool { return it.Info.Mode()&fs.ModeSymlink != 0 }

// Size returns the byte size counted toward progress. Directories and
// symlinks count as zero.
func (it Item) Size() int64 {
	if it.Info.Mode().IsRegular() {
		return it.Info.Size()
	}
	return 0
}

// Status is a point-in-time snapshot of a running operation.
type Status struct {
	ID          OperationID
	Kind        Kind
	Phase       Phase
	CurrentFile string
	FilesDone   int64
	FilesTotal  int64
	BytesDone   int64
	BytesTotal  int64
	StartedAt   time.Time
}

// Percent returns byte completion in the range 0 to 100.
func (s Status) Percent() float64 {
	if s.BytesTotal == 0 {
		if s.FilesTotal == 0 {
			return 0
		}
		return 100 * float64(s.FilesDone) / float64(s.FilesTotal)
	}
	return 100 * float64(s.BytesDone) / float64(s.BytesTotal)
}

// ConflictPreview is one sampled collision from a dry run.
type ConflictPreview struct {
	SourcePath string
	DestPath   string
	SourceSize int64
	DestSize   int64
	IsDir      bool
}

// DryRunReport summarizes what an operation would do without writing.
type DryRunReport struct {
	Kind       Kind
	FilesTotal int64
	BytesTotal int64
	// Conflicts holds up to Config.MaxConflicts sampled collisions.
	Conflicts []ConflictPreview
	// ConflictsTruncated is set when the sample hit the bound.
	ConflictsTruncated bool
}
