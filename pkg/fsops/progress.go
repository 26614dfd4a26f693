package fsops

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/vdavid/fsops/pkg/fsops/events"
)

// progressEmitter publishes throttled Progress events for one operation.
// Regular emissions are rate-limited to the configured interval; phase
// transitions and terminal events force through.
type progressEmitter struct {
	bus      *events.Bus
	st       *opState
	interval time.Duration
	lastNano atomic.Int64
}

func newProgressEmitter(bus *events.Bus, st *opState, interval time.Duration) *progressEmitter {
	return &progressEmitter{bus: bus, st: st, interval: interval}
}

// emit publishes a Progress snapshot. Unforced emissions within the throttle
// window are dropped; the compare-and-swap keeps concurrent callers from
// double-emitting for the same window.
func (pe *progressEmitter) emit(force bool) {
	now := time.Now().UnixNano()
	if force {
		pe.lastNano.Store(now)
	} else {
		last := pe.lastNano.Load()
		if now-last < int64(pe.interval) {
			return
		}
		if !pe.lastNano.CompareAndSwap(last, now) {
			return
		}
	}

	s := pe.st.snapshot()
	pe.bus.Publish(context.Background(), events.New(events.TypeProgress, events.Progress{
		OperationID: string(s.ID),
		Kind:        string(s.Kind),
		Phase:       string(s.Phase),
		CurrentFile: s.CurrentFile,
		FilesDone:   s.FilesDone,
		FilesTotal:  s.FilesTotal,
		BytesDone:   s.BytesDone,
		BytesTotal:  s.BytesTotal,
	}))
}

// phase records a phase transition and force-emits it.
func (pe *progressEmitter) phase(p Phase) {
	pe.st.setPhase(p)
	pe.emit(true)
}
