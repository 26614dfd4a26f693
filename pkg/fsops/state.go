package fsops

import (
	"sync"
	"sync/atomic"
	"time"
)

// resolutionReply is one interactive answer to a conflict prompt.
type resolutionReply struct {
	resolution Resolution
	applyToAll bool
}

// opState is the shared mutable state of one running operation. Counter
// reads never block writers; the mutex covers only phase, current file, and
// the apply-to-all latch.
type opState struct {
	id   OperationID
	kind Kind

	cancelled   atomic.Bool
	keepPartial atomic.Bool
	cancelCh    chan struct{}
	cancelOnce  sync.Once

	// resolveCh is buffered so a resolution arriving before the worker
	// reaches its wait is not lost.
	resolveCh chan resolutionReply

	mu          sync.Mutex
	saved       *resolutionReply
	phase       Phase
	currentFile string

	filesDone  atomic.Int64
	filesTotal atomic.Int64
	bytesDone  atomic.Int64
	bytesTotal atomic.Int64

	startedAt time.Time
}

func newOpState(id OperationID, kind Kind) *opState {
	return &opState{
		id:        id,
		kind:      kind,
		cancelCh:  make(chan struct{}),
		resolveCh: make(chan resolutionReply, 1),
		phase:     PhaseScan,
		startedAt: time.Now(),
	}
}

// cancel requests the operation stop. With rollback false, partial output is
// kept. Safe to call more than once.
func (st *opState) cancel(rollback bool) {
	if !rollback {
		st.keepPartial.Store(true)
	}
	st.cancelled.Store(true)
	st.cancelOnce.Do(func() { close(st.cancelCh) })
}

func (st *opState) isCancelled() bool {
	return st.cancelled.Load()
}

func (st *opState) setPhase(p Phase) {
	st.mu.Lock()
	st.phase = p
	st.mu.Unlock()
}

func (st *opState) setCurrentFile(path string) {
	st.mu.Lock()
	st.currentFile = path
	st.mu.Unlock()
}

// addDone advances the monotonic counters by one finished item.
func (st *opState) addDone(bytes int64) {
	st.filesDone.Add(1)
	if bytes > 0 {
		st.bytesDone.Add(bytes)
	}
}

func (st *opState) setTotals(files, bytes int64) {
	st.filesTotal.Store(files)
	st.bytesTotal.Store(bytes)
}

func (st *opState) snapshot() Status {
	st.mu.Lock()
	phase := st.phase
	current := st.currentFile
	st.mu.Unlock()
	return Status{
		ID:          st.id,
		Kind:        st.kind,
		Phase:       phase,
		CurrentFile: current,
		FilesDone:   st.filesDone.Load(),
		FilesTotal:  st.filesTotal.Load(),
		BytesDone:   st.bytesDone.Load(),
		BytesTotal:  st.bytesTotal.Load(),
		StartedAt:   st.startedAt,
	}
}

// offerResolution hands a reply to the waiting worker. An apply-to-all reply
// also latches for every later conflict. With no waiter and one reply
// already pending, the extra reply is dropped.
func (st *opState) offerResolution(r Resolution, applyToAll bool) {
	reply := resolutionReply{resolution: r, applyToAll: applyToAll}
	if applyToAll {
		st.mu.Lock()
		st.saved = &reply
		st.mu.Unlock()
	}
	select {
	case st.resolveCh <- reply:
	default:
	}
}

// awaitResolution blocks until a reply, cancellation, or the timeout. The
// apply-to-all latch answers immediately without emitting another prompt
// round-trip. Timeout and cancellation both yield a Cancelled error.
func (st *opState) awaitResolution(timeout time.Duration) (resolutionReply, error) {
	st.mu.Lock()
	if st.saved != nil {
		reply := *st.saved
		st.mu.Unlock()
		return reply, nil
	}
	st.mu.Unlock()

	select {
	case reply := <-st.resolveCh:
		if reply.applyToAll {
			st.mu.Lock()
			st.saved = &reply
			st.mu.Unlock()
		}
		return reply, nil
	case <-st.cancelCh:
		return resolutionReply{}, cancelled()
	case <-time.After(timeout):
		return resolutionReply{}, cancelled()
	}
}

// savedResolution returns the apply-to-all latch, if set.
func (st *opState) savedResolution() (resolutionReply, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.saved == nil {
		return resolutionReply{}, false
	}
	return *st.saved, true
}
