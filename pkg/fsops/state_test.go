package fsops

import (
	"testing"
	"time"
)

func TestOpStateCancel(t *testing.T) {
	t.Run("cancel is idempotent", func(t *testing.T) {
		st := newOpState("copy-1", KindCopy)
		st.cancel(true)
		st.cancel(true)
		if !st.isCancelled() {
			t.Error("state should be cancelled")
		}
		if st.keepPartial.Load() {
			t.Error("rollback cancel should not keep partial output")
		}
	})

	t.Run("cancel without rollback keeps partial output", func(t *testing.T) {
		st := newOpState("copy-2", KindCopy)
		st.cancel(false)
		if !st.keepPartial.Load() {
			t.Error("keepPartial should be set")
		}
	})
}

func TestAwaitResolution(t *testing.T) {
	t.Run("reply offered before the wait is not lost", func(t *testing.T) {
		st := newOpState("copy-1", KindCopy)
		st.offerResolution(ResolutionSkip, false)
		reply, err := st.awaitResolution(time.Second)
		if err != nil {
			t.Fatalf("awaitResolution failed: %v", err)
		}
		if reply.resolution != ResolutionSkip {
			t.Errorf("expected skip, got %s", reply.resolution)
		}
	})

	t.Run("apply-to-all latches for later conflicts", func(t *testing.T) {
		st := newOpState("copy-2", KindCopy)
		st.offerResolution(ResolutionOverwrite, true)

		for i := 0; i < 3; i++ {
			reply, err := st.awaitResolution(10 * time.Millisecond)
			if err != nil {
				t.Fatalf("round %d failed: %v", i, err)
			}
			if reply.resolution != ResolutionOverwrite {
				t.Errorf("round %d: expected overwrite, got %s", i, reply.resolution)
			}
		}
	})

	t.Run("timeout yields a cancelled error", func(t *testing.T) {
		st := newOpState("copy-3", KindCopy)
		_, err := st.awaitResolution(20 * time.Millisecond)
		if !IsCode(err, CodeCancelled) {
			t.Fatalf("expected Cancelled, got %v", err)
		}
	})

	t.Run("cancellation interrupts the wait", func(t *testing.T) {
		st := newOpState("copy-4", KindCopy)
		go func() {
			time.Sleep(10 * time.Millisecond)
			st.cancel(true)
		}()
		_, err := st.awaitResolution(5 * time.Second)
		if !IsCode(err, CodeCancelled) {
			t.Fatalf("expected Cancelled, got %v", err)
		}
	})
}

func TestOpStateSnapshot(t *testing.T) {
	st := newOpState("move-1", KindMove)
	st.setTotals(10, 1000)
	st.addDone(100)
	st.addDone(200)
	st.setPhase(PhaseTransfer)
	st.setCurrentFile("/src/a.txt")

	s := st.snapshot()
	if s.FilesDone != 2 || s.BytesDone != 300 {
		t.Errorf("unexpected counters: %+v", s)
	}
	if s.Phase != PhaseTransfer || s.CurrentFile != "/src/a.txt" {
		t.Errorf("unexpected phase info: %+v", s)
	}
	if got := s.Percent(); got != 30 {
		t.Errorf("expected 30 percent, got %v", got)
	}
}
