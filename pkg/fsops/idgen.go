package fsops

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

// IDGenerator produces operation IDs from the operation kind and the first
// source path.
type IDGenerator func(kind Kind, path string) OperationID

var sequenceCounter atomic.Uint64

// HashIDGenerator generates IDs based on kind, path, and a timestamp hash.
func HashIDGenerator(kind Kind, path string) OperationID {
	return OperationID(fmt.Sprintf("%s-%s", kind, shortHash(string(kind), path)))
}

// SequenceIDGenerator generates sequential IDs (useful for testing).
func SequenceIDGenerator(kind Kind, path string) OperationID {
	seq := sequenceCounter.Add(1)
	return OperationID(fmt.Sprintf("%s-%d", kind, seq))
}

// ResetSequenceCounter resets the sequence counter (for testing).
func ResetSequenceCounter() {
	sequenceCounter.Store(0)
}

// shortHash returns an 8-hex-char digest of the inputs plus the current
// nanosecond clock. Also used for staging and temp-sibling name suffixes.
func shortHash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	_, _ = fmt.Fprintf(h, "%d", time.Now().UnixNano())
	return hex.EncodeToString(h.Sum(nil))[:8]
}
