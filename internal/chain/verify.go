package chain

import (
	"fmt"

	"github.com/humotica/intentgate/internal/model"
)

// VerifyResult holds the outcome of a chain verification.
type VerifyResult struct {
	Valid    bool   `json:"valid"`
	Entries  int    `json:"entries"`
	Error    string `json:"error,omitempty"`
	ErrorSeq int64  `json:"error_seq,omitempty"`
}

// Verify walks a relationship's full entry sequence and recomputes every
// hash from (prior hash, payload). Any mismatch, gap, or broken link is a
// ChainIntegrityViolation; verification never repairs.
func Verify(entries []Entry) VerifyResult {
	var prevHash string

	for i, e := range entries {
		wantSeq := int64(i + 1)
		if e.Sequence != wantSeq {
			return invalid(e.Sequence, "sequence gap: entry %d has seq %d, want %d", i, e.Sequence, wantSeq)
		}
		if e.PrevHash != prevHash {
			return invalid(e.Sequence, "broken link at seq %d: prev_hash %q, want %q", e.Sequence, e.PrevHash, prevHash)
		}

		computed, err := Recompute(e)
		if err != nil {
			return invalid(e.Sequence, "seq %d: %v", e.Sequence, err)
		}
		if computed != e.Hash {
			return invalid(e.Sequence, "hash mismatch at seq %d: stored %s, computed %s", e.Sequence, e.Hash, computed)
		}

		prevHash = e.Hash
	}

	return VerifyResult{Valid: true, Entries: len(entries)}
}

// Err converts a failed result into a ChainIntegrityViolation error, nil
// for a valid chain.
func (r VerifyResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("%w: %s", model.ErrChainIntegrity, r.Error)
}

func invalid(seq int64, format string, args ...any) VerifyResult {
	return VerifyResult{Error: fmt.Sprintf(format, args...), ErrorSeq: seq}
}
