// Package chain implements the hash-linked continuity chain: one entry per
// admission decision, linked by SHA-256 over the prior hash and the RFC 8785
// canonical form of the payload. Entries are immutable once appended; the
// chain is write-once, read-many.
package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/humotica/intentgate/internal/model"
)

// TimestampFormat is the layout used in continuity entry timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Payload is the decision record protected by the entry hash. All request
// inputs are carried here so a decision can be reproduced from the stored
// payload and the prior hash alone.
type Payload struct {
	Intent     string            `json:"intent"`
	Protocol   string            `json:"protocol"`
	Context    map[string]any    `json:"context,omitempty"`
	Decision   model.Decision    `json:"decision"`
	Reason     string            `json:"reason,omitempty"`
	Allocation *model.Allocation `json:"allocation,omitempty"`
	PolicyHash string            `json:"policy_hash"`
}

// Entry is one link in a relationship's continuity chain. Sequence numbers
// are monotonic per relationship starting at 1; the first entry has an
// empty PrevHash.
type Entry struct {
	RelationshipID string  `json:"relationship_id"`
	Sequence       int64   `json:"seq"`
	Timestamp      string  `json:"ts"`
	Payload        Payload `json:"payload"`
	PrevHash       string  `json:"prev_hash,omitempty"`
	Hash           string  `json:"hash"`
}

// New builds an unsealed entry for the given decision.
func New(relationshipID string, seq int64, at time.Time, payload Payload, prevHash string) Entry {
	return Entry{
		RelationshipID: relationshipID,
		Sequence:       seq,
		Timestamp:      at.UTC().Format(TimestampFormat),
		Payload:        payload,
		PrevHash:       prevHash,
	}
}

// Seal computes and sets the entry hash from its prior hash and canonical
// payload. Returns the sealed entry.
func Seal(e Entry) (Entry, error) {
	canonical, err := canonicalBytes(e)
	if err != nil {
		return Entry{}, err
	}
	e.Hash = hashLink(e.PrevHash, canonical)
	return e, nil
}

// Recompute returns the hash the entry should carry given its stored
// fields. Used by verification; never mutates.
func Recompute(e Entry) (string, error) {
	canonical, err := canonicalBytes(e)
	if err != nil {
		return "", err
	}
	return hashLink(e.PrevHash, canonical), nil
}

// canonicalBytes returns the RFC 8785 canonical JSON of everything the
// hash protects: identity, sequence, timestamp, and payload. The map-typed
// context inside the payload is why canonicalization is required; plain
// json.Marshal of a map has no stable key order guarantee across readers.
func canonicalBytes(e Entry) ([]byte, error) {
	protected := struct {
		RelationshipID string  `json:"relationship_id"`
		Sequence       int64   `json:"seq"`
		Timestamp      string  `json:"ts"`
		Payload        Payload `json:"payload"`
	}{e.RelationshipID, e.Sequence, e.Timestamp, e.Payload}

	raw, err := json.Marshal(protected)
	if err != nil {
		return nil, fmt.Errorf("chain: marshal payload: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("chain: canonicalize payload: %w", err)
	}
	return canonical, nil
}

// hashLink returns "sha256:<hex>" of prevHash ∥ canonical payload bytes.
func hashLink(prevHash string, canonical []byte) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write(canonical)
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}
