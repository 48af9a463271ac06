package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// State is the lifecycle state of a relationship.
type State string

const (
	StatePending  State = "pending"
	StateAccepted State = "accepted"
	StateRejected State = "rejected"
	StateExpired  State = "expired"
)

// Terminal returns true for states that admit no further transitions.
func (s State) Terminal() bool {
	return s == StateRejected || s == StateExpired
}

// Strictness is the appointment-window enforcement class of a trust level.
type Strictness string

const (
	StrictnessNone   Strictness = "none"
	StrictnessSoft   Strictness = "soft"
	StrictnessStrict Strictness = "strict"
)

// Decision is the outcome of an admission request.
type Decision string

const (
	Allowed Decision = "allowed"
	Denied  Decision = "denied"
)

// Denial reasons recorded in continuity entries. Reasons are part of the
// audit record, so their spelling is stable.
const (
	ReasonOutsideSoftWindow   = "outside-soft-window"
	ReasonOutsideStrictWindow = "outside-strict-window"
	ReasonNoAppointment       = "no-appointment"
	ReasonRiskBelowThreshold  = "risk-below-threshold"
	ReasonRateLimitExceeded   = "rate-limit-exceeded"
	ReasonMFANotConfirmed     = "mfa-not-confirmed"
)

// Relationship is a bilateral-consent pairing between two identities.
// Admission decisions are scoped to an accepted relationship. Records are
// never deleted; expiry is a state value, preserving the audit history.
type Relationship struct {
	ID                 string         `json:"id"`
	Initiator          string         `json:"initiator"`
	Responder          string         `json:"responder"`
	Roles              []string       `json:"roles"`
	TrustLevel         int            `json:"trust_level"`
	Context            map[string]any `json:"context,omitempty"`
	State              State          `json:"state"`
	InitiatorPublicKey string         `json:"initiator_public_key"`
	ResponderPublicKey string         `json:"responder_public_key,omitempty"`
	ChainHead          string         `json:"chain_head"`
	ChainLength        int64          `json:"chain_length"`
	CreatedAt          time.Time      `json:"created_at"`
}

// IntentRequest is the ephemeral input to an admission decision. It is not
// persisted on its own; the continuity entry it produces carries the full
// request.
type IntentRequest struct {
	RelationshipID string         `json:"relationship_id"`
	Intent         string         `json:"intent"`
	Protocol       string         `json:"protocol"`
	Context        map[string]any `json:"context,omitempty"`
}

// Allocation is the resource grant computed for an admitted intent.
// Queue priority 1 is the highest.
type Allocation struct {
	PowerMilliwatts int     `json:"power_mw"`
	DataKBps        int     `json:"data_kbps"`
	MemoryMB        int     `json:"memory_mb"`
	QueuePriority   int     `json:"queue_priority"`
	RiskScore       float64 `json:"risk_score"`
}

// AdmissionResult is what a caller receives for every admission request:
// a definite decision plus the hash of the continuity entry that records it.
type AdmissionResult struct {
	Decision   Decision    `json:"decision"`
	Reason     string      `json:"reason,omitempty"`
	Allocation *Allocation `json:"allocation,omitempty"`
	EntryHash  string      `json:"entry_hash"`
	Sequence   int64       `json:"sequence"`
}

// IsAllowed reports whether the intent was admitted.
func (r AdmissionResult) IsAllowed() bool {
	return r.Decision == Allowed
}

// NewRelationshipID generates a relationship identifier.
func NewRelationshipID() string {
	return prefixedID("rel", 24)
}

func prefixedID(prefix string, hexLen int) string {
	b := make([]byte, (hexLen+1)/2)
	if _, err := rand.Read(b); err != nil {
		// Fallback to timestamp-based ID if crypto/rand fails
		return fmt.Sprintf("%s-%x", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%s", prefix, hex.EncodeToString(b)[:hexLen])
}
