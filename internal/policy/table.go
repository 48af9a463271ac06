package policy

import (
	"fmt"
	"time"

	"github.com/humotica/intentgate/internal/model"
)

// Trust level bounds. Levels classify a relationship into a control tier;
// higher level = heavier controls.
const (
	MinLevel = 0
	MaxLevel = 5
)

// RateLimit caps intents per relationship inside a rolling window.
// Zero MaxIntents means no limit.
type RateLimit struct {
	MaxIntents int
	Window     time.Duration
}

// Enabled reports whether the limit is active.
func (r RateLimit) Enabled() bool {
	return r.MaxIntents > 0 && r.Window > 0
}

// TrustPolicy is the immutable control record for one trust level.
type TrustPolicy struct {
	Level              int
	Label              string
	PreAuthRequired    bool
	EncryptionRequired bool
	MFARequired        bool
	Strictness         model.Strictness
	Grace              time.Duration
	Retention          time.Duration
	RateLimit          RateLimit
}

// Table maps trust levels 0-5 to their policies. It is built once at
// startup and never mutated, so concurrent reads need no locking.
type Table struct {
	levels [MaxLevel + 1]TrustPolicy
}

// PolicyFor returns the policy for the given trust level.
// Levels outside 0-5 fail with ErrUnknownLevel.
func (t *Table) PolicyFor(level int) (TrustPolicy, error) {
	if level < MinLevel || level > MaxLevel {
		return TrustPolicy{}, fmt.Errorf("%w: %d", model.ErrUnknownLevel, level)
	}
	return t.levels[level], nil
}

const day = 24 * time.Hour

// DefaultTable returns the reference policy table.
func DefaultTable() *Table {
	return &Table{levels: [MaxLevel + 1]TrustPolicy{
		{
			Level:      0,
			Label:      "public-unverified",
			Strictness: model.StrictnessNone,
			Retention:  30 * day,
			RateLimit:  RateLimit{MaxIntents: 5, Window: time.Hour},
		},
		{
			Level:      1,
			Label:      "verified-personal",
			Strictness: model.StrictnessNone,
			Retention:  90 * day,
			RateLimit:  RateLimit{MaxIntents: 30, Window: time.Hour},
		},
		{
			Level:      2,
			Label:      "professional-business",
			Strictness: model.StrictnessNone,
			Retention:  365 * day,
		},
		{
			Level:           3,
			Label:           "financial-administrative",
			PreAuthRequired: true,
			Strictness:      model.StrictnessSoft,
			Grace:           5 * time.Minute,
			Retention:       5 * 365 * day,
		},
		{
			Level:              4,
			Label:              "legal-medical",
			PreAuthRequired:    true,
			EncryptionRequired: true,
			Strictness:         model.StrictnessStrict,
			Retention:          7 * 365 * day,
		},
		{
			Level:              5,
			Label:              "government",
			PreAuthRequired:    true,
			EncryptionRequired: true,
			MFARequired:        true,
			Strictness:         model.StrictnessStrict,
			Retention:          20 * 365 * day,
		},
	}}
}
