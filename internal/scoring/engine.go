// Package scoring turns an admitted intent into a resource allocation and
// a risk verdict. Scoring is a pure function of the request and the
// relationship's trust level: no clock, no randomness, so any recorded
// decision can be recomputed byte-for-byte during an audit.
package scoring

import (
	"math"

	"github.com/humotica/intentgate/internal/model"
	"github.com/humotica/intentgate/internal/policy"
)

// Result is a scoring verdict. Allocation is populated either way so a
// denied entry still records what would have been granted.
type Result struct {
	Allocation model.Allocation
	Approved   bool
	Reason     string
}

// Engine scores intents against a set of risk weights.
type Engine struct {
	cfg policy.RiskConfig
}

// New returns an engine using the given risk weights.
func New(cfg policy.RiskConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Score computes the allocation and risk verdict for an intent at the
// given trust level.
func (e *Engine) Score(req model.IntentRequest, trustLevel int) Result {
	alloc := e.allocate(req)
	alloc.RiskScore = e.risk(req, trustLevel)

	if alloc.RiskScore < e.cfg.Threshold {
		return Result{Allocation: alloc, Reason: model.ReasonRiskBelowThreshold}
	}
	return Result{Allocation: alloc, Approved: true}
}

// allocate derives the resource envelope from the protocol baseline, then
// applies urgency and duration adjustments. The protocol baseline is a
// floor: declared durations at or below one minute never shrink the
// envelope.
func (e *Engine) allocate(req model.IntentRequest) model.Allocation {
	p := profileFor(req.Protocol)

	power := float64(p.PowerMilliwatts)
	data := float64(p.DataKBps)
	priority := p.QueuePriority

	if urgent(req) {
		power *= 2
		priority = 1
	}

	if d := durationMinutes(req.Context); d > 1 {
		power *= d
		data *= d
	}

	return model.Allocation{
		PowerMilliwatts: int(math.Round(power)),
		DataKBps:        int(math.Round(data)),
		MemoryMB:        quantizeMemory(p.MemoryMB),
		QueuePriority:   priority,
	}
}

// risk folds the declared context signals into a score in [0,1]. Higher
// is safer; approval requires crossing the configured threshold.
func (e *Engine) risk(req model.IntentRequest, trustLevel int) float64 {
	score := e.cfg.Base + e.cfg.TrustWeight*float64(trustLevel)
	score += e.cfg.IntentAdjustments[category(req)]

	if v, ok := floatSignal(req.Context, "history_risk"); ok {
		score -= e.cfg.HistoryWeight * clamp01(v)
	}
	if v, ok := floatSignal(req.Context, "amount"); ok && v > e.cfg.LargeAmount {
		score -= e.cfg.LargeAmountPenalty
	}
	if boolSignal(req.Context, "verified_device") {
		score += e.cfg.VerifiedDeviceBonus
	}
	if boolSignal(req.Context, "first_contact") {
		score -= e.cfg.FirstContactPenalty
	}

	return clamp01(score)
}

// category resolves the intent category used for risk adjustment: an
// explicit "category" in the context wins, otherwise the intent name
// itself is tried against the adjustment table.
func category(req model.IntentRequest) string {
	if c, ok := req.Context["category"].(string); ok {
		return c
	}
	return req.Intent
}

func urgent(req model.IntentRequest) bool {
	switch category(req) {
	case "urgent", "emergency":
		return true
	}
	return boolSignal(req.Context, "urgent")
}

// durationMinutes reads the declared session length in minutes. Absent,
// invalid, or sub-minute declarations scale nothing; the one-minute
// baseline is the floor.
func durationMinutes(ctx map[string]any) float64 {
	v, ok := floatSignal(ctx, "duration_minutes")
	if !ok || v <= 0 {
		return 1
	}
	return v
}

// floatSignal reads a numeric context value. JSON decoding produces
// float64, but typed callers may hand in ints.
func floatSignal(ctx map[string]any, key string) (float64, bool) {
	switch v := ctx[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func boolSignal(ctx map[string]any, key string) bool {
	v, ok := ctx[key].(bool)
	return ok && v
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
