// Package window enforces appointment windows on intent admission.
// Whether a window is required, and how hard its edges are, comes from
// the trust policy; the window itself travels in the intent context.
package window

import (
	"time"

	"github.com/humotica/intentgate/internal/model"
	"github.com/humotica/intentgate/internal/policy"
)

// Result is the outcome of a window check. Breach is set only for
// strict-window violations; soft misses and missing appointments are
// plain denials.
type Result struct {
	Allowed bool
	Reason  string
	Breach  bool
}

var allowed = Result{Allowed: true}

// Check evaluates the appointment window against the trust policy at the
// given instant. The window normally lives in the relationship context,
// placed there by the scheduling collaborator; a window in the intent
// context takes precedence, covering per-intent rescheduling. A malformed
// window is an error, not a denial. Window edges are inclusive on both
// ends.
func Check(relationshipCtx, intentCtx map[string]any, pol policy.TrustPolicy, now time.Time) (Result, error) {
	win, err := model.WindowFromContext(intentCtx)
	if err != nil {
		return Result{}, err
	}
	if win == nil {
		if win, err = model.WindowFromContext(relationshipCtx); err != nil {
			return Result{}, err
		}
	}

	if win == nil {
		if pol.PreAuthRequired {
			return Result{Reason: model.ReasonNoAppointment}, nil
		}
		return allowed, nil
	}

	switch pol.Strictness {
	case model.StrictnessNone:
		return allowed, nil
	case model.StrictnessSoft:
		if within(now, win.Start.Add(-pol.Grace), win.End.Add(pol.Grace)) {
			return allowed, nil
		}
		return Result{Reason: model.ReasonOutsideSoftWindow}, nil
	case model.StrictnessStrict:
		if within(now, win.Start, win.End) {
			return allowed, nil
		}
		return Result{Reason: model.ReasonOutsideStrictWindow, Breach: true}, nil
	default:
		return allowed, nil
	}
}

func within(now, start, end time.Time) bool {
	return !now.Before(start) && !now.After(end)
}
