package window

import (
	"errors"
	"testing"
	"time"

	"github.com/humotica/intentgate/internal/model"
	"github.com/humotica/intentgate/internal/policy"
)

var (
	winStart = time.Date(2026, 3, 14, 14, 0, 0, 0, time.UTC)
	winEnd   = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
)

func windowCtx(t *testing.T) map[string]any {
	t.Helper()
	return model.WindowContext(winStart, winEnd, "account_review")
}

func policyAt(t *testing.T, level int) policy.TrustPolicy {
	t.Helper()
	pol, err := policy.DefaultTable().PolicyFor(level)
	if err != nil {
		t.Fatalf("policy for level %d: %v", level, err)
	}
	return pol
}

func TestNoEnforcementWithoutPreAuth(t *testing.T) {
	// Low trust levels need no appointment and ignore any that is present.
	pol := policyAt(t, 1)

	r, err := Check(nil, nil, pol, winStart)
	if err != nil || !r.Allowed {
		t.Fatalf("missing window at level 1: %+v err=%v", r, err)
	}

	r, err = Check(windowCtx(t), nil, pol, winEnd.Add(48*time.Hour))
	if err != nil || !r.Allowed {
		t.Fatalf("stale window at level 1: %+v err=%v", r, err)
	}
}

func TestMissingWindowWithPreAuthRequired(t *testing.T) {
	for _, level := range []int{3, 4, 5} {
		r, err := Check(map[string]any{"note": "no appointment here"}, nil, policyAt(t, level), winStart)
		if err != nil {
			t.Fatalf("level %d: %v", level, err)
		}
		if r.Allowed || r.Reason != model.ReasonNoAppointment || r.Breach {
			t.Fatalf("level %d: %+v", level, r)
		}
	}
}

func TestSoftWindowGrace(t *testing.T) {
	pol := policyAt(t, 3) // soft, 5m grace
	ctx := windowCtx(t)

	cases := []struct {
		name    string
		now     time.Time
		allowed bool
	}{
		{"inside", winStart.Add(30 * time.Minute), true},
		{"at start", winStart, true},
		{"at end", winEnd, true},
		{"within leading grace", winStart.Add(-5 * time.Minute), true},
		{"within trailing grace", winEnd.Add(5 * time.Minute), true},
		{"one second past grace", winEnd.Add(5*time.Minute + time.Second), false},
		{"one second before grace", winStart.Add(-5*time.Minute - time.Second), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := Check(ctx, nil, pol, tc.now)
			if err != nil {
				t.Fatal(err)
			}
			if r.Allowed != tc.allowed {
				t.Fatalf("allowed=%v, want %v", r.Allowed, tc.allowed)
			}
			if !tc.allowed && (r.Reason != model.ReasonOutsideSoftWindow || r.Breach) {
				t.Fatalf("soft miss must not be a breach: %+v", r)
			}
		})
	}
}

func TestStrictWindowExactEdges(t *testing.T) {
	pol := policyAt(t, 5)
	ctx := windowCtx(t)

	cases := []struct {
		name    string
		now     time.Time
		allowed bool
	}{
		{"at start", winStart, true},
		{"at end", winEnd, true},
		{"one second early", winStart.Add(-time.Second), false},
		{"one second late", winEnd.Add(time.Second), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := Check(ctx, nil, pol, tc.now)
			if err != nil {
				t.Fatal(err)
			}
			if r.Allowed != tc.allowed {
				t.Fatalf("allowed=%v, want %v", r.Allowed, tc.allowed)
			}
			if !tc.allowed {
				if r.Reason != model.ReasonOutsideStrictWindow {
					t.Fatalf("reason %q", r.Reason)
				}
				if !r.Breach {
					t.Fatal("strict miss must be flagged as a breach")
				}
			}
		})
	}
}

func TestIntentWindowOverridesRelationshipWindow(t *testing.T) {
	pol := policyAt(t, 4)

	// Relationship window has passed; a rescheduled window arrives with
	// the intent and wins.
	relCtx := model.WindowContext(winStart.Add(-48*time.Hour), winEnd.Add(-48*time.Hour), "original")
	intentCtx := windowCtx(t)

	r, err := Check(relCtx, intentCtx, pol, winStart.Add(10*time.Minute))
	if err != nil || !r.Allowed {
		t.Fatalf("rescheduled window: %+v err=%v", r, err)
	}

	// Without the intent window, the stale relationship window denies.
	r, err = Check(relCtx, nil, pol, winStart.Add(10*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if r.Allowed || r.Reason != model.ReasonOutsideStrictWindow {
		t.Fatalf("stale relationship window: %+v", r)
	}
}

func TestMalformedWindowIsAnError(t *testing.T) {
	ctx := map[string]any{"appointment": map[string]any{"start": "not-a-time"}}
	_, err := Check(ctx, nil, policyAt(t, 4), winStart)
	if !errors.Is(err, model.ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
}
