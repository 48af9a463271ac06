package model

import (
	"fmt"
	"time"
)

// windowContextKey is the relationship context key under which the external
// scheduling collaborator places appointment window data.
const windowContextKey = "appointment"

// AppointmentWindow is a scheduled contact window inside a relationship's
// context. It is created by an external scheduler and consumed read-only.
type AppointmentWindow struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Subject string    `json:"subject,omitempty"`
}

// WindowFromContext extracts the appointment window from a relationship
// context map. Returns (nil, nil) when no window attribute is present.
// A present but malformed window returns ErrInvalidWindow: a relationship
// that claims to carry an appointment must carry a usable one.
func WindowFromContext(ctx map[string]any) (*AppointmentWindow, error) {
	if ctx == nil {
		return nil, nil
	}
	raw, ok := ctx[windowContextKey]
	if !ok {
		return nil, nil
	}

	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: appointment is %T, want object", ErrInvalidWindow, raw)
	}

	start, err := parseWindowTime(m, "start")
	if err != nil {
		return nil, err
	}
	end, err := parseWindowTime(m, "end")
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s before start %s", ErrInvalidWindow,
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	w := &AppointmentWindow{Start: start, End: end}
	if subject, ok := m["subject"].(string); ok {
		w.Subject = subject
	}
	return w, nil
}

func parseWindowTime(m map[string]any, key string) (time.Time, error) {
	s, ok := m[key].(string)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: missing %s timestamp", ErrInvalidWindow, key)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", ErrInvalidWindow, key, err)
	}
	return t, nil
}

// WindowContext builds the context fragment for an appointment window, for
// callers (schedulers, tests) that attach windows to relationship context.
func WindowContext(start, end time.Time, subject string) map[string]any {
	return map[string]any{
		windowContextKey: map[string]any{
			"start":   start.UTC().Format(time.RFC3339),
			"end":     end.UTC().Format(time.RFC3339),
			"subject": subject,
		},
	}
}
