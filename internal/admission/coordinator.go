// Package admission decides whether an intent is admitted on a
// relationship. The coordinator runs the full gate sequence (lifecycle
// state, trust policy, rate limit, appointment window, multi-factor
// confirmation, scoring) and records every decision as a continuity
// entry before returning it.
package admission

import (
	"fmt"
	"sync"
	"time"

	"github.com/humotica/intentgate/internal/alert"
	"github.com/humotica/intentgate/internal/chain"
	"github.com/humotica/intentgate/internal/confirm"
	"github.com/humotica/intentgate/internal/ledger"
	"github.com/humotica/intentgate/internal/model"
	"github.com/humotica/intentgate/internal/policy"
	"github.com/humotica/intentgate/internal/ratelimit"
	"github.com/humotica/intentgate/internal/scoring"
	"github.com/humotica/intentgate/internal/window"
)

// Notifier receives oversight events for denied admissions. Calls are
// synchronous from the coordinator's point of view; implementations are
// expected to hand delivery off and return immediately.
type Notifier interface {
	Notify(event alert.Event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(event alert.Event)

// Notify calls f(event).
func (f NotifierFunc) Notify(event alert.Event) { f(event) }

// DispatcherNotifier bridges the coordinator to the webhook dispatcher.
// A nil dispatcher drops everything.
func DispatcherNotifier(d *alert.Dispatcher) Notifier {
	return NotifierFunc(func(event alert.Event) { d.Dispatch(event) })
}

// Options configures a Coordinator. Store and Config are required;
// everything else has a working default.
type Options struct {
	Store         *ledger.Store
	Config        *policy.Config
	PolicyHash    string
	Limiter       *ratelimit.Limiter
	Confirmations *confirm.Store
	Notifier      Notifier
	Now           func() time.Time
}

// Coordinator is the admission gate. Safe for concurrent use; policy can
// be swapped at runtime via ReloadPolicy.
type Coordinator struct {
	store         *ledger.Store
	limiter       *ratelimit.Limiter
	confirmations *confirm.Store
	notifier      Notifier
	now           func() time.Time

	mu         sync.RWMutex
	cfg        *policy.Config
	engine     *scoring.Engine
	policyHash string
}

// New creates a Coordinator.
func New(opts Options) *Coordinator {
	c := &Coordinator{
		store:         opts.Store,
		limiter:       opts.Limiter,
		confirmations: opts.Confirmations,
		notifier:      opts.Notifier,
		now:           opts.Now,
		cfg:           opts.Config,
		policyHash:    opts.PolicyHash,
	}
	if c.cfg == nil {
		c.cfg = policy.DefaultConfig()
	}
	if c.limiter == nil {
		c.limiter = ratelimit.New()
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.engine = scoring.New(c.cfg.Risk)
	return c
}

// ReloadPolicy swaps the active configuration and policy hash. In-flight
// admissions finish under the policy they started with.
func (c *Coordinator) ReloadPolicy(cfg *policy.Config, hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
	c.engine = scoring.New(cfg.Risk)
	c.policyHash = hash
}

// PolicyHash returns the hash of the active policy configuration.
func (c *Coordinator) PolicyHash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.policyHash
}

func (c *Coordinator) snapshot() (*policy.Config, *scoring.Engine, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg, c.engine, c.policyHash
}

// Admit runs the gate sequence for one intent. Every decision, allowed
// or denied, is recorded as a continuity entry before it is returned; a
// strict-window violation additionally raises a breach event. Unknown
// relationships, non-accepted states, and malformed windows are errors,
// not decisions, and record nothing.
func (c *Coordinator) Admit(req model.IntentRequest) (model.AdmissionResult, error) {
	rel, err := c.store.Get(req.RelationshipID)
	if err != nil {
		return model.AdmissionResult{}, err
	}
	if rel.State != model.StateAccepted {
		return model.AdmissionResult{}, fmt.Errorf("%w: admit on %s relationship %s",
			model.ErrInvalidState, rel.State, rel.ID)
	}

	cfg, engine, policyHash := c.snapshot()
	pol, err := cfg.Table().PolicyFor(rel.TrustLevel)
	if err != nil {
		return model.AdmissionResult{}, err
	}

	now := c.now()

	if limit := c.limiter.Check(rel.ID, pol.RateLimit, now); limit.Exceeded {
		return c.deny(rel, req, now, policyHash, model.ReasonRateLimitExceeded, nil)
	}

	win, err := window.Check(rel.Context, req.Context, pol, now)
	if err != nil {
		return model.AdmissionResult{}, err
	}
	if !win.Allowed {
		result, err := c.deny(rel, req, now, policyHash, win.Reason, nil)
		if err == nil && win.Breach {
			c.notify(alert.Event{
				Timestamp:      now.UTC().Format(time.RFC3339),
				Type:           "breach",
				RelationshipID: rel.ID,
				Intent:         req.Intent,
				Protocol:       req.Protocol,
				Reason:         win.Reason,
				TrustLevel:     rel.TrustLevel,
				PolicyHash:     policyHash,
				EntryHash:      result.EntryHash,
			})
		}
		return result, err
	}

	if pol.MFARequired {
		confirmed, err := c.confirmed(rel.ID, req.Intent)
		if err != nil {
			return model.AdmissionResult{}, err
		}
		if !confirmed {
			return c.deny(rel, req, now, policyHash, model.ReasonMFANotConfirmed, nil)
		}
	}

	score := engine.Score(req, rel.TrustLevel)
	if !score.Approved {
		return c.deny(rel, req, now, policyHash, score.Reason, &score.Allocation)
	}

	entry, err := c.append(rel.ID, req, now, chain.Payload{
		Intent:     req.Intent,
		Protocol:   req.Protocol,
		Context:    req.Context,
		Decision:   model.Allowed,
		Allocation: &score.Allocation,
		PolicyHash: policyHash,
	})
	if err != nil {
		return model.AdmissionResult{}, err
	}

	return model.AdmissionResult{
		Decision:   model.Allowed,
		Allocation: &score.Allocation,
		EntryHash:  entry.Hash,
		Sequence:   entry.Sequence,
	}, nil
}

// deny records the denial and returns it. The allocation is included for
// risk denials so the audit record carries the computed score.
func (c *Coordinator) deny(rel *model.Relationship, req model.IntentRequest, now time.Time,
	policyHash, reason string, alloc *model.Allocation) (model.AdmissionResult, error) {

	entry, err := c.append(rel.ID, req, now, chain.Payload{
		Intent:     req.Intent,
		Protocol:   req.Protocol,
		Context:    req.Context,
		Decision:   model.Denied,
		Reason:     reason,
		Allocation: alloc,
		PolicyHash: policyHash,
	})
	if err != nil {
		return model.AdmissionResult{}, err
	}

	c.notify(alert.Event{
		Timestamp:      now.UTC().Format(time.RFC3339),
		Type:           "denied",
		RelationshipID: rel.ID,
		Intent:         req.Intent,
		Protocol:       req.Protocol,
		Reason:         reason,
		TrustLevel:     rel.TrustLevel,
		PolicyHash:     policyHash,
		EntryHash:      entry.Hash,
	})

	return model.AdmissionResult{
		Decision:  model.Denied,
		Reason:    reason,
		EntryHash: entry.Hash,
		Sequence:  entry.Sequence,
	}, nil
}

func (c *Coordinator) append(relationshipID string, req model.IntentRequest, now time.Time,
	payload chain.Payload) (chain.Entry, error) {
	return c.store.AppendDecision(relationshipID, now, payload)
}

// confirmed consults the multi-factor confirmation store. Without a
// store every confirmation check fails closed.
func (c *Coordinator) confirmed(relationshipID, intent string) (bool, error) {
	if c.confirmations == nil {
		return false, nil
	}
	return c.confirmations.Use(relationshipID, intent)
}

func (c *Coordinator) notify(event alert.Event) {
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(event)
}
