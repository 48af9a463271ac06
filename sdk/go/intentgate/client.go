package intentgate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/humotica/intentgate/internal/admission"
	"github.com/humotica/intentgate/internal/alert"
	"github.com/humotica/intentgate/internal/chain"
	"github.com/humotica/intentgate/internal/confirm"
	"github.com/humotica/intentgate/internal/ledger"
	"github.com/humotica/intentgate/internal/model"
	"github.com/humotica/intentgate/internal/policy"
)

// Sentinel errors re-exported for callers matching with errors.Is.
var (
	ErrNotFound        = model.ErrNotFound
	ErrInvalidState    = model.ErrInvalidState
	ErrInvalidBinding  = model.ErrInvalidBinding
	ErrBindingMismatch = model.ErrBindingMismatch
	ErrInvalidWindow   = model.ErrInvalidWindow
	ErrChainIntegrity  = model.ErrChainIntegrity
)

// Proposal is the input to a relationship proposal.
type Proposal struct {
	Initiator          string
	Responder          string
	Roles              []string
	TrustLevel         int
	Context            map[string]any
	InitiatorPublicKey string
	BindingHash        string
}

// Intent is an admission request.
type Intent = model.IntentRequest

// Relationship re-exports the relationship record type.
type Relationship = model.Relationship

// AdmissionResult re-exports the admission decision type.
type AdmissionResult = model.AdmissionResult

// Entry re-exports the continuity entry type.
type Entry = chain.Entry

// VerifyResult re-exports the chain verification outcome.
type VerifyResult = chain.VerifyResult

// Client is an in-process admission gateway. Safe for concurrent use.
type Client struct {
	store       *ledger.Store
	coordinator *admission.Coordinator
}

// New creates a Client with the given options.
func New(opts ...Option) (*Client, error) {
	var cfg clientConfig
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.ledgerPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("intentgate: no ledger path and no home directory: %w", err)
		}
		cfg.ledgerPath = filepath.Join(home, ".intentgate", "ledger.db")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.ledgerPath), 0755); err != nil {
		return nil, fmt.Errorf("intentgate: failed to create ledger directory: %w", err)
	}

	policyCfg, policyHash, err := policy.LoadWithHash(cfg.configPath)
	if err != nil {
		return nil, fmt.Errorf("intentgate: failed to load config: %w", err)
	}

	store, err := ledger.Open(cfg.ledgerPath, nil)
	if err != nil {
		return nil, fmt.Errorf("intentgate: %w", err)
	}

	confirmDir := cfg.confirmDir
	if confirmDir == "" {
		confirmDir = confirm.DefaultDir()
	}
	confirmations, err := confirm.NewStore(confirmDir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("intentgate: %w", err)
	}

	return &Client{
		store: store,
		coordinator: admission.New(admission.Options{
			Store:         store,
			Config:        policyCfg,
			PolicyHash:    policyHash,
			Confirmations: confirmations,
			Notifier:      admission.DispatcherNotifier(alert.NewDispatcher(policyCfg.Alerts)),
			Now:           cfg.now,
		}),
	}, nil
}

// Close releases the underlying ledger.
func (c *Client) Close() error {
	return c.store.Close()
}

// Propose creates a relationship in state pending.
func (c *Client) Propose(p Proposal) (*Relationship, error) {
	return c.store.Propose(ledger.ProposeParams{
		Initiator:          p.Initiator,
		Responder:          p.Responder,
		Roles:              p.Roles,
		TrustLevel:         p.TrustLevel,
		Context:            p.Context,
		InitiatorPublicKey: p.InitiatorPublicKey,
		BindingHash:        p.BindingHash,
	})
}

// Accept transitions a pending relationship to accepted.
func (c *Client) Accept(relationshipID, responderPublicKey, bindingHash string) (*Relationship, error) {
	return c.store.Accept(relationshipID, responderPublicKey, bindingHash)
}

// Reject transitions a pending relationship to rejected.
func (c *Client) Reject(relationshipID string) error {
	return c.store.Reject(relationshipID)
}

// Expire transitions an accepted relationship to expired.
func (c *Client) Expire(relationshipID string) error {
	return c.store.Expire(relationshipID)
}

// Get returns a relationship record.
func (c *Client) Get(relationshipID string) (*Relationship, error) {
	return c.store.Get(relationshipID)
}

// Admit runs the full admission gate for one intent.
func (c *Client) Admit(intent Intent) (AdmissionResult, error) {
	return c.coordinator.Admit(intent)
}

// Chain returns a relationship's continuity chain in sequence order.
func (c *Client) Chain(relationshipID string) ([]Entry, error) {
	return c.store.Entries(relationshipID)
}

// VerifyChain recomputes and checks every hash in a relationship's chain.
func (c *Client) VerifyChain(relationshipID string) (VerifyResult, error) {
	return c.store.VerifyChain(relationshipID)
}
