// Package ledger owns relationship records and their continuity chains.
// All lifecycle transitions and chain appends go through the Store; nothing
// else writes relationship state. Records are never deleted; expiry is a
// lifecycle state, so the audit history survives the relationship.
package ledger

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/humotica/intentgate/internal/chain"
	"github.com/humotica/intentgate/internal/identity"
	"github.com/humotica/intentgate/internal/model"
	"github.com/humotica/intentgate/internal/policy"
)

const schema = `
CREATE TABLE IF NOT EXISTS relationships (
	id                   TEXT PRIMARY KEY,
	initiator            TEXT NOT NULL,
	responder            TEXT NOT NULL,
	roles                TEXT NOT NULL,
	trust_level          INTEGER NOT NULL,
	context              TEXT NOT NULL,
	state                TEXT NOT NULL,
	initiator_public_key TEXT NOT NULL,
	responder_public_key TEXT NOT NULL DEFAULT '',
	chain_head           TEXT NOT NULL DEFAULT '',
	chain_length         INTEGER NOT NULL DEFAULT 0,
	created_at           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS continuity_entries (
	relationship_id TEXT NOT NULL REFERENCES relationships(id),
	seq             INTEGER NOT NULL,
	ts              TEXT NOT NULL,
	payload         TEXT NOT NULL,
	prev_hash       TEXT NOT NULL,
	hash            TEXT NOT NULL,
	PRIMARY KEY (relationship_id, seq)
);
`

// Store is the SQLite-backed relationship ledger. Operations on the same
// relationship are serialized through a per-identifier lock; operations on
// different relationships proceed in parallel.
type Store struct {
	db       *sql.DB
	locks    *keyedLocks
	verifier identity.Verifier
}

// Open opens (or creates) the ledger database at path and ensures the
// schema exists. Pass an identity.Verifier; nil uses the built-in one.
func Open(path string, verifier identity.Verifier) (*Store, error) {
	if verifier == nil {
		verifier = identity.NewVerifier()
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("ledger: open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: create schema: %w", err)
	}

	return &Store{db: db, locks: newKeyedLocks(), verifier: verifier}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ProposeParams holds the inputs to a relationship proposal.
type ProposeParams struct {
	Initiator          string
	Responder          string
	Roles              []string
	TrustLevel         int
	Context            map[string]any
	InitiatorPublicKey string
	BindingHash        string
}

// Propose creates a relationship in state pending. The initiator's binding
// must commit its public key to the declared roles; a malformed binding
// fails with InvalidBinding before anything is written.
func (s *Store) Propose(p ProposeParams) (*model.Relationship, error) {
	if p.Initiator == "" || p.Responder == "" {
		return nil, fmt.Errorf("ledger: initiator and responder are required")
	}
	if p.TrustLevel < policy.MinLevel || p.TrustLevel > policy.MaxLevel {
		return nil, fmt.Errorf("%w: %d", model.ErrUnknownLevel, p.TrustLevel)
	}
	if err := s.verifier.VerifyBinding(p.InitiatorPublicKey, p.BindingHash, p.Roles); err != nil {
		return nil, err
	}

	rel := &model.Relationship{
		ID:                 model.NewRelationshipID(),
		Initiator:          p.Initiator,
		Responder:          p.Responder,
		Roles:              p.Roles,
		TrustLevel:         p.TrustLevel,
		Context:            p.Context,
		State:              model.StatePending,
		InitiatorPublicKey: p.InitiatorPublicKey,
		CreatedAt:          time.Now().UTC(),
	}

	roles, context, err := encodeRolesContext(rel.Roles, rel.Context)
	if err != nil {
		return nil, err
	}

	_, err = s.db.Exec(`INSERT INTO relationships
		(id, initiator, responder, roles, trust_level, context, state, initiator_public_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rel.ID, rel.Initiator, rel.Responder, roles, rel.TrustLevel, context,
		string(rel.State), rel.InitiatorPublicKey, rel.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("ledger: insert relationship: %w", err)
	}
	return rel, nil
}

// Accept transitions pending → accepted. The responder's binding must be
// consistent with the declared roles; fails with BindingMismatch otherwise.
// Any state but pending (including expired) fails with InvalidState.
func (s *Store) Accept(id, responderPublicKey, bindingHash string) (*model.Relationship, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	rel, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if rel.State != model.StatePending {
		return nil, fmt.Errorf("%w: accept on %s relationship %s", model.ErrInvalidState, rel.State, id)
	}
	if err := s.verifier.VerifyBinding(responderPublicKey, bindingHash, rel.Roles); err != nil {
		return nil, err
	}

	if _, err := s.db.Exec(`UPDATE relationships SET state = ?, responder_public_key = ? WHERE id = ?`,
		string(model.StateAccepted), responderPublicKey, id); err != nil {
		return nil, fmt.Errorf("ledger: accept relationship: %w", err)
	}

	rel.State = model.StateAccepted
	rel.ResponderPublicKey = responderPublicKey
	return rel, nil
}

// Reject transitions pending → rejected (terminal).
func (s *Store) Reject(id string) error {
	return s.transition(id, model.StatePending, model.StateRejected, "reject")
}

// Expire transitions accepted → expired. Driven by an external scheduler
// when retention or validity elapses; the ledger never expires on its own.
func (s *Store) Expire(id string) error {
	return s.transition(id, model.StateAccepted, model.StateExpired, "expire")
}

func (s *Store) transition(id string, from, to model.State, op string) error {
	unlock := s.locks.lock(id)
	defer unlock()

	rel, err := s.get(id)
	if err != nil {
		return err
	}
	if rel.State != from {
		return fmt.Errorf("%w: %s on %s relationship %s", model.ErrInvalidState, op, rel.State, id)
	}

	if _, err := s.db.Exec(`UPDATE relationships SET state = ? WHERE id = ?`, string(to), id); err != nil {
		return fmt.Errorf("ledger: %s relationship: %w", op, err)
	}
	return nil
}

// Get returns the relationship, or NotFound. Read-only; never mutates.
func (s *Store) Get(id string) (*model.Relationship, error) {
	return s.get(id)
}

func (s *Store) get(id string) (*model.Relationship, error) {
	row := s.db.QueryRow(`SELECT id, initiator, responder, roles, trust_level, context, state,
		initiator_public_key, responder_public_key, chain_head, chain_length, created_at
		FROM relationships WHERE id = ?`, id)

	var rel model.Relationship
	var roles, context, state, createdAt string
	err := row.Scan(&rel.ID, &rel.Initiator, &rel.Responder, &roles, &rel.TrustLevel, &context,
		&state, &rel.InitiatorPublicKey, &rel.ResponderPublicKey, &rel.ChainHead, &rel.ChainLength, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: load relationship: %w", err)
	}

	rel.State = model.State(state)
	if err := json.Unmarshal([]byte(roles), &rel.Roles); err != nil {
		return nil, fmt.Errorf("ledger: decode roles: %w", err)
	}
	if err := json.Unmarshal([]byte(context), &rel.Context); err != nil {
		return nil, fmt.Errorf("ledger: decode context: %w", err)
	}
	if rel.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("ledger: decode created_at: %w", err)
	}
	return &rel, nil
}

// AppendDecision seals and stores the next continuity entry for the
// relationship. Appends are serialized per relationship so sequence
// numbers are contiguous; the entry and the chain-head update commit in
// one transaction, so a decision is never visible without its entry.
func (s *Store) AppendDecision(relationshipID string, at time.Time, payload chain.Payload) (chain.Entry, error) {
	unlock := s.locks.lock(relationshipID)
	defer unlock()

	rel, err := s.get(relationshipID)
	if err != nil {
		return chain.Entry{}, err
	}

	entry, err := chain.Seal(chain.New(relationshipID, rel.ChainLength+1, at, payload, rel.ChainHead))
	if err != nil {
		return chain.Entry{}, err
	}

	payloadJSON, err := json.Marshal(entry.Payload)
	if err != nil {
		return chain.Entry{}, fmt.Errorf("ledger: encode payload: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return chain.Entry{}, fmt.Errorf("ledger: begin append: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO continuity_entries (relationship_id, seq, ts, payload, prev_hash, hash)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.RelationshipID, entry.Sequence, entry.Timestamp, string(payloadJSON), entry.PrevHash, entry.Hash); err != nil {
		return chain.Entry{}, fmt.Errorf("ledger: insert entry: %w", err)
	}
	if _, err := tx.Exec(`UPDATE relationships SET chain_head = ?, chain_length = ? WHERE id = ?`,
		entry.Hash, entry.Sequence, relationshipID); err != nil {
		return chain.Entry{}, fmt.Errorf("ledger: advance chain head: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return chain.Entry{}, fmt.Errorf("ledger: commit append: %w", err)
	}

	return entry, nil
}

// Entries returns the relationship's full continuity chain ordered by
// sequence number. Fails with NotFound for unknown relationships.
func (s *Store) Entries(relationshipID string) ([]chain.Entry, error) {
	if _, err := s.get(relationshipID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT seq, ts, payload, prev_hash, hash
		FROM continuity_entries WHERE relationship_id = ? ORDER BY seq`, relationshipID)
	if err != nil {
		return nil, fmt.Errorf("ledger: query entries: %w", err)
	}
	defer rows.Close()

	var entries []chain.Entry
	for rows.Next() {
		e := chain.Entry{RelationshipID: relationshipID}
		var payloadJSON string
		if err := rows.Scan(&e.Sequence, &e.Timestamp, &payloadJSON, &e.PrevHash, &e.Hash); err != nil {
			return nil, fmt.Errorf("ledger: scan entry: %w", err)
		}
		if err := json.Unmarshal([]byte(payloadJSON), &e.Payload); err != nil {
			return nil, fmt.Errorf("ledger: decode payload: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: read entries: %w", err)
	}
	return entries, nil
}

// VerifyChain loads and verifies the relationship's continuity chain.
func (s *Store) VerifyChain(relationshipID string) (chain.VerifyResult, error) {
	entries, err := s.Entries(relationshipID)
	if err != nil {
		return chain.VerifyResult{}, err
	}
	return chain.Verify(entries), nil
}

func encodeRolesContext(roles []string, context map[string]any) (string, string, error) {
	if roles == nil {
		roles = []string{}
	}
	if context == nil {
		context = map[string]any{}
	}
	r, err := json.Marshal(roles)
	if err != nil {
		return "", "", fmt.Errorf("ledger: encode roles: %w", err)
	}
	c, err := json.Marshal(context)
	if err != nil {
		return "", "", fmt.Errorf("ledger: encode context: %w", err)
	}
	return string(r), string(c), nil
}
