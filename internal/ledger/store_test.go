package ledger

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/humotica/intentgate/internal/chain"
	"github.com/humotica/intentgate/internal/identity"
	"github.com/humotica/intentgate/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ledger.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newParty(t *testing.T, roles []string) (string, string) {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return base64.StdEncoding.EncodeToString(pub), identity.DeriveBinding(pub, roles)
}

func proposeTest(t *testing.T, s *Store, level int) *model.Relationship {
	t.Helper()
	roles := []string{"caller", "client"}
	key, binding := newParty(t, roles)
	rel, err := s.Propose(ProposeParams{
		Initiator:          "bank_ing",
		Responder:          "client_jasper",
		Roles:              roles,
		TrustLevel:         level,
		Context:            map[string]any{"license": "AFM-12345"},
		InitiatorPublicKey: key,
		BindingHash:        binding,
	})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	return rel
}

func acceptTest(t *testing.T, s *Store, rel *model.Relationship) *model.Relationship {
	t.Helper()
	key, binding := newParty(t, rel.Roles)
	accepted, err := s.Accept(rel.ID, key, binding)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	return accepted
}

func TestProposeCreatesPending(t *testing.T) {
	s := newTestStore(t)
	rel := proposeTest(t, s, 3)

	if rel.State != model.StatePending {
		t.Fatalf("state %q, want pending", rel.State)
	}

	got, err := s.Get(rel.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Initiator != "bank_ing" || got.Responder != "client_jasper" || got.TrustLevel != 3 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Context["license"] != "AFM-12345" {
		t.Fatalf("context lost: %+v", got.Context)
	}
	if got.ChainLength != 0 || got.ChainHead != "" {
		t.Fatalf("new relationship has chain state: %+v", got)
	}
}

func TestProposeRejectsMalformedBinding(t *testing.T) {
	s := newTestStore(t)
	key, _ := newParty(t, nil)

	_, err := s.Propose(ProposeParams{
		Initiator:          "a",
		Responder:          "b",
		TrustLevel:         1,
		InitiatorPublicKey: key,
		BindingHash:        "not-a-binding",
	})
	if !errors.Is(err, model.ErrInvalidBinding) {
		t.Fatalf("expected ErrInvalidBinding, got %v", err)
	}
}

func TestProposeRejectsUnknownLevel(t *testing.T) {
	s := newTestStore(t)
	key, binding := newParty(t, nil)

	for _, level := range []int{-1, 6} {
		_, err := s.Propose(ProposeParams{
			Initiator: "a", Responder: "b", TrustLevel: level,
			InitiatorPublicKey: key, BindingHash: binding,
		})
		if !errors.Is(err, model.ErrUnknownLevel) {
			t.Fatalf("level %d: expected ErrUnknownLevel, got %v", level, err)
		}
	}
}

func TestAcceptTransitionsToAccepted(t *testing.T) {
	s := newTestStore(t)
	rel := proposeTest(t, s, 3)

	accepted := acceptTest(t, s, rel)
	if accepted.State != model.StateAccepted {
		t.Fatalf("state %q, want accepted", accepted.State)
	}

	got, _ := s.Get(rel.ID)
	if got.State != model.StateAccepted || got.ResponderPublicKey == "" {
		t.Fatalf("accept not persisted: %+v", got)
	}
}

func TestAcceptUnknownRelationship(t *testing.T) {
	s := newTestStore(t)
	key, binding := newParty(t, nil)

	_, err := s.Accept("rel-missing", key, binding)
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAcceptBindingInconsistentWithRoles(t *testing.T) {
	s := newTestStore(t)
	rel := proposeTest(t, s, 2)

	// Binding committing to a different role set than the proposal declared.
	key, binding := newParty(t, []string{"impostor"})
	_, err := s.Accept(rel.ID, key, binding)
	if !errors.Is(err, model.ErrBindingMismatch) {
		t.Fatalf("expected ErrBindingMismatch, got %v", err)
	}

	got, _ := s.Get(rel.ID)
	if got.State != model.StatePending {
		t.Fatalf("failed accept must not change state, got %q", got.State)
	}
}

func TestAcceptOnlyFromPending(t *testing.T) {
	s := newTestStore(t)
	rel := proposeTest(t, s, 2)
	acceptTest(t, s, rel)

	key, binding := newParty(t, rel.Roles)
	if _, err := s.Accept(rel.ID, key, binding); !errors.Is(err, model.ErrInvalidState) {
		t.Fatalf("accept on accepted: expected ErrInvalidState, got %v", err)
	}

	if err := s.Expire(rel.ID); err != nil {
		t.Fatalf("expire: %v", err)
	}
	if _, err := s.Accept(rel.ID, key, binding); !errors.Is(err, model.ErrInvalidState) {
		t.Fatalf("accept on expired: expected ErrInvalidState, got %v", err)
	}
}

func TestRejectIsTerminal(t *testing.T) {
	s := newTestStore(t)
	rel := proposeTest(t, s, 1)

	if err := s.Reject(rel.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	got, _ := s.Get(rel.ID)
	if got.State != model.StateRejected {
		t.Fatalf("state %q, want rejected", got.State)
	}

	// Second reject fails with InvalidState.
	if err := s.Reject(rel.ID); !errors.Is(err, model.ErrInvalidState) {
		t.Fatalf("double reject: expected ErrInvalidState, got %v", err)
	}

	key, binding := newParty(t, rel.Roles)
	if _, err := s.Accept(rel.ID, key, binding); !errors.Is(err, model.ErrInvalidState) {
		t.Fatalf("accept after reject: expected ErrInvalidState, got %v", err)
	}
}

func TestExpireRequiresAccepted(t *testing.T) {
	s := newTestStore(t)
	rel := proposeTest(t, s, 1)

	if err := s.Expire(rel.ID); !errors.Is(err, model.ErrInvalidState) {
		t.Fatalf("expire on pending: expected ErrInvalidState, got %v", err)
	}

	acceptTest(t, s, rel)
	if err := s.Expire(rel.ID); err != nil {
		t.Fatalf("expire: %v", err)
	}
	if err := s.Expire(rel.ID); !errors.Is(err, model.ErrInvalidState) {
		t.Fatalf("double expire: expected ErrInvalidState, got %v", err)
	}
}

func TestGetDoesNotMutate(t *testing.T) {
	s := newTestStore(t)
	rel := proposeTest(t, s, 2)

	for i := 0; i < 5; i++ {
		got, err := s.Get(rel.ID)
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if got.State != model.StatePending || got.ChainLength != 0 {
			t.Fatalf("get %d mutated state: %+v", i, got)
		}
	}
}

func testPayload(decision model.Decision, reason string) chain.Payload {
	return chain.Payload{
		Intent:     "account_discussion",
		Protocol:   "sip_voice",
		Context:    map[string]any{"subject": "mortgage"},
		Decision:   decision,
		Reason:     reason,
		PolicyHash: "sha256:test",
	}
}

func TestAppendDecisionAdvancesChain(t *testing.T) {
	s := newTestStore(t)
	rel := proposeTest(t, s, 3)
	acceptTest(t, s, rel)

	at := time.Date(2026, 3, 14, 14, 45, 0, 0, time.UTC)
	e1, err := s.AppendDecision(rel.ID, at, testPayload(model.Allowed, ""))
	if err != nil {
		t.Fatalf("append 1: %v", err)
	}
	e2, err := s.AppendDecision(rel.ID, at.Add(time.Minute), testPayload(model.Denied, model.ReasonRiskBelowThreshold))
	if err != nil {
		t.Fatalf("append 2: %v", err)
	}

	if e1.Sequence != 1 || e2.Sequence != 2 {
		t.Fatalf("sequences %d, %d", e1.Sequence, e2.Sequence)
	}
	if e1.PrevHash != "" || e2.PrevHash != e1.Hash {
		t.Fatalf("link broken: %q -> %q", e1.Hash, e2.PrevHash)
	}

	got, _ := s.Get(rel.ID)
	if got.ChainHead != e2.Hash || got.ChainLength != 2 {
		t.Fatalf("head not advanced: %+v", got)
	}

	result, err := s.VerifyChain(rel.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !result.Valid || result.Entries != 2 {
		t.Fatalf("chain invalid: %+v", result)
	}
}

func TestEntriesUnknownRelationship(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Entries("rel-missing"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestVerifyChainDetectsStoredTampering(t *testing.T) {
	s := newTestStore(t)
	rel := proposeTest(t, s, 3)
	acceptTest(t, s, rel)

	at := time.Now().UTC()
	for i := 0; i < 3; i++ {
		if _, err := s.AppendDecision(rel.ID, at.Add(time.Duration(i)*time.Second), testPayload(model.Allowed, "")); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	// Rewrite a stored payload behind the ledger's back.
	if _, err := s.db.Exec(`UPDATE continuity_entries SET payload = ? WHERE relationship_id = ? AND seq = 2`,
		`{"intent":"account_discussion","protocol":"sip_voice","decision":"allowed","policy_hash":"sha256:forged"}`,
		rel.ID); err != nil {
		t.Fatalf("tamper: %v", err)
	}

	result, err := s.VerifyChain(rel.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.Valid {
		t.Fatal("tampered chain verified as valid")
	}
	if result.ErrorSeq != 2 {
		t.Fatalf("error at seq %d, want 2", result.ErrorSeq)
	}
	if !errors.Is(result.Err(), model.ErrChainIntegrity) {
		t.Fatalf("expected ErrChainIntegrity, got %v", result.Err())
	}
}

func TestConcurrentAppendsStayContiguous(t *testing.T) {
	s := newTestStore(t)
	rel := proposeTest(t, s, 1)
	acceptTest(t, s, rel)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AppendDecision(rel.ID, time.Now().UTC(), testPayload(model.Allowed, ""))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	entries, err := s.Entries(rel.ID)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != n {
		t.Fatalf("%d entries, want %d", len(entries), n)
	}
	for i, e := range entries {
		if e.Sequence != int64(i+1) {
			t.Fatalf("gap: entry %d has seq %d", i, e.Sequence)
		}
	}
	if result := chain.Verify(entries); !result.Valid {
		t.Fatalf("concurrent chain invalid: %+v", result)
	}
}

func TestCrossRelationshipAppendsIndependent(t *testing.T) {
	s := newTestStore(t)

	var rels []*model.Relationship
	for i := 0; i < 4; i++ {
		rel := proposeTest(t, s, 1)
		acceptTest(t, s, rel)
		rels = append(rels, rel)
	}

	var wg sync.WaitGroup
	for _, rel := range rels {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				if _, err := s.AppendDecision(id, time.Now().UTC(), testPayload(model.Allowed, "")); err != nil {
					panic(fmt.Sprintf("append %s: %v", id, err))
				}
			}
		}(rel.ID)
	}
	wg.Wait()

	for _, rel := range rels {
		result, err := s.VerifyChain(rel.ID)
		if err != nil || !result.Valid || result.Entries != 5 {
			t.Fatalf("relationship %s: %+v err=%v", rel.ID, result, err)
		}
	}
}
