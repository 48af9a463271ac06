package server

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/humotica/intentgate/internal/identity"
	"github.com/humotica/intentgate/internal/model"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	dir := t.TempDir()
	s, err := New(Config{
		ConfigPath: filepath.Join(dir, "config.yaml"), // missing: defaults
		LedgerPath: filepath.Join(dir, "ledger.db"),
		ConfirmDir: filepath.Join(dir, "confirm"),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.store.Close()
	})
	return s, ts
}

func postJSON(t *testing.T, url string, body any) (*http.Response, []byte) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func getJSON(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func keyAndBinding(t *testing.T, roles []string) (string, string) {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return base64.StdEncoding.EncodeToString(pub), identity.DeriveBinding(pub, roles)
}

func proposeHTTP(t *testing.T, ts *httptest.Server, level int) model.Relationship {
	t.Helper()
	roles := []string{"provider", "client"}
	key, binding := keyAndBinding(t, roles)

	resp, body := postJSON(t, ts.URL+"/v1/relationships", map[string]any{
		"initiator":            "bank_ing",
		"responder":            "client_jasper",
		"roles":                roles,
		"trust_level":          level,
		"initiator_public_key": key,
		"binding_hash":         binding,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("propose: %d %s", resp.StatusCode, body)
	}

	var rel model.Relationship
	if err := json.Unmarshal(body, &rel); err != nil {
		t.Fatalf("decode relationship: %v", err)
	}
	return rel
}

func acceptHTTP(t *testing.T, ts *httptest.Server, rel model.Relationship) {
	t.Helper()
	key, binding := keyAndBinding(t, rel.Roles)
	resp, body := postJSON(t, fmt.Sprintf("%s/v1/relationships/%s/accept", ts.URL, rel.ID), map[string]any{
		"responder_public_key": key,
		"binding_hash":         binding,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("accept: %d %s", resp.StatusCode, body)
	}
}

func TestRelationshipLifecycleOverHTTP(t *testing.T) {
	_, ts := newTestServer(t)

	rel := proposeHTTP(t, ts, 2)
	if rel.State != model.StatePending {
		t.Fatalf("state %q, want pending", rel.State)
	}

	acceptHTTP(t, ts, rel)

	resp, body := getJSON(t, ts.URL+"/v1/relationships/"+rel.ID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: %d %s", resp.StatusCode, body)
	}
	var got model.Relationship
	json.Unmarshal(body, &got)
	if got.State != model.StateAccepted {
		t.Fatalf("state %q, want accepted", got.State)
	}
}

func TestAdmitOverHTTP(t *testing.T) {
	_, ts := newTestServer(t)
	rel := proposeHTTP(t, ts, 1)
	acceptHTTP(t, ts, rel)

	resp, body := postJSON(t, ts.URL+"/v1/admit", model.IntentRequest{
		RelationshipID: rel.ID,
		Intent:         "account_discussion",
		Protocol:       "sip_voice",
		Context:        map[string]any{"category": "emergency"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admit: %d %s", resp.StatusCode, body)
	}

	var result model.AdmissionResult
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.IsAllowed() || result.Sequence != 1 || result.Allocation == nil {
		t.Fatalf("result: %+v", result)
	}

	// The decision shows up on the chain endpoint.
	resp, body = getJSON(t, fmt.Sprintf("%s/v1/relationships/%s/chain", ts.URL, rel.ID))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chain: %d %s", resp.StatusCode, body)
	}
	var chainBody struct {
		Entries []struct {
			Seq  int64  `json:"seq"`
			Hash string `json:"hash"`
		} `json:"entries"`
	}
	json.Unmarshal(body, &chainBody)
	if len(chainBody.Entries) != 1 || chainBody.Entries[0].Hash != result.EntryHash {
		t.Fatalf("chain entries: %+v", chainBody)
	}

	resp, body = getJSON(t, fmt.Sprintf("%s/v1/relationships/%s/verify", ts.URL, rel.ID))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify: %d %s", resp.StatusCode, body)
	}
	var verify struct {
		Valid   bool `json:"valid"`
		Entries int  `json:"entries"`
	}
	json.Unmarshal(body, &verify)
	if !verify.Valid || verify.Entries != 1 {
		t.Fatalf("verify: %+v", verify)
	}
}

func TestAdmitDenialIsNotAnHTTPError(t *testing.T) {
	_, ts := newTestServer(t)
	rel := proposeHTTP(t, ts, 3)
	acceptHTTP(t, ts, rel)

	// Level 3 without an appointment: denied, but still HTTP 200.
	resp, body := postJSON(t, ts.URL+"/v1/admit", model.IntentRequest{
		RelationshipID: rel.ID,
		Intent:         "account_discussion",
		Protocol:       "sip_voice",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admit: %d %s", resp.StatusCode, body)
	}
	var result model.AdmissionResult
	json.Unmarshal(body, &result)
	if result.IsAllowed() || result.Reason != model.ReasonNoAppointment {
		t.Fatalf("result: %+v", result)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	_, ts := newTestServer(t)

	// Unknown relationship → 404.
	resp, _ := getJSON(t, ts.URL+"/v1/relationships/rel-missing")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get missing: %d", resp.StatusCode)
	}

	// Double reject → 409.
	rel := proposeHTTP(t, ts, 1)
	resp, _ = postJSON(t, fmt.Sprintf("%s/v1/relationships/%s/reject", ts.URL, rel.ID), map[string]any{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first reject: %d", resp.StatusCode)
	}
	resp, _ = postJSON(t, fmt.Sprintf("%s/v1/relationships/%s/reject", ts.URL, rel.ID), map[string]any{})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second reject: %d", resp.StatusCode)
	}

	// Malformed binding → 400.
	resp, _ = postJSON(t, ts.URL+"/v1/relationships", map[string]any{
		"initiator": "a", "responder": "b", "trust_level": 1,
		"initiator_public_key": "zzzz", "binding_hash": "junk",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad binding: %d", resp.StatusCode)
	}

	// Out-of-range trust level → 400.
	key, binding := keyAndBinding(t, nil)
	resp, _ = postJSON(t, ts.URL+"/v1/relationships", map[string]any{
		"initiator": "a", "responder": "b", "trust_level": 9,
		"initiator_public_key": key, "binding_hash": binding,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad level: %d", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	resp, body := getJSON(t, ts.URL+"/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %d", resp.StatusCode)
	}
	var health map[string]string
	json.Unmarshal(body, &health)
	if health["status"] != "ok" || health["policy_hash"] == "" {
		t.Fatalf("health body: %+v", health)
	}
}

func TestReloadPolicyFromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	s, err := New(Config{
		ConfigPath: configPath,
		LedgerPath: filepath.Join(dir, "ledger.db"),
		ConfirmDir: filepath.Join(dir, "confirm"),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer s.store.Close()

	before := s.coordinator.PolicyHash()
	if err := os.WriteFile(configPath, []byte("risk:\n  threshold: 0.5\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := s.ReloadPolicy(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if s.coordinator.PolicyHash() == before {
		t.Fatal("policy hash unchanged after reload")
	}
}
