// Package server exposes the admission gateway over HTTP. The API is
// plain JSON: relationship lifecycle, intent admission, and continuity
// chain inspection, one handler per operation.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/humotica/intentgate/internal/admission"
	"github.com/humotica/intentgate/internal/alert"
	"github.com/humotica/intentgate/internal/confirm"
	"github.com/humotica/intentgate/internal/ledger"
	"github.com/humotica/intentgate/internal/model"
	"github.com/humotica/intentgate/internal/policy"
	"github.com/humotica/intentgate/internal/ratelimit"
)

// Config holds gateway server configuration.
type Config struct {
	Port       int
	ConfigPath string
	LedgerPath string
	ConfirmDir string
}

// Server is the HTTP admission gateway.
type Server struct {
	cfg         Config
	store       *ledger.Store
	coordinator *admission.Coordinator
	httpServer  *http.Server
}

// New creates a server with loaded policy, ledger, and confirmation store.
func New(cfg Config) (*Server, error) {
	policyCfg, policyHash, err := policy.LoadWithHash(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := ledger.Open(cfg.LedgerPath, nil)
	if err != nil {
		return nil, err
	}

	confirmDir := cfg.ConfirmDir
	if confirmDir == "" {
		confirmDir = confirm.DefaultDir()
	}
	confirmations, err := confirm.NewStore(confirmDir)
	if err != nil {
		store.Close()
		return nil, err
	}

	s := &Server{
		cfg:   cfg,
		store: store,
		coordinator: admission.New(admission.Options{
			Store:         store,
			Config:        policyCfg,
			PolicyHash:    policyHash,
			Limiter:       ratelimit.New(),
			Confirmations: confirmations,
			Notifier:      admission.DispatcherNotifier(alert.NewDispatcher(policyCfg.Alerts)),
		}),
	}
	return s, nil
}

// ReloadPolicy re-reads the config file and swaps the active policy.
func (s *Server) ReloadPolicy() error {
	cfg, hash, err := policy.LoadWithHash(s.cfg.ConfigPath)
	if err != nil {
		return err
	}
	s.coordinator.ReloadPolicy(cfg, hash)
	return nil
}

// Handler returns the HTTP routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/relationships", s.handlePropose)
	mux.HandleFunc("POST /v1/relationships/{id}/accept", s.handleAccept)
	mux.HandleFunc("POST /v1/relationships/{id}/reject", s.handleReject)
	mux.HandleFunc("POST /v1/relationships/{id}/expire", s.handleExpire)
	mux.HandleFunc("GET /v1/relationships/{id}", s.handleGet)
	mux.HandleFunc("GET /v1/relationships/{id}/chain", s.handleChain)
	mux.HandleFunc("GET /v1/relationships/{id}/verify", s.handleVerify)
	mux.HandleFunc("POST /v1/admit", s.handleAdmit)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// Serve starts the HTTP server and blocks until it stops.
func (s *Server) Serve() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.cfg.Port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	fmt.Fprintf(os.Stderr, "intentgate listening on %s\n", lis.Addr())

	if err := s.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server and closes the ledger.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	if cerr := s.store.Close(); err == nil {
		err = cerr
	}
	return err
}

type proposeRequest struct {
	Initiator          string         `json:"initiator"`
	Responder          string         `json:"responder"`
	Roles              []string       `json:"roles"`
	TrustLevel         int            `json:"trust_level"`
	Context            map[string]any `json:"context,omitempty"`
	InitiatorPublicKey string         `json:"initiator_public_key"`
	BindingHash        string         `json:"binding_hash"`
}

func (s *Server) handlePropose(w http.ResponseWriter, r *http.Request) {
	var req proposeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rel, err := s.store.Propose(ledger.ProposeParams{
		Initiator:          req.Initiator,
		Responder:          req.Responder,
		Roles:              req.Roles,
		TrustLevel:         req.TrustLevel,
		Context:            req.Context,
		InitiatorPublicKey: req.InitiatorPublicKey,
		BindingHash:        req.BindingHash,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rel)
}

type acceptRequest struct {
	ResponderPublicKey string `json:"responder_public_key"`
	BindingHash        string `json:"binding_hash"`
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rel, err := s.store.Accept(r.PathValue("id"), req.ResponderPublicKey, req.BindingHash)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Reject(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": string(model.StateRejected)})
}

func (s *Server) handleExpire(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Expire(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": string(model.StateExpired)})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rel, err := s.store.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

func (s *Server) handleChain(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.Entries(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	result, err := s.store.VerifyChain(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAdmit(w http.ResponseWriter, r *http.Request) {
	var req model.IntentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := s.coordinator.Admit(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "ok",
		"policy_hash": s.coordinator.PolicyHash(),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "write response: %v\n", err)
	}
}

// writeError maps sentinel errors to HTTP statuses. Anything unmapped is
// a 500; denials never reach here, they are ordinary admission results.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, model.ErrInvalidBinding),
		errors.Is(err, model.ErrBindingMismatch),
		errors.Is(err, model.ErrInvalidWindow),
		errors.Is(err, model.ErrUnknownLevel):
		status = http.StatusBadRequest
	case strings.Contains(err.Error(), "required"):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
