// Package confirm holds multi-factor confirmations for high-trust intents.
// Level-5 policy requires a human-granted confirmation before an intent is
// admitted; the store is a directory of JSON files so an operator (or an
// out-of-band channel) can grant and deny without going through the
// gateway process.
package confirm

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// validKey matches alphanumeric, dash, underscore, and dot characters only.
var validKey = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// validateKey rejects keys that could cause path traversal.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("key must not contain '..'")
	}
	if !validKey.MatchString(key) {
		return fmt.Errorf("key contains invalid characters: only alphanumeric, dash, underscore, and dot are allowed")
	}
	return nil
}

// safeIntent matches intent names that can appear in a key verbatim.
var safeIntent = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Key derives the confirmation key for an intent on a relationship.
// Intent names are unrestricted; a name that is not filesystem-safe is
// replaced with a short digest of itself so the key stays stable and
// usable as a file name.
func Key(relationshipID, intent string) string {
	if !safeIntent.MatchString(intent) {
		sum := sha256.Sum256([]byte(intent))
		intent = "i" + hex.EncodeToString(sum[:8])
	}
	return relationshipID + "." + intent
}

// Status represents the state of a confirmation.
type Status string

const (
	StatusPending  Status = "pending"
	StatusGranted  Status = "granted"
	StatusDenied   Status = "denied"
	StatusConsumed Status = "consumed"
	StatusExpired  Status = "expired"
)

// Confirmation is a single multi-factor confirmation and its state.
type Confirmation struct {
	Key            string     `json:"key"`
	Status         Status     `json:"status"`
	RelationshipID string     `json:"relationship_id"`
	Intent         string     `json:"intent"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// Store manages confirmation files on disk.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates a Store backed by the given directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create confirmation directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// DefaultDir returns the default confirmation store directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "intentgate-confirm")
	}
	return filepath.Join(home, ".intentgate", "confirm")
}

// Request creates a pending confirmation for the intent. No-op if one
// already exists, so a retried admission does not reset operator state.
func (s *Store) Request(relationshipID, intent string) error {
	key := Key(relationshipID, intent)
	if err := validateKey(key); err != nil {
		return fmt.Errorf("invalid confirmation key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	c := Confirmation{
		Key:            key,
		Status:         StatusPending,
		RelationshipID: relationshipID,
		Intent:         intent,
		CreatedAt:      time.Now().UTC(),
	}
	return s.writeAtomic(path, c)
}

// Grant marks a confirmation as granted. If duration > 0, it covers every
// admission until it expires. If duration == 0, it is one-shot: the first
// admission consumes it.
func (s *Store) Grant(key string, duration time.Duration) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("invalid confirmation key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.read(key)
	if err != nil {
		return fmt.Errorf("confirmation %q not found: %w", key, err)
	}

	c.Status = StatusGranted
	now := time.Now().UTC()
	c.ResolvedAt = &now
	if duration > 0 {
		exp := now.Add(duration)
		c.ExpiresAt = &exp
	}
	return s.writeAtomic(s.path(key), *c)
}

// Deny marks a confirmation as denied.
func (s *Store) Deny(key string) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("invalid confirmation key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.read(key)
	if err != nil {
		return fmt.Errorf("confirmation %q not found: %w", key, err)
	}

	c.Status = StatusDenied
	now := time.Now().UTC()
	c.ResolvedAt = &now
	return s.writeAtomic(s.path(key), *c)
}

// Use reports whether a confirmation covers an admission right now, and
// consumes it if it was one-shot. A missing confirmation is recorded as
// pending so the operator can see what is waiting on them.
func (s *Store) Use(relationshipID, intent string) (bool, error) {
	key := Key(relationshipID, intent)
	if err := validateKey(key); err != nil {
		return false, fmt.Errorf("invalid confirmation key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.read(key)
	if err != nil {
		if os.IsNotExist(err) {
			now := time.Now().UTC()
			pending := Confirmation{
				Key: key, Status: StatusPending,
				RelationshipID: relationshipID, Intent: intent, CreatedAt: now,
			}
			if werr := s.writeAtomic(s.path(key), pending); werr != nil {
				return false, werr
			}
			return false, nil
		}
		return false, err
	}

	if c.Status != StatusGranted {
		return false, nil
	}

	now := time.Now().UTC()
	if c.ExpiresAt != nil {
		if now.After(*c.ExpiresAt) {
			c.Status = StatusExpired
			if err := s.writeAtomic(s.path(key), *c); err != nil {
				return false, err
			}
			return false, nil
		}
		return true, nil
	}

	// One-shot grant: consume it.
	c.Status = StatusConsumed
	c.ResolvedAt = &now
	if err := s.writeAtomic(s.path(key), *c); err != nil {
		return false, err
	}
	return true, nil
}

// Status returns the current state of a confirmation.
func (s *Store) Status(key string) (Status, error) {
	if err := validateKey(key); err != nil {
		return "", fmt.Errorf("invalid confirmation key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.read(key)
	if err != nil {
		return "", fmt.Errorf("confirmation %q not found", key)
	}

	if c.Status == StatusGranted && c.ExpiresAt != nil && time.Now().UTC().After(*c.ExpiresAt) {
		c.Status = StatusExpired
		if err := s.writeAtomic(s.path(key), *c); err != nil {
			return "", err
		}
		return StatusExpired, nil
	}
	return c.Status, nil
}

// List returns all confirmations in the store.
func (s *Store) List() ([]Confirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var confirmations []Confirmation
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		c, err := s.read(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		confirmations = append(confirmations, *c)
	}
	return confirmations, nil
}

// Cleanup removes all confirmation files in the store.
func (s *Store) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var errs []error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *Store) read(key string) (*Confirmation, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, err
	}

	var c Confirmation
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) writeAtomic(path string, c Confirmation) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
