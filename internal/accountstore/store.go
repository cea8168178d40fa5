// Package accountstore manages the on-disk pool of authenticated accounts:
// a JSON document of {email, refresh_token, project_id} triples, loaded at
// startup and rewritten atomically on every mutation.
package accountstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/arkline-dev/antigravity-gateway/internal/utils"
)

// Account is one authenticated identity in the pool. IsInvalid and
// InvalidReason are in-memory only: the Dispatcher sets them when a
// refresh token is rejected, but they are never written back to disk, so
// an account that was marked invalid in one process run is given another
// chance on the next.
type Account struct {
	Email         string `json:"email"`
	RefreshToken  string `json:"refresh_token"`
	ProjectID     string `json:"project_id,omitempty"`
	IsInvalid     bool   `json:"-"`
	InvalidReason string `json:"-"`
}

type document struct {
	Accounts []Account `json:"accounts"`
}

// Store is the concurrency-safe account pool, backed by a single JSON
// file.
type Store struct {
	mu       sync.RWMutex
	path     string
	accounts []Account
}

// New loads the account store from path, starting with an empty pool if
// the file is absent or fails to parse.
func New(path string) *Store {
	s := &Store{path: path}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			utils.Warn("failed to read account store %s: %v", s.path, err)
		}
		s.accounts = nil
		return
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		utils.Warn("failed to parse account store %s: %v", s.path, err)
		s.accounts = nil
		return
	}
	s.accounts = doc.Accounts
}

// List returns a snapshot of the current accounts, safe to range over
// while other goroutines mutate the store.
func (s *Store) List() []Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Account, len(s.accounts))
	copy(out, s.accounts)
	return out
}

// Get returns the account for email, if present.
func (s *Store) Get(email string) (Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if a.Email == email {
			return a, true
		}
	}
	return Account{}, false
}

// AddOrUpdate inserts account, or replaces the existing entry with the
// same email (preserving in-memory-only fields unless account sets them
// explicitly), and persists the result.
func (s *Store) AddOrUpdate(account Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for i, a := range s.accounts {
		if a.Email == account.Email {
			s.accounts[i] = account
			found = true
			break
		}
	}
	if !found {
		s.accounts = append(s.accounts, account)
	}
	return s.saveLocked()
}

// UpdateProjectID persists a discovered project ID for email without
// disturbing any other field.
func (s *Store) UpdateProjectID(email, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, a := range s.accounts {
		if a.Email == email {
			s.accounts[i].ProjectID = projectID
			return s.saveLocked()
		}
	}
	return fmt.Errorf("accountstore: no account for %s", email)
}

// MarkInvalid flips the in-memory-only invalid flag for email. It does not
// persist: a restarted process gives every account a clean slate.
func (s *Store) MarkInvalid(email, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.accounts {
		if a.Email == email {
			s.accounts[i].IsInvalid = true
			s.accounts[i].InvalidReason = reason
			return
		}
	}
}

// Remove deletes the account for email, reporting whether one was found.
func (s *Store) Remove(email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, a := range s.accounts {
		if a.Email == email {
			s.accounts = append(s.accounts[:i], s.accounts[i+1:]...)
			return true, s.saveLocked()
		}
	}
	return false, nil
}

// saveLocked writes the full document to a temp file in the store's
// directory and renames it over the target path, so readers never observe
// a partially written file. Callers must hold s.mu.
func (s *Store) saveLocked() error {
	if err := utils.EnsureParentDir(s.path); err != nil {
		return fmt.Errorf("accountstore: ensure dir: %w", err)
	}

	persisted := make([]Account, len(s.accounts))
	for i, a := range s.accounts {
		persisted[i] = Account{
			Email:        a.Email,
			RefreshToken: a.RefreshToken,
			ProjectID:    a.ProjectID,
		}
	}

	data, err := json.MarshalIndent(document{Accounts: persisted}, "", "  ")
	if err != nil {
		return fmt.Errorf("accountstore: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".accounts-*.tmp")
	if err != nil {
		return fmt.Errorf("accountstore: create temp: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("accountstore: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("accountstore: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("accountstore: rename: %w", err)
	}
	return nil
}

// Count returns the number of accounts currently in the pool.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}
