// Package selector implements the Account Selector: a round-robin pointer
// over the account pool with sticky-session preference, skip-if-limited
// behavior, and a short-wait policy that prefers sleeping over rotating
// when the current account's cooldown is brief. The Dispatcher's
// correctness is defined against exactly this algorithm.
package selector

import (
	"sync"

	"github.com/arkline-dev/antigravity-gateway/internal/accountstore"
	"github.com/arkline-dev/antigravity-gateway/internal/config"
	"github.com/arkline-dev/antigravity-gateway/internal/ratelimit"
)

// Selector holds the monotonically advancing index into the account list.
// It is recomputed modulo the current account count on every access, so a
// shrinking or growing pool never leaves the index out of range.
type Selector struct {
	mu     sync.Mutex
	index  int
	store  *accountstore.Store
	ledger *ratelimit.Ledger
}

// New creates a Selector over store and ledger, starting at index 0.
func New(store *accountstore.Store, ledger *ratelimit.Ledger) *Selector {
	return &Selector{store: store, ledger: ledger}
}

func (s *Selector) usable(a accountstore.Account, modelID string) bool {
	if a.IsInvalid {
		return false
	}
	return !s.ledger.IsLimited(a.Email, modelID)
}

// PickNext advances the index by one position (mod account count) and
// returns the account there if it's usable; otherwise it keeps advancing,
// up to one full lap. If every account is invalid or limited, the index is
// restored to its pre-call value and PickNext returns (nil, false).
func (s *Selector) PickNext(modelID string) (*accountstore.Account, bool) {
	accounts := s.store.List()
	n := len(accounts)
	if n == 0 {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.index
	for i := 0; i < n; i++ {
		s.index = (s.index + 1) % n
		a := accounts[s.index]
		if s.usable(a, modelID) {
			return &a, true
		}
	}
	s.index = start
	return nil, false
}

// CurrentSticky returns the account at the current index if it's usable,
// without advancing the index.
func (s *Selector) CurrentSticky(modelID string) (*accountstore.Account, bool) {
	accounts := s.store.List()
	n := len(accounts)
	if n == 0 {
		return nil, false
	}

	s.mu.Lock()
	if s.index >= n {
		s.index = s.index % n
	}
	idx := s.index
	s.mu.Unlock()

	a := accounts[idx]
	if s.usable(a, modelID) {
		return &a, true
	}
	return nil, false
}

// ShouldWaitForCurrent reports whether the current account (if not
// invalid) has a residual cooldown worth waiting out: strictly positive
// and no greater than config.MaxWaitBeforeErrorMs. When true, it also
// returns the wait and the account.
func (s *Selector) ShouldWaitForCurrent(modelID string) (wait int64, account *accountstore.Account, ok bool) {
	accounts := s.store.List()
	n := len(accounts)
	if n == 0 {
		return 0, nil, false
	}

	s.mu.Lock()
	if s.index >= n {
		s.index = s.index % n
	}
	idx := s.index
	s.mu.Unlock()

	a := accounts[idx]
	if a.IsInvalid {
		return 0, nil, false
	}

	waitMs := s.ledger.WaitMsForAccount(a.Email, modelID)
	if waitMs > 0 && waitMs <= config.MaxWaitBeforeErrorMs {
		return waitMs, &a, true
	}
	return 0, nil, false
}

// PickSticky is the Dispatcher's primary entry point: prefer the current
// account; if it isn't usable but its wait is short enough to be worth
// sleeping for (at most half of config.MaxWaitBeforeErrorMs), return a
// "sleep hint" of (nil, waitMs) instead of rotating; otherwise fall
// through to PickNext.
func (s *Selector) PickSticky(modelID string) (account *accountstore.Account, waitMs int64) {
	if a, ok := s.CurrentSticky(modelID); ok {
		return a, 0
	}

	if wait, _, ok := s.ShouldWaitForCurrent(modelID); ok && wait <= config.MaxWaitBeforeErrorMs/2 {
		return nil, wait
	}

	if a, ok := s.PickNext(modelID); ok {
		return a, 0
	}
	return nil, 0
}

// IsAllRateLimited reports whether every non-invalid account is currently
// limited for modelID.
func (s *Selector) IsAllRateLimited(modelID string) bool {
	accounts := s.store.List()
	any := false
	for _, a := range accounts {
		if a.IsInvalid {
			continue
		}
		any = true
		if !s.ledger.IsLimited(a.Email, modelID) {
			return false
		}
	}
	return any
}

// Index returns the selector's current position, for diagnostics.
func (s *Selector) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}
