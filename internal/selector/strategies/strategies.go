// Package strategies holds selectable alternatives to the Account
// Selector's default sticky behavior: a round-robin strategy for maximum
// concurrency and a hybrid health-score + token-bucket strategy for
// deployments that want to weight selection by observed account health.
// The Dispatcher's correctness is defined against the sticky strategy in
// package selector; these are supplemental and independently tested.
package strategies

import (
	"sync"
	"time"

	"github.com/arkline-dev/antigravity-gateway/internal/accountstore"
	"github.com/arkline-dev/antigravity-gateway/internal/config"
	"github.com/arkline-dev/antigravity-gateway/internal/ratelimit"
	"github.com/arkline-dev/antigravity-gateway/internal/utils"
)

// Strategy is the common interface every selection strategy implements.
type Strategy interface {
	SelectAccount(accounts []accountstore.Account, modelID string) (*accountstore.Account, int)
	OnSuccess(email string)
	OnRateLimit(email string)
	OnFailure(email string)
}

func usable(a accountstore.Account, ledger *ratelimit.Ledger, modelID string) bool {
	return !a.IsInvalid && !ledger.IsLimited(a.Email, modelID)
}

// RoundRobinStrategy rotates to the next usable account on every request,
// trading session locality for maximum spread across the pool.
type RoundRobinStrategy struct {
	mu     sync.Mutex
	cursor int
	ledger *ratelimit.Ledger
}

// NewRoundRobinStrategy creates a RoundRobinStrategy over ledger.
func NewRoundRobinStrategy(ledger *ratelimit.Ledger) *RoundRobinStrategy {
	return &RoundRobinStrategy{ledger: ledger}
}

// SelectAccount returns the next usable account after the cursor,
// advancing the cursor to it.
func (s *RoundRobinStrategy) SelectAccount(accounts []accountstore.Account, modelID string) (*accountstore.Account, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(accounts)
	if n == 0 {
		return nil, 0
	}
	if s.cursor >= n {
		s.cursor = 0
	}

	start := (s.cursor + 1) % n
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		a := accounts[idx]
		if usable(a, s.ledger, modelID) {
			s.cursor = idx
			utils.Debug("round-robin selected %s (%d/%d)", utils.MaskEmail(a.Email), idx+1, n)
			return &a, idx
		}
	}
	return nil, s.cursor
}

func (s *RoundRobinStrategy) OnSuccess(email string)   {}
func (s *RoundRobinStrategy) OnRateLimit(email string) {}
func (s *RoundRobinStrategy) OnFailure(email string)   {}

// healthState tracks a single account's rolling health score and token
// bucket under the hybrid strategy.
type healthState struct {
	score               float64
	consecutiveFailures int
	tokens              float64
	lastRefill          time.Time
}

// HybridStrategy blends a recovering health score with a token-bucket
// throughput cap: accounts with recent failures or an empty bucket are
// deprioritized, without being excluded outright the way a hard cooldown
// would.
type HybridStrategy struct {
	mu     sync.Mutex
	ledger *ratelimit.Ledger
	health map[string]*healthState
	cfg    config.AccountSelectionConfig
}

// NewHybridStrategy creates a HybridStrategy tuned by cfg.
func NewHybridStrategy(ledger *ratelimit.Ledger, cfg config.AccountSelectionConfig) *HybridStrategy {
	return &HybridStrategy{
		ledger: ledger,
		health: make(map[string]*healthState),
		cfg:    cfg,
	}
}

func (s *HybridStrategy) stateFor(email string) *healthState {
	st, ok := s.health[email]
	if ok {
		return st
	}
	initial := 70.0
	tokens := 50.0
	if s.cfg.HealthScore != nil {
		initial = s.cfg.HealthScore.Initial
	}
	if s.cfg.TokenBucket != nil {
		tokens = s.cfg.TokenBucket.InitialTokens
	}
	st = &healthState{score: initial, tokens: tokens, lastRefill: time.Now()}
	s.health[email] = st
	return st
}

func (s *HybridStrategy) refill(st *healthState) {
	if s.cfg.TokenBucket == nil {
		return
	}
	elapsedMinutes := time.Since(st.lastRefill).Minutes()
	if elapsedMinutes <= 0 {
		return
	}
	st.tokens += elapsedMinutes * s.cfg.TokenBucket.TokensPerMinute
	if st.tokens > s.cfg.TokenBucket.MaxTokens {
		st.tokens = s.cfg.TokenBucket.MaxTokens
	}
	st.lastRefill = time.Now()
}

// SelectAccount returns the usable account with the highest combined
// health-score and token-bucket weight.
func (s *HybridStrategy) SelectAccount(accounts []accountstore.Account, modelID string) (*accountstore.Account, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *accountstore.Account
	bestIdx := -1
	bestWeight := -1.0

	for i, a := range accounts {
		if !usable(a, s.ledger, modelID) {
			continue
		}
		st := s.stateFor(a.Email)
		s.refill(st)

		minUsable := 0.0
		if s.cfg.HealthScore != nil {
			minUsable = s.cfg.HealthScore.MinUsable
		}
		if st.score < minUsable {
			continue
		}

		weight := st.score + st.tokens
		if weight > bestWeight {
			acct := a
			best = &acct
			bestIdx = i
			bestWeight = weight
		}
	}

	return best, bestIdx
}

// OnSuccess rewards email's health score and consumes one token.
func (s *HybridStrategy) OnSuccess(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stateFor(email)
	st.consecutiveFailures = 0
	if s.cfg.HealthScore != nil {
		st.score = clampScore(st.score+s.cfg.HealthScore.SuccessReward, s.cfg.HealthScore.MaxScore)
	}
	if st.tokens > 0 {
		st.tokens--
	}
}

// OnRateLimit penalizes email's health score after a 429.
func (s *HybridStrategy) OnRateLimit(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stateFor(email)
	if s.cfg.HealthScore != nil {
		st.score = clampScore(st.score+s.cfg.HealthScore.RateLimitPenalty, s.cfg.HealthScore.MaxScore)
	}
}

// OnFailure penalizes email's health score after a non-rate-limit failure.
func (s *HybridStrategy) OnFailure(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stateFor(email)
	st.consecutiveFailures++
	if s.cfg.HealthScore != nil {
		st.score = clampScore(st.score+s.cfg.HealthScore.FailurePenalty, s.cfg.HealthScore.MaxScore)
	}
}

func clampScore(score, max float64) float64 {
	if score > max {
		return max
	}
	if score < 0 {
		return 0
	}
	return score
}
