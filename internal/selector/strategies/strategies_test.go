package strategies

import (
	"testing"

	"github.com/arkline-dev/antigravity-gateway/internal/accountstore"
	"github.com/arkline-dev/antigravity-gateway/internal/config"
	"github.com/arkline-dev/antigravity-gateway/internal/ratelimit"
)

func TestRoundRobinStrategy_RotatesThroughEveryAccount(t *testing.T) {
	accounts := []accountstore.Account{{Email: "a@x"}, {Email: "b@x"}, {Email: "c@x"}}
	s := NewRoundRobinStrategy(ratelimit.NewLedger(nil))

	seen := make(map[string]bool)
	for i := 0; i < len(accounts); i++ {
		a, _ := s.SelectAccount(accounts, "")
		if a == nil {
			t.Fatalf("expected an account on iteration %d", i)
		}
		seen[a.Email] = true
	}
	for _, a := range accounts {
		if !seen[a.Email] {
			t.Errorf("expected round-robin to visit %s", a.Email)
		}
	}
}

func TestRoundRobinStrategy_SkipsLimitedAccounts(t *testing.T) {
	accounts := []accountstore.Account{{Email: "a@x"}, {Email: "b@x"}}
	ledger := ratelimit.NewLedger(nil)
	ledger.Mark("b@x", 30_000, "")
	s := NewRoundRobinStrategy(ledger)

	for i := 0; i < 3; i++ {
		a, _ := s.SelectAccount(accounts, "")
		if a == nil || a.Email != "a@x" {
			t.Fatalf("expected round-robin to always return a@x while b@x is limited, got %v", a)
		}
	}
}

func TestRoundRobinStrategy_EmptyPool(t *testing.T) {
	s := NewRoundRobinStrategy(ratelimit.NewLedger(nil))
	if a, _ := s.SelectAccount(nil, ""); a != nil {
		t.Errorf("expected nil account for an empty pool, got %v", a)
	}
}

func hybridCfg() config.AccountSelectionConfig {
	return config.AccountSelectionConfig{
		Strategy: config.StrategyHybrid,
		HealthScore: &config.HealthScoreConfig{
			Initial:          70,
			SuccessReward:    1,
			RateLimitPenalty: -10,
			FailurePenalty:   -20,
			MinUsable:        50,
			MaxScore:         100,
		},
		TokenBucket: &config.TokenBucketConfig{
			MaxTokens:       50,
			TokensPerMinute: 6,
			InitialTokens:   50,
		},
	}
}

func TestHybridStrategy_PrefersHigherHealthScore(t *testing.T) {
	accounts := []accountstore.Account{{Email: "a@x"}, {Email: "b@x"}}
	ledger := ratelimit.NewLedger(nil)
	s := NewHybridStrategy(ledger, hybridCfg())

	// Prime both accounts so their health state exists, then penalize a@x.
	s.OnSuccess("a@x")
	s.OnSuccess("b@x")
	s.OnFailure("a@x")
	s.OnFailure("a@x")

	a, _ := s.SelectAccount(accounts, "")
	if a == nil || a.Email != "b@x" {
		t.Fatalf("expected the strategy to prefer the healthier account b@x, got %v", a)
	}
}

func TestHybridStrategy_ExcludesAccountsBelowMinUsable(t *testing.T) {
	accounts := []accountstore.Account{{Email: "a@x"}}
	s := NewHybridStrategy(ratelimit.NewLedger(nil), hybridCfg())

	for i := 0; i < 10; i++ {
		s.OnFailure("a@x")
	}

	a, _ := s.SelectAccount(accounts, "")
	if a != nil {
		t.Errorf("expected an account whose health dropped below MinUsable to be excluded, got %v", a)
	}
}

func TestHybridStrategy_SkipsLimitedAccounts(t *testing.T) {
	accounts := []accountstore.Account{{Email: "a@x"}}
	ledger := ratelimit.NewLedger(nil)
	ledger.Mark("a@x", 30_000, "")
	s := NewHybridStrategy(ledger, hybridCfg())

	if a, _ := s.SelectAccount(accounts, ""); a != nil {
		t.Errorf("expected a rate-limited account to be excluded regardless of health, got %v", a)
	}
}
