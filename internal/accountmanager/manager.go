// Package accountmanager wires the Account Store, Token Cache, Project
// Cache, Rate-Limit Ledger, Account Selector, and OAuth Client into the
// single facade the Dispatcher and the accounts CLI both drive: fetching
// a usable account, minting a bearer token for it, resolving its project,
// and reacting to the outcome of an Upstream call.
package accountmanager

import (
	"context"
	"sync"
	"time"

	"github.com/arkline-dev/antigravity-gateway/internal/accountstore"
	"github.com/arkline-dev/antigravity-gateway/internal/config"
	"github.com/arkline-dev/antigravity-gateway/internal/gatewayerr"
	"github.com/arkline-dev/antigravity-gateway/internal/oauthclient"
	"github.com/arkline-dev/antigravity-gateway/internal/ratelimit"
	"github.com/arkline-dev/antigravity-gateway/internal/selector"
	"github.com/arkline-dev/antigravity-gateway/internal/selector/strategies"
	"github.com/arkline-dev/antigravity-gateway/internal/tokencache"
	"github.com/arkline-dev/antigravity-gateway/internal/utils"
)

// Manager is the facade the Dispatcher depends on.
type Manager struct {
	store    *accountstore.Store
	tokens   *tokencache.TokenCache
	projects *tokencache.ProjectCache
	ledger   *ratelimit.Ledger
	sel      *selector.Selector

	// strategy, when non-nil, overrides PickNext's rotation with an
	// alternate selection policy (round-robin or hybrid health-score).
	// PickSticky's session-locality behavior always runs through sel,
	// per spec.md §4.6 and SPEC_FULL.md §2 ("the Dispatcher's
	// correctness is defined against the sticky strategy").
	strategy strategies.Strategy

	// refreshLocks serializes concurrent refresh attempts for the same
	// account, so two in-flight requests against a cold token cache
	// don't both hit the refresh endpoint.
	refreshMu    sync.Mutex
	refreshLocks map[string]*sync.Mutex
}

// New wires a Manager over store, a fresh token/project cache pair, and a
// ledger (which may itself be mirrored to Redis; see pkg/ledgermirror).
// Account rotation (PickNext) runs through the strategy named by cfg's
// account-selection config; cfg may be nil, which keeps the default
// sticky/round-robin selector behavior with no extra strategy layered on.
func New(store *accountstore.Store, ledger *ratelimit.Ledger, cfg *config.Config) *Manager {
	m := &Manager{
		store:        store,
		tokens:       tokencache.NewTokenCache(),
		projects:     tokencache.NewProjectCache(),
		ledger:       ledger,
		sel:          selector.New(store, ledger),
		refreshLocks: make(map[string]*sync.Mutex),
	}

	if cfg != nil {
		switch cfg.GetStrategy() {
		case config.StrategyRoundRobin:
			m.strategy = strategies.NewRoundRobinStrategy(ledger)
		case config.StrategyHybrid:
			m.strategy = strategies.NewHybridStrategy(ledger, cfg.AccountSelection)
		}
	}

	return m
}

// AccountCount returns the number of accounts in the pool, valid or not.
func (m *Manager) AccountCount() int {
	return m.store.Count()
}

// PickSticky delegates to the Selector's sticky policy.
func (m *Manager) PickSticky(modelID string) (*accountstore.Account, int64) {
	return m.sel.PickSticky(modelID)
}

// CurrentSticky delegates to the Selector.
func (m *Manager) CurrentSticky(modelID string) (*accountstore.Account, bool) {
	return m.sel.CurrentSticky(modelID)
}

// PickNext delegates to the Selector, or to the configured alternate
// strategy (round-robin / hybrid) when one was selected at construction.
func (m *Manager) PickNext(modelID string) (*accountstore.Account, bool) {
	if m.strategy == nil {
		return m.sel.PickNext(modelID)
	}
	account, _ := m.strategy.SelectAccount(m.store.List(), modelID)
	return account, account != nil
}

// IsAllRateLimited delegates to the Selector.
func (m *Manager) IsAllRateLimited(modelID string) bool {
	return m.sel.IsAllRateLimited(modelID)
}

// MinWaitMs delegates to the Ledger.
func (m *Manager) MinWaitMs(modelID string) int64 {
	return m.ledger.MinWaitMs(modelID)
}

// ClearExpiredLimits sweeps the ledger of expired entries.
func (m *Manager) ClearExpiredLimits() {
	m.ledger.SweepExpired()
}

// MarkRateLimited records a cooldown for email, scoped to modelID.
func (m *Manager) MarkRateLimited(email string, resetMs int64, modelID string) {
	m.ledger.Mark(email, resetMs, modelID)
	if m.strategy != nil {
		m.strategy.OnRateLimit(email)
	}
	utils.Info("account %s rate-limited for %s", utils.MaskEmail(email), modelID)
}

// NotifySuccess reports a successful dispatch against email to the
// configured selection strategy, if any (a no-op under the default
// sticky selector, which carries no per-account health state).
func (m *Manager) NotifySuccess(email string) {
	if m.strategy != nil {
		m.strategy.OnSuccess(email)
	}
}

// MarkInvalid marks an account unusable for the rest of the process
// lifetime and clears its cached credentials.
func (m *Manager) MarkInvalid(email, reason string) {
	m.store.MarkInvalid(email, reason)
	m.tokens.Clear(email)
	m.projects.Clear(email)
	if m.strategy != nil {
		m.strategy.OnFailure(email)
	}
	utils.Warn("account %s marked invalid: %s", utils.MaskEmail(email), reason)
}

// ClearTokenCache evicts email's cached access token (or every account's,
// if email is empty), forcing the next GetToken call to refresh.
func (m *Manager) ClearTokenCache(email string) {
	if email == "" {
		m.tokens.ClearAll()
		return
	}
	m.tokens.Clear(email)
}

// ClearProjectCache evicts email's cached project (or every account's).
func (m *Manager) ClearProjectCache(email string) {
	if email == "" {
		m.projects.ClearAll()
		return
	}
	m.projects.Clear(email)
}

func (m *Manager) lockFor(email string) *sync.Mutex {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()
	l, ok := m.refreshLocks[email]
	if !ok {
		l = &sync.Mutex{}
		m.refreshLocks[email] = l
	}
	return l
}

// GetToken returns a valid bearer token for account, refreshing it via
// the OAuth Client if the cache is cold. Concurrent callers for the same
// account serialize on a per-email lock so only one refresh request is
// ever in flight.
func (m *Manager) GetToken(ctx context.Context, account *accountstore.Account) (string, error) {
	if cached, ok := m.tokens.Get(account.Email); ok {
		return cached, nil
	}

	lock := m.lockFor(account.Email)
	lock.Lock()
	defer lock.Unlock()

	if cached, ok := m.tokens.Get(account.Email); ok {
		return cached, nil
	}

	if account.RefreshToken == "" {
		return "", gatewayerr.NewInvalidCredentialsError(401, "no refresh token for account "+utils.MaskEmail(account.Email), nil)
	}

	result, err := oauthclient.RefreshAccessToken(ctx, account.RefreshToken)
	if err != nil {
		return "", err
	}

	m.tokens.Set(account.Email, result.AccessToken, int64(result.ExpiresIn))
	return result.AccessToken, nil
}

// GetProject returns the Cloud Code project associated with account,
// preferring the in-memory cache, then the account's stored project_id,
// then live discovery (persisted back to the store once found).
func (m *Manager) GetProject(ctx context.Context, account *accountstore.Account, token string) string {
	if cached, ok := m.projects.Get(account.Email); ok {
		return cached
	}

	if account.ProjectID != "" {
		m.projects.Set(account.Email, account.ProjectID)
		return account.ProjectID
	}

	discovered := oauthclient.DiscoverProjectID(ctx, token)
	m.projects.Set(account.Email, discovered)
	if err := m.store.UpdateProjectID(account.Email, discovered); err != nil {
		utils.Warn("failed to persist discovered project for %s: %v", utils.MaskEmail(account.Email), err)
	}
	return discovered
}

// AddAccount runs the interactive PKCE flow and persists the resulting
// account, overwriting any existing entry with the same email.
func (m *Manager) AddAccount(ctx context.Context, timeout time.Duration) (*accountstore.Account, error) {
	authResult, err := oauthclient.GetAuthorizationURL()
	if err != nil {
		return nil, err
	}

	utils.Info("visit this URL to authenticate:\n%s", authResult.URL)

	flow, err := oauthclient.RunAddAccountFlow(ctx, authResult, timeout)
	if err != nil {
		return nil, err
	}

	account := accountstore.Account{
		Email:        flow.Email,
		RefreshToken: flow.RefreshToken,
		ProjectID:    flow.ProjectID,
	}
	if err := m.store.AddOrUpdate(account); err != nil {
		return nil, err
	}

	m.tokens.Set(flow.Email, flow.AccessToken, 3600)
	if flow.ProjectID != "" {
		m.projects.Set(flow.Email, flow.ProjectID)
	}

	return &account, nil
}

// RemoveAccount deletes email from the pool and clears its caches.
func (m *Manager) RemoveAccount(email string) (bool, error) {
	removed, err := m.store.Remove(email)
	if err != nil {
		return false, err
	}
	if removed {
		m.tokens.Clear(email)
		m.projects.Clear(email)
	}
	return removed, nil
}

// ListAccounts returns a snapshot of every account in the pool.
func (m *Manager) ListAccounts() []accountstore.Account {
	return m.store.List()
}

// AccountStatus is one row of Status's per-account detail.
type AccountStatus struct {
	Email         string `json:"email"`
	IsRateLimited bool   `json:"is_rate_limited"`
	IsInvalid     bool   `json:"is_invalid"`
}

// Status is a read-only diagnostic snapshot of the account pool.
type Status struct {
	Total       int             `json:"total"`
	Available   int             `json:"available"`
	RateLimited int             `json:"rate_limited"`
	Invalid     int             `json:"invalid"`
	Accounts    []AccountStatus `json:"accounts"`
}

// Status reports the pool's overall health, matching the source
// implementation's get_status.
func (m *Manager) Status() Status {
	accounts := m.store.List()
	status := Status{Total: len(accounts)}

	for _, a := range accounts {
		limited := m.ledger.IsLimited(a.Email, "")
		if a.IsInvalid {
			status.Invalid++
		} else if limited {
			status.RateLimited++
		} else {
			status.Available++
		}
		status.Accounts = append(status.Accounts, AccountStatus{
			Email:         a.Email,
			IsRateLimited: limited,
			IsInvalid:     a.IsInvalid,
		})
	}

	return status
}

// ResetAllRateLimits empties the ledger.
func (m *Manager) ResetAllRateLimits() {
	m.ledger.ResetAll()
}
