// Package dispatcher implements the Request Dispatcher: the end-to-end
// orchestration that turns one OpenAI-shaped chat completion request into
// a successful Upstream call. It selects an account, resolves a bearer
// token and project, builds the Upstream payload, iterates the endpoint
// fallback list, classifies the response, and drives the Ledger/Selector
// rotation and model-fallback policy.
//
// A chain of model fallbacks is handled as an explicit loop over a
// currentModel variable rather than recursion, so it never grows the call
// stack.
package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/arkline-dev/antigravity-gateway/internal/accountstore"
	"github.com/arkline-dev/antigravity-gateway/internal/auditlog"
	"github.com/arkline-dev/antigravity-gateway/internal/config"
	"github.com/arkline-dev/antigravity-gateway/internal/format"
	"github.com/arkline-dev/antigravity-gateway/internal/gatewayerr"
	"github.com/arkline-dev/antigravity-gateway/internal/ratelimit"
	"github.com/arkline-dev/antigravity-gateway/internal/utils"
)

// Manager is the subset of *accountmanager.Manager the Dispatcher drives.
// Declaring it as an interface here (rather than depending on the concrete
// type) keeps the package testable against a fake pool.
type Manager interface {
	AccountCount() int
	PickSticky(modelID string) (*accountstore.Account, int64)
	PickNext(modelID string) (*accountstore.Account, bool)
	IsAllRateLimited(modelID string) bool
	MinWaitMs(modelID string) int64
	ClearExpiredLimits()
	MarkRateLimited(email string, resetMs int64, modelID string)
	MarkInvalid(email, reason string)
	ClearTokenCache(email string)
	ClearProjectCache(email string)
	GetToken(ctx context.Context, account *accountstore.Account) (string, error)
	GetProject(ctx context.Context, account *accountstore.Account, token string) string
	NotifySuccess(email string)
}

// Dispatcher drives one chat-completion request end to end.
type Dispatcher struct {
	manager   Manager
	audit     *auditlog.Log
	client    *http.Client
	endpoints []string
}

// New creates a Dispatcher over manager. audit may be nil (observational
// logging disabled).
func New(manager Manager, audit *auditlog.Log) *Dispatcher {
	return &Dispatcher{
		manager:   manager,
		audit:     audit,
		client:    &http.Client{Timeout: config.UpstreamRequestTimeoutSeconds * time.Second},
		endpoints: config.EndpointFallbacksWithOverride(),
	}
}

// maxAttempts is the Dispatcher's retry/rotation budget: at least
// config.MaxRetries, and enough to give every account in the pool at
// least one turn.
func maxAttempts(accountCount int) int {
	n := config.MaxRetries
	if accountCount+1 > n {
		n = accountCount + 1
	}
	return n
}

// Dispatch translates req, sends it to Upstream under one of the pool's
// accounts (selected per the sticky policy, rotating on failure), and
// returns the OpenAI-shaped response. fallbackEnabled gates whether quota
// exhaustion on req.Model triggers a switch to its configured fallback
// model; when false, quota exhaustion on the requested model always
// surfaces as a gatewayerr QuotaExhaustedError.
func (d *Dispatcher) Dispatch(ctx context.Context, req *format.ChatCompletionRequest, fallbackEnabled bool) (*format.ChatCompletionResponse, error) {
	currentModel := req.Model
	attempts := 0
	budget := maxAttempts(d.manager.AccountCount())
	var lastErr error

	for attempts < budget {
		attempts++

		account, waitMs, switchModel, err := d.acquireAccount(ctx, currentModel, fallbackEnabled)
		if err != nil {
			return nil, err
		}
		if switchModel != "" {
			currentModel = switchModel
			attempts = 0
			budget = maxAttempts(d.manager.AccountCount())
			continue
		}
		if account == nil {
			if waitMs > 0 {
				if err := utils.Sleep(ctx, waitMs); err != nil {
					return nil, err
				}
				d.manager.ClearExpiredLimits()
			}
			continue
		}

		requestModel := *req
		requestModel.Model = currentModel

		resp, err := d.dispatchOnce(ctx, account, &requestModel)
		if err == nil {
			d.manager.NotifySuccess(account.Email)
			return resp, nil
		}

		lastErr = err
		gwErr, _ := gatewayerr.As(err)
		if gwErr == nil {
			// Every leaf in this tree wraps its errors as a typed
			// *gatewayerr.Error, so this branch is unreachable in
			// practice today. It's the last-resort, substring-based
			// classifier for an error whose HTTP status has already been
			// lost, so a future leaf that returns a bare error (a
			// transport-library error, say) still rotates correctly
			// instead of silently falling through to the next attempt.
			switch {
			case gatewayerr.IsRateLimitText(err):
				d.manager.MarkRateLimited(account.Email, 0, currentModel)
			case gatewayerr.IsAuthText(err):
				d.manager.MarkInvalid(account.Email, err.Error())
			}
			continue
		}

		switch gwErr.Kind {
		case gatewayerr.KindRateLimit:
			resetMs := int64(0)
			if gwErr.ResetMs != nil {
				resetMs = *gwErr.ResetMs
			}
			d.manager.MarkRateLimited(account.Email, resetMs, currentModel)
		case gatewayerr.KindInvalidCredentials, gatewayerr.KindAuth:
			d.manager.MarkInvalid(account.Email, gwErr.Message)
		}
	}

	if lastErr != nil {
		if gwErr, ok := gatewayerr.As(lastErr); ok {
			return nil, gwErr
		}
		return nil, gatewayerr.NewGenericError(500, fmt.Sprintf("max retries exceeded: %v", lastErr), lastErr)
	}
	return nil, gatewayerr.NewGenericError(500, "Max retries exceeded", nil)
}

// acquireAccount implements the Dispatcher's step 1-4: ask the Selector
// for a sticky account, honor a short-wait hint, detect pool-wide
// exhaustion, and fall through to a fallback model when configured.
func (d *Dispatcher) acquireAccount(ctx context.Context, model string, fallbackEnabled bool) (account *accountstore.Account, sleepMs int64, switchModel string, err error) {
	account, wait := d.manager.PickSticky(model)
	if account != nil {
		return account, 0, "", nil
	}
	if wait > 0 && wait <= config.MaxWaitBeforeErrorMs {
		return nil, wait, "", nil
	}

	if d.manager.IsAllRateLimited(model) {
		minWait := d.manager.MinWaitMs(model)
		if minWait > config.MaxWaitBeforeErrorMs {
			if fallbackEnabled {
				if fallback, ok := config.GetFallbackModel(model); ok {
					utils.Info("model %s exhausted (min wait %dms), falling back to %s", model, minWait, fallback)
					return nil, 0, fallback, nil
				}
			}
			return nil, 0, "", gatewayerr.NewQuotaExhaustedError(
				fmt.Sprintf("all accounts rate-limited for %s, min wait %dms exceeds threshold", model, minWait))
		}
		if minWait > 0 {
			return nil, minWait, "", nil
		}
	}

	if next, ok := d.manager.PickNext(model); ok {
		return next, 0, "", nil
	}

	if fallbackEnabled {
		if fallback, ok := config.GetFallbackModel(model); ok {
			return nil, 0, fallback, nil
		}
	}
	return nil, 0, "", gatewayerr.NewNoAccountsError(503, "no usable account for "+model)
}

// dispatchOnce resolves credentials for account, builds the Upstream
// payload, and tries every endpoint in fallback order once.
func (d *Dispatcher) dispatchOnce(ctx context.Context, account *accountstore.Account, req *format.ChatCompletionRequest) (*format.ChatCompletionResponse, error) {
	token, err := d.manager.GetToken(ctx, account)
	if err != nil {
		return nil, err
	}
	project := d.manager.GetProject(ctx, account, token)

	envelope := format.BuildGenerateContentEnvelope(req, project)
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, gatewayerr.NewGenericError(500, "marshal upstream request", err)
	}

	isClaudeThinking := config.GetModelFamily(req.Model) == config.ModelFamilyClaude && config.IsThinkingModel(req.Model)

	var lastErr error
	for _, endpoint := range d.endpoints {
		start := time.Now()
		resp, classified := d.post(ctx, endpoint, token, body, isClaudeThinking)
		latency := time.Since(start).Milliseconds()

		if classified == nil {
			d.record(account.Email, req.Model, endpoint, "success", latency)
			return format.ConvertGoogleToOpenAI(resp, req.Model, time.Now().Unix()), nil
		}

		gwErr, _ := gatewayerr.As(classified)
		outcome := "error"
		if gwErr != nil {
			outcome = gwErr.Kind.String()
		}
		d.record(account.Email, req.Model, endpoint, outcome, latency)

		if gwErr != nil {
			switch gwErr.Kind {
			case gatewayerr.KindAuth:
				d.manager.ClearTokenCache(account.Email)
				d.manager.ClearProjectCache(account.Email)
				lastErr = classified
				continue
			case gatewayerr.KindRateLimit:
				lastErr = classified
				continue
			}
			if gwErr.StatusCode >= 500 {
				utils.SleepMs(config.ServerErrorBackoffSeconds * 1000)
				lastErr = classified
				continue
			}
		}
		lastErr = classified
	}

	if gwErr, ok := gatewayerr.As(lastErr); ok {
		return nil, gwErr
	}
	return nil, gatewayerr.NewGenericError(502, "every endpoint failed", lastErr)
}

// post issues a single generateContent call against endpoint and
// classifies the outcome. A nil error return means success; resp is only
// populated on success.
func (d *Dispatcher) post(ctx context.Context, endpoint, token string, body []byte, claudeThinking bool) (*format.GoogleResponse, error) {
	url := endpoint + "/v1internal:generateContent"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, gatewayerr.NewGenericError(0, "build upstream request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range config.UpstreamHeaders() {
		httpReq.Header.Set(k, v)
	}
	if claudeThinking {
		httpReq.Header.Set("anthropic-beta", "interleaved-thinking-2025-05-14")
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, gatewayerr.NewGenericError(0, "upstream request failed", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		parsed, err := format.ParseGoogleResponse(respBody)
		if err != nil {
			return nil, gatewayerr.NewGenericError(resp.StatusCode, "malformed upstream response", err)
		}
		return parsed, nil

	case resp.StatusCode == http.StatusUnauthorized:
		return nil, gatewayerr.NewAuthError(resp.StatusCode, "upstream rejected credentials: "+string(respBody), nil)

	case resp.StatusCode == http.StatusTooManyRequests:
		var resetMs *int64
		if ms, ok := ratelimit.ParseResetTime(string(respBody)); ok {
			resetMs = &ms
		}
		return nil, gatewayerr.NewRateLimitError(string(respBody), resetMs)

	default:
		return nil, gatewayerr.FromStatus(resp.StatusCode, string(respBody))
	}
}

func (d *Dispatcher) record(account, model, endpoint, outcome string, latencyMs int64) {
	if d.audit == nil {
		return
	}
	d.audit.Record(context.Background(), auditlog.Entry{
		Account:   utils.MaskEmail(account),
		Model:     model,
		Endpoint:  endpoint,
		Outcome:   outcome,
		LatencyMs: latencyMs,
	})
}
