// Package oauthclient implements the installed-app PKCE OAuth flow used to
// add a Google account to the gateway's account pool: authorization URL
// construction, a loopback callback listener, authorization-code exchange,
// refresh-token exchange, userinfo lookup, and Cloud Code project
// discovery.
package oauthclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/arkline-dev/antigravity-gateway/internal/config"
	"github.com/arkline-dev/antigravity-gateway/internal/gatewayerr"
	"github.com/arkline-dev/antigravity-gateway/internal/utils"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// PendingStateMirror is the narrow interface RunAddAccountFlow uses to
// mirror an in-flight PKCE verifier across gateway instances, keyed by its
// CSRF state nonce (see pkg/ledgermirror.Client). A nil mirror is valid:
// the flow still completes correctly within a single process, it just
// can't hand off a callback that lands on a different instance.
type PendingStateMirror interface {
	StorePendingState(ctx context.Context, state, verifier string, ttl time.Duration) error
	TakePendingState(ctx context.Context, state string) (string, bool)
}

var pendingMirror PendingStateMirror

// SetPendingStateMirror installs the cross-process pending-OAuth-state
// store used by RunAddAccountFlow. Call once at startup; passing nil
// disables it.
func SetPendingStateMirror(m PendingStateMirror) {
	pendingMirror = m
}

// AuthorizationURLResult is the PKCE material the caller must hold onto
// between generating the URL and completing the flow.
type AuthorizationURLResult struct {
	URL      string
	Verifier string
	State    string
}

// GetAuthorizationURL builds the Google consent-screen URL for the
// installed-app PKCE flow, generating a fresh verifier/state pair.
func GetAuthorizationURL() (*AuthorizationURLResult, error) {
	pkce, err := GeneratePKCE()
	if err != nil {
		return nil, err
	}
	state, err := GenerateState()
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("client_id", config.OAuth.ClientID)
	q.Set("redirect_uri", config.OAuthRedirectURI())
	q.Set("response_type", "code")
	q.Set("scope", strings.Join(config.OAuth.Scopes, " "))
	q.Set("access_type", "offline")
	q.Set("prompt", "consent")
	q.Set("code_challenge", pkce.Challenge)
	q.Set("code_challenge_method", "S256")
	q.Set("state", state)

	return &AuthorizationURLResult{
		URL:      config.OAuth.AuthURL + "?" + q.Encode(),
		Verifier: pkce.Verifier,
		State:    state,
	}, nil
}

// CodeExtractResult is a parsed authorization code plus the state it came
// with, whichever form the caller pasted in (a full redirect URL or a bare
// code).
type CodeExtractResult struct {
	Code  string
	State string
}

// ExtractCodeFromInput accepts either a full callback URL (as a user might
// paste from a browser address bar when the loopback listener couldn't
// bind) or a bare authorization code.
func ExtractCodeFromInput(input string) (*CodeExtractResult, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, fmt.Errorf("oauthclient: empty input")
	}

	if u, err := url.Parse(trimmed); err == nil && u.Scheme != "" && u.RawQuery != "" {
		q := u.Query()
		if errMsg := q.Get("error"); errMsg != "" {
			return nil, fmt.Errorf("oauthclient: authorization denied: %s", errMsg)
		}
		if code := q.Get("code"); code != "" {
			return &CodeExtractResult{Code: code, State: q.Get("state")}, nil
		}
	}

	if len(trimmed) >= 10 {
		return &CodeExtractResult{Code: trimmed}, nil
	}
	return nil, fmt.Errorf("oauthclient: could not extract an authorization code from input")
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

// OAuthTokens is the result of a successful authorization-code exchange.
type OAuthTokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

// ExchangeCode exchanges an authorization code and its PKCE verifier for an
// access/refresh token pair. Fails with a gatewayerr auth error on any
// non-2xx response or a missing access token.
func ExchangeCode(ctx context.Context, code, verifier string) (*OAuthTokens, error) {
	form := url.Values{}
	form.Set("client_id", config.OAuth.ClientID)
	form.Set("client_secret", config.OAuth.ClientSecret)
	form.Set("code", code)
	form.Set("code_verifier", verifier)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", config.OAuthRedirectURI())

	body, status, err := postForm(ctx, config.OAuth.TokenURL, form)
	if err != nil {
		return nil, gatewayerr.NewAuthError(0, "token exchange request failed", err)
	}
	if status != http.StatusOK {
		return nil, gatewayerr.NewAuthError(status, "token exchange rejected: "+string(body), nil)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, gatewayerr.NewAuthError(status, "malformed token response", err)
	}
	if tr.AccessToken == "" {
		return nil, gatewayerr.NewAuthError(status, "token exchange returned no access token", nil)
	}

	return &OAuthTokens{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresIn:    tr.ExpiresIn,
	}, nil
}

// RefreshResult is a freshly minted access token from a refresh exchange.
type RefreshResult struct {
	AccessToken string
	ExpiresIn   int
}

// RefreshAccessToken exchanges refreshToken for a new access token. A
// non-2xx response is classified as invalid credentials: the caller should
// mark the owning account invalid rather than retry.
func RefreshAccessToken(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	form := url.Values{}
	form.Set("client_id", config.OAuth.ClientID)
	form.Set("client_secret", config.OAuth.ClientSecret)
	form.Set("refresh_token", refreshToken)
	form.Set("grant_type", "refresh_token")

	body, status, err := postForm(ctx, config.OAuth.TokenURL, form)
	if err != nil {
		return nil, gatewayerr.NewInvalidCredentialsError(0, "refresh request failed", err)
	}
	if status != http.StatusOK {
		return nil, gatewayerr.NewInvalidCredentialsError(status, "refresh token rejected: "+string(body), nil)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, gatewayerr.NewInvalidCredentialsError(status, "malformed refresh response", err)
	}
	if tr.AccessToken == "" {
		return nil, gatewayerr.NewInvalidCredentialsError(status, "refresh returned no access token", nil)
	}

	return &RefreshResult{AccessToken: tr.AccessToken, ExpiresIn: tr.ExpiresIn}, nil
}

type userInfoResponse struct {
	Email string `json:"email"`
}

// GetUserEmail fetches the account email associated with accessToken.
func GetUserEmail(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, config.OAuth.UserInfoURL, nil)
	if err != nil {
		return "", gatewayerr.NewAuthError(0, "build userinfo request", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", gatewayerr.NewAuthError(0, "userinfo request failed", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", gatewayerr.NewAuthError(resp.StatusCode, "userinfo rejected: "+string(body), nil)
	}

	var ui userInfoResponse
	if err := json.Unmarshal(body, &ui); err != nil {
		return "", gatewayerr.NewAuthError(resp.StatusCode, "malformed userinfo response", err)
	}
	if ui.Email == "" {
		return "", gatewayerr.NewAuthError(resp.StatusCode, "userinfo returned no email", nil)
	}
	return ui.Email, nil
}

// DiscoverProjectID asks each Upstream endpoint, in fallback order, which
// Cloud Code project is associated with accessToken. If every endpoint
// fails to report one, it falls back to config.DefaultProjectID rather
// than attempting onboarding.
func DiscoverProjectID(ctx context.Context, accessToken string) string {
	for _, endpoint := range config.EndpointFallbacksWithOverride() {
		project, err := tryDiscoverProject(ctx, accessToken, endpoint)
		if err != nil {
			utils.Debug("project discovery against %s failed: %v", endpoint, err)
			continue
		}
		if project != "" {
			return project
		}
	}
	utils.Warn("project discovery failed on every endpoint, falling back to default project")
	return config.DefaultProjectID
}

func tryDiscoverProject(ctx context.Context, accessToken, endpoint string) (string, error) {
	reqBody, _ := json.Marshal(map[string]interface{}{
		"metadata": map[string]string{
			"ideType":    "IDE_UNSPECIFIED",
			"platform":   "PLATFORM_UNSPECIFIED",
			"pluginType": "GEMINI",
		},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/v1internal:loadCodeAssist", strings.NewReader(string(reqBody)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range config.UpstreamHeaders() {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return "", err
	}

	switch v := data["cloudaicompanionProject"].(type) {
	case string:
		return v, nil
	case map[string]interface{}:
		if id, ok := v["id"].(string); ok {
			return id, nil
		}
	}
	return "", nil
}

func postForm(ctx context.Context, endpoint string, form url.Values) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// FlowResult is everything the add-account flow needs to persist.
type FlowResult struct {
	Email        string
	RefreshToken string
	AccessToken  string
	ProjectID    string
}

// CompleteFlow exchanges code for tokens, looks up the account email, and
// discovers its Cloud Code project, in that order.
func CompleteFlow(ctx context.Context, code, verifier string) (*FlowResult, error) {
	tokens, err := ExchangeCode(ctx, code, verifier)
	if err != nil {
		return nil, err
	}

	email, err := GetUserEmail(ctx, tokens.AccessToken)
	if err != nil {
		return nil, err
	}

	projectID := DiscoverProjectID(ctx, tokens.AccessToken)

	return &FlowResult{
		Email:        email,
		RefreshToken: tokens.RefreshToken,
		AccessToken:  tokens.AccessToken,
		ProjectID:    projectID,
	}, nil
}

// RunAddAccountFlow generates a fresh authorization URL, starts the
// loopback callback listener, and — once the user authorizes in a browser —
// completes the flow. Returns the authorization URL immediately isn't
// possible with a single blocking call; callers that need to surface the
// URL before the listener completes should call GetAuthorizationURL and
// NewCallbackServer directly instead. RunAddAccountFlow is the convenience
// path for callers (tests, the accounts CLI) that already have the URL
// displayed and just need to wait out the round trip.
func RunAddAccountFlow(ctx context.Context, authResult *AuthorizationURLResult, timeout time.Duration) (*FlowResult, error) {
	cbCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if pendingMirror != nil {
		_ = pendingMirror.StorePendingState(ctx, authResult.State, authResult.Verifier, timeout)
		defer pendingMirror.TakePendingState(context.Background(), authResult.State)
	}

	server := NewCallbackServer(authResult.State)
	code, err := server.Start(cbCtx)
	if err != nil {
		return nil, err
	}

	return CompleteFlow(ctx, code, authResult.Verifier)
}
