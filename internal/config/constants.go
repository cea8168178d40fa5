// Package config provides configuration constants and runtime configuration
// management for the Antigravity gateway.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
)

// Version is the gateway's reported client version, embedded in the
// User-Agent header sent with every Upstream call.
const Version = "1.0.0"

// Cloud Code API endpoints, in fallback order (daily sandbox, then prod).
const (
	EndpointDaily = "https://daily-cloudcode-pa.sandbox.googleapis.com"
	EndpointProd  = "https://cloudcode-pa.googleapis.com"
)

// EndpointFallbacks is the endpoint order for generateContent calls.
var EndpointFallbacks = []string{EndpointDaily, EndpointProd}

// DefaultProjectID is the last-resort project ID used when discovery
// fails against every endpoint.
const DefaultProjectID = "rising-fact-p41fc"

// getPlatformUserAgent builds the required User-Agent header value.
func getPlatformUserAgent() string {
	return fmt.Sprintf("antigravity/%s %s/%s", Version, runtime.GOOS, runtime.GOARCH)
}

// ClientMetadataHeader is the fixed Client-Metadata header value sent with
// every Upstream call.
const ClientMetadataHeader = `{"ideType":"IDE_UNSPECIFIED","platform":"PLATFORM_UNSPECIFIED","pluginType":"GEMINI"}`

// UpstreamHeaders returns the headers required on every Upstream call,
// excluding Authorization and Content-Type, which callers add themselves.
func UpstreamHeaders() map[string]string {
	return map[string]string{
		"User-Agent":        getPlatformUserAgent(),
		"X-Goog-Api-Client": "google-cloud-sdk vscode_cloudshelleditor/0.1",
		"Client-Metadata":   ClientMetadataHeader,
	}
}

// OAuthConfig holds the (public, installed-app) Google OAuth client used to
// authenticate against Cloud Code.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	CallbackPort int
	Scopes       []string
}

// OAuth is the Google OAuth configuration for the installed-app flow.
var OAuth = OAuthConfig{
	ClientID:     "1071006060591-tmhssin2h21lcre235vtolojh4g403ep.apps.googleusercontent.com",
	ClientSecret: "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",
	AuthURL:      "https://accounts.google.com/o/oauth2/v2/auth",
	TokenURL:     "https://oauth2.googleapis.com/token",
	UserInfoURL:  "https://www.googleapis.com/oauth2/v1/userinfo",
	CallbackPort: getOAuthCallbackPort(),
	Scopes: []string{
		"https://www.googleapis.com/auth/cloud-platform",
		"https://www.googleapis.com/auth/userinfo.email",
		"https://www.googleapis.com/auth/userinfo.profile",
		"https://www.googleapis.com/auth/cclog",
		"https://www.googleapis.com/auth/experimentsandconfigs",
	},
}

// OAuthRedirectURI returns the loopback redirect URI for the callback
// listener.
func OAuthRedirectURI() string {
	return fmt.Sprintf("http://localhost:%d/oauth-callback", OAuth.CallbackPort)
}

func getOAuthCallbackPort() int {
	if portStr := os.Getenv("OAUTH_CALLBACK_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			return port
		}
	}
	return 51121
}

// OAuthCallbackTimeoutSeconds is the default window the loopback listener
// waits for a callback before giving up.
const OAuthCallbackTimeoutSeconds = 120

// Timing and retry constants.
const (
	// DefaultCooldownMs is used when an Upstream 429 body carries no
	// parseable reset time.
	DefaultCooldownMs = 60 * 1000
	// MaxRetries is the floor on the Dispatcher's attempt budget.
	MaxRetries = 5
	// MaxWaitBeforeErrorMs bounds how long the Dispatcher will sleep for
	// a cooldown before giving up and surfacing an error (or trying a
	// fallback model).
	MaxWaitBeforeErrorMs int64 = 120000
	// MaxAccounts bounds how many accounts the Account Store will accept.
	MaxAccounts = 10
	// UpstreamRequestTimeoutSeconds is the per-endpoint-attempt timeout.
	UpstreamRequestTimeoutSeconds = 600
	// ServerErrorBackoffSeconds is the sleep after a 5xx before trying the
	// next endpoint.
	ServerErrorBackoffSeconds = 1
	// MinSignatureLength is the minimum thinking-signature length that
	// makes a thinking block worth re-emitting.
	MinSignatureLength = 50
	// GeminiMaxOutputTokens is the hard cap on maxOutputTokens for Gemini
	// family models.
	GeminiMaxOutputTokens = 16384
	// DefaultThinkingBudget is used for Gemini-family thinking models
	// when the caller didn't request a specific budget.
	DefaultThinkingBudget = 16000
	// ClaudeThinkingBudgetHeadroom is added to maxOutputTokens when a
	// Claude thinking budget would otherwise exceed it.
	ClaudeThinkingBudgetHeadroom = 8192
)

// Account selection strategies.
const (
	StrategySticky     = "sticky"
	StrategyRoundRobin = "round-robin"
	StrategyHybrid     = "hybrid"
)

// DefaultSelectionStrategy is used when none is configured. The Dispatcher
// itself is defined against sticky semantics; round-robin and hybrid are
// selectable alternatives for deployments that want a different
// distribution policy.
const DefaultSelectionStrategy = StrategySticky

// StrategyLabels are the display labels for the selectable strategies.
var StrategyLabels = map[string]string{
	StrategySticky:     "Sticky (cache optimized)",
	StrategyRoundRobin: "Round robin (load balanced)",
	StrategyHybrid:     "Hybrid (health + token bucket)",
}

// ModelFallbackMap maps a primary model to the model tried when its quota
// is exhausted across every account.
var ModelFallbackMap = map[string]string{
	"gemini-3-pro-high":          "claude-opus-4.5-thinking",
	"gemini-3-pro-low":           "claude-sonnet-4.5",
	"gemini-3-flash":             "claude-sonnet-4.5-thinking",
	"gemini-2.5-flash":           "claude-sonnet-4.5",
	"gemini-2.5-pro":             "claude-opus-4.5-thinking",
	"claude-opus-4.5-thinking":   "gemini-3-pro-high",
	"claude-sonnet-4.5-thinking": "gemini-3-flash",
	"claude-sonnet-4.5":          "gemini-2.5-flash",
}

// SupportedModels is the set of model identifiers the gateway accepts.
var SupportedModels = []string{
	"claude-sonnet-4.5",
	"claude-sonnet-4.5-thinking",
	"claude-opus-4.5-thinking",
	"gemini-3-flash",
	"gemini-3-pro-low",
	"gemini-3-pro-high",
	"gemini-2.5-flash",
	"gemini-2.5-pro",
}

// ModelFamily is either "claude", "gemini", or "unknown".
type ModelFamily string

const (
	ModelFamilyClaude  ModelFamily = "claude"
	ModelFamilyGemini  ModelFamily = "gemini"
	ModelFamilyUnknown ModelFamily = "unknown"
)

var geminiVersionRe = regexp.MustCompile(`gemini[.-]?(\d+)`)

// GetModelFamily returns the model family implied by a model name.
func GetModelFamily(model string) ModelFamily {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "claude"):
		return ModelFamilyClaude
	case strings.Contains(lower, "gemini"):
		return ModelFamilyGemini
	default:
		return ModelFamilyUnknown
	}
}

// IsThinkingModel reports whether a model emits explicit thinking blocks:
// any Claude model with "thinking" in its name, or any Gemini model that
// either has "thinking" in its name or is version 3 or later.
func IsThinkingModel(model string) bool {
	lower := strings.ToLower(model)

	if strings.Contains(lower, "claude") && strings.Contains(lower, "thinking") {
		return true
	}

	if strings.Contains(lower, "gemini") {
		if strings.Contains(lower, "thinking") {
			return true
		}
		if m := geminiVersionRe.FindStringSubmatch(lower); len(m) == 2 {
			if v, err := strconv.Atoi(m[1]); err == nil && v >= 3 {
				return true
			}
		}
	}

	return false
}

// GetFallbackModel returns the fallback model configured for model, if any.
func GetFallbackModel(model string) (string, bool) {
	fallback, ok := ModelFallbackMap[model]
	return fallback, ok
}

// HasFallback reports whether model has a fallback configured.
func HasFallback(model string) bool {
	_, ok := ModelFallbackMap[model]
	return ok
}

func getHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home
}

// configDir resolves ANTIGRAVITY_CONFIG_DIR, defaulting to
// ~/.config/litellm/antigravity.
func configDir() string {
	if dir := os.Getenv("ANTIGRAVITY_CONFIG_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(getHomeDir(), ".config", "litellm", "antigravity")
}

// AccountsFilePath resolves the on-disk path of the account store,
// honoring ANTIGRAVITY_CONFIG_DIR and ANTIGRAVITY_ACCOUNTS_FILE.
func AccountsFilePath() string {
	name := os.Getenv("ANTIGRAVITY_ACCOUNTS_FILE")
	if name == "" {
		name = "accounts.json"
	}
	return filepath.Join(configDir(), name)
}

// AuditLogPath is where the (ambient, observational) dispatch audit log
// database lives.
func AuditLogPath() string {
	return filepath.Join(configDir(), "dispatch-audit.db")
}

// APIBase resolves ANTIGRAVITY_API_BASE, overriding the primary
// (daily-sandbox) endpoint when set.
func APIBase() string {
	if base := os.Getenv("ANTIGRAVITY_API_BASE"); base != "" {
		return base
	}
	return EndpointDaily
}

// EndpointFallbacksWithOverride returns the endpoint fallback list with
// ANTIGRAVITY_API_BASE spliced in as the first entry when set.
func EndpointFallbacksWithOverride() []string {
	override := os.Getenv("ANTIGRAVITY_API_BASE")
	if override == "" {
		return EndpointFallbacks
	}
	out := []string{override}
	for _, ep := range EndpointFallbacks {
		if ep != override {
			out = append(out, ep)
		}
	}
	return out
}

// marshalClientMetadata is used by tests to confirm ClientMetadataHeader
// stays valid JSON.
func marshalClientMetadata(ideType, platform, pluginType string) string {
	data, _ := json.Marshal(map[string]string{
		"ideType":    ideType,
		"platform":   platform,
		"pluginType": pluginType,
	})
	return string(data)
}
