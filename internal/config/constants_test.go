package config

import (
	"os"
	"testing"
)

func TestGetModelFamily(t *testing.T) {
	cases := map[string]ModelFamily{
		"claude-sonnet-4.5":          ModelFamilyClaude,
		"claude-opus-4.5-thinking":   ModelFamilyClaude,
		"gemini-3-flash":             ModelFamilyGemini,
		"gemini-2.5-pro":             ModelFamilyGemini,
		"some-other-model":           ModelFamilyUnknown,
	}
	for model, want := range cases {
		if got := GetModelFamily(model); got != want {
			t.Errorf("GetModelFamily(%q) = %q, want %q", model, got, want)
		}
	}
}

func TestIsThinkingModel(t *testing.T) {
	cases := map[string]bool{
		"claude-sonnet-4.5-thinking": true,
		"claude-opus-4.5-thinking":   true,
		"claude-sonnet-4.5":          false,
		"gemini-3-flash":             true, // version >= 3
		"gemini-3-pro-low":           true,
		"gemini-2.5-flash":           false,
		"gemini-2.5-pro":             false,
		"gemini-2.5-pro-thinking":    true, // explicit "thinking" overrides version
	}
	for model, want := range cases {
		if got := IsThinkingModel(model); got != want {
			t.Errorf("IsThinkingModel(%q) = %v, want %v", model, got, want)
		}
	}
}

func TestGetFallbackModel(t *testing.T) {
	fallback, ok := GetFallbackModel("gemini-3-pro-high")
	if !ok || fallback != "claude-opus-4.5-thinking" {
		t.Fatalf("GetFallbackModel(gemini-3-pro-high) = (%q, %v), want (claude-opus-4.5-thinking, true)", fallback, ok)
	}

	if _, ok := GetFallbackModel("unknown-model"); ok {
		t.Errorf("expected no fallback for an unlisted model")
	}
}

func TestModelFallbackMap_IsSymmetricAcrossFamilies(t *testing.T) {
	// Every primary model in spec.md §6's fallback table maps to a model
	// in the opposite family, so a model-family-wide outage on one
	// provider always has somewhere to go.
	for primary, fallback := range ModelFallbackMap {
		if GetModelFamily(primary) == GetModelFamily(fallback) {
			t.Errorf("fallback for %s (%s) shares its family, want the opposite family", primary, fallback)
		}
	}
}

func TestEndpointFallbacksWithOverride(t *testing.T) {
	t.Setenv("ANTIGRAVITY_API_BASE", "https://override.example.com")

	got := EndpointFallbacksWithOverride()
	if len(got) == 0 || got[0] != "https://override.example.com" {
		t.Fatalf("expected the override to be spliced in first, got %v", got)
	}
	for _, ep := range got[1:] {
		if ep == "https://override.example.com" {
			t.Errorf("expected the override not to be duplicated in the tail, got %v", got)
		}
	}
}

func TestEndpointFallbacksWithOverride_NoOverride(t *testing.T) {
	os.Unsetenv("ANTIGRAVITY_API_BASE")
	got := EndpointFallbacksWithOverride()
	if len(got) != 2 || got[0] != EndpointDaily || got[1] != EndpointProd {
		t.Fatalf("expected the unmodified fallback list, got %v", got)
	}
}

func TestAccountsFilePath_HonorsEnvOverrides(t *testing.T) {
	t.Setenv("ANTIGRAVITY_CONFIG_DIR", "/tmp/antigravity-test-config")
	t.Setenv("ANTIGRAVITY_ACCOUNTS_FILE", "custom-accounts.json")

	got := AccountsFilePath()
	want := "/tmp/antigravity-test-config/custom-accounts.json"
	if got != want {
		t.Errorf("AccountsFilePath() = %q, want %q", got, want)
	}
}
