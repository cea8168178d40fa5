package gatewayerr

import (
	"errors"
	"testing"
)

func TestFromStatus(t *testing.T) {
	cases := []struct {
		status int
		want   Kind
	}{
		{429, KindRateLimit},
		{401, KindAuth},
		{500, KindGeneric},
		{400, KindGeneric},
	}
	for _, tc := range cases {
		got := FromStatus(tc.status, "body")
		if got.Kind != tc.want {
			t.Errorf("FromStatus(%d).Kind = %v, want %v", tc.status, got.Kind, tc.want)
		}
		if got.StatusCode != tc.status {
			t.Errorf("FromStatus(%d).StatusCode = %d, want %d", tc.status, got.StatusCode, tc.status)
		}
	}
}

func TestAs_UnwrapsWrappedError(t *testing.T) {
	inner := NewRateLimitError("reset after 30s", nil)
	wrapped := errors.Join(errors.New("dispatch failed"), inner)

	got, ok := As(wrapped)
	if !ok || got.Kind != KindRateLimit {
		t.Fatalf("As() = (%v, %v), want a KindRateLimit error", got, ok)
	}
}

func TestAs_NonGatewayError(t *testing.T) {
	if _, ok := As(errors.New("plain error")); ok {
		t.Errorf("expected As to report false for a non-gatewayerr error")
	}
}

func TestIsRateLimitText(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"upstream returned 429", true},
		{"RESOURCE_EXHAUSTED: quota", true},
		{"quota_exhausted for model", true},
		{"Rate limit exceeded", true},
		{"internal server error", false},
	}
	for _, tc := range cases {
		if got := IsRateLimitText(errors.New(tc.msg)); got != tc.want {
			t.Errorf("IsRateLimitText(%q) = %v, want %v", tc.msg, got, tc.want)
		}
	}
}

func TestIsAuthText(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"got 401 from upstream", true},
		{"UNAUTHENTICATED: bad token", true},
		{"invalid_grant: token expired", true},
		{"authentication required", true},
		{"not found", false},
	}
	for _, tc := range cases {
		if got := IsAuthText(errors.New(tc.msg)); got != tc.want {
			t.Errorf("IsAuthText(%q) = %v, want %v", tc.msg, got, tc.want)
		}
	}
}

func TestRateLimitError_CarriesResetMs(t *testing.T) {
	resetMs := int64(30_000)
	err := NewRateLimitError("reset after 30s", &resetMs)
	if err.ResetMs == nil || *err.ResetMs != 30_000 {
		t.Fatalf("expected ResetMs to be carried through, got %v", err.ResetMs)
	}
}

func TestError_UnwrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := NewGenericError(500, "upstream failed", cause)
	if !errors.Is(err, cause) {
		t.Errorf("expected errors.Is to find the wrapped cause")
	}
}
