package oauthclient

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestCallbackServer_SuccessfulCallback(t *testing.T) {
	server := NewCallbackServer("expected-state")

	resultCh := make(chan struct {
		code string
		err  error
	}, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		code, err := server.Start(ctx)
		resultCh <- struct {
			code string
			err  error
		}{code, err}
	}()

	// Give the listener a moment to bind before we probe for its port.
	var port int
	for i := 0; i < 50; i++ {
		if port = server.Port(); port != 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if port == 0 {
		t.Fatalf("callback server never bound a port")
	}

	url := fmt.Sprintf("http://localhost:%d/oauth-callback?code=testcode123&state=expected-state", port)
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET callback: %v", err)
	}
	resp.Body.Close()

	result := <-resultCh
	if result.err != nil {
		t.Fatalf("Start returned error: %v", result.err)
	}
	if result.code != "testcode123" {
		t.Errorf("expected code %q, got %q", "testcode123", result.code)
	}
}

func TestCallbackServer_StateMismatch(t *testing.T) {
	server := NewCallbackServer("expected-state")

	resultCh := make(chan error, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		_, err := server.Start(ctx)
		resultCh <- err
	}()

	var port int
	for i := 0; i < 50; i++ {
		if port = server.Port(); port != 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if port == 0 {
		t.Fatalf("callback server never bound a port")
	}

	url := fmt.Sprintf("http://localhost:%d/oauth-callback?code=testcode&state=wrong-state", port)
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET callback: %v", err)
	}
	resp.Body.Close()

	if err := <-resultCh; err == nil {
		t.Fatalf("expected a state-mismatch error")
	}
}

func TestCallbackServer_ContextCancellation(t *testing.T) {
	server := NewCallbackServer("expected-state")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := server.Start(ctx)
	if err == nil {
		t.Fatalf("expected a timeout error when no callback ever arrives")
	}
}
