package oauthclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/arkline-dev/antigravity-gateway/internal/config"
)

// callbackFallbackPorts are tried, in order, after config.OAuth.CallbackPort
// is already bound by another process.
var callbackFallbackPorts = []int{51122, 51123, 51124}

const successPage = `<!DOCTYPE html><html><body style="font-family:sans-serif;text-align:center;padding-top:4em">
<h2>Authentication complete</h2><p>You can close this window.</p>
<script>setTimeout(() => window.close(), 2000)</script>
</body></html>`

const failurePage = `<!DOCTYPE html><html><body style="font-family:sans-serif;text-align:center;padding-top:4em">
<h2>Authentication failed</h2><p>%s</p>
</body></html>`

// CallbackServer is a one-shot loopback HTTP listener for the OAuth
// installed-app redirect. It binds the configured port (falling back to a
// short list of alternates if taken), waits for exactly one callback
// request or for ctx to be cancelled, and always releases the port before
// returning.
type CallbackServer struct {
	expectedState string

	mu         sync.Mutex
	server     *http.Server
	actualPort int
	aborted    bool

	codeChan chan string
	errChan  chan error
}

// NewCallbackServer creates a CallbackServer that only accepts a callback
// carrying expectedState.
func NewCallbackServer(expectedState string) *CallbackServer {
	return &CallbackServer{
		expectedState: expectedState,
		codeChan:      make(chan string, 1),
		errChan:       make(chan error, 1),
	}
}

func (cs *CallbackServer) handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if errMsg := q.Get("error"); errMsg != "" {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, failurePage, errMsg)
		select {
		case cs.errChan <- fmt.Errorf("oauthclient: authorization denied: %s", errMsg):
		default:
		}
		return
	}

	if state := q.Get("state"); state != cs.expectedState {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, failurePage, "state mismatch")
		select {
		case cs.errChan <- fmt.Errorf("oauthclient: state mismatch, possible CSRF"):
		default:
		}
		return
	}

	code := q.Get("code")
	if code == "" {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, failurePage, "missing authorization code")
		select {
		case cs.errChan <- fmt.Errorf("oauthclient: callback missing code"):
		default:
		}
		return
	}

	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, successPage)
	select {
	case cs.codeChan <- code:
	default:
	}
}

func tryBind(port int) (net.Listener, error) {
	return net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
}

// Start binds a listener and blocks until a callback arrives, ctx is
// cancelled, or no candidate port can be bound. The server is always shut
// down before Start returns, whatever the outcome.
func (cs *CallbackServer) Start(ctx context.Context) (string, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth-callback", cs.handle)

	ports := append([]int{config.OAuth.CallbackPort}, callbackFallbackPorts...)
	var listener net.Listener
	var bindErr error
	for _, port := range ports {
		l, err := tryBind(port)
		if err == nil {
			listener = l
			cs.mu.Lock()
			cs.actualPort = port
			cs.mu.Unlock()
			break
		}
		bindErr = err
	}
	if listener == nil {
		return "", fmt.Errorf("oauthclient: no callback port available: %w", bindErr)
	}

	server := &http.Server{Handler: mux}
	cs.mu.Lock()
	cs.server = server
	cs.mu.Unlock()

	go func() {
		_ = server.Serve(listener)
	}()
	defer func() {
		_ = server.Shutdown(context.Background())
	}()

	select {
	case code := <-cs.codeChan:
		return code, nil
	case err := <-cs.errChan:
		return "", err
	case <-ctx.Done():
		return "", fmt.Errorf("oauthclient: callback timed out waiting for redirect: %w", ctx.Err())
	}
}

// Abort marks the server as cancelled; idempotent.
func (cs *CallbackServer) Abort() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.aborted {
		return
	}
	cs.aborted = true
	if cs.server != nil {
		_ = cs.server.Shutdown(context.Background())
	}
}

// Port returns the port actually bound, once Start has begun.
func (cs *CallbackServer) Port() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.actualPort
}

// redirectURIForPort formats the loopback redirect URI for whichever port
// the callback server ends up bound to. Used when a caller needs to build
// the authorization URL only after the listener is already up.
func redirectURIForPort(port int) string {
	u := url.URL{Scheme: "http", Host: "localhost:" + strconv.Itoa(port), Path: "/oauth-callback"}
	return u.String()
}
