package oauth

import (
	"context"
	"crypto/tls"
	_ "embed"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"

	"rentendash/pkg/logging"
)

// DefaultCallbackPort is used when the redirect URI carries no port.
const DefaultCallbackPort = 8443

//go:embed templates/waiting.html
var waitingHTML string

//go:embed templates/callback_success.html
var callbackSuccessHTML string

//go:embed templates/callback_error.html
var callbackErrorHTML string

// CallbackServer is a temporary local HTTPS server for receiving one
// OAuth authorization redirect. It starts, waits for a single callback,
// then shuts down; the bound port is released on every exit path.
type CallbackServer struct {
	host     string
	port     int
	certFile string
	keyFile  string

	server   *http.Server
	listener net.Listener
	resultCh chan *CallbackResult
	errorCh  chan error
	once     sync.Once
}

// NewCallbackServer creates a callback server for the given address and
// TLS certificate material. If port is 0, DefaultCallbackPort is used.
func NewCallbackServer(host string, port int, certFile, keyFile string) *CallbackServer {
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = DefaultCallbackPort
	}

	return &CallbackServer{
		host:     host,
		port:     port,
		certFile: certFile,
		keyFile:  keyFile,
		resultCh: make(chan *CallbackResult, 1),
		errorCh:  make(chan error, 1),
	}
}

// Start binds the HTTPS listener and begins serving. It fails with a
// *TLSConfigError when the certificate material is missing or invalid.
// The server stops automatically when the context is cancelled.
func (s *CallbackServer) Start(ctx context.Context) error {
	if s.certFile == "" || s.keyFile == "" {
		return &TLSConfigError{Reason: "certificate or key path not configured"}
	}
	cert, err := tls.LoadX509KeyPair(s.certFile, s.keyFile)
	if err != nil {
		return &TLSConfigError{Reason: "could not load certificate material", Err: err}
	}

	addr := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind callback listener on %s: %w", addr, err)
	}
	s.listener = tls.NewListener(listener, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})
	s.port = listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/favicon.ico", s.handleFavicon)
	mux.HandleFunc("/callback", s.handleCallback)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(s.listener); err != nil && err != http.ErrServerClosed {
			select {
			case s.errorCh <- err:
			default:
			}
		}
	}()

	// Stop the server when the context is cancelled.
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	logging.Debug("OAuth", "Callback listener started on https://%s:%d", s.host, s.port)
	return nil
}

// WaitForCallback blocks until the redirect lands, the timeout passes,
// or the context is cancelled. A missed redirect is a normal, expected
// outcome: it is reported as a result with Error "timeout", not as an
// error.
func (s *CallbackServer) WaitForCallback(ctx context.Context, timeout time.Duration) (*CallbackResult, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-s.resultCh:
		return result, nil
	case err := <-s.errorCh:
		return nil, err
	case <-timer.C:
		return &CallbackResult{Error: "timeout", ErrorDescription: "No callback received"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// handleRoot serves a friendly page so humans who browse to / before the
// redirect fires get a "still waiting" message, not an error.
func (s *CallbackServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, waitingHTML)
}

func (s *CallbackServer) handleFavicon(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// handleCallback captures the authorization response. At most one
// callback is serviced per listener invocation.
func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	var handled bool
	s.once.Do(func() {
		handled = true
		s.processCallback(w, r)
	})

	if !handled {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
	}
}

// processCallback extracts the redirect's query parameters and hands the
// result to the waiter. Called exactly once via sync.Once.
func (s *CallbackServer) processCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")

	query := r.URL.Query()
	result := &CallbackResult{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if result.IsError() {
		tmpl := template.Must(template.New("error").Parse(callbackErrorHTML))
		_ = tmpl.Execute(w, map[string]string{
			"Error":       result.Error,
			"Description": result.ErrorDescription,
		})
	} else {
		fmt.Fprint(w, callbackSuccessHTML)
	}

	select {
	case s.resultCh <- result:
	default:
	}
}

// Stop shuts the server down and releases the bound port. Safe to call
// multiple times and on a server that never started.
func (s *CallbackServer) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

// Port returns the port the server is listening on.
func (s *CallbackServer) Port() int {
	return s.port
}

// AwaitCallback runs a callback server for a single authorization
// attempt: bind, wait for the redirect or the timeout, tear down. The
// listener is released on every exit path.
func AwaitCallback(ctx context.Context, host string, port int, certFile, keyFile string, timeout time.Duration) (*CallbackResult, error) {
	srv := NewCallbackServer(host, port, certFile, keyFile)
	if err := srv.Start(ctx); err != nil {
		return nil, err
	}
	defer srv.Stop()

	return srv.WaitForCallback(ctx, timeout)
}
