package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentendash/internal/config"
)

func newTestManager(t *testing.T, cfg config.OAuthConfig) *Manager {
	t.Helper()
	mgr, err := NewManager(cfg, "manager-test-secret")
	require.NoError(t, err)
	return mgr
}

// tokenEndpoint is a stand-in bank token endpoint. It counts requests
// and answers according to the handler.
func tokenEndpoint(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func grantResponse(access, refresh string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  access,
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": refresh,
			"scope":         "accounts",
		})
	}
}

func TestSelectGrant(t *testing.T) {
	withCreds := config.BankConfig{ClientID: "id", ClientSecret: "secret"}
	withUserPass := withCreds
	withUserPass.Username = "user"
	withUserPass.Password = "pass"
	withTLS := config.AppConfig{TLSCertPath: "cert.pem", TLSKeyPath: "key.pem"}

	tests := []struct {
		name string
		bank config.BankConfig
		app  config.AppConfig
		want Grant
	}{
		{"client creds and TLS", withCreds, withTLS, GrantAuthorizationCode},
		{"client creds, TLS and user creds", withUserPass, withTLS, GrantAuthorizationCode},
		{"client creds and user creds, no TLS", withUserPass, config.AppConfig{}, GrantPassword},
		{"client creds only", withCreds, config.AppConfig{}, GrantSimulated},
		{"no credentials at all", config.BankConfig{}, config.AppConfig{}, GrantSimulated},
		{"no client creds despite TLS", config.BankConfig{Username: "u", Password: "p"}, withTLS, GrantSimulated},
		{"cert without key is not TLS", withCreds, config.AppConfig{TLSCertPath: "cert.pem"}, GrantSimulated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectGrant(tt.bank, tt.app))
		})
	}
}

func TestGenerateAuthorizationURL(t *testing.T) {
	mgr := newTestManager(t, config.OAuthConfig{})
	bank := config.BankConfig{
		Name:             "commerzbank",
		ClientID:         "client-1",
		RedirectURI:      "https://localhost:8443/callback",
		AuthorizationURL: "https://auth.example.com/authorize",
		Scope:            "accounts transactions",
	}

	authURL, state, err := mgr.GenerateAuthorizationURL(bank)
	require.NoError(t, err)
	require.NotEmpty(t, state)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-1", q.Get("client_id"))
	assert.Equal(t, "https://localhost:8443/callback", q.Get("redirect_uri"))
	assert.Equal(t, state, q.Get("state"))
	assert.Equal(t, "accounts transactions", q.Get("scope"))

	// Each invocation mints a distinct state value.
	_, state2, err := mgr.GenerateAuthorizationURL(bank)
	require.NoError(t, err)
	assert.NotEqual(t, state, state2)
}

func TestGenerateAuthorizationURL_OmitsEmptyScope(t *testing.T) {
	mgr := newTestManager(t, config.OAuthConfig{})
	bank := config.BankConfig{
		Name:             "commerzbank",
		ClientID:         "client-1",
		AuthorizationURL: "https://auth.example.com/authorize",
	}

	authURL, _, err := mgr.GenerateAuthorizationURL(bank)
	require.NoError(t, err)
	assert.NotContains(t, authURL, "scope=")
}

func TestExchangeCode_Success(t *testing.T) {
	var gotForm url.Values
	srv, calls := tokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		grantResponse("at-xchg", "rt-xchg")(w, r)
	})

	mgr := newTestManager(t, config.OAuthConfig{})
	bank := config.BankConfig{
		Name:         "commerzbank",
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		RedirectURI:  "https://localhost:8443/callback",
		TokenURL:     srv.URL,
	}

	rec, err := mgr.ExchangeCode(context.Background(), "auth-code-42", bank)
	require.NoError(t, err)
	assert.Equal(t, "at-xchg", rec.AccessToken)
	assert.Equal(t, "rt-xchg", rec.RefreshToken)
	assert.Equal(t, int64(1), calls.Load())

	assert.Equal(t, "authorization_code", gotForm.Get("grant_type"))
	assert.Equal(t, "auth-code-42", gotForm.Get("code"))
	assert.Equal(t, "client-1", gotForm.Get("client_id"))
	assert.Equal(t, "secret-1", gotForm.Get("client_secret"))
	assert.Equal(t, "https://localhost:8443/callback", gotForm.Get("redirect_uri"))

	// The record is stored under the bank identity.
	assert.True(t, mgr.IsTokenValid("commerzbank"))
	token, ok := mgr.AccessToken("commerzbank")
	require.True(t, ok)
	assert.Equal(t, "at-xchg", token)
}

func TestExchangeCode_Non200(t *testing.T) {
	srv, _ := tokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	})

	mgr := newTestManager(t, config.OAuthConfig{})
	bank := config.BankConfig{Name: "commerzbank", TokenURL: srv.URL}

	_, err := mgr.ExchangeCode(context.Background(), "bad-code", bank)
	require.Error(t, err)

	var oauthErr *OAuthError
	require.ErrorAs(t, err, &oauthErr)
	assert.Equal(t, http.StatusBadRequest, oauthErr.Status)
	assert.Contains(t, oauthErr.Body, "invalid_grant")
	assert.False(t, mgr.IsTokenValid("commerzbank"))
}

func TestExchangeCode_EndpointTimeout(t *testing.T) {
	srv, _ := tokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(3 * time.Second)
	})

	mgr := newTestManager(t, config.OAuthConfig{TimeoutSeconds: 1})
	bank := config.BankConfig{Name: "commerzbank", TokenURL: srv.URL}

	start := time.Now()
	_, err := mgr.ExchangeCode(context.Background(), "code", bank)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	var oauthErr *OAuthError
	require.ErrorAs(t, err, &oauthErr)
	assert.NotNil(t, oauthErr.Err)
}

func TestPasswordGrant_FailsFastWithoutCredentials(t *testing.T) {
	srv, calls := tokenEndpoint(t, grantResponse("never", ""))

	mgr := newTestManager(t, config.OAuthConfig{})
	bank := config.BankConfig{
		Name:     "commerzbank",
		ClientID: "client-1",
		TokenURL: srv.URL,
	}

	_, err := mgr.PasswordGrant(context.Background(), bank)
	require.Error(t, err)

	var oauthErr *OAuthError
	require.ErrorAs(t, err, &oauthErr)
	assert.Contains(t, oauthErr.Body, "username/password not provided")
	assert.Equal(t, int64(0), calls.Load(), "no token request may be made without credentials")
}

func TestPasswordGrant_Success(t *testing.T) {
	var gotForm url.Values
	srv, _ := tokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		grantResponse("at-pw", "rt-pw")(w, r)
	})

	mgr := newTestManager(t, config.OAuthConfig{})
	bank := config.BankConfig{
		Name:         "commerzbank",
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		Username:     "sandbox-user",
		Password:     "sandbox-pass",
		TokenURL:     srv.URL,
	}

	rec, err := mgr.PasswordGrant(context.Background(), bank)
	require.NoError(t, err)
	assert.Equal(t, "at-pw", rec.AccessToken)
	assert.Equal(t, "password", gotForm.Get("grant_type"))
	assert.Equal(t, "sandbox-user", gotForm.Get("username"))
	assert.Equal(t, "sandbox-pass", gotForm.Get("password"))
	assert.True(t, mgr.IsTokenValid("commerzbank"))
}

func TestSimulate(t *testing.T) {
	mgr := newTestManager(t, config.OAuthConfig{})

	rec, err := mgr.Simulate("commerzbank")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rec.AccessToken, "mock_access_token_"))
	assert.True(t, strings.HasPrefix(rec.RefreshToken, "mock_refresh_token_"))
	assert.Equal(t, "Bearer", rec.TokenType)
	assert.Equal(t, 3600, rec.ExpiresIn)
	assert.True(t, mgr.IsTokenValid("commerzbank"))

	rec2, err := mgr.Simulate("other-bank")
	require.NoError(t, err)
	assert.NotEqual(t, rec.AccessToken, rec2.AccessToken, "each simulation mints distinct tokens")
}

func TestRefreshToken_NoRecord(t *testing.T) {
	mgr := newTestManager(t, config.OAuthConfig{})

	_, err := mgr.RefreshToken(context.Background(), "commerzbank", config.BankConfig{})
	require.Error(t, err)

	var oauthErr *OAuthError
	require.ErrorAs(t, err, &oauthErr)
	var noRec *ErrNoRecord
	assert.ErrorAs(t, err, &noRec)
}

func TestRefreshToken_NoRefreshTokenOnFile(t *testing.T) {
	mgr := newTestManager(t, config.OAuthConfig{})
	require.NoError(t, mgr.Store().Set("commerzbank", Record{AccessToken: "at", ExpiresIn: 3600}))

	_, err := mgr.RefreshToken(context.Background(), "commerzbank", config.BankConfig{})
	require.Error(t, err)

	var oauthErr *OAuthError
	require.ErrorAs(t, err, &oauthErr)
	assert.Contains(t, oauthErr.Body, "no refresh token available")
}

func TestRefreshToken_PreservesRefreshTokenWhenOmitted(t *testing.T) {
	var gotForm url.Values
	srv, _ := tokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		// Server answers without a new refresh token.
		grantResponse("at-fresh", "")(w, r)
	})

	mgr := newTestManager(t, config.OAuthConfig{})
	require.NoError(t, mgr.Store().Set("commerzbank", Record{
		AccessToken:  "at-stale",
		ExpiresIn:    3600,
		RefreshToken: "rt-keep",
	}))

	bank := config.BankConfig{Name: "commerzbank", ClientID: "client-1", ClientSecret: "secret-1", TokenURL: srv.URL}
	rec, err := mgr.RefreshToken(context.Background(), "commerzbank", bank)
	require.NoError(t, err)

	assert.Equal(t, "refresh_token", gotForm.Get("grant_type"))
	assert.Equal(t, "rt-keep", gotForm.Get("refresh_token"))
	assert.Equal(t, "at-fresh", rec.AccessToken)
	assert.Equal(t, "rt-keep", rec.RefreshToken, "old refresh token survives when the server omits one")

	stored, err := mgr.Store().Record("commerzbank")
	require.NoError(t, err)
	assert.Equal(t, "at-fresh", stored.AccessToken)
	assert.Equal(t, "rt-keep", stored.RefreshToken)
}

func TestEnsureAuthenticated_NoopWhenValid(t *testing.T) {
	srv, calls := tokenEndpoint(t, grantResponse("never", ""))

	mgr := newTestManager(t, config.OAuthConfig{})
	bank := config.BankConfig{Name: "commerzbank", TokenURL: srv.URL}
	require.NoError(t, mgr.Store().Set("commerzbank", Record{AccessToken: "at", ExpiresIn: 3600}))

	require.NoError(t, mgr.EnsureAuthenticated(context.Background(), bank, config.AppConfig{}))
	assert.Equal(t, int64(0), calls.Load())
}

func TestEnsureAuthenticated_SimulatesWithoutCredentials(t *testing.T) {
	srv, calls := tokenEndpoint(t, grantResponse("never", ""))

	mgr := newTestManager(t, config.OAuthConfig{})
	bank := config.BankConfig{Name: "commerzbank", TokenURL: srv.URL}

	require.NoError(t, mgr.EnsureAuthenticated(context.Background(), bank, config.AppConfig{}))
	assert.Equal(t, int64(0), calls.Load())
	assert.True(t, mgr.IsTokenValid("commerzbank"))

	token, ok := mgr.AccessToken("commerzbank")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(token, "mock_access_token_"))
}

func TestEnsureAuthenticated_CredsWithoutTLSSimulateDirectly(t *testing.T) {
	srv, calls := tokenEndpoint(t, grantResponse("never", ""))

	mgr := newTestManager(t, config.OAuthConfig{})
	mgr.openBrowser = func(string) error {
		t.Error("no browser flow may start without TLS material")
		return nil
	}

	port := freePort(t)
	bank := config.BankConfig{
		Name:         "commerzbank",
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		RedirectURI:  fmt.Sprintf("https://localhost:%d/callback", port),
		TokenURL:     srv.URL,
	}

	require.NoError(t, mgr.EnsureAuthenticated(context.Background(), bank, config.AppConfig{}))
	assert.Equal(t, int64(0), calls.Load(), "no token endpoint request may be made")

	token, ok := mgr.AccessToken("commerzbank")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(token, "mock_access_token_"))

	// The redirect port was never bound: it is still free to listen on.
	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
	require.NoError(t, err)
	ln.Close()
}

func TestEnsureAuthenticated_RefreshesExpiredToken(t *testing.T) {
	srv, calls := tokenEndpoint(t, grantResponse("at-refreshed", "rt-next"))

	mgr := newTestManager(t, config.OAuthConfig{})
	bank := config.BankConfig{Name: "commerzbank", ClientID: "id", ClientSecret: "sec", TokenURL: srv.URL}

	require.NoError(t, mgr.Store().Set("commerzbank", Record{
		AccessToken:  "at-stale",
		ExpiresIn:    3600,
		RefreshToken: "rt-old",
		ObtainedAt:   time.Now().Add(-2 * time.Hour),
	}))
	require.False(t, mgr.IsTokenValid("commerzbank"))

	require.NoError(t, mgr.EnsureAuthenticated(context.Background(), bank, config.AppConfig{}))
	assert.Equal(t, int64(1), calls.Load())

	token, ok := mgr.AccessToken("commerzbank")
	require.True(t, ok)
	assert.Equal(t, "at-refreshed", token)
}

func TestEnsureAuthenticated_DegradesToSimulatedOnGrantFailure(t *testing.T) {
	srv, calls := tokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	})

	mgr := newTestManager(t, config.OAuthConfig{})
	bank := config.BankConfig{
		Name:         "commerzbank",
		ClientID:     "id",
		ClientSecret: "sec",
		Username:     "user",
		Password:     "pass",
		TokenURL:     srv.URL,
	}

	require.NoError(t, mgr.EnsureAuthenticated(context.Background(), bank, config.AppConfig{}))
	assert.Equal(t, int64(1), calls.Load(), "password grant was attempted once")

	token, ok := mgr.AccessToken("commerzbank")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(token, "mock_access_token_"), "failed real grant degrades to a simulated token")
}

func TestAuthorizationCodeFlow_EndToEnd(t *testing.T) {
	tokenSrv, _ := tokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "code-from-bank", r.PostForm.Get("code"))
		grantResponse("at-flow", "rt-flow")(w, r)
	})

	certFile, keyFile := writeTestCert(t)
	port := freePort(t)

	mgr := newTestManager(t, config.OAuthConfig{CallbackTimeoutSeconds: 10})
	bank := config.BankConfig{
		Name:             "commerzbank",
		ClientID:         "client-1",
		ClientSecret:     "secret-1",
		RedirectURI:      fmt.Sprintf("https://localhost:%d/callback", port),
		AuthorizationURL: "https://auth.example.com/authorize",
		TokenURL:         tokenSrv.URL,
	}
	app := config.AppConfig{TLSCertPath: certFile, TLSKeyPath: keyFile}

	// Play the bank: read the state out of the authorization URL and
	// redirect back to the callback listener with a code.
	mgr.openBrowser = func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		state := u.Query().Get("state")
		go func() {
			time.Sleep(100 * time.Millisecond)
			resp, err := insecureClient().Get(fmt.Sprintf(
				"https://localhost:%d/callback?code=code-from-bank&state=%s", port, url.QueryEscape(state)))
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}

	rec, err := mgr.AuthorizationCodeFlow(context.Background(), bank, app)
	require.NoError(t, err)
	assert.Equal(t, "at-flow", rec.AccessToken)
	assert.True(t, mgr.IsTokenValid("commerzbank"))
}

func TestAuthorizationCodeFlow_RejectsStateMismatch(t *testing.T) {
	tokenSrv, calls := tokenEndpoint(t, grantResponse("never", ""))

	certFile, keyFile := writeTestCert(t)
	port := freePort(t)

	mgr := newTestManager(t, config.OAuthConfig{CallbackTimeoutSeconds: 10})
	bank := config.BankConfig{
		Name:             "commerzbank",
		ClientID:         "client-1",
		ClientSecret:     "secret-1",
		RedirectURI:      fmt.Sprintf("https://localhost:%d/callback", port),
		AuthorizationURL: "https://auth.example.com/authorize",
		TokenURL:         tokenSrv.URL,
	}
	app := config.AppConfig{TLSCertPath: certFile, TLSKeyPath: keyFile}

	mgr.openBrowser = func(authURL string) error {
		go func() {
			time.Sleep(100 * time.Millisecond)
			resp, err := insecureClient().Get(fmt.Sprintf(
				"https://localhost:%d/callback?code=forged-code&state=not-the-real-state", port))
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}

	_, err := mgr.AuthorizationCodeFlow(context.Background(), bank, app)
	require.Error(t, err)

	var oauthErr *OAuthError
	require.ErrorAs(t, err, &oauthErr)
	assert.Contains(t, oauthErr.Body, "state mismatch")
	assert.Equal(t, int64(0), calls.Load(), "a code with mismatched state must never be exchanged")
	assert.False(t, mgr.IsTokenValid("commerzbank"))
}

func TestAuthorizationCodeFlow_ProviderError(t *testing.T) {
	tokenSrv, calls := tokenEndpoint(t, grantResponse("never", ""))

	certFile, keyFile := writeTestCert(t)
	port := freePort(t)

	mgr := newTestManager(t, config.OAuthConfig{CallbackTimeoutSeconds: 10})
	bank := config.BankConfig{
		Name:             "commerzbank",
		ClientID:         "client-1",
		ClientSecret:     "secret-1",
		RedirectURI:      fmt.Sprintf("https://localhost:%d/callback", port),
		AuthorizationURL: "https://auth.example.com/authorize",
		TokenURL:         tokenSrv.URL,
	}
	app := config.AppConfig{TLSCertPath: certFile, TLSKeyPath: keyFile}

	mgr.openBrowser = func(authURL string) error {
		go func() {
			time.Sleep(100 * time.Millisecond)
			resp, err := insecureClient().Get(fmt.Sprintf(
				"https://localhost:%d/callback?error=access_denied", port))
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}

	_, err := mgr.AuthorizationCodeFlow(context.Background(), bank, app)
	require.Error(t, err)

	var oauthErr *OAuthError
	require.ErrorAs(t, err, &oauthErr)
	assert.Contains(t, oauthErr.Body, "access_denied")
	assert.Equal(t, int64(0), calls.Load())
}

func TestRedirectAddr(t *testing.T) {
	tests := []struct {
		uri      string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"https://localhost:8443/callback", "localhost", 8443, false},
		{"https://localhost/callback", "localhost", DefaultCallbackPort, false},
		{"https://127.0.0.1:9000/cb", "127.0.0.1", 9000, false},
		{"://bad", "", 0, true},
	}

	for _, tt := range tests {
		host, port, err := redirectAddr(tt.uri)
		if tt.wantErr {
			assert.Error(t, err, tt.uri)
			continue
		}
		require.NoError(t, err, tt.uri)
		assert.Equal(t, tt.wantHost, host, tt.uri)
		assert.Equal(t, tt.wantPort, port, tt.uri)
	}
}
