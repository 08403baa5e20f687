package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"rentendash/internal/config"
	"rentendash/pkg/logging"
)

// simulatedScope is the fixed scope fabricated tokens are granted.
const simulatedScope = "accounts transactions balances"

// Manager orchestrates OAuth 2.0 authentication for bank APIs. It owns
// the token cipher and store, selects a grant strategy from the
// available configuration, drives the chosen flow to completion, and
// exposes the resulting access token and validity predicate.
type Manager struct {
	cfg        config.OAuthConfig
	cipher     *Cipher
	store      *TokenStore
	httpClient *http.Client

	// group deduplicates concurrent authentication attempts for the
	// same bank identity.
	group singleflight.Group

	// openBrowser is swappable in tests.
	openBrowser func(url string) error
}

// NewManager creates a manager with the given timeout settings and
// token encryption secret (see NewCipher for accepted secret forms).
func NewManager(cfg config.OAuthConfig, encryptionSecret string) (*Manager, error) {
	cipher, err := NewCipher(encryptionSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token cipher: %w", err)
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	m := &Manager{
		cfg:         cfg,
		cipher:      cipher,
		store:       NewTokenStore(cipher),
		httpClient:  &http.Client{Timeout: timeout},
		openBrowser: OpenBrowser,
	}

	logging.Info("OAuth", "OAuth manager initialized")
	return m, nil
}

// Store returns the token store for external access.
func (m *Manager) Store() *TokenStore {
	return m.store
}

// AccessToken returns the current bearer token for the identity, or
// false when none is available.
func (m *Manager) AccessToken(identity string) (string, bool) {
	return m.store.AccessToken(identity)
}

// IsTokenValid reports whether the identity currently holds usable
// credentials.
func (m *Manager) IsTokenValid(identity string) bool {
	return m.store.IsValid(identity)
}

// GenerateAuthorizationURL builds the authorization URL for the bank
// along with a fresh CSRF state value. The scope parameter is omitted
// entirely when the bank has no scope configured, since some providers
// reject an empty scope value.
func (m *Manager) GenerateAuthorizationURL(bank config.BankConfig) (authURL, state string, err error) {
	state, err = randomToken(32)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate state: %w", err)
	}

	u, err := url.Parse(bank.AuthorizationURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid authorization endpoint: %w", err)
	}

	query := u.Query()
	query.Set("response_type", "code")
	query.Set("client_id", bank.ClientID)
	query.Set("redirect_uri", bank.RedirectURI)
	query.Set("state", state)
	if bank.Scope != "" {
		query.Set("scope", bank.Scope)
	}
	u.RawQuery = query.Encode()

	logging.Info("OAuth", "Generated authorization URL for bank: %s", bank.Name)
	return u.String(), state, nil
}

// ExchangeCode exchanges an authorization code for a token record and
// stores the encrypted result under the bank's identity.
func (m *Manager) ExchangeCode(ctx context.Context, code string, bank config.BankConfig) (Record, error) {
	data := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {bank.RedirectURI},
		"client_id":     {bank.ClientID},
		"client_secret": {bank.ClientSecret},
	}

	rec, err := m.doTokenRequest(ctx, "token exchange", bank.TokenURL, data)
	if err != nil {
		return Record{}, err
	}

	if err := m.store.Set(bank.Name, rec); err != nil {
		return Record{}, err
	}
	logging.Info("OAuth", "Successfully obtained token for %s", bank.Name)
	return rec, nil
}

// PasswordGrant obtains a token via the OAuth2 password grant, a
// sandbox convenience. It fails fast, before any network I/O, when
// username or password are absent from the bank configuration.
func (m *Manager) PasswordGrant(ctx context.Context, bank config.BankConfig) (Record, error) {
	if bank.Username == "" || bank.Password == "" {
		return Record{}, &OAuthError{Op: "password grant", Body: "username/password not provided"}
	}

	data := url.Values{
		"grant_type":    {"password"},
		"username":      {bank.Username},
		"password":      {bank.Password},
		"client_id":     {bank.ClientID},
		"client_secret": {bank.ClientSecret},
	}

	rec, err := m.doTokenRequest(ctx, "password grant", bank.TokenURL, data)
	if err != nil {
		return Record{}, err
	}

	if err := m.store.Set(bank.Name, rec); err != nil {
		return Record{}, err
	}
	logging.Info("OAuth", "Obtained token via password grant for %s", bank.Name)
	return rec, nil
}

// RefreshToken refreshes the stored token for the identity. It requires
// an existing record with a non-empty refresh token and overwrites the
// stored record on success. The new record keeps the old refresh token
// when the server omits one.
func (m *Manager) RefreshToken(ctx context.Context, identity string, bank config.BankConfig) (Record, error) {
	current, err := m.store.Record(identity)
	if err != nil {
		return Record{}, &OAuthError{Op: "token refresh", Err: err}
	}
	if current.RefreshToken == "" {
		return Record{}, &OAuthError{Op: "token refresh", Body: "no refresh token available for " + identity}
	}

	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {current.RefreshToken},
		"client_id":     {bank.ClientID},
		"client_secret": {bank.ClientSecret},
	}

	rec, err := m.doTokenRequest(ctx, "token refresh", bank.TokenURL, data)
	if err != nil {
		return Record{}, err
	}
	if rec.RefreshToken == "" {
		rec.RefreshToken = current.RefreshToken
	}

	if err := m.store.Set(identity, rec); err != nil {
		return Record{}, err
	}
	logging.Info("OAuth", "Successfully refreshed token for %s", identity)
	return rec, nil
}

// Simulate fabricates a token record with no network call and stores it
// under the identity. It exists so environments without real client
// credentials can still exercise the rest of the application.
func (m *Manager) Simulate(identity string) (Record, error) {
	logging.Warn("OAuth", "SIMULATION: Simulating OAuth flow for %s - NOT FOR PRODUCTION", identity)

	access, err := randomToken(16)
	if err != nil {
		return Record{}, err
	}
	refresh, err := randomToken(16)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		AccessToken:  "mock_access_token_" + access,
		TokenType:    "Bearer",
		ExpiresIn:    3600,
		RefreshToken: "mock_refresh_token_" + refresh,
		Scope:        simulatedScope,
	}

	if err := m.store.Set(identity, rec); err != nil {
		return Record{}, err
	}
	logging.Info("OAuth", "Mock OAuth token generated for %s", identity)
	return rec, nil
}

// AuthorizationCodeFlow runs a complete authorization-code flow: build
// the authorization URL, bring up the local HTTPS callback listener on
// the redirect URI's host and port, direct the user's browser to the
// bank, await the redirect, verify the echoed state, and exchange the
// code.
func (m *Manager) AuthorizationCodeFlow(ctx context.Context, bank config.BankConfig, app config.AppConfig) (Record, error) {
	authURL, state, err := m.GenerateAuthorizationURL(bank)
	if err != nil {
		return Record{}, err
	}

	host, port, err := redirectAddr(bank.RedirectURI)
	if err != nil {
		return Record{}, err
	}

	srv := NewCallbackServer(host, port, app.TLSCertPath, app.TLSKeyPath)
	if err := srv.Start(ctx); err != nil {
		return Record{}, err
	}
	defer srv.Stop()

	logging.Info("OAuth", "Open this URL to authenticate (copy/paste if it doesn't open automatically): %s", authURL)
	if err := m.openBrowser(authURL); err != nil {
		logging.Warn("OAuth", "Couldn't launch a browser automatically (%v). Please copy/paste the URL above into your browser.", err)
	}

	timeout := time.Duration(m.cfg.CallbackTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	result, err := srv.WaitForCallback(ctx, timeout)
	if err != nil {
		return Record{}, err
	}

	if result.IsError() {
		desc := result.ErrorDescription
		if desc == "" {
			desc = result.Error
		}
		return Record{}, &OAuthError{Op: "authorization", Body: desc}
	}
	if result.Code == "" {
		return Record{}, &OAuthError{Op: "authorization", Body: "no authorization code received"}
	}
	if result.State != state {
		// A mismatched state means the redirect does not belong to this
		// attempt; the code must not be trusted.
		return Record{}, &OAuthError{Op: "authorization", Body: "state mismatch in callback"}
	}

	return m.ExchangeCode(ctx, result.Code, bank)
}

// EnsureAuthenticated makes sure a usable token exists for the bank's
// identity. It is idempotent: a no-op when the stored token is still
// valid. Otherwise it tries a refresh when a refresh token is on file,
// then runs the grant-selection policy. Failures in the real grant
// paths degrade to the simulated grant so the dashboard falls back to
// mock data instead of crashing. Concurrent calls for the same identity
// are collapsed into one flow.
func (m *Manager) EnsureAuthenticated(ctx context.Context, bank config.BankConfig, app config.AppConfig) error {
	if m.store.IsValid(bank.Name) {
		return nil
	}

	_, err, _ := m.group.Do(bank.Name, func() (interface{}, error) {
		if m.store.IsValid(bank.Name) {
			return nil, nil
		}

		if rec, err := m.store.Record(bank.Name); err == nil && rec.RefreshToken != "" {
			if _, err := m.RefreshToken(ctx, bank.Name, bank); err == nil {
				return nil, nil
			}
			logging.Debug("OAuth", "Token refresh for %s failed, running full grant flow", bank.Name)
		}

		grant := SelectGrant(bank, app)
		logging.Debug("OAuth", "Selected grant %s for %s", grant, bank.Name)

		switch grant {
		case GrantAuthorizationCode:
			if _, err := m.AuthorizationCodeFlow(ctx, bank, app); err == nil {
				return nil, nil
			} else {
				logging.Warn("OAuth", "Auth code flow failed (%v); continuing with simulated token for development", err)
			}
		case GrantPassword:
			if _, err := m.PasswordGrant(ctx, bank); err == nil {
				return nil, nil
			} else {
				logging.Warn("OAuth", "Password grant failed (%v); continuing with simulated token for development", err)
			}
		}

		_, err := m.Simulate(bank.Name)
		return nil, err
	})
	return err
}

// doTokenRequest performs a token endpoint request: a form-encoded POST
// expecting a JSON body on HTTP 200. Any non-200 response becomes an
// *OAuthError embedding the status and body; transport failures
// (including the client-side timeout) become an *OAuthError wrapping
// the cause.
func (m *Manager) doTokenRequest(ctx context.Context, op, tokenURL string, data url.Values) (Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return Record{}, &OAuthError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return Record{}, &OAuthError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Record{}, &OAuthError{Op: op, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return Record{}, &OAuthError{Op: op, Status: resp.StatusCode, Body: string(body)}
	}

	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return Record{}, &OAuthError{Op: op, Err: fmt.Errorf("failed to parse token response: %w", err)}
	}
	return rec, nil
}

// redirectAddr extracts the callback listener's host and port from the
// configured redirect URI.
func redirectAddr(redirectURI string) (string, int, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", 0, fmt.Errorf("invalid redirect URI %q: %w", redirectURI, err)
	}

	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := DefaultCallbackPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", 0, fmt.Errorf("invalid redirect URI port %q: %w", p, err)
		}
	}
	return host, port, nil
}

// randomToken returns n bytes of cryptographically secure randomness as
// an unpadded URL-safe base64 string.
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
