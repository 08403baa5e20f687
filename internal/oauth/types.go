package oauth

import (
	"time"

	"golang.org/x/oauth2"

	"rentendash/internal/config"
)

// Record is the structured result of a successful grant: the bearer
// token plus the metadata the token endpoint returned with it. Only the
// encrypted serialization of a Record is ever retained by the store.
type Record struct {
	// AccessToken is the bearer token presented to the bank API.
	AccessToken string `json:"access_token"`

	// TokenType is typically "Bearer".
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the token lifetime in seconds.
	ExpiresIn int `json:"expires_in,omitempty"`

	// RefreshToken is used to obtain new access tokens (optional).
	RefreshToken string `json:"refresh_token,omitempty"`

	// Scope is the granted scope(s) (optional).
	Scope string `json:"scope,omitempty"`

	// ObtainedAt is when the record was stored. Zero for records that
	// were never stored.
	ObtainedAt time.Time `json:"obtained_at,omitempty"`
}

// ExpiresAt returns the calculated expiration timestamp, or the zero
// time when the record carries no lifetime or was never stored.
func (r *Record) ExpiresAt() time.Time {
	if r.ExpiresIn <= 0 || r.ObtainedAt.IsZero() {
		return time.Time{}
	}
	return r.ObtainedAt.Add(time.Duration(r.ExpiresIn) * time.Second)
}

// IsExpired checks whether the record is past its lifetime. Returns true
// if it is expired or will expire within the given margin. Records
// without a known lifetime don't expire.
func (r *Record) IsExpired(margin time.Duration) bool {
	expiresAt := r.ExpiresAt()
	if expiresAt.IsZero() {
		return false
	}
	return time.Now().Add(margin).After(expiresAt)
}

// OAuth2Token converts the record to an oauth2.Token for use with
// bearer-injecting HTTP clients.
func (r *Record) OAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  r.AccessToken,
		TokenType:    r.TokenType,
		RefreshToken: r.RefreshToken,
		Expiry:       r.ExpiresAt(),
	}
}

// CallbackResult represents the query parameters captured from one OAuth
// authorization redirect.
type CallbackResult struct {
	// Code is the authorization code from the provider.
	Code string

	// State is the state parameter echoed back by the provider, verified
	// against the value generated for the attempt.
	State string

	// Error is the OAuth error code if authorization failed, or
	// "timeout" when no redirect arrived within the wait window.
	Error string

	// ErrorDescription is a human-readable error description.
	ErrorDescription string
}

// IsError returns true if the callback result represents an error.
func (r *CallbackResult) IsError() bool {
	return r.Error != ""
}

// Grant identifies one of the strategies for obtaining a token.
type Grant int

const (
	// GrantAuthorizationCode is the browser-based authorization-code
	// exchange through the local HTTPS callback listener.
	GrantAuthorizationCode Grant = iota

	// GrantPassword is the resource-owner password grant, a sandbox
	// convenience requiring explicit username/password configuration.
	GrantPassword

	// GrantSimulated fabricates a local token with no network call, used
	// when no real client credentials are configured.
	GrantSimulated
)

// String returns the string representation of the grant.
func (g Grant) String() string {
	switch g {
	case GrantAuthorizationCode:
		return "authorization_code"
	case GrantPassword:
		return "password"
	case GrantSimulated:
		return "simulated"
	default:
		return "unknown"
	}
}

// SelectGrant picks the grant strategy for the available configuration.
// The authorization-code flow requires client id, client secret and TLS
// material for the local callback; the password grant requires client
// credentials plus explicit username/password; everything else falls
// back to the simulated grant.
func SelectGrant(bank config.BankConfig, app config.AppConfig) Grant {
	hasClientCreds := bank.ClientID != "" && bank.ClientSecret != ""
	hasTLS := app.TLSCertPath != "" && app.TLSKeyPath != ""

	switch {
	case hasClientCreds && hasTLS:
		return GrantAuthorizationCode
	case hasClientCreds && bank.Username != "" && bank.Password != "":
		return GrantPassword
	default:
		return GrantSimulated
	}
}
