package oauth

import "fmt"

// OAuthError represents a grant, exchange or refresh failure: an HTTP
// non-200 from the token endpoint, a client-side timeout, or missing
// credentials for the requested grant.
type OAuthError struct {
	// Op names the failed operation ("token exchange", "password grant",
	// "token refresh", "authorization").
	Op string

	// Status is the HTTP status code when the token endpoint answered
	// with a non-200, zero otherwise.
	Status int

	// Body is the response body of a failed token endpoint call, kept as
	// diagnostic text.
	Body string

	// Err is the underlying transport error, if any.
	Err error
}

// Error implements the error interface.
func (e *OAuthError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("%s failed: %d - %s", e.Op, e.Status, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s failed: %s", e.Op, e.Body)
	}
}

// Unwrap returns the underlying error for error chain inspection.
func (e *OAuthError) Unwrap() error {
	return e.Err
}

// TLSConfigError indicates the callback listener cannot be brought up
// because its certificate material is missing or invalid.
type TLSConfigError struct {
	Reason string
	Err    error
}

func (e *TLSConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("TLS configuration error: %s: %v", e.Reason, e.Err)
	}
	return "TLS configuration error: " + e.Reason
}

func (e *TLSConfigError) Unwrap() error {
	return e.Err
}

// CryptoError indicates a stored token record could not be decrypted,
// typically because the ciphertext was tampered with or was produced
// under a different key.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token cipher %s failed: %v", e.Op, e.Err)
	}
	return "token cipher " + e.Op + " failed"
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}
