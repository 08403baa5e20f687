package oauth

import (
	"sync"
	"time"

	"rentendash/pkg/logging"
)

// tokenExpiryMargin is the margin applied when checking token
// expiration. This accounts for clock skew and in-flight request time.
const tokenExpiryMargin = 30 * time.Second

// TokenStore maps a bank identity to its current encrypted token record.
// It is the single source of truth for "do we currently have usable
// credentials for bank X". At most one record exists per identity;
// writes overwrite, last write wins.
type TokenStore struct {
	mu     sync.RWMutex
	cipher *Cipher
	tokens map[string]string
}

// NewTokenStore creates an empty store encrypting through the given
// cipher.
func NewTokenStore(cipher *Cipher) *TokenStore {
	return &TokenStore{
		cipher: cipher,
		tokens: make(map[string]string),
	}
}

// Set encrypts the record and overwrites any prior record for the
// identity. ObtainedAt is stamped when unset so expiry can be derived
// later.
func (ts *TokenStore) Set(identity string, rec Record) error {
	if rec.ObtainedAt.IsZero() {
		rec.ObtainedAt = time.Now()
	}

	encrypted, err := ts.cipher.Encrypt(rec)
	if err != nil {
		return err
	}

	ts.mu.Lock()
	ts.tokens[identity] = encrypted
	ts.mu.Unlock()

	logging.Debug("OAuth", "Stored token for %s (expires: %v)", identity, rec.ExpiresAt())
	return nil
}

// AccessToken decrypts and returns the bearer token for the identity.
// The second return is false when no record exists or decryption fails;
// a decryption failure is logged, not propagated, so a corrupted record
// looks unauthenticated instead of crashing the caller.
func (ts *TokenStore) AccessToken(identity string) (string, bool) {
	rec, err := ts.Record(identity)
	if err != nil {
		if _, ok := err.(*ErrNoRecord); !ok {
			logging.Error("OAuth", err, "Error retrieving token for %s", identity)
		}
		return "", false
	}
	if rec.AccessToken == "" {
		return "", false
	}
	return rec.AccessToken, true
}

// ErrNoRecord reports that no record is stored for an identity.
type ErrNoRecord struct {
	Identity string
}

func (e *ErrNoRecord) Error() string {
	return "no stored token found for " + e.Identity
}

// Record decrypts and returns the full record for the identity. Unlike
// AccessToken it propagates failures: *ErrNoRecord when nothing is
// stored, *CryptoError when decryption fails. Used by refresh, where
// the caller has no fallback.
func (ts *TokenStore) Record(identity string) (Record, error) {
	ts.mu.RLock()
	encrypted, exists := ts.tokens[identity]
	ts.mu.RUnlock()

	if !exists {
		return Record{}, &ErrNoRecord{Identity: identity}
	}
	return ts.cipher.Decrypt(encrypted)
}

// IsValid reports whether a record exists for the identity, decrypts,
// carries a non-empty access token, and is not past its lifetime.
func (ts *TokenStore) IsValid(identity string) bool {
	rec, err := ts.Record(identity)
	if err != nil || rec.AccessToken == "" {
		return false
	}
	if rec.IsExpired(tokenExpiryMargin) {
		logging.Debug("OAuth", "Token expired for %s", identity)
		return false
	}
	return true
}

// Delete removes the record for the identity.
func (ts *TokenStore) Delete(identity string) {
	ts.mu.Lock()
	delete(ts.tokens, identity)
	ts.mu.Unlock()

	logging.Debug("OAuth", "Deleted token for %s", identity)
}

// Count returns the number of stored records.
func (ts *TokenStore) Count() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.tokens)
}
