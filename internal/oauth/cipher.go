package oauth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"rentendash/pkg/logging"
)

const (
	// requiredKeyLength is 32 bytes => AES-256.
	requiredKeyLength = 32

	// nonceSizeGCM is the recommended AES-GCM nonce size (96 bits).
	nonceSizeGCM = 12

	// cipherSep separates base64(nonce) from base64(ciphertext).
	cipherSep = "|"
)

// Cipher provides confidentiality-at-rest for token records while the
// process runs. It seals the JSON serialization of a Record with
// AES-256-GCM under a random nonce, so ciphertext differs between calls
// with identical input.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a cipher from the given secret material.
//
// A base64-encoded 32-byte value is used as the key unmodified. Any
// other non-empty string is deterministically derived into a key via
// SHA-256 so operators can supply arbitrary strings. An empty secret
// yields a fresh random key, distinct per process run: records cannot
// be decrypted across restarts.
func NewCipher(secret string) (*Cipher, error) {
	key, err := deriveKey(secret)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

func deriveKey(secret string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		key := make([]byte, requiredKeyLength)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, fmt.Errorf("generate random key: %w", err)
		}
		return key, nil
	}

	if k, err := base64.StdEncoding.DecodeString(secret); err == nil && len(k) == requiredKeyLength {
		return k, nil
	}
	if k, err := base64.RawStdEncoding.DecodeString(secret); err == nil && len(k) == requiredKeyLength {
		return k, nil
	}

	// Not a valid key; derive one so arbitrary operator strings work.
	logging.Warn("OAuth", "Token encryption key is not a base64 32-byte key; deriving key from value")
	digest := sha256.Sum256([]byte(secret))
	return digest[:], nil
}

// Encrypt serializes the record and seals it, returning
// base64(nonce)|base64(ciphertext).
func (c *Cipher) Encrypt(rec Record) (string, error) {
	plaintext, err := json.Marshal(rec)
	if err != nil {
		return "", &CryptoError{Op: "encrypt", Err: err}
	}

	nonce := make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", &CryptoError{Op: "encrypt", Err: err}
	}

	sealed := c.aead.Seal(nil, nonce, plaintext, nil)

	return base64.StdEncoding.EncodeToString(nonce) + cipherSep +
		base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt is the inverse of Encrypt. It fails with a *CryptoError on
// malformed input, tampered ciphertext, or ciphertext produced under a
// different key.
func (c *Cipher) Decrypt(encrypted string) (Record, error) {
	parts := strings.Split(encrypted, cipherSep)
	if len(parts) != 2 {
		return Record{}, &CryptoError{Op: "decrypt", Err: errors.New("invalid format: expected base64(nonce)|base64(ciphertext)")}
	}

	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return Record{}, &CryptoError{Op: "decrypt", Err: fmt.Errorf("decode nonce: %w", err)}
	}
	if len(nonce) != nonceSizeGCM {
		return Record{}, &CryptoError{Op: "decrypt", Err: fmt.Errorf("invalid nonce length %d", len(nonce))}
	}
	sealed, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return Record{}, &CryptoError{Op: "decrypt", Err: fmt.Errorf("decode ciphertext: %w", err)}
	}

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return Record{}, &CryptoError{Op: "decrypt", Err: err}
	}

	var rec Record
	if err := json.Unmarshal(plaintext, &rec); err != nil {
		return Record{}, &CryptoError{Op: "decrypt", Err: err}
	}
	return rec, nil
}
