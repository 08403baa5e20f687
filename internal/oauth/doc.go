// Package oauth implements the OAuth 2.0 authentication subsystem for
// bank API connections.
//
// The package is organized leaf-first:
//
//   - Cipher: AES-256-GCM encryption of serialized token records, keyed
//     by an operator-supplied or per-process random secret.
//   - CallbackServer: a short-lived HTTPS server that captures exactly
//     one authorization redirect and then shuts down.
//   - TokenStore: the encrypted in-memory mapping from a bank identity
//     to its current token record.
//   - Manager: selects a grant strategy (authorization code, password,
//     or simulated), drives it to completion, and exposes the bearer
//     token and validity predicate to the rest of the application.
//
// Grant selection is a pure function of the available configuration: the
// authorization-code flow is preferred when client credentials and TLS
// material for the local callback are all present; the password grant is
// a sandbox convenience requiring explicit credentials; the simulated
// grant fabricates a local token so the dashboard can degrade to mock
// data instead of crashing when no real credentials are configured.
//
// Token records are never held in cleartext; only their encrypted
// serialization is retained, and a record that fails to decrypt is
// reported as absent rather than propagating the failure.
package oauth
