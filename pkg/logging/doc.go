// Package logging provides a thin wrapper around log/slog with a
// subsystem tag on every entry.
//
// All application packages log through the package-level Debug, Info,
// Warn and Error functions with a short subsystem name ("OAuth", "Bank",
// "Config", ...) so related entries can be filtered together. Init must
// be called once at startup with the configured filter level; log calls
// made before Init fall back to stderr at INFO.
package logging
