// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// This package extends slog to provide:
//   - Automatic sanitization of sensitive values (cookies, tokens, secrets)
//   - Redaction of credential lines inside longer text, such as the raw HTTP
//     requests web scanners store as evidence
//   - Configurable log levels with verbose mode support
//
// Even in verbose mode, sensitive values are masked to prevent accidental
// exposure of secrets in logs that may be shared or stored.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, true) // verbose=true
//
//	logger.Warn("row skipped",
//	    "file", "awvs.html",
//	    "evidence", "GET /login HTTP/1.1\nCookie: sid=abc123", // Cookie line is redacted
//	)
//
//	slog.SetDefault(logger)
package log
