package metadata

import "errors"

var (
	// ErrNotFound is returned when the remote catalog has no record for the
	// requested identifier.
	ErrNotFound = errors.New("remote item not found")

	// ErrMalformedPayload is returned when a remote response cannot be decoded.
	ErrMalformedPayload = errors.New("malformed remote payload")

	// ErrUnauthorized is returned when the remote API rejects the configured
	// API key. This is a configuration problem, not a transient failure.
	ErrUnauthorized = errors.New("remote API rejected the configured key")
)
