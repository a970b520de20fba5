// Package domain defines the core interfaces and types for Kestrel.
package domain

import "errors"

// Fault taxonomy. Collaborator faults are absorbed at the adapter layer
// by substituting documented defaults; only ErrValidation reaches clients.
var (
	// ErrValidation marks malformed input rejected at the request boundary.
	ErrValidation = errors.New("validation error")

	// ErrCollaboratorUnavailable marks a network or credential failure
	// reaching an external backend. Always recoverable via degraded mode.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	// ErrUnparsableResponse marks a backend response with no usable
	// structured block. Recoverable via a raw fallback record.
	ErrUnparsableResponse = errors.New("unparsable response")

	// ErrAllModelsFailed marks an ensemble call in which every model
	// failed. The orchestrator substitutes a neutral opinion.
	ErrAllModelsFailed = errors.New("all ensemble models failed")
)
