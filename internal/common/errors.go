// Package common defines shared constants and sentinel errors used across
// SecureDrive components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Key lifecycle errors.
	ErrKeyNotFound     = errors.New("encryption key not found")
	ErrCorruptKey      = errors.New("corrupt encryption key")
	ErrInsecureStorage = errors.New("insecure key storage")

	// Container errors. ErrPaddingOrKey covers both a wrong key and
	// corrupted ciphertext; CBC padding cannot tell the two apart.
	ErrMalformedContainer = errors.New("malformed container")
	ErrPaddingOrKey       = errors.New("invalid padding: wrong key or corrupt container")

	// Failure categories attached to finished transfer jobs.
	ErrIO        = errors.New("local io error")
	ErrTransport = errors.New("transport error")

	// ErrCancelled marks work abandoned by explicit user cancellation.
	ErrCancelled = errors.New("cancelled")

	// ErrBusy is returned for operations that must not run while a
	// transfer batch is active (submit, key regeneration, key import).
	ErrBusy = errors.New("transfer batch is active")

	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
)
