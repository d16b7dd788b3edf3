package game

import "errors"

var (
	ErrUnauthorized           = errors.New("unauthorized")
	ErrInvalidProof           = errors.New("invalid proof")
	ErrGameNotActive          = errors.New("game not active")
	ErrAlreadyWon             = errors.New("already won")
	ErrAlreadyProcessed       = errors.New("already processed")
	ErrInvalidRequest         = errors.New("invalid request")
	ErrUnauthorizedDecryption = errors.New("unauthorized decryption")

	// ErrMalformedResult is returned for a verified cleartext that is not a
	// single ABI-encoded bool.
	ErrMalformedResult = errors.New("malformed result")
	// ErrAdminMismatch is returned by New when the store belongs to another admin.
	ErrAdminMismatch = errors.New("admin mismatch")
)
