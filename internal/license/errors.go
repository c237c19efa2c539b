package license

import (
	apperrors "nodelock/internal/errors"
)

// Errors surfaced by the license package. Callers match them with errors.Is.
var (
	// ErrRecordCorrupted marks a stored blob that exists but cannot be opened
	ErrRecordCorrupted = apperrors.ErrRecordCorrupted
	// ErrPersistence marks an I/O failure reading or writing the blob
	ErrPersistence = apperrors.ErrPersistence
	// ErrInvalidInput marks malformed caller input
	ErrInvalidInput = apperrors.ErrInvalidInput
	// ErrSecretRequired marks an issuing operation attempted without a secret
	ErrSecretRequired = apperrors.ErrSecretRequired
)
