package service

import (
	"context"
	"errors"
	"fmt"

	"docvault/internal/access"
	"docvault/internal/retrieval"
	"docvault/internal/storage"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidAccessLevel = fmt.Errorf("%w: access level must be public, private or protected", ErrValidation)
	ErrPinTooShort        = fmt.Errorf("%w: pin must be at least %d characters", ErrValidation, access.MinPINLength)
	ErrEmptyUpload        = fmt.Errorf("%w: file is empty", ErrValidation)
	ErrFileTooLarge       = fmt.Errorf("%w: file exceeds the maximum upload size", ErrValidation)
	ErrNameRequired       = fmt.Errorf("%w: original file name is required", ErrValidation)
	ErrOwnerRequired      = fmt.Errorf("%w: owner is required", ErrValidation)
	ErrInvalidCategory    = fmt.Errorf("%w: unknown category", ErrValidation)

	ErrNotFound      = errors.New("document not found")
	ErrAccessDenied  = errors.New("access denied")
	ErrChainConflict = errors.New("concurrent upload to the same document, retry")

	ErrStorageTransient    = errors.New("storage temporarily unavailable")
	ErrStorageAuth         = errors.New("storage credentials rejected")
	ErrStorageConnectivity = errors.New("storage unreachable")
	ErrUploadStorage       = errors.New("failed to store file")
	ErrEmptyPayload        = errors.New("storage returned an empty payload")
	ErrStorageFailure      = errors.New("storage request failed")
)

// AccessDeniedError carries the reason a request was refused so callers can
// tell "need a PIN" apart from "wrong PIN" and "not yours".
type AccessDeniedError struct {
	Reason access.Reason
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied: %s", e.Reason)
}

func (e *AccessDeniedError) Is(target error) bool {
	return target == ErrAccessDenied
}

func denied(reason access.Reason) error {
	return &AccessDeniedError{Reason: reason}
}

// ReasonOf returns the denial reason carried by err, if any.
func ReasonOf(err error) access.Reason {
	var ade *AccessDeniedError
	if errors.As(err, &ade) {
		return ade.Reason
	}
	return access.ReasonNone
}

// classifyStorage maps a blob store or retrieval failure onto the service taxonomy.
// The raw error is dropped; callers log it before classification.
func classifyStorage(err error) error {
	switch {
	case err == nil:
		return nil
	case storage.KindOf(err) == storage.KindUnauthorized:
		// a rejected probe is a credentials problem, not an outage
		return ErrStorageAuth
	case errors.Is(err, retrieval.ErrConnectivity):
		return ErrStorageConnectivity
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("retrieval abandoned: %w", context.Canceled)
	case errors.Is(err, context.DeadlineExceeded):
		return ErrStorageTransient
	}
	switch storage.KindOf(err) {
	case storage.KindNotFound:
		return ErrNotFound
	case storage.KindRateLimited, storage.KindTransient:
		return ErrStorageTransient
	}
	if storage.IsRecoverable(err) {
		// every strategy hit a decoding incompatibility
		return ErrStorageTransient
	}
	return ErrStorageFailure
}
