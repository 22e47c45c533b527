package services

import (
	"errors"
	"fmt"

	"challenge-quest/repository"
)

// Kind classifies an Error for the transport layer.
type Kind string

const (
	KindValidation     Kind = "VALIDATION"
	KindUnauthorized   Kind = "UNAUTHORIZED"
	KindForbidden      Kind = "FORBIDDEN"
	KindNotFound       Kind = "NOT_FOUND"
	KindConflict       Kind = "CONFLICT"
	KindState          Kind = "STATE"
	KindInfrastructure Kind = "INFRASTRUCTURE"
)

// Error is returned by every service operation. Code is stable and machine-readable.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so callers can write errors.Is(err, services.ErrStageLocked).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Retryable is true only for infrastructure failures.
func (e *Error) Retryable() bool { return e.Kind == KindInfrastructure }

func newErr(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrAlreadyJoined         = newErr(KindConflict, "ALREADY_JOINED", "already joined this challenge")
	ErrLevelTooLow           = newErr(KindState, "LEVEL_TOO_LOW", "level too low for this challenge")
	ErrChallengeNotActive    = newErr(KindState, "CHALLENGE_NOT_ACTIVE", "challenge is not active")
	ErrChallengeFull         = newErr(KindState, "CHALLENGE_FULL", "challenge has reached its participant limit")
	ErrNoStages              = newErr(KindState, "NO_STAGES", "challenge has no stages")
	ErrNotFound              = newErr(KindNotFound, "NOT_FOUND", "not found")
	ErrUserNotFound          = newErr(KindNotFound, "USER_NOT_FOUND", "user not found")
	ErrChallengeNotFound     = newErr(KindNotFound, "CHALLENGE_NOT_FOUND", "challenge not found")
	ErrStageNotFound         = newErr(KindNotFound, "STAGE_NOT_FOUND", "stage not found")
	ErrNotJoined             = newErr(KindNotFound, "NOT_JOINED", "not joined this challenge")
	ErrStageLocked           = newErr(KindState, "STAGE_LOCKED", "stage is locked or already completed")
	ErrChallengeWindowClosed = newErr(KindState, "CHALLENGE_WINDOW_CLOSED", "challenge has ended")
	ErrInvalidProof          = newErr(KindValidation, "INVALID_PROOF", "invalid proof for this stage")
	ErrAccountDisabled       = newErr(KindUnauthorized, "ACCOUNT_DISABLED", "account is disabled")
	ErrInvalidCredentials    = newErr(KindUnauthorized, "INVALID_CREDENTIALS", "invalid email or password")
	ErrUnauthorized          = newErr(KindUnauthorized, "UNAUTHORIZED", "authentication required")
	ErrForbidden             = newErr(KindForbidden, "FORBIDDEN", "admin access required")
	ErrDuplicate             = newErr(KindConflict, "DUPLICATE", "already exists")
	ErrChallengeInProgress   = newErr(KindConflict, "CHALLENGE_IN_PROGRESS", "challenge has active participants")
	ErrStagesLocked          = newErr(KindConflict, "STAGES_LOCKED", "stages cannot change once users have joined")
	ErrLevelOverlap          = newErr(KindValidation, "LEVEL_OVERLAP", "level range overlaps another active level")
)

// Validation builds a VALIDATION_FAILED error with a specific message.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: "VALIDATION_FAILED", Message: fmt.Sprintf(format, args...)}
}

// Infra wraps a store or dependency failure.
func Infra(err error) *Error {
	return &Error{Kind: KindInfrastructure, Code: "INFRASTRUCTURE", Message: "service temporarily unavailable", Err: err}
}

// storeErr maps repository errors: ErrNotFound becomes notFound, ErrDuplicate
// becomes dup, an existing *Error passes through and anything else is infrastructure.
func storeErr(err error, notFound, dup *Error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	switch {
	case errors.Is(err, repository.ErrNotFound) && notFound != nil:
		return notFound
	case errors.Is(err, repository.ErrDuplicate) && dup != nil:
		return dup
	}
	return Infra(err)
}

// AsError extracts the service error, wrapping anything unknown as infrastructure.
func AsError(err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return Infra(err)
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
