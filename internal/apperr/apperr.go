// Package apperr defines the typed business errors returned by the
// service layer.  Every rejected operation yields an *Error carrying a
// stable Kind (used to pick the HTTP status), a stable machine-readable
// Code, a human-readable Message and optional structured Details such as
// the required and actual age of an age-restricted registration.
package apperr

import (
	"errors"
	"fmt"
)

// Kind groups errors by how callers should react to them.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindValidation Kind = "validation"
	KindCapacity   Kind = "capacity"
	KindUpstream   Kind = "upstream"
	KindForbidden  Kind = "forbidden"
	KindInternal   Kind = "internal"
)

// Stable error codes.
const (
	CodeEventNotFound        = "event_not_found"
	CodeUserNotFound         = "user_not_found"
	CodeRegistrationNotFound = "registration_not_found"
	CodeSongNotFound         = "song_not_found"
	CodeVoteNotFound         = "vote_not_found"
	CodeAlreadyRegistered    = "already_registered"
	CodeDuplicateExternalID  = "duplicate_external_id"
	CodeAgeUnknown           = "age_unknown"
	CodeAgeRestricted        = "age_restricted"
	CodeGenreMismatch        = "genre_mismatch"
	CodeInvalidTier          = "invalid_tier"
	CodeInvalidVoteKind      = "invalid_vote_kind"
	CodeInvalidInput         = "invalid_input"
	CodeNoCapacity           = "no_capacity"
	CodeCatalogLookupFailed  = "catalog_lookup_failed"
	CodeForbidden            = "forbidden"
	CodeInternal             = "internal_error"
)

// Error is a business rule failure.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Err     error // optional cause, never shown to clients
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Code so callers can compare against the
// sentinel constructors, e.g. errors.Is(err, apperr.AlreadyRegistered()).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of err, or CodeInternal when err is not an *Error.
func CodeOf(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}

// KindOf returns the kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

func NotFound(code, what string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: what + " not found"}
}

func EventNotFound() *Error        { return NotFound(CodeEventNotFound, "event") }
func UserNotFound() *Error         { return NotFound(CodeUserNotFound, "user") }
func SongNotFound() *Error         { return NotFound(CodeSongNotFound, "song") }
func VoteNotFound() *Error         { return NotFound(CodeVoteNotFound, "vote") }
func RegistrationNotFound() *Error {
	return &Error{Kind: KindNotFound, Code: CodeRegistrationNotFound, Message: "no active registration for this event"}
}

func AlreadyRegistered() *Error {
	return &Error{Kind: KindConflict, Code: CodeAlreadyRegistered, Message: "already registered for this event"}
}

// DuplicateExternalID carries the song that already uses the catalog id
// so the caller can offer "already added".
func DuplicateExternalID(existing any) *Error {
	return &Error{
		Kind:    KindConflict,
		Code:    CodeDuplicateExternalID,
		Message: "this track was already added to the event",
		Details: map[string]any{"existing_song": existing},
	}
}

func AgeUnknown() *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    CodeAgeUnknown,
		Message: "this event is age restricted; add your age to your profile to register",
	}
}

func AgeRestricted(required, actual uint32) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    CodeAgeRestricted,
		Message: fmt.Sprintf("minimum age for this event is %d, your age is %d", required, actual),
		Details: map[string]any{"required_age": required, "actual_age": actual},
	}
}

func GenreMismatch(expected, got string) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    CodeGenreMismatch,
		Message: fmt.Sprintf("genre %q is not compatible with the event genre %q", got, expected),
		Details: map[string]any{"expected": expected, "got": got},
	}
}

func NoCapacity(tier string, remaining int) *Error {
	if remaining < 0 {
		remaining = 0
	}
	return &Error{
		Kind:    KindCapacity,
		Code:    CodeNoCapacity,
		Message: fmt.Sprintf("no %s tickets left (remaining: %d)", tier, remaining),
		Details: map[string]any{"tier": tier, "remaining": remaining},
	}
}

func Validation(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Code: CodeForbidden, Message: msg}
}

func Upstream(msg string, cause error) *Error {
	return &Error{Kind: KindUpstream, Code: CodeCatalogLookupFailed, Message: msg, Err: cause}
}

// Internal wraps an unexpected failure.  The cause is kept for logging.
func Internal(op string, cause error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: op + " failed", Err: cause}
}
