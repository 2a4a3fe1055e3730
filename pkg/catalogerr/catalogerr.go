// Package catalogerr implements the catalog manager's typed error
// taxonomy (spec.md §7) and its translation to the {status, code} envelope
// carried on the administrative RPC surface (§6).
package catalogerr

import "fmt"

// Code is the closed error taxonomy of §7.
type Code string

const (
	NotFound               Code = "NOT_FOUND"
	ObjectNotFound         Code = "OBJECT_NOT_FOUND"
	AlreadyPresent         Code = "ALREADY_PRESENT"
	InvalidArgument        Code = "INVALID_ARGUMENT"
	InvalidSchema          Code = "INVALID_SCHEMA"
	IllegalState           Code = "ILLEGAL_STATE"
	ServiceUnavailable     Code = "SERVICE_UNAVAILABLE"
	TryAgain               Code = "TRY_AGAIN"
	InTransition           Code = "IN_TRANSITION"
	NamespaceNotEmpty      Code = "NAMESPACE_NOT_EMPTY"
	ReplicationFactorTooHigh Code = "REPLICATION_FACTOR_TOO_HIGH"
	TooManyTablets         Code = "TOO_MANY_TABLETS"
	InvalidReplicationInfo Code = "INVALID_REPLICATION_INFO"
	NotSupported           Code = "NOT_SUPPORTED"
	ReachedSplitLimit      Code = "REACHED_SPLIT_LIMIT"
	SplitOrBackfillInProgress Code = "SPLIT_OR_BACKFILL_IN_PROGRESS"
	Corruption             Code = "CORRUPTION"
	NotLeaderCode          Code = "NOT_LEADER"
)

// Error is a typed catalog-manager error: a Code plus a human message and
// an optional already-present echoed id (§7 AlreadyPresent "response
// always echoes the existing id").
type Error struct {
	Code       Code
	Message    string
	ExistingID string
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs a catalog error with no underlying cause.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs a catalog error carrying an underlying cause.
func Wrap(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// AlreadyPresentWithID builds the AlreadyPresent error that echoes the
// existing object's id, per §7.
func AlreadyPresentWithID(existingID, format string, args ...interface{}) *Error {
	return &Error{Code: AlreadyPresent, Message: fmt.Sprintf(format, args...), ExistingID: existingID}
}

// NotLeader constructs the retryable leadership-loss error used throughout
// C2/C4/C5 when the Raft term no longer matches leader_ready_term.
func NotLeader() *Error {
	return &Error{Code: NotLeaderCode, Message: "not the leader for the current term"}
}

// CodeOf extracts the Code of err if it is (or wraps) a *Error, else "".
func CodeOf(err error) Code {
	var ce *Error
	if ok := asError(err, &ce); ok {
		return ce.Code
	}
	return ""
}

// Is reports whether err is (or wraps) a *Error with the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

func asError(err error, target **Error) bool {
	for err != nil {
		if ce, ok := err.(*Error); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
