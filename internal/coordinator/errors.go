package coordinator

import "github.com/guardianwallet/signer/internal/policy"

// Kind classifies a coordinator error by surface behavior, per spec.md §7.
// The HTTP layer maps each Kind to a status code without re-deriving the
// taxonomy from a generic error string.
type Kind string

const (
	KindNotFound        Kind = "NOT_FOUND"
	KindForbidden       Kind = "FORBIDDEN"
	KindPolicyViolation Kind = "POLICY_VIOLATION"
	KindSchemeError     Kind = "SCHEME_ERROR"
	KindChainError      Kind = "CHAIN_ERROR"
	KindInternal        Kind = "INTERNAL"
)

// Error is the coordinator's taxonomy-bearing error. Violations is only
// populated for KindPolicyViolation.
type Error struct {
	Kind       Kind
	Message    string
	Violations []policy.Violation
}

func (e *Error) Error() string { return e.Message }

// NotFound builds a KindNotFound error: unknown signer or unknown session.
func NotFound(msg string) *Error { return &Error{Kind: KindNotFound, Message: msg} }

// Forbidden builds a KindForbidden error: status mismatch, ownership
// mismatch, missing chainId, expired session, capacity saturated.
func Forbidden(msg string) *Error { return &Error{Kind: KindForbidden, Message: msg} }

// PolicyViolationErr builds a KindPolicyViolation error carrying the
// structured violations a Rules Engine reported.
func PolicyViolationErr(msg string, violations []policy.Violation) *Error {
	return &Error{Kind: KindPolicyViolation, Message: msg, Violations: violations}
}

// SchemeErr builds a KindSchemeError error: any failure from the opaque
// scheme engine.
func SchemeErr(msg string) *Error { return &Error{Kind: KindSchemeError, Message: msg} }

// ChainErr builds a KindChainError error: RPC/populate/broadcast failure.
func ChainErr(msg string) *Error { return &Error{Kind: KindChainError, Message: msg} }

// Internal builds a KindInternal error. Callers must never put secret
// material in msg.
func Internal(msg string) *Error { return &Error{Kind: KindInternal, Message: msg} }
