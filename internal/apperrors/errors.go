package apperrors

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind classifies an error into the stable taxonomy exposed to callers.
// Callers are expected to branch on kinds (quota denial triggers a plan
// upgrade prompt, auth failure triggers re-authentication), so kinds are
// part of the API contract and must not be renamed casually.
type Kind string

const (
	// KindAuthentication means the caller's identity could not be resolved
	// (missing, unknown, revoked, or expired credential / API key).
	KindAuthentication Kind = "authentication_error"

	// KindAuthorization means the identity is valid but lacks the privilege
	// for the requested operation.
	KindAuthorization Kind = "authorization_error"

	// KindQuotaExceeded means the ledger denied the deduction.
	KindQuotaExceeded Kind = "quota_exceeded"

	// KindPolicyViolation means the request asked for something the
	// lifecycle rules forbid, e.g. refreshing an expired credential.
	KindPolicyViolation Kind = "policy_violation"

	// KindProvider means the external identity provider was unreachable or
	// rejected the exchange. Safe for the caller to retry with backoff; the
	// core never retries it silently.
	KindProvider Kind = "provider_error"

	// KindConfiguration means an operator-fixable server defect (endpoint
	// not registered for metering, tier without an allotment).
	KindConfiguration Kind = "configuration_error"

	// KindStorage means the persistence layer is unavailable. The request
	// fails; the gateway never lets a call through unmetered "to be safe".
	KindStorage Kind = "storage_error"

	// KindUnknown is the fallback for errors outside the taxonomy.
	KindUnknown Kind = "internal_error"
)

// kinder is implemented by every taxonomy error type.
type kinder interface {
	ErrorKind() Kind
}

// Error is a kind-tagged error with an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorKind returns the taxonomy kind.
func (e *Error) ErrorKind() Kind {
	return e.Kind
}

// New creates a kind-tagged error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a kind-tagged error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags an underlying error with a kind and context message.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// QuotaError reports a denied deduction together with the remaining balance
// so callers can show what is left without a second round trip.
type QuotaError struct {
	CallerID  uuid.UUID
	Cost      int64
	Remaining int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exceeded: cost %d exceeds remaining balance %d for caller %s",
		e.Cost, e.Remaining, e.CallerID)
}

// ErrorKind returns KindQuotaExceeded.
func (e *QuotaError) ErrorKind() Kind {
	return KindQuotaExceeded
}

// KindOf extracts the taxonomy kind from an error chain. Errors outside the
// taxonomy map to KindUnknown.
func KindOf(err error) Kind {
	var k kinder
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	return KindUnknown
}

// IsAuthentication reports whether err is an authentication failure.
func IsAuthentication(err error) bool {
	return KindOf(err) == KindAuthentication
}

// IsAuthorization reports whether err is a privilege failure.
func IsAuthorization(err error) bool {
	return KindOf(err) == KindAuthorization
}

// IsQuotaExceeded reports whether err is a ledger denial.
func IsQuotaExceeded(err error) bool {
	return KindOf(err) == KindQuotaExceeded
}

// IsPolicyViolation reports whether err is a lifecycle policy rejection.
func IsPolicyViolation(err error) bool {
	return KindOf(err) == KindPolicyViolation
}

// IsProvider reports whether err is an identity provider failure.
func IsProvider(err error) bool {
	return KindOf(err) == KindProvider
}

// IsConfiguration reports whether err is a server misconfiguration.
func IsConfiguration(err error) bool {
	return KindOf(err) == KindConfiguration
}

// IsStorage reports whether err is a persistence failure.
func IsStorage(err error) bool {
	return KindOf(err) == KindStorage
}
