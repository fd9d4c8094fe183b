// Package apperr provides the error taxonomy shared by the billing and invite
// flows and its mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the transport layer.
type Kind int

const (
	KindInternal Kind = iota
	KindAuthentication
	KindValidation
	KindNotFound
	KindAuthorization
	KindConflict
	KindTransientProvider
	KindUnauthenticated
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindAuthorization:
		return "authorization"
	case KindConflict:
		return "conflict"
	case KindTransientProvider:
		return "transient_provider"
	case KindUnauthenticated:
		return "unauthenticated"
	default:
		return "internal"
	}
}

// HTTPStatus maps a kind to the status code returned to clients.
// Conflicts are reported as 400 because the caller must change the request.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindAuthentication, KindValidation, KindConflict:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthorization:
		return http.StatusForbidden
	case KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Code is a machine-readable reason carried alongside the kind.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// Billing
	CodeInvalidSignature    Code = "INVALID_SIGNATURE"
	CodeInvalidPayload      Code = "INVALID_PAYLOAD"
	CodeMissingMetadata     Code = "MISSING_METADATA"
	CodeOrganizationMissing Code = "ORGANIZATION_NOT_FOUND"
	CodePlanMissing         Code = "PLAN_NOT_FOUND"
	CodeNoBillingAccount    Code = "NO_BILLING_ACCOUNT"
	CodeProviderUnavailable Code = "PROVIDER_UNAVAILABLE"

	// Invites
	CodeInviteNotFound     Code = "INVITE_NOT_FOUND"
	CodeInviteDeactivated  Code = "INVITE_DEACTIVATED"
	CodeInviteExpired      Code = "INVITE_EXPIRED"
	CodeInviteExhausted    Code = "INVITE_USAGE_LIMIT_REACHED"
	CodeInviteAlreadyUsed  Code = "INVITE_ALREADY_RESPONDED"
	CodeInviteEmailInvalid Code = "INVITE_EMAIL_INVALID"
	CodeInviteDuplicate    Code = "INVITE_ALREADY_EXISTS"
	CodeInviteWrongEmail   Code = "INVITE_EMAIL_MISMATCH"
	CodeOtherOrganization  Code = "ALREADY_IN_OTHER_ORGANIZATION"
	CodeMemberLimitReached Code = "MEMBER_LIMIT_REACHED"
	CodeAccountExists      Code = "ACCOUNT_EXISTS"
	CodeInvalidInput       Code = "INVALID_INPUT"

	// Sessions
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeNotAdmin        Code = "NOT_ADMIN"
	CodeNoOrganization  Code = "NO_ORGANIZATION"
)

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Code    Code
	Msg     string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail returns e with an extra detail entry.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates an error of the given kind.
func New(kind Kind, code Code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

// Wrap creates an error of the given kind wrapping a cause.
func Wrap(kind Kind, code Code, msg string, err error) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg, Err: err}
}

func Authentication(code Code, msg string) *Error { return New(KindAuthentication, code, msg) }
func Validation(code Code, msg string) *Error     { return New(KindValidation, code, msg) }
func NotFound(code Code, msg string) *Error       { return New(KindNotFound, code, msg) }
func Authorization(code Code, msg string) *Error  { return New(KindAuthorization, code, msg) }
func Conflict(code Code, msg string) *Error       { return New(KindConflict, code, msg) }

// Unauthenticated reports a request without a valid session.
func Unauthenticated(msg string) *Error {
	return New(KindUnauthenticated, CodeUnauthenticated, msg)
}

// TransientProvider wraps a payment provider failure.
func TransientProvider(msg string, err error) *Error {
	return Wrap(KindTransientProvider, CodeProviderUnavailable, msg, err)
}

// Internal wraps an unexpected failure. The cause is never sent to clients.
func Internal(msg string, err error) *Error {
	return Wrap(KindInternal, CodeUnknown, msg, err)
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of err, CodeUnknown for unclassified errors.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeUnknown
}

// Is reports whether err is classified with the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
