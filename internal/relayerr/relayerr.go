// Package relayerr defines the error-kind taxonomy shared by the account
// pool, token refresher and degradation retry engine: named kinds instead
// of raw HTTP statuses, so callers can branch on meaning rather than code.
package relayerr

import "errors"

type Kind string

const (
	KindUnsupportedModel   Kind = "UnsupportedModel"
	KindNoAvailableAccount Kind = "NoAvailableAccount"
	KindTokenRevoked       Kind = "TokenRevoked"
	KindUpstreamRateLimited Kind = "UpstreamRateLimited"
	KindUpstreamRejected   Kind = "UpstreamRejected"
	KindUpstreamTransient  Kind = "UpstreamTransient"
	KindConfigurationError Kind = "ConfigurationError"
	KindNetworkError       Kind = "NetworkError"
	KindTransient          Kind = "Transient"
)

// Error carries a Kind plus an optional redacted detail and wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Cause.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or "" if err is not a *Error.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// HTTPStatus maps a Kind to the status code surfaced to the caller, per
// the error handling design table. Kinds that are never surfaced directly
// (NetworkError, Transient, ConfigurationError) return 0.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnsupportedModel:
		return 400
	case KindNoAvailableAccount:
		return 503
	case KindTokenRevoked:
		return 503
	case KindUpstreamRateLimited:
		return 429
	case KindUpstreamRejected:
		return 400
	case KindUpstreamTransient:
		return 502
	default:
		return 0
	}
}
