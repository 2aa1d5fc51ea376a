// Package gatewayerr defines the gateway's error-kind taxonomy (spec §7)
// and the status code each kind maps to. Handlers return these typed
// errors; pkg/api's writeErr helper is the single place that turns them
// into HTTP responses, mirroring the teacher's
// mapServiceError translator.
package gatewayerr

import "net/http"

// Kind identifies one row of the error-kind table.
type Kind string

// The closed set of gateway error kinds.
const (
	KindConfigurationMissing  Kind = "configuration_missing"
	KindMalformedRequest      Kind = "malformed_request"
	KindInvalidAttachment     Kind = "invalid_attachment"
	KindInvalidConversationID Kind = "invalid_conversation_id"
	KindConversationNotFound  Kind = "conversation_not_found"
	KindModelUnavailable      Kind = "model_unavailable"
	KindNoLLMAvailable        Kind = "no_llm_available"
	KindUnauthenticated       Kind = "unauthenticated"
	KindForbidden             Kind = "forbidden"
	KindQuotaExceeded         Kind = "quota_exceeded"
	KindUpstreamUnavailable   Kind = "upstream_unavailable"
	KindUpstreamRateLimited   Kind = "upstream_rate_limited"
	KindStorageError          Kind = "storage_error"
)

var statusByKind = map[Kind]int{
	KindConfigurationMissing:  http.StatusInternalServerError,
	KindMalformedRequest:      http.StatusBadRequest,
	KindInvalidAttachment:     http.StatusUnprocessableEntity,
	KindInvalidConversationID: http.StatusBadRequest,
	KindConversationNotFound:  http.StatusNotFound,
	KindModelUnavailable:      http.StatusBadRequest,
	KindNoLLMAvailable:        http.StatusBadRequest,
	KindUnauthenticated:       http.StatusUnauthorized,
	KindForbidden:             http.StatusForbidden,
	KindQuotaExceeded:         http.StatusTooManyRequests,
	KindUpstreamUnavailable:   http.StatusInternalServerError,
	KindUpstreamRateLimited:   http.StatusTooManyRequests,
	KindStorageError:          http.StatusInternalServerError,
}

// Error is a gateway error carrying the user-visible response text, an
// optional machine-oriented cause, and the kind used to pick the status
// code.
type Error struct {
	Kind     Kind
	Response string
	Cause    string
}

func (e *Error) Error() string {
	if e.Cause != "" {
		return e.Response + ": " + e.Cause
	}
	return e.Response
}

// Status returns the HTTP status code for this error's kind.
func (e *Error) Status() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New constructs an Error of the given kind.
func New(kind Kind, response string) *Error {
	return &Error{Kind: kind, Response: response}
}

// Wrap constructs an Error of the given kind with a cause string, typically
// from an underlying error's Error() text.
func Wrap(kind Kind, response, cause string) *Error {
	return &Error{Kind: kind, Response: response, Cause: cause}
}

// AuthKind reports whether k is Unauthenticated or Forbidden. Rendering
// does not depend on it: pkg/api's writeErr gives every kind the same
// {"detail": Response, "cause": Cause} body, with "cause" omitted when empty.
func (k Kind) AuthKind() bool {
	return k == KindUnauthenticated || k == KindForbidden
}

// ConfigOnly reports whether k is ConfigurationMissing. pkg/api's writeErr
// does not consult it; a ConfigurationMissing error is rendered with the
// same body as every other kind.
func (k Kind) ConfigOnly() bool {
	return k == KindConfigurationMissing
}
