package cloud

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// ErrorKind classifies provider failures into the small set of categories
// the retry adapter branches on.
type ErrorKind string

const (
	// ErrorKindThrottled indicates the provider is shedding load; a retry
	// with backoff may succeed.
	ErrorKindThrottled ErrorKind = "throttled"

	// ErrorKindUnavailable indicates a transient provider failure (5xx,
	// network timeout) where a retry may succeed.
	ErrorKindUnavailable ErrorKind = "unavailable"

	// ErrorKindAccessDenied indicates an authorization failure. Retrying
	// without a policy change cannot succeed.
	ErrorKindAccessDenied ErrorKind = "access_denied"

	// ErrorKindInvalidParameters indicates the request itself is malformed.
	ErrorKindInvalidParameters ErrorKind = "invalid_parameters"

	// ErrorKindNoCredentials indicates credentials could not be resolved.
	ErrorKindNoCredentials ErrorKind = "no_credentials"

	// ErrorKindUnknown is any unclassified failure. Unknown failures are
	// never retried so real bugs are not masked by blind retries.
	ErrorKindUnknown ErrorKind = "unknown"
)

// Stable error identifiers surfaced in result envelopes. These strings are
// part of the external contract and must not change.
const (
	ReasonAccessDenied       = "access_denied"
	ReasonMaxRetriesExceeded = "max_retries_exceeded"
	ReasonInvalidParameters  = "invalid_parameters"
	ReasonNoCredentials      = "no_credentials"
	ReasonUnavailable        = "provider_unavailable"
)

// ErrNoCredentials is returned by providers when no credentials can be
// resolved for the current environment.
var ErrNoCredentials = errors.New("cloud: no credentials available")

// CallError describes a classified provider call failure. It crosses package
// boundaries so agents can surface stable, structured information without
// depending on SDK error types.
type CallError struct {
	Service   string
	Operation string
	Kind      ErrorKind
	Code      string
	Message   string
	cause     error
}

// Error implements the error interface.
func (e *CallError) Error() string {
	msg := e.Message
	if msg == "" && e.cause != nil {
		msg = e.cause.Error()
	}
	if msg == "" {
		msg = "provider call failed"
	}
	if e.Code != "" {
		return fmt.Sprintf("%s.%s %s (%s): %s", e.Service, e.Operation, e.Kind, e.Code, msg)
	}
	return fmt.Sprintf("%s.%s %s: %s", e.Service, e.Operation, e.Kind, msg)
}

// Unwrap returns the underlying provider error.
func (e *CallError) Unwrap() error { return e.cause }

// Retryable reports whether retrying the call with backoff may succeed.
func (e *CallError) Retryable() bool {
	return e.Kind == ErrorKindThrottled || e.Kind == ErrorKindUnavailable
}

// Reason maps the error kind to its stable envelope identifier. Throttled and
// unavailable errors map to ReasonMaxRetriesExceeded because callers only see
// them after the retry budget is exhausted.
func (e *CallError) Reason() string {
	switch e.Kind {
	case ErrorKindAccessDenied:
		return ReasonAccessDenied
	case ErrorKindInvalidParameters:
		return ReasonInvalidParameters
	case ErrorKindNoCredentials:
		return ReasonNoCredentials
	case ErrorKindThrottled, ErrorKindUnavailable:
		return ReasonMaxRetriesExceeded
	default:
		return ReasonUnavailable
	}
}

// retryableCodes are provider error codes that signal transient load
// shedding. See the AWS general reference on throttling errors.
var retryableCodes = map[string]bool{
	"Throttling":                  true,
	"ThrottlingException":         true,
	"RequestLimitExceeded":        true,
	"TooManyRequestsException":    true,
	"ServiceUnavailable":          true,
	"ServiceUnavailableException": true,
}

var accessDeniedCodes = map[string]bool{
	"AccessDenied":          true,
	"AccessDeniedException": true,
	"UnauthorizedOperation": true,
	"AuthFailure":           true,
}

var invalidParameterCodes = map[string]bool{
	"InvalidParameterValue":     true,
	"InvalidParameterException": true,
	"ValidationException":       true,
	"ValidationError":           true,
	"MalformedQueryString":      true,
}

// Classify converts an arbitrary provider error into a CallError. It inspects
// smithy API error codes first, then HTTP status, then network/context
// conditions. A nil err returns nil.
func Classify(service, operation string, err error) *CallError {
	if err == nil {
		return nil
	}
	ce := &CallError{Service: service, Operation: operation, Kind: ErrorKindUnknown, cause: err}

	if errors.Is(err, ErrNoCredentials) {
		ce.Kind = ErrorKindNoCredentials
		ce.Message = "credentials not found or invalid"
		return ce
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		ce.Code = apiErr.ErrorCode()
		ce.Message = apiErr.ErrorMessage()
		switch {
		case retryableCodes[ce.Code]:
			ce.Kind = ErrorKindThrottled
		case accessDeniedCodes[ce.Code]:
			ce.Kind = ErrorKindAccessDenied
		case invalidParameterCodes[ce.Code]:
			ce.Kind = ErrorKindInvalidParameters
		}
		if ce.Kind != ErrorKindUnknown {
			return ce
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch status := respErr.HTTPStatusCode(); {
		case status == http.StatusTooManyRequests:
			ce.Kind = ErrorKindThrottled
			return ce
		case status == http.StatusForbidden || status == http.StatusUnauthorized:
			ce.Kind = ErrorKindAccessDenied
			return ce
		case status == http.StatusBadRequest:
			ce.Kind = ErrorKindInvalidParameters
			return ce
		case status >= http.StatusInternalServerError:
			ce.Kind = ErrorKindUnavailable
			return ce
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		ce.Kind = ErrorKindUnavailable
		ce.Message = "call timed out"
		return ce
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		ce.Kind = ErrorKindUnavailable
		return ce
	}

	ce.Message = err.Error()
	return ce
}

// AsCallError returns the first CallError in err's chain, if any.
func AsCallError(err error) (*CallError, bool) {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
