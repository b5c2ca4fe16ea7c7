package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ──────────────────────────────────────────────────────────────────────────────
// Error taxonomy. Every failure a caller can observe has a stable kind.
// ──────────────────────────────────────────────────────────────────────────────

type ErrorKind string

const (
	KindMalformedAction         ErrorKind = "malformed_action"
	KindScopeDenied             ErrorKind = "scope_denied"
	KindUnknownTool             ErrorKind = "unknown_tool"
	KindUnknownOp               ErrorKind = "unknown_op"
	KindParamValidation         ErrorKind = "param_validation"
	KindNotFound                ErrorKind = "not_found"
	KindCredentialMissing       ErrorKind = "credential_missing"
	KindCredentialRefreshFailed ErrorKind = "credential_refresh_failed"
	KindUpstreamError           ErrorKind = "upstream_error"
	KindTimeout                 ErrorKind = "timeout"
	KindUnauthorized            ErrorKind = "unauthorized"
	KindRateLimited             ErrorKind = "rate_limited"
	KindInternal                ErrorKind = "internal"
)

// GatewayError is the structured error returned to callers. Secrets must
// never appear in Message or Detail.
type GatewayError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`  // param_validation only
	Detail  string    `json:"detail,omitempty"` // upstream detail, sanitized
}

func (e *GatewayError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field %s)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// HTTPStatus maps the error kind to a response status code.
func (e *GatewayError) HTTPStatus() int {
	switch e.Kind {
	case KindMalformedAction, KindParamValidation:
		return http.StatusBadRequest
	case KindScopeDenied:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindUnknownTool, KindUnknownOp, KindNotFound:
		return http.StatusNotFound
	case KindCredentialMissing, KindCredentialRefreshFailed:
		return http.StatusFailedDependency
	case KindUpstreamError:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON writes the error as JSON to the response writer.
func (e *GatewayError) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatus())
	_ = json.NewEncoder(w).Encode(e)
}

// AsGatewayError unwraps err into a *GatewayError, or wraps it as internal.
// Validation errors from request parsing map to malformed_action.
func AsGatewayError(err error) *GatewayError {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return &GatewayError{Kind: KindMalformedAction, Message: ve.Reason, Field: ve.Field}
	}
	return &GatewayError{Kind: KindInternal, Message: "internal error"}
}

// ──────────────────────────────────────────────────────────────────────────────
// Constructors
// ──────────────────────────────────────────────────────────────────────────────

func ErrMalformedAction(msg string) *GatewayError {
	return &GatewayError{Kind: KindMalformedAction, Message: msg}
}

func ErrScopeDenied(reason string) *GatewayError {
	return &GatewayError{Kind: KindScopeDenied, Message: reason}
}

func ErrUnknownTool(tool string) *GatewayError {
	return &GatewayError{Kind: KindUnknownTool, Message: fmt.Sprintf("no connector registered for tool %q", tool)}
}

func ErrUnknownOp(tool, op string) *GatewayError {
	return &GatewayError{Kind: KindUnknownOp, Message: fmt.Sprintf("tool %q does not support op %q", tool, op)}
}

func ErrParamValidation(field, reason string) *GatewayError {
	return &GatewayError{Kind: KindParamValidation, Message: reason, Field: field}
}

func ErrNotFound(what string) *GatewayError {
	return &GatewayError{Kind: KindNotFound, Message: what + " not found"}
}

func ErrCredentialMissing(tool string) *GatewayError {
	return &GatewayError{Kind: KindCredentialMissing, Message: fmt.Sprintf("no credential configured for tool %q", tool)}
}

func ErrCredentialRefreshFailed(detail string) *GatewayError {
	return &GatewayError{Kind: KindCredentialRefreshFailed, Message: "token refresh failed", Detail: detail}
}

func ErrUpstream(tool string, status int, detail string) *GatewayError {
	return &GatewayError{
		Kind:    KindUpstreamError,
		Message: fmt.Sprintf("upstream %s returned %d", tool, status),
		Detail:  detail,
	}
}

func ErrTimeout(what string) *GatewayError {
	return &GatewayError{Kind: KindTimeout, Message: what + " timed out"}
}

func ErrUnauthorized(msg string) *GatewayError {
	return &GatewayError{Kind: KindUnauthorized, Message: msg}
}

func ErrRateLimited() *GatewayError {
	return &GatewayError{Kind: KindRateLimited, Message: "too many requests"}
}

func ErrInternal(msg string) *GatewayError {
	return &GatewayError{Kind: KindInternal, Message: msg}
}

// ──────────────────────────────────────────────────────────────────────────────
// Validation error (returned during request parsing)
// ──────────────────────────────────────────────────────────────────────────────

type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}
