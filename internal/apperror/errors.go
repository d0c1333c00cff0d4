package apperror

import (
	"errors"
	"net/http"
)

// Kind classifies an error for transport mapping
type Kind string

const (
	KindValidation         Kind = "validation_error"
	KindInsufficientStock  Kind = "insufficient_stock"
	KindInvalidSignature   Kind = "invalid_signature"
	KindMissingOrderID     Kind = "missing_order_id"
	KindGatewayInitFailed  Kind = "gateway_initialization_failed"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindUnauthorized       Kind = "unauthorized"
	KindForbidden          Kind = "forbidden"
	KindTransactionAborted Kind = "transaction_aborted"
	KindInternal           Kind = "internal"
)

var statusByKind = map[Kind]int{
	KindValidation:         http.StatusBadRequest,
	KindInsufficientStock:  http.StatusBadRequest,
	KindInvalidSignature:   http.StatusUnauthorized,
	KindMissingOrderID:     http.StatusBadRequest,
	KindGatewayInitFailed:  http.StatusBadGateway,
	KindNotFound:           http.StatusNotFound,
	KindConflict:           http.StatusConflict,
	KindUnauthorized:       http.StatusUnauthorized,
	KindForbidden:          http.StatusForbidden,
	KindTransactionAborted: http.StatusInternalServerError,
	KindInternal:           http.StatusInternalServerError,
}

// Sentinels for errors.Is. Matching is by Kind.
var (
	ErrValidation                  = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrInsufficientStock           = &Error{Kind: KindInsufficientStock, Message: "insufficient stock"}
	ErrInvalidSignature            = &Error{Kind: KindInvalidSignature, Message: "invalid signature"}
	ErrMissingOrderID              = &Error{Kind: KindMissingOrderID, Message: "order id missing from event metadata"}
	ErrGatewayInitializationFailed = &Error{Kind: KindGatewayInitFailed, Message: "failed to initialize payment"}
	ErrNotFound                    = &Error{Kind: KindNotFound, Message: "not found"}
	ErrConflict                    = &Error{Kind: KindConflict, Message: "conflict"}
	ErrUnauthorized                = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrForbidden                   = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrTransactionAborted          = &Error{Kind: KindTransactionAborted, Message: "transaction aborted"}
	ErrInternal                    = &Error{Kind: KindInternal, Message: "Internal server error"}
)

// Error is the application error carried across layers
type Error struct {
	Kind    Kind              `json:"kind"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is an *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Status returns the HTTP status for the error kind
func (e *Error) Status() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// WithDetail returns a copy of e with an extra detail entry
func (e *Error) WithDetail(key, value string) *Error {
	details := make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &Error{Kind: e.Kind, Message: e.Message, Details: details, cause: e.cause}
}

// New creates an error of the given kind
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind that keeps cause for logging
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Validation creates a validation error with per-field details
func Validation(message string, details map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: message, Details: details}
}

// Internal hides cause behind a generic message
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: ErrInternal.Message, cause: cause}
}

// From converts any error into an *Error, defaulting to Internal
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// IsKind reports whether err carries an *Error of kind anywhere in its chain
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// Public returns the client-safe view of err.
// Internal and aborted errors never expose their cause.
func Public(err error) *Error {
	e := From(err)
	switch e.Kind {
	case KindInternal:
		return &Error{Kind: KindInternal, Message: ErrInternal.Message}
	case KindTransactionAborted:
		return &Error{Kind: KindTransactionAborted, Message: ErrTransactionAborted.Message}
	}
	return &Error{Kind: e.Kind, Message: e.Message, Details: e.Details}
}
