package apperr

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Kind classifies application errors for HTTP mapping and retry decisions.
type Kind int

const (
	KindValidation Kind = iota
	KindConflict
	KindNotFound
	KindGateway
	KindUnsupported
	KindInternal
)

// Error is the application error carried across service boundaries.
// Gateway errors additionally carry the provider error code/type so callers
// can distinguish business declines from transient failures.
type Error struct {
	Kind        Kind
	Message     string
	Gateway     string
	GatewayCode string
	GatewayType string
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// GatewayFailure wraps a provider-side failure.
func GatewayFailure(gateway, code, errType, message string) *Error {
	return &Error{
		Kind:        KindGateway,
		Message:     message,
		Gateway:     gateway,
		GatewayCode: code,
		GatewayType: errType,
	}
}

// Unsupported marks a capability a specific gateway does not offer. Callers
// recover locally (e.g. continue without a remote customer record).
func Unsupported(gateway, operation string) *Error {
	return &Error{
		Kind:    KindUnsupported,
		Message: fmt.Sprintf("%s does not support %s", gateway, operation),
		Gateway: gateway,
	}
}

// KindOf extracts the Kind from any error chain, defaulting to KindInternal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps an error to the status code controllers should return.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return fiber.StatusBadRequest
	case KindConflict:
		return fiber.StatusConflict
	case KindNotFound:
		return fiber.StatusNotFound
	case KindGateway:
		return fiber.StatusPaymentRequired
	case KindUnsupported:
		return fiber.StatusNotImplemented
	default:
		return fiber.StatusInternalServerError
	}
}
