package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: Validation("bad input"), want: fiber.StatusBadRequest},
		{err: Conflict("already exists"), want: fiber.StatusConflict},
		{err: NotFound("missing"), want: fiber.StatusNotFound},
		{err: GatewayFailure("stripe", "card_declined", "business", "declined"), want: fiber.StatusPaymentRequired},
		{err: Unsupported("cashfree", "native subscriptions"), want: fiber.StatusNotImplemented},
		{err: Internal("boom", errors.New("db down")), want: fiber.StatusInternalServerError},
		{err: errors.New("plain"), want: fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	inner := Conflict("school 3 already has a subscription")
	wrapped := fmt.Errorf("create subscription: %w", inner)

	if KindOf(wrapped) != KindConflict {
		t.Fatalf("KindOf lost the kind through wrapping")
	}
	if !IsKind(wrapped, KindConflict) {
		t.Fatalf("IsKind(wrapped, KindConflict) = false")
	}
	if IsKind(nil, KindConflict) {
		t.Fatalf("nil error must not match any kind")
	}
}

func TestGatewayFailureCarriesDetails(t *testing.T) {
	err := GatewayFailure("razorpay", "network_error", "transient", "connection reset")
	var ae *Error
	if !errors.As(err, &ae) {
		t.Fatalf("errors.As failed")
	}
	if ae.Gateway != "razorpay" || ae.GatewayCode != "network_error" || ae.GatewayType != "transient" {
		t.Fatalf("details = %+v", ae)
	}
}

func TestErrorMessage(t *testing.T) {
	plain := Validation("plan limits exceeded: Schools: 4/3")
	if plain.Error() != "plan limits exceeded: Schools: 4/3" {
		t.Fatalf("Error() = %q", plain.Error())
	}

	cause := errors.New("dial tcp: timeout")
	internal := Internal("load tenant", cause)
	if internal.Error() != "load tenant: dial tcp: timeout" {
		t.Fatalf("Error() = %q", internal.Error())
	}
	if !errors.Is(internal, cause) {
		t.Fatalf("Unwrap lost the cause")
	}
}
