package tracing

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsUnknownKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/tickets/:id"),
		attribute.String("approval_token", "secret"),
	)
	if len(attrs) != 1 || attrs[0].Key != "http.route" {
		t.Fatalf("expected only http.route, got %v", attrs)
	}
}

func TestSafeErrorHidesMessage(t *testing.T) {
	err := SafeError(errors.New("pq: relation tickets does not exist"))
	if err == nil || err.Error() != "internal_error" {
		t.Fatalf("expected internal_error, got %v", err)
	}
	if SafeError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}
