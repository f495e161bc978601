package tracing

import (
	"errors"

	"go.opentelemetry.io/otel/attribute"
)

var allowedAttributeKeys = map[attribute.Key]struct{}{
	"http.method":             {},
	"http.route":              {},
	"http.status_code":        {},
	"http.server_duration_ms": {},
	"request_id":              {},
	"ticket.status":           {},
	"ledger.source_type":      {},
}

// SafeAttributes drops attributes that could carry user supplied values.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedAttributeKeys[attr.Key]; ok {
			out = append(out, attr)
		}
	}
	return out
}

// SafeError strips the message of err so SQL and tokens never reach the
// tracing backend.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	var classified interface{ ErrorClass() string }
	if errors.As(err, &classified) {
		return errors.New(classified.ErrorClass())
	}
	return errors.New("internal_error")
}
