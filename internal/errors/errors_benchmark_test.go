package errors

import (
	"fmt"
	"testing"
)

// BenchmarkErrorCreationNoTelemetry measures the fast path used when no reporter is installed
func BenchmarkErrorCreationNoTelemetry(b *testing.B) {
	SetTelemetryReporter(nil)

	b.ReportAllocs()

	for b.Loop() {
		_ = New(fmt.Errorf("test error")).
			Component("inference").
			Category(CategoryInference).
			Build()
	}
}

// BenchmarkErrorCreationWithContext includes the map allocation for context fields
func BenchmarkErrorCreationWithContext(b *testing.B) {
	SetTelemetryReporter(nil)

	b.ReportAllocs()

	for b.Loop() {
		_ = New(fmt.Errorf("test error")).
			Category(CategoryImageDecode).
			ImageContext("png", 2048).
			Context("stage", "decode").
			Build()
	}
}
