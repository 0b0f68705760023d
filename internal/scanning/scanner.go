// Package scanning sends receipt images to a vision-capable model and
// returns the model's raw text response. Turning that text into a
// structured record is the receipt package's job; the prompt here and
// the normalizer there share a schema and must change together.
package scanning

import (
	"context"
	"fmt"
)

// ExtractionError indicates the inference call failed or timed out.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting receipt data: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Scanner is the inference collaborator contract. Extract returns the
// model response verbatim. It does not retry: repeated calls to a
// metered endpoint are the orchestrator's decision, not this layer's.
type Scanner interface {
	Extract(ctx context.Context, imageData []byte, contentType string) (string, error)

	// Close releases the underlying client.
	Close() error
}
