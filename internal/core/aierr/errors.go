// Package aierr defines the error taxonomy shared by the ingestion and
// generation pipelines. Callers classify failures with errors.Is.
package aierr

import (
	"errors"
	"fmt"
)

var (
	// ErrExtraction covers OCR/parse failures during text extraction.
	ErrExtraction = errors.New("extraction failed")

	// ErrEmptyExtraction marks an extraction that produced only whitespace.
	// Empty text is a failure, never a silent success.
	ErrEmptyExtraction = errors.New("extraction produced empty text")

	// ErrEmbedding covers embedding provider failures and dimension anomalies.
	ErrEmbedding = errors.New("embedding failed")

	// ErrGeneration covers empty or unparsable LLM output.
	ErrGeneration = errors.New("generation failed")

	// ErrValidation covers bad chunking configuration and malformed
	// structured output from the model.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a missing document, job or notebook reference.
	ErrNotFound = errors.New("not found")

	// ErrPermission marks an actor not authorized for the target notebook.
	ErrPermission = errors.New("permission denied")
)

// Extraction wraps err as an extraction failure.
func Extraction(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrExtraction, fmt.Sprintf(format, args...))
}

// Embedding wraps err as an embedding failure.
func Embedding(err error) error {
	return fmt.Errorf("%w: %v", ErrEmbedding, err)
}

// Generation wraps a generation failure with a reason.
func Generation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrGeneration, fmt.Sprintf(format, args...))
}

// Validation wraps a validation failure with a reason.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
