package models

import (
	"errors"
	"fmt"
)

var (
	// ErrQuotaExceeded indicates aggregate storage is at or above the
	// critical threshold; new ingestion runs are rejected. Existing
	// collections and retrieval are unaffected.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrDimensionMismatch indicates an upsert batch whose vector length
	// differs from the collection's established embedding dimension.
	// Fatal for that collection only.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// EmbeddingError is returned when the embedding service fails after
// bounded retries. Status carries the upstream HTTP status when it
// could be determined, 0 otherwise.
type EmbeddingError struct {
	Status   int
	Attempts int
	Err      error
}

func (e *EmbeddingError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("embedding failed after %d attempt(s) (status %d): %v", e.Attempts, e.Status, e.Err)
	}
	return fmt.Sprintf("embedding failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// ReclaimError reports a partially failed reclaim: Deleted collections
// were removed before the failure occurred.
type ReclaimError struct {
	Deleted int
	Err     error
}

func (e *ReclaimError) Error() string {
	return fmt.Sprintf("reclaim incomplete after deleting %d collection(s): %v", e.Deleted, e.Err)
}

func (e *ReclaimError) Unwrap() error { return e.Err }
