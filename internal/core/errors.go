package core

import (
	"errors"
	"fmt"
)

var (
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	ErrDimensionMismatch    = errors.New("embedding dimension mismatch")
	ErrSearchUnavailable    = errors.New("search unavailable")
	ErrNotFound             = errors.New("memory not found")
	ErrExtractionFailed     = errors.New("extraction failed")
	ErrInvalidMemory        = errors.New("invalid memory")
)

type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: want %d, got %d", e.Want, e.Got)
}

func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}
