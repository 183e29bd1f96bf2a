package types

import "errors"

// Domain errors for type validation and retrieval operations
var (
	// Search result errors
	ErrMissingFilePath = errors.New("file path is required")
	ErrInvalidScore    = errors.New("score must be between 0 and 1")

	// Learning model errors
	ErrNegativeCount = errors.New("event counts must be >= 0")

	// Request validation errors
	ErrEmptyQuery  = errors.New("query cannot be empty")
	ErrMissingPath = errors.New("path is required")
)
