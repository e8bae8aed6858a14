package types

import "errors"

// Domain errors for type validation
var (
	ErrInvalidChunk   = errors.New("invalid chunk")
	ErrDuplicateChunk = errors.New("duplicate chunk location")
	ErrEmptyQuery     = errors.New("query cannot be empty")
)
