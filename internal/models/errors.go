package models

import (
	"errors"
	"fmt"
)

var (
	// ErrMapping marks content that cannot be flattened into search documents.
	ErrMapping = errors.New("content mapping failed")
	// ErrEngineIO marks an unreachable, closed, or corrupt physical index.
	ErrEngineIO = errors.New("index engine failure")
	// ErrStateInconsistency marks disagreement between index state and index contents.
	ErrStateInconsistency = errors.New("index state inconsistent")
	// ErrInvalidQuery marks a malformed search request.
	ErrInvalidQuery = errors.New("invalid search query")
	// ErrInvalidTenant marks a tenant name unusable as an index namespace.
	ErrInvalidTenant = errors.New("invalid tenant")
)

// MappingError reports the field that could not be mapped.
type MappingError struct {
	ContentID ContentID
	Field     string
	Reason    string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("content %s field %q: %s", e.ContentID, e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrMapping) true.
func (e *MappingError) Is(target error) bool {
	return target == ErrMapping
}

// EngineError wraps a failure of the physical index.
type EngineError struct {
	Op     string
	Tenant string
	Err    error
}

func (e *EngineError) Error() string {
	if e.Tenant == "" {
		return fmt.Sprintf("index %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("index %s (%s): %v", e.Op, e.Tenant, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrEngineIO) true.
func (e *EngineError) Is(target error) bool {
	return target == ErrEngineIO
}
