// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Common sentinels across context/repository layers.
var (
	// ErrConfiguration indicates invalid or incomplete connection options.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrBinding indicates a database or collection could not be checked, created or bound.
	ErrBinding = errors.New("binding failed")

	// ErrRepository marks any failure raised inside a repository operation.
	ErrRepository = errors.New("repository operation failed")

	// ErrNotFound indicates the entity targeted by a mutation does not exist.
	// Reads never return it: absence is reported as an empty result.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict indicates optimistic concurrency failure (stored token moved on).
	ErrVersionConflict = errors.New("version conflict")

	// ErrClosed indicates the connection has already been closed.
	ErrClosed = errors.New("connection closed")
)

// ConfigError reports an invalid option field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrConfiguration) hold.
func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

// BindError wraps a store failure raised while binding a database or collection.
type BindError struct {
	Kind   string // "database" or "collection"
	Target string
	Err    error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s %q: %v", e.Kind, e.Target, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrBinding) hold.
func (e *BindError) Is(target error) bool { return target == ErrBinding }

// RepositoryError wraps a store failure raised by a repository operation.
type RepositoryError struct {
	Op         string
	Collection string
	Err        error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("%s on %q: %v", e.Op, e.Collection, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrRepository) hold.
func (e *RepositoryError) Is(target error) bool { return target == ErrRepository }
