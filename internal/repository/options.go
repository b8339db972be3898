package repository

import (
	"github.com/and161185/docrepo/internal/config"
	"github.com/and161185/docrepo/internal/store"
	"github.com/and161185/docrepo/internal/version"
)

// DeletionPolicy selects what Delete* operations do.
type DeletionPolicy int

const (
	// SoftDelete marks entities deleted and keeps them until Purge.
	SoftDelete DeletionPolicy = iota
	// HardDelete removes entities physically.
	HardDelete
)

func (p DeletionPolicy) String() string {
	if p == HardDelete {
		return "hard"
	}
	return "soft"
}

// ReadPolicy selects whether reads see soft-deleted entities.
type ReadPolicy int

const (
	IgnoreDeleted ReadPolicy = iota
	IncludeDeleted
)

func (p ReadPolicy) String() string {
	if p == IncludeDeleted {
		return "include_deleted"
	}
	return "ignore_deleted"
}

// Options configure one repository.
type Options struct {
	// Empty concerns inherit the collection settings.
	ReadConcern  config.ReadConcern
	WriteConcern config.WriteConcern

	Deletion DeletionPolicy
	Read     ReadPolicy

	// TokenKind initialises entities created without a version token.
	TokenKind version.Kind

	// ConcurrencyCheck makes updates and deletes match the token value the
	// caller last saw; a stale token yields errs.ErrVersionConflict.
	ConcurrencyCheck bool

	// UpdateParallelism bounds the fan-out of batch updates and deletes.
	UpdateParallelism int
}

// DefaultOptions returns soft deletion, hidden deleted entities, monotonic
// tokens and concurrency checks on.
func DefaultOptions() Options {
	return Options{
		Deletion:          SoftDelete,
		Read:              IgnoreDeleted,
		TokenKind:         version.Monotonic,
		ConcurrencyCheck:  true,
		UpdateParallelism: 8,
	}
}

// Settings returns the concern overrides as store settings.
func (o Options) Settings() store.Settings {
	return store.Settings{ReadConcern: o.ReadConcern, WriteConcern: o.WriteConcern}
}

func (o Options) parallelism() int {
	if o.UpdateParallelism < 1 {
		return 1
	}
	return o.UpdateParallelism
}
