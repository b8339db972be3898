// Package repository provides typed, versioned access to the entities of one
// collection.
package repository

import (
	"context"
	"iter"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/and161185/docrepo/internal/model"
)

// Reader provides filtered reads. Absence is never an error.
type Reader[T model.Entity] interface {
	// Count returns the number of visible entities.
	Count(ctx context.Context) (int64, error)
	// CountWhere returns the number of visible entities matching f.
	CountWhere(ctx context.Context, f bson.D) (int64, error)
	// ReadOne loads an entity by ID; ok is false when it is absent or hidden.
	ReadOne(ctx context.Context, id primitive.ObjectID) (v T, ok bool, err error)
	// ReadOneWhere loads the first visible entity matching f.
	ReadOneWhere(ctx context.Context, f bson.D) (v T, ok bool, err error)
	// ReadMany loads the visible entities among ids.
	ReadMany(ctx context.Context, ids []primitive.ObjectID) ([]T, error)
	// ReadManyWhere loads every visible entity matching f.
	ReadManyWhere(ctx context.Context, f bson.D) ([]T, error)
	// ReadAll loads every visible entity.
	ReadAll(ctx context.Context) ([]T, error)
}

// Writer creates and updates entities.
type Writer[T model.Entity] interface {
	// CreateOne stores a new entity, assigning ID, token and timestamps.
	CreateOne(ctx context.Context, v T) error
	// CreateMany stores new entities in one batch.
	CreateMany(ctx context.Context, vs []T) error
	// CreateSeq stores the entities yielded by seq in batches.
	CreateSeq(ctx context.Context, seq iter.Seq[T]) error
	// UpdateOne replaces an entity and advances its token.
	UpdateOne(ctx context.Context, v T) error
	// UpdateMany updates entities concurrently; the first failure cancels the rest.
	UpdateMany(ctx context.Context, vs []T) error
}

// Deleter removes entities according to the deletion policy.
type Deleter[T model.Entity] interface {
	DeleteOne(ctx context.Context, v T) error
	DeleteByID(ctx context.Context, id primitive.ObjectID) (bool, error)
	DeleteMany(ctx context.Context, vs []T) error
	DeleteWhere(ctx context.Context, f bson.D) (int64, error)
	// Purge physically removes every soft-deleted entity.
	Purge(ctx context.Context) (int64, error)
	// PurgeWhere physically removes soft-deleted entities matching f.
	PurgeWhere(ctx context.Context, f bson.D) (int64, error)
}

// Store is the full repository contract.
type Store[T model.Entity] interface {
	Reader[T]
	Writer[T]
	Deleter[T]
}
