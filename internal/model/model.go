// Package model defines the base stored object and the per-type collection
// metadata used by repositories and provisioning.
package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/and161185/docrepo/internal/version"
)

// Object carries the fields every stored entity shares. Entities embed it
// with `bson:",inline"`.
type Object struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"` // assigned on create when zero
	Version      *version.Token     `bson:"version"`       // mutated only by the repository
	CreatedAt    time.Time          `bson:"createdAt"`     // set once on create
	LastModified time.Time          `bson:"lastModified"`  // create and every update
	Deleted      bool               `bson:"deleted"`       // soft delete tombstone
	DeletedAt    *time.Time         `bson:"deletedAt"`     // set together with Deleted
}

// Base lets a type embedding Object satisfy Entity.
func (o *Object) Base() *Object { return o }

// Entity is any pointer type that exposes its embedded Object.
type Entity interface {
	Base() *Object
}

// Stored field names referenced by filters.
const (
	FieldID           = "_id"
	FieldVersion      = "version"
	FieldVersionValue = "version.value"
	FieldCreatedAt    = "createdAt"
	FieldLastModified = "lastModified"
	FieldDeleted      = "deleted"
	FieldDeletedAt    = "deletedAt"
)
