// Package store defines the document store capability consumed by the
// context and repositories. It is implemented over the MongoDB driver by
// mongostore and in process by memstore.
package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/and161185/docrepo/internal/config"
	"github.com/and161185/docrepo/internal/model"
)

// ErrNoDocuments is returned by single-document operations that matched nothing.
var ErrNoDocuments = errors.New("no documents matched")

// Settings are per-handle read/write concerns. Empty levels inherit.
type Settings struct {
	ReadConcern  config.ReadConcern
	WriteConcern config.WriteConcern
}

// Merge returns s with empty levels filled from parent.
func (s Settings) Merge(parent Settings) Settings {
	if s.ReadConcern == "" {
		s.ReadConcern = parent.ReadConcern
	}
	if s.WriteConcern == "" {
		s.WriteConcern = parent.WriteConcern
	}
	return s
}

// SettingsFrom converts configured concerns.
func SettingsFrom(c config.Concerns) Settings {
	return Settings{ReadConcern: c.Read, WriteConcern: c.Write}
}

// CreateCollectionOptions control explicit collection creation.
type CreateCollectionOptions struct {
	Capped           bool
	MaxSizeBytes     int64
	MaxDocuments     int64
	Validator        bson.D
	ValidationAction string
	ValidationLevel  string
}

// FindOptions narrow a query.
type FindOptions struct {
	Sort  bson.D
	Limit int64
}

// Connector builds clients from connection options.
type Connector interface {
	Connect(ctx context.Context, opts config.Options) (Client, error)
}

// Client is a connected store client.
type Client interface {
	ListDatabaseNames(ctx context.Context) ([]string, error)
	Database(name string, s Settings) Database
	Ping(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// Database is a bound database handle.
type Database interface {
	Name() string
	ListCollectionNames(ctx context.Context, name string) ([]string, error)
	CreateCollection(ctx context.Context, name string, opts CreateCollectionOptions) error
	Collection(name string, s Settings) Collection
}

// Collection is a bound collection handle. Filters are bson documents.
type Collection interface {
	Name() string
	CountDocuments(ctx context.Context, filter any) (int64, error)
	Find(ctx context.Context, filter any, opts FindOptions) (Cursor, error)
	InsertOne(ctx context.Context, doc any) error
	InsertMany(ctx context.Context, docs []any) error
	// FindOneAndReplace replaces the single matching document and decodes
	// the post-replace document into out. ErrNoDocuments when nothing matched.
	FindOneAndReplace(ctx context.Context, filter, replacement, out any) error
	DeleteOne(ctx context.Context, filter any) (int64, error)
	DeleteMany(ctx context.Context, filter any) (int64, error)
	CreateIndex(ctx context.Context, ix model.Index) (string, error)
}

// Cursor iterates query results. *mongo.Cursor satisfies it.
type Cursor interface {
	All(ctx context.Context, results any) error
	Close(ctx context.Context) error
}
