// Package mongostore implements the store capability over the MongoDB driver.
package mongostore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/and161185/docrepo/internal/config"
	"github.com/and161185/docrepo/internal/model"
	"github.com/and161185/docrepo/internal/store"
)

// Connector dials MongoDB. The zero value is ready to use.
type Connector struct{}

var _ store.Connector = Connector{}

// Connect builds a client from opts and dials it. The driver connects lazily,
// so Connect also pings to surface unreachable servers early.
func (Connector) Connect(ctx context.Context, opts config.Options) (store.Client, error) {
	co, err := ClientOptions(opts)
	if err != nil {
		return nil, err
	}
	c, err := mongo.Connect(ctx, co)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := c.Ping(ctx, readpref.Primary()); err != nil {
		_ = c.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Client{c: c}, nil
}

// ClientOptions translates connection options into driver options.
func ClientOptions(o config.Options) (*options.ClientOptions, error) {
	uri := fmt.Sprintf("%s://%s", o.Scheme, o.Host)
	if o.Scheme == "mongodb" {
		uri = fmt.Sprintf("%s:%d", uri, o.Port)
	}
	co := options.Client().ApplyURI(uri)
	if o.Application != "" {
		co.SetAppName(o.Application)
	}
	if o.ReplicaSet != "" {
		co.SetReplicaSet(o.ReplicaSet)
	}
	if o.ConnectTimeout > 0 {
		co.SetConnectTimeout(o.ConnectTimeout)
		co.SetServerSelectionTimeout(o.ConnectTimeout)
	}

	switch o.Auth {
	case config.AuthScram:
		co.SetAuth(options.Credential{
			AuthMechanism: "SCRAM-SHA-256",
			AuthSource:    o.AuthDatabase,
			Username:      o.User,
			Password:      o.Password,
		})
	case config.AuthX509:
		co.SetAuth(options.Credential{
			AuthMechanism: "MONGODB-X509",
			AuthSource:    "$external",
		})
	}

	if o.Channel == config.ChannelTLS {
		co.SetTLSConfig(&tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: o.AllowSelfSigned, //nolint:gosec // opt-in for self-signed servers
			Certificates:       o.ClientCertificates,
		})
	}

	if err := co.Validate(); err != nil {
		return nil, fmt.Errorf("client options: %w", err)
	}
	return co, nil
}

// ReadConcern maps a configured level to the driver value; nil inherits.
func ReadConcern(l config.ReadConcern) *readconcern.ReadConcern {
	switch l {
	case config.ReadLocal:
		return readconcern.Local()
	case config.ReadAvailable:
		return readconcern.Available()
	case config.ReadMajority:
		return readconcern.Majority()
	case config.ReadLinearizable:
		return readconcern.Linearizable()
	case config.ReadSnapshot:
		return readconcern.Snapshot()
	default:
		return nil
	}
}

// WriteConcern maps a configured level to the driver value; nil inherits.
func WriteConcern(l config.WriteConcern) *writeconcern.WriteConcern {
	switch l {
	case config.WriteMajority:
		return writeconcern.Majority()
	case config.WriteW1:
		return writeconcern.W1()
	case config.WriteJournaled:
		return writeconcern.Journaled()
	case config.WriteUnacknowledged:
		return writeconcern.Unacknowledged()
	default:
		return nil
	}
}

// Client wraps *mongo.Client.
type Client struct{ c *mongo.Client }

func (c *Client) ListDatabaseNames(ctx context.Context) ([]string, error) {
	return c.c.ListDatabaseNames(ctx, bson.D{})
}

func (c *Client) Database(name string, s store.Settings) store.Database {
	do := options.Database()
	if rc := ReadConcern(s.ReadConcern); rc != nil {
		do.SetReadConcern(rc)
	}
	if wc := WriteConcern(s.WriteConcern); wc != nil {
		do.SetWriteConcern(wc)
	}
	return &Database{db: c.c.Database(name, do)}
}

func (c *Client) Ping(ctx context.Context) error { return c.c.Ping(ctx, readpref.Primary()) }

func (c *Client) Disconnect(ctx context.Context) error { return c.c.Disconnect(ctx) }

// Database wraps *mongo.Database.
type Database struct{ db *mongo.Database }

func (d *Database) Name() string { return d.db.Name() }

func (d *Database) ListCollectionNames(ctx context.Context, name string) ([]string, error) {
	return d.db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
}

func (d *Database) CreateCollection(ctx context.Context, name string, o store.CreateCollectionOptions) error {
	co := options.CreateCollection()
	if o.Capped {
		co.SetCapped(true)
		if o.MaxSizeBytes > 0 {
			co.SetSizeInBytes(o.MaxSizeBytes)
		}
		if o.MaxDocuments > 0 {
			co.SetMaxDocuments(o.MaxDocuments)
		}
	}
	if len(o.Validator) > 0 {
		co.SetValidator(o.Validator)
	}
	if o.ValidationAction != "" {
		co.SetValidationAction(o.ValidationAction)
	}
	if o.ValidationLevel != "" {
		co.SetValidationLevel(o.ValidationLevel)
	}
	return d.db.CreateCollection(ctx, name, co)
}

func (d *Database) Collection(name string, s store.Settings) store.Collection {
	co := options.Collection()
	if rc := ReadConcern(s.ReadConcern); rc != nil {
		co.SetReadConcern(rc)
	}
	if wc := WriteConcern(s.WriteConcern); wc != nil {
		co.SetWriteConcern(wc)
	}
	return &Collection{c: d.db.Collection(name, co)}
}

// Collection wraps *mongo.Collection.
type Collection struct{ c *mongo.Collection }

func (c *Collection) Name() string { return c.c.Name() }

func (c *Collection) CountDocuments(ctx context.Context, filter any) (int64, error) {
	return c.c.CountDocuments(ctx, filter)
}

func (c *Collection) Find(ctx context.Context, filter any, o store.FindOptions) (store.Cursor, error) {
	fo := options.Find()
	if len(o.Sort) > 0 {
		fo.SetSort(o.Sort)
	}
	if o.Limit > 0 {
		fo.SetLimit(o.Limit)
	}
	cur, err := c.c.Find(ctx, filter, fo)
	if err != nil {
		return nil, err
	}
	return cur, nil
}

func (c *Collection) InsertOne(ctx context.Context, doc any) error {
	_, err := c.c.InsertOne(ctx, doc)
	return err
}

func (c *Collection) InsertMany(ctx context.Context, docs []any) error {
	if len(docs) == 0 {
		return nil
	}
	_, err := c.c.InsertMany(ctx, docs)
	return err
}

func (c *Collection) FindOneAndReplace(ctx context.Context, filter, replacement, out any) error {
	res := c.c.FindOneAndReplace(ctx, filter, replacement,
		options.FindOneAndReplace().SetReturnDocument(options.After))
	if err := res.Decode(out); err != nil {
		return mapErr(err)
	}
	return nil
}

func (c *Collection) DeleteOne(ctx context.Context, filter any) (int64, error) {
	res, err := c.c.DeleteOne(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (c *Collection) DeleteMany(ctx context.Context, filter any) (int64, error) {
	res, err := c.c.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (c *Collection) CreateIndex(ctx context.Context, ix model.Index) (string, error) {
	io := options.Index()
	if ix.Name != "" {
		io.SetName(ix.Name)
	}
	if ix.Unique {
		io.SetUnique(true)
	}
	return c.c.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: ix.KeysDocument(), Options: io})
}

// mapErr translates driver sentinels into store sentinels.
func mapErr(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.ErrNoDocuments
	}
	return err
}
