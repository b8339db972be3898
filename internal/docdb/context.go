// Package docdb owns the connection to the document store: it connects the
// client, binds the configured database, and binds one collection per entity
// type on first use.
package docdb

import (
	"context"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/and161185/docrepo/internal/config"
	"github.com/and161185/docrepo/internal/errs"
	"github.com/and161185/docrepo/internal/metrics"
	"github.com/and161185/docrepo/internal/model"
	"github.com/and161185/docrepo/internal/store"
)

// BindingType tells whether a database or collection was found or created.
type BindingType int

const (
	BindCreate BindingType = iota
	BindExisting
)

func (b BindingType) String() string {
	if b == BindExisting {
		return "existing"
	}
	return "created"
}

// DatabaseHook may adjust the database settings before the handle is bound.
type DatabaseHook func(binding BindingType, s *store.Settings)

// CollectionCreateHook may adjust creation options derived from metadata.
type CollectionCreateHook func(meta model.Metadata, opts *store.CreateCollectionOptions)

// CollectionBindHook may adjust the collection settings before the handle is bound.
type CollectionBindHook func(meta model.Metadata, s *store.Settings)

// Context is a validated, not yet connected configuration.
type Context struct {
	opts      config.Options
	connector store.Connector

	logger        *zap.Logger
	metrics       *metrics.Repository
	tp            trace.TracerProvider
	now           func() time.Time
	strictIndexes bool

	databaseHook   DatabaseHook
	createHook     CollectionCreateHook
	collectionHook CollectionBindHook
}

// Option customises a Context.
type Option func(*Context)

func WithLogger(l *zap.Logger) Option { return func(c *Context) { c.logger = l } }

func WithMetrics(m *metrics.Repository) Option { return func(c *Context) { c.metrics = m } }

func WithTracerProvider(tp trace.TracerProvider) Option { return func(c *Context) { c.tp = tp } }

// WithClock replaces time.Now for entity timestamps in bound repositories.
func WithClock(now func() time.Time) Option { return func(c *Context) { c.now = now } }

// WithStrictIndexes makes a failed index build fail the binding.
func WithStrictIndexes(strict bool) Option { return func(c *Context) { c.strictIndexes = strict } }

func WithDatabaseHook(h DatabaseHook) Option { return func(c *Context) { c.databaseHook = h } }

func WithCollectionCreateHook(h CollectionCreateHook) Option {
	return func(c *Context) { c.createHook = h }
}

func WithCollectionBindHook(h CollectionBindHook) Option {
	return func(c *Context) { c.collectionHook = h }
}

// New validates opts. No network call is made until Open.
func New(opts config.Options, connector store.Connector, options ...Option) (*Context, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if connector == nil {
		return nil, &errs.ConfigError{Field: "connector", Reason: "required"}
	}
	c := &Context{opts: opts, connector: connector, logger: zap.NewNop()}
	for _, o := range options {
		o(c)
	}
	return c, nil
}

// Options returns the validated options.
func (c *Context) Options() config.Options { return c.opts }

// Open connects the client and binds the configured database. The client
// is disconnected again when binding fails.
func (c *Context) Open(ctx context.Context) (*DB, error) {
	name := c.opts.Database
	client, err := c.connector.Connect(ctx, c.opts)
	if err != nil {
		return nil, &errs.BindError{Kind: "database", Target: name, Err: err}
	}

	names, err := client.ListDatabaseNames(ctx)
	if err != nil {
		if derr := client.Disconnect(context.WithoutCancel(ctx)); derr != nil {
			c.logger.Warn("disconnect after failed bind", zap.Error(derr))
		}
		return nil, &errs.BindError{Kind: "database", Target: name, Err: err}
	}
	binding := BindCreate
	if slices.Contains(names, name) {
		binding = BindExisting
	}

	settings := store.SettingsFrom(c.opts.DatabaseConcerns)
	if c.databaseHook != nil {
		c.databaseHook(binding, &settings)
	}
	db := &DB{
		cfg:      c,
		client:   client,
		database: client.Database(name, settings),
		binding:  binding,
		colls:    make(map[reflect.Type]any),
	}
	c.logger.Info("database bound",
		zap.String("database", name),
		zap.Stringer("binding", binding),
		zap.String("host", c.opts.Host),
	)
	return db, nil
}

// DB is an open connection with its bound database and collection cache.
type DB struct {
	cfg      *Context
	client   store.Client
	database store.Database
	binding  BindingType

	mu     sync.RWMutex
	colls  map[reflect.Type]any // *Collection[T], written once per type
	bindMu sync.Mutex           // serialises check-create-cache
	closed atomic.Bool
}

// Client returns the connected client.
func (d *DB) Client() store.Client { return d.client }

// Database returns the bound database handle.
func (d *DB) Database() store.Database { return d.database }

// Binding reports whether the database existed at Open.
func (d *DB) Binding() BindingType { return d.binding }

// Ping checks the server is reachable.
func (d *DB) Ping(ctx context.Context) error {
	if d.closed.Load() {
		return errs.ErrClosed
	}
	return d.client.Ping(ctx)
}

// DatabaseExists reports whether the server has a database called name.
func (d *DB) DatabaseExists(ctx context.Context, name string) (bool, error) {
	if d.closed.Load() {
		return false, errs.ErrClosed
	}
	names, err := d.client.ListDatabaseNames(ctx)
	if err != nil {
		return false, &errs.BindError{Kind: "database", Target: name, Err: err}
	}
	return slices.Contains(names, name), nil
}

// CollectionExists reports whether the bound database has a collection called name.
func (d *DB) CollectionExists(ctx context.Context, name string) (bool, error) {
	if d.closed.Load() {
		return false, errs.ErrClosed
	}
	names, err := d.database.ListCollectionNames(ctx, name)
	if err != nil {
		return false, &errs.BindError{Kind: "collection", Target: name, Err: err}
	}
	return slices.Contains(names, name), nil
}

// Close disconnects the client. Later calls return errs.ErrClosed.
func (d *DB) Close(ctx context.Context) error {
	if !d.closed.CompareAndSwap(false, true) {
		return errs.ErrClosed
	}
	if err := d.client.Disconnect(ctx); err != nil {
		return err
	}
	d.cfg.logger.Info("database closed", zap.String("database", d.database.Name()))
	return nil
}

func (d *DB) cached(rt reflect.Type) (any, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.colls[rt]
	return c, ok
}

func (d *DB) remember(rt reflect.Type, c any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.colls[rt] = c
}
