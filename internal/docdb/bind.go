package docdb

import (
	"context"
	"reflect"
	"slices"

	"go.uber.org/zap"

	"github.com/and161185/docrepo/internal/errs"
	"github.com/and161185/docrepo/internal/model"
	"github.com/and161185/docrepo/internal/provision"
	"github.com/and161185/docrepo/internal/repository"
	"github.com/and161185/docrepo/internal/store"
)

// Collection is the bound collection of entity type T.
type Collection[T model.Entity] struct {
	handle   store.Collection
	meta     model.Metadata
	binding  BindingType
	settings store.Settings
}

func (c *Collection[T]) Name() string { return c.meta.Name }

// Handle returns the store handle.
func (c *Collection[T]) Handle() store.Collection { return c.handle }

func (c *Collection[T]) Metadata() model.Metadata { return c.meta }

// Binding reports whether the collection was created by this binding.
func (c *Collection[T]) Binding() BindingType { return c.binding }

// Settings returns the concerns the handle was bound with.
func (c *Collection[T]) Settings() store.Settings { return c.settings }

// BindCollection returns the collection of entity type T, creating and
// provisioning it on first use. Every call for the same T on one DB returns
// the same handle; concurrent first calls create the collection once.
func BindCollection[T model.Entity](ctx context.Context, db *DB) (*Collection[T], error) {
	rt := reflect.TypeFor[T]()
	if c, ok := db.cached(rt); ok {
		return c.(*Collection[T]), nil
	}
	if db.closed.Load() {
		return nil, errs.ErrClosed
	}

	db.bindMu.Lock()
	defer db.bindMu.Unlock()
	if c, ok := db.cached(rt); ok {
		return c.(*Collection[T]), nil
	}

	cfg := db.cfg
	meta := provision.Resolve[T](cfg.opts)
	logger := cfg.logger.With(zap.String("collection", meta.Name))

	names, err := db.database.ListCollectionNames(ctx, meta.Name)
	if err != nil {
		return nil, &errs.BindError{Kind: "collection", Target: meta.Name, Err: err}
	}
	binding := BindCreate
	if slices.Contains(names, meta.Name) {
		binding = BindExisting
	}

	if binding == BindCreate {
		var opts store.CreateCollectionOptions
		provision.ApplyCreateOptions(meta, &opts)
		if cfg.createHook != nil {
			cfg.createHook(meta, &opts)
		}
		if err := db.database.CreateCollection(ctx, meta.Name, opts); err != nil {
			return nil, &errs.BindError{Kind: "collection", Target: meta.Name, Err: err}
		}
	}

	settings := store.SettingsFrom(cfg.opts.CollectionConcerns)
	if cfg.collectionHook != nil {
		cfg.collectionHook(meta, &settings)
	}
	handle := db.database.Collection(meta.Name, settings)

	if binding == BindCreate && len(meta.Indexes) > 0 {
		created, err := provision.Indexes(ctx, handle, meta, logger)
		if err != nil {
			failed := len(meta.Indexes) - created
			cfg.metrics.IncrementIndexFailures(meta.Name, failed)
			logger.Warn("index provisioning failed",
				zap.Int("created", created),
				zap.Int("failed", failed),
				zap.Error(err),
			)
			if cfg.strictIndexes {
				return nil, &errs.BindError{Kind: "collection", Target: meta.Name, Err: err}
			}
		}
	}

	c := &Collection[T]{handle: handle, meta: meta, binding: binding, settings: settings}
	db.remember(rt, c)
	cfg.metrics.IncrementBinding(meta.Name, binding.String())
	logger.Info("collection bound", zap.Stringer("binding", binding))
	return c, nil
}

// BindRepository binds the collection of T and returns a repository over
// it. configure callbacks run on top of repository.DefaultOptions. Concern
// overrides in the options produce a dedicated handle; the cached one is
// left untouched.
func BindRepository[T model.Entity](
	ctx context.Context, db *DB, configure ...func(*repository.Options),
) (*repository.Repository[T], error) {
	c, err := BindCollection[T](ctx, db)
	if err != nil {
		return nil, err
	}

	opts := repository.DefaultOptions()
	for _, f := range configure {
		f(&opts)
	}

	handle := c.handle
	if override := opts.Settings(); override != (store.Settings{}) {
		handle = db.database.Collection(c.Name(), override.Merge(c.settings))
	}

	cfg := db.cfg
	ropts := []repository.Option{
		repository.WithLogger(cfg.logger),
		repository.WithMetrics(cfg.metrics),
	}
	if cfg.tp != nil {
		ropts = append(ropts, repository.WithTracerProvider(cfg.tp))
	}
	if cfg.now != nil {
		ropts = append(ropts, repository.WithClock(cfg.now))
	}
	return repository.New[T](handle, opts, ropts...), nil
}
