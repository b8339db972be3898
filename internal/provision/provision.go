// Package provision resolves per-type collection metadata and applies it
// when a collection is first created.
package provision

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/docrepo/internal/config"
	"github.com/and161185/docrepo/internal/model"
	"github.com/and161185/docrepo/internal/store"
)

// declared caches the metadata an entity type declares, before naming.
var declared sync.Map // reflect.Type -> model.Metadata

// Resolve returns the metadata of entity type T with Name filled in by the
// naming convention of opts when the type does not declare one. Types
// without metadata get the zero Metadata: a conventionally named collection
// with no indexes.
func Resolve[T model.Entity](opts config.Options) model.Metadata {
	rt := EntityType[T]()
	var meta model.Metadata
	if v, ok := declared.Load(rt); ok {
		meta = v.(model.Metadata)
	} else {
		meta = declare(rt)
		declared.Store(rt, meta)
	}
	if meta.Name == "" {
		meta.Name = opts.CollectionName(rt.Name())
	}
	return meta
}

// EntityType returns the struct type behind entity type T.
func EntityType[T model.Entity]() reflect.Type {
	rt := reflect.TypeFor[T]()
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	return rt
}

func declare(rt reflect.Type) model.Metadata {
	// a pointer to a zero value covers both value and pointer receivers
	if p, ok := reflect.New(rt).Interface().(model.MetadataProvider); ok {
		meta := p.CollectionMetadata()
		meta.Indexes = append([]model.Index(nil), meta.Indexes...)
		return meta
	}
	return model.Metadata{}
}

// ApplyCreateOptions copies the creation settings of meta into opts.
func ApplyCreateOptions(meta model.Metadata, opts *store.CreateCollectionOptions) {
	opts.Capped = meta.Capped
	opts.MaxSizeBytes = meta.MaxSizeBytes
	opts.MaxDocuments = meta.MaxDocuments
	opts.Validator = meta.Validator
	opts.ValidationAction = meta.ValidationAction
	opts.ValidationLevel = meta.ValidationLevel
}

// Indexes creates every index declared in meta on coll, one call per index.
// It keeps going after a failure and returns the number created together
// with the joined errors.
func Indexes(ctx context.Context, coll store.Collection, meta model.Metadata, logger *zap.Logger) (int, error) {
	var (
		created int
		errs    []error
	)
	for _, ix := range meta.Indexes {
		name, err := coll.CreateIndex(ctx, ix)
		if err != nil {
			errs = append(errs, fmt.Errorf("index %q: %w", ix.Name, err))
			continue
		}
		created++
		logger.Debug("index created",
			zap.String("collection", coll.Name()),
			zap.String("index", name),
			zap.Bool("unique", ix.Unique),
		)
	}
	return created, errors.Join(errs...)
}
