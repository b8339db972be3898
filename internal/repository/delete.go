package repository

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/and161185/docrepo/internal/errs"
	"github.com/and161185/docrepo/internal/filter"
	"github.com/and161185/docrepo/internal/model"
)

// DeleteOne deletes v according to the deletion policy.
func (r *Repository[T]) DeleteOne(ctx context.Context, v T) (err error) {
	ctx, done := r.begin(ctx, "delete_one")
	defer done(&err)

	return r.wrap("delete_one", r.deleteEntity(ctx, v))
}

// DeleteMany deletes every entity of vs and returns the first failure.
func (r *Repository[T]) DeleteMany(ctx context.Context, vs []T) (err error) {
	if len(vs) == 0 {
		return nil
	}
	ctx, done := r.begin(ctx, "delete_many")
	defer done(&err)

	return r.wrap("delete_many", r.fanOut(ctx, vs, r.deleteEntity))
}

func (r *Repository[T]) deleteEntity(ctx context.Context, v T) error {
	if r.opts.Deletion == HardDelete {
		return r.hardDelete(ctx, v)
	}
	return r.softDelete(ctx, v)
}

// hardDelete removes v and resets its ID once the store confirms it.
func (r *Repository[T]) hardDelete(ctx context.Context, v T) error {
	if isNil(v) {
		return errNilEntity
	}
	o := v.Base()
	if o.ID.IsZero() {
		return fmt.Errorf("entity without id: %w", errs.ErrNotFound)
	}
	f := filter.ByID(o.ID)
	if r.opts.ConcurrencyCheck && o.Version != nil {
		f = filter.And(f, filter.Eq(model.FieldVersionValue, o.Version.Value()))
	}
	n, err := r.coll.DeleteOne(ctx, f)
	if err != nil {
		return err
	}
	if n == 0 {
		if o.Version == nil {
			return fmt.Errorf("id %s: %w", o.ID.Hex(), errs.ErrNotFound)
		}
		return r.missing(ctx, o.ID)
	}
	o.ID = primitive.NilObjectID
	return nil
}

// softDelete marks v deleted through the versioned replace path. An entity
// already marked deleted is left as is.
func (r *Repository[T]) softDelete(ctx context.Context, v T) error {
	if isNil(v) {
		return errNilEntity
	}
	o := v.Base()
	if o.Deleted {
		return nil
	}
	s := take(o)
	now := r.stamp()
	o.Deleted, o.DeletedAt = true, &now
	if err := r.replace(ctx, v, now); err != nil {
		s.restore()
		return err
	}
	return nil
}

// DeleteByID deletes the visible entity with id. It reports false when
// there was nothing to delete.
func (r *Repository[T]) DeleteByID(ctx context.Context, id primitive.ObjectID) (ok bool, err error) {
	ctx, done := r.begin(ctx, "delete_by_id")
	defer done(&err)

	if r.opts.Deletion == HardDelete {
		n, err := r.coll.DeleteOne(ctx, r.visible(filter.ByID(id)))
		if err != nil {
			return false, r.wrap("delete_by_id", err)
		}
		return n > 0, nil
	}

	found, err := r.find(ctx, filter.And(filter.ByID(id), filter.NotDeleted()), 1)
	if err != nil {
		return false, r.wrap("delete_by_id", err)
	}
	if len(found) == 0 {
		return false, nil
	}
	if err := r.softDelete(ctx, found[0]); err != nil {
		return false, r.wrap("delete_by_id", err)
	}
	return true, nil
}

// DeleteWhere deletes every visible entity matching f and returns how many
// were deleted. Under soft deletion entities already deleted are skipped.
func (r *Repository[T]) DeleteWhere(ctx context.Context, f bson.D) (n int64, err error) {
	ctx, done := r.begin(ctx, "delete_where")
	defer done(&err)

	if r.opts.Deletion == HardDelete {
		n, err = r.coll.DeleteMany(ctx, r.visible(f))
		return n, r.wrap("delete_where", err)
	}

	found, err := r.find(ctx, filter.And(f, filter.NotDeleted()), 0)
	if err != nil {
		return 0, r.wrap("delete_where", err)
	}
	var deleted atomic.Int64
	err = r.fanOut(ctx, found, func(ctx context.Context, v T) error {
		if err := r.softDelete(ctx, v); err != nil {
			return err
		}
		deleted.Add(1)
		return nil
	})
	return deleted.Load(), r.wrap("delete_where", err)
}

// Purge physically removes every soft-deleted entity.
func (r *Repository[T]) Purge(ctx context.Context) (int64, error) {
	return r.purge(ctx, "purge", nil)
}

// PurgeWhere physically removes the soft-deleted entities matching f.
func (r *Repository[T]) PurgeWhere(ctx context.Context, f bson.D) (int64, error) {
	return r.purge(ctx, "purge_where", f)
}

// purge ignores the read policy: only soft-deleted documents are removed.
func (r *Repository[T]) purge(ctx context.Context, op string, f bson.D) (n int64, err error) {
	ctx, done := r.begin(ctx, op)
	defer done(&err)

	n, err = r.coll.DeleteMany(ctx, filter.And(f, filter.OnlyDeleted()))
	return n, r.wrap(op, err)
}
