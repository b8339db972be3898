package repository

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/docrepo/internal/errs"
	"github.com/and161185/docrepo/internal/filter"
	"github.com/and161185/docrepo/internal/model"
	"github.com/and161185/docrepo/internal/store"
	"github.com/and161185/docrepo/internal/version"
)

// createBatch bounds the documents sent per insert by CreateSeq.
const createBatch = 500

// snapshot holds the Object fields a failed write must put back.
type snapshot struct {
	obj          *model.Object
	id           primitive.ObjectID
	tok          *version.Token
	tokVal       int64
	createdAt    time.Time
	lastModified time.Time
	deleted      bool
	deletedAt    *time.Time
}

func take(o *model.Object) snapshot {
	s := snapshot{
		obj:          o,
		id:           o.ID,
		tok:          o.Version,
		createdAt:    o.CreatedAt,
		lastModified: o.LastModified,
		deleted:      o.Deleted,
		deletedAt:    o.DeletedAt,
	}
	if o.Version != nil {
		s.tokVal = o.Version.Value()
	}
	return s
}

func (s snapshot) restore() {
	o := s.obj
	o.ID, o.Version = s.id, s.tok
	if s.tok != nil {
		s.tok.Restore(s.tokVal)
	}
	o.CreatedAt, o.LastModified = s.createdAt, s.lastModified
	o.Deleted, o.DeletedAt = s.deleted, s.deletedAt
}

// prepareCreate assigns the fields a new entity needs.
func (r *Repository[T]) prepareCreate(v T, now time.Time) (snapshot, error) {
	if isNil(v) {
		return snapshot{}, errNilEntity
	}
	o := v.Base()
	s := take(o)
	if o.ID.IsZero() {
		o.ID = primitive.NewObjectID()
	}
	if o.Version == nil {
		tok, err := version.New(r.opts.TokenKind)
		if err != nil {
			s.restore()
			return snapshot{}, err
		}
		o.Version = tok
	}
	o.CreatedAt, o.LastModified = now, now
	return s, nil
}

// CreateOne assigns ID, token and timestamps to v and inserts it.
func (r *Repository[T]) CreateOne(ctx context.Context, v T) (err error) {
	ctx, done := r.begin(ctx, "create_one")
	defer done(&err)

	s, err := r.prepareCreate(v, r.stamp())
	if err != nil {
		return r.wrap("create_one", err)
	}
	if err := r.coll.InsertOne(ctx, v); err != nil {
		s.restore()
		return r.wrap("create_one", err)
	}
	return nil
}

// CreateMany inserts vs in one call. On failure none of vs keeps its assigned fields.
func (r *Repository[T]) CreateMany(ctx context.Context, vs []T) (err error) {
	if len(vs) == 0 {
		return nil
	}
	ctx, done := r.begin(ctx, "create_many")
	defer done(&err)

	return r.wrap("create_many", r.createMany(ctx, vs))
}

func (r *Repository[T]) createMany(ctx context.Context, vs []T) error {
	now := r.stamp()
	snaps := make([]snapshot, 0, len(vs))
	docs := make([]any, 0, len(vs))
	// restore newest first so an entity listed twice ends in its original state
	rollback := func() {
		for i := len(snaps) - 1; i >= 0; i-- {
			snaps[i].restore()
		}
	}
	for i, v := range vs {
		s, err := r.prepareCreate(v, now)
		if err != nil {
			rollback()
			return fmt.Errorf("entity %d: %w", i, err)
		}
		snaps = append(snaps, s)
		docs = append(docs, v)
	}
	if err := r.coll.InsertMany(ctx, docs); err != nil {
		rollback()
		return err
	}
	return nil
}

// CreateSeq drains seq in batches. Batches inserted before a failure stay
// stored.
func (r *Repository[T]) CreateSeq(ctx context.Context, seq iter.Seq[T]) (err error) {
	ctx, done := r.begin(ctx, "create_seq")
	defer done(&err)

	batch := make([]T, 0, createBatch)
	for v := range seq {
		batch = append(batch, v)
		if len(batch) == createBatch {
			if err := r.createMany(ctx, batch); err != nil {
				return r.wrap("create_seq", err)
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := r.createMany(ctx, batch); err != nil {
			return r.wrap("create_seq", err)
		}
	}
	return nil
}

// UpdateOne replaces the stored document of v, advancing its token once.
func (r *Repository[T]) UpdateOne(ctx context.Context, v T) (err error) {
	ctx, done := r.begin(ctx, "update_one")
	defer done(&err)

	return r.wrap("update_one", r.replace(ctx, v, r.stamp()))
}

// UpdateMany updates every entity of vs and returns the first failure.
func (r *Repository[T]) UpdateMany(ctx context.Context, vs []T) (err error) {
	if len(vs) == 0 {
		return nil
	}
	ctx, done := r.begin(ctx, "update_many")
	defer done(&err)

	return r.wrap("update_many", r.fanOut(ctx, vs, func(ctx context.Context, v T) error {
		return r.replace(ctx, v, r.stamp())
	}))
}

// fanOut runs fn for every entity with bounded parallelism. The first
// failure cancels the context of the remaining calls.
func (r *Repository[T]) fanOut(ctx context.Context, vs []T, fn func(context.Context, T) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.parallelism())
	for _, v := range vs {
		g.Go(func() error { return fn(ctx, v) })
	}
	return g.Wait()
}

// replace writes v over its stored document, advancing the token once and
// stamping LastModified with now. With concurrency checks on, the stored
// token must still hold the value v carried. On failure the in-memory
// entity is restored.
func (r *Repository[T]) replace(ctx context.Context, v T, now time.Time) error {
	if isNil(v) {
		return errNilEntity
	}
	o := v.Base()
	if o.ID.IsZero() {
		return fmt.Errorf("entity without id: %w", errs.ErrNotFound)
	}
	if o.Version == nil {
		return fmt.Errorf("entity %s: missing version token", o.ID.Hex())
	}
	s := take(o)

	if _, err := o.Version.Increment(); err != nil {
		return err
	}
	o.LastModified = now

	f := filter.ByID(o.ID)
	if r.opts.ConcurrencyCheck {
		f = filter.And(f, filter.Eq(model.FieldVersionValue, s.tokVal))
	}
	err := r.coll.FindOneAndReplace(ctx, f, v, v)
	if err == nil {
		return nil
	}
	s.restore()
	if errors.Is(err, store.ErrNoDocuments) {
		return r.missing(ctx, o.ID)
	}
	return err
}

// missing explains why a versioned write matched nothing: the entity is
// either gone or its stored token moved on.
func (r *Repository[T]) missing(ctx context.Context, id primitive.ObjectID) error {
	if !r.opts.ConcurrencyCheck {
		return fmt.Errorf("id %s: %w", id.Hex(), errs.ErrNotFound)
	}
	n, err := r.coll.CountDocuments(ctx, filter.ByID(id))
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("id %s: %w", id.Hex(), errs.ErrVersionConflict)
	}
	return fmt.Errorf("id %s: %w", id.Hex(), errs.ErrNotFound)
}
