package repository

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/and161185/docrepo/internal/errs"
	"github.com/and161185/docrepo/internal/filter"
	"github.com/and161185/docrepo/internal/metrics"
	"github.com/and161185/docrepo/internal/model"
	"github.com/and161185/docrepo/internal/store"
)

// TracerName names the spans opened by repositories.
const TracerName = "docrepo/repository"

// Repository implements Store over one collection.
type Repository[T model.Entity] struct {
	coll    store.Collection
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Repository
	tracer  trace.Tracer
	now     func() time.Time
}

var _ Store[*model.Object] = (*Repository[*model.Object])(nil)

// Option customises a Repository.
type Option func(*deps)

type deps struct {
	logger  *zap.Logger
	metrics *metrics.Repository
	tp      trace.TracerProvider
	now     func() time.Time
}

func WithLogger(l *zap.Logger) Option { return func(d *deps) { d.logger = l } }

func WithMetrics(m *metrics.Repository) Option { return func(d *deps) { d.metrics = m } }

func WithTracerProvider(tp trace.TracerProvider) Option { return func(d *deps) { d.tp = tp } }

// WithClock replaces time.Now for entity timestamps.
func WithClock(now func() time.Time) Option { return func(d *deps) { d.now = now } }

// New returns a repository over coll.
func New[T model.Entity](coll store.Collection, opts Options, options ...Option) *Repository[T] {
	d := deps{logger: zap.NewNop(), now: time.Now}
	for _, o := range options {
		o(&d)
	}
	if d.tp == nil {
		d.tp = otel.GetTracerProvider()
	}
	return &Repository[T]{
		coll:    coll,
		opts:    opts,
		logger:  d.logger.With(zap.String("collection", coll.Name())),
		metrics: d.metrics,
		tracer:  d.tp.Tracer(TracerName),
		now:     d.now,
	}
}

// Name returns the collection name.
func (r *Repository[T]) Name() string { return r.coll.Name() }

// Options returns the effective options.
func (r *Repository[T]) Options() Options { return r.opts }

// begin opens a span for op and returns the function that closes it,
// records metrics and logs the outcome.
func (r *Repository[T]) begin(ctx context.Context, op string) (context.Context, func(*error)) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("db.collection", r.coll.Name()),
		attribute.String("docrepo.op", op),
	))
	return ctx, func(errp *error) {
		err := *errp
		dur := time.Since(start)
		r.metrics.ObserveOp(r.coll.Name(), op, dur, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		r.logger.Debug("repository op",
			zap.String("op", op),
			zap.Duration("dur", dur),
			zap.Error(err),
		)
	}
}

func (r *Repository[T]) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *errs.RepositoryError
	if errors.As(err, &re) {
		return err
	}
	return &errs.RepositoryError{Op: op, Collection: r.coll.Name(), Err: err}
}

// visible applies the read policy to f.
func (r *Repository[T]) visible(f bson.D) bson.D {
	if r.opts.Read == IgnoreDeleted {
		return filter.And(f, filter.NotDeleted())
	}
	return filter.And(f)
}

// stamp returns the current time at store precision.
func (r *Repository[T]) stamp() time.Time {
	return r.now().UTC().Truncate(time.Millisecond)
}

func (r *Repository[T]) find(ctx context.Context, f bson.D, limit int64) ([]T, error) {
	cur, err := r.coll.Find(ctx, r.visible(f), store.FindOptions{Limit: limit})
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(context.WithoutCancel(ctx)) }()

	var out []T
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return out, nil
}

// Count returns the number of visible entities.
func (r *Repository[T]) Count(ctx context.Context) (int64, error) {
	return r.CountWhere(ctx, nil)
}

// CountWhere returns the number of visible entities matching f.
func (r *Repository[T]) CountWhere(ctx context.Context, f bson.D) (n int64, err error) {
	ctx, done := r.begin(ctx, "count")
	defer done(&err)

	n, err = r.coll.CountDocuments(ctx, r.visible(f))
	return n, r.wrap("count", err)
}

// ReadOne returns the visible entity with id. ok is false when there is none.
func (r *Repository[T]) ReadOne(ctx context.Context, id primitive.ObjectID) (T, bool, error) {
	return r.readOne(ctx, "read_one", filter.ByID(id))
}

// ReadOneWhere returns the first visible entity matching f.
func (r *Repository[T]) ReadOneWhere(ctx context.Context, f bson.D) (T, bool, error) {
	return r.readOne(ctx, "read_one_where", f)
}

func (r *Repository[T]) readOne(ctx context.Context, op string, f bson.D) (v T, ok bool, err error) {
	ctx, done := r.begin(ctx, op)
	defer done(&err)

	found, err := r.find(ctx, f, 1)
	if err != nil {
		return v, false, r.wrap(op, err)
	}
	if len(found) == 0 {
		return v, false, nil
	}
	return found[0], true, nil
}

// ReadMany returns the visible entities among ids. Missing IDs are skipped.
func (r *Repository[T]) ReadMany(ctx context.Context, ids []primitive.ObjectID) ([]T, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.readMany(ctx, "read_many", filter.ByIDs(ids...))
}

// ReadManyWhere returns every visible entity matching f.
func (r *Repository[T]) ReadManyWhere(ctx context.Context, f bson.D) ([]T, error) {
	return r.readMany(ctx, "read_many_where", f)
}

// ReadAll returns every visible entity.
func (r *Repository[T]) ReadAll(ctx context.Context) ([]T, error) {
	return r.readMany(ctx, "read_all", nil)
}

func (r *Repository[T]) readMany(ctx context.Context, op string, f bson.D) (out []T, err error) {
	ctx, done := r.begin(ctx, op)
	defer done(&err)

	out, err = r.find(ctx, f, 0)
	return out, r.wrap(op, err)
}

// MapOne reads an entity by ID and projects it with fn.
func MapOne[T model.Entity, V any](ctx context.Context, r Reader[T], id primitive.ObjectID, fn func(T) V) (V, bool, error) {
	var zero V
	v, ok, err := r.ReadOne(ctx, id)
	if err != nil || !ok {
		return zero, ok, err
	}
	return fn(v), true, nil
}

// MapOneWhere reads the first entity matching f and projects it with fn.
func MapOneWhere[T model.Entity, V any](ctx context.Context, r Reader[T], f bson.D, fn func(T) V) (V, bool, error) {
	var zero V
	v, ok, err := r.ReadOneWhere(ctx, f)
	if err != nil || !ok {
		return zero, ok, err
	}
	return fn(v), true, nil
}

// MapMany reads every entity matching f and projects each with fn.
func MapMany[T model.Entity, V any](ctx context.Context, r Reader[T], f bson.D, fn func(T) V) ([]V, error) {
	vs, err := r.ReadManyWhere(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]V, 0, len(vs))
	for _, v := range vs {
		out = append(out, fn(v))
	}
	return out, nil
}

func isNil[T model.Entity](v T) bool {
	rv := reflect.ValueOf(v)
	return !rv.IsValid() || (rv.Kind() == reflect.Pointer && rv.IsNil())
}

var errNilEntity = errors.New("nil entity")
