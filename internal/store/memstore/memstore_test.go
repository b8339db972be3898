package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/and161185/docrepo/internal/config"
	"github.com/and161185/docrepo/internal/filter"
	"github.com/and161185/docrepo/internal/model"
	"github.com/and161185/docrepo/internal/store"
)

type row struct {
	ID    int      `bson:"_id"`
	Name  string   `bson:"name"`
	Score int      `bson:"score"`
	Tags  []string `bson:"tags,omitempty"`
	Meta  *meta    `bson:"meta,omitempty"`
}

type meta struct {
	Owner string `bson:"owner"`
}

func newColl(t *testing.T) (*Server, store.Collection) {
	t.Helper()
	srv := New()
	cl, err := srv.Connect(context.Background(), config.Options{})
	require.NoError(t, err)
	db := cl.Database("app", store.Settings{})
	return srv, db.Collection("rows", store.Settings{})
}

func seed(t *testing.T, c store.Collection) {
	t.Helper()
	require.NoError(t, c.InsertMany(context.Background(), []any{
		row{ID: 1, Name: "a", Score: 10, Tags: []string{"x", "y"}, Meta: &meta{Owner: "ann"}},
		row{ID: 2, Name: "b", Score: 20, Tags: []string{"y"}},
		row{ID: 3, Name: "c", Score: 30, Meta: &meta{Owner: "bob"}},
	}))
}

func find(t *testing.T, c store.Collection, f any, opts store.FindOptions) []int {
	t.Helper()
	cur, err := c.Find(context.Background(), f, opts)
	require.NoError(t, err)
	var out []row
	require.NoError(t, cur.All(context.Background(), &out))
	ids := make([]int, 0, len(out))
	for _, r := range out {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestFind_Filters(t *testing.T) {
	t.Parallel()

	_, c := newColl(t)
	seed(t, c)

	tests := []struct {
		name string
		f    bson.D
		want []int
	}{
		{"all", filter.All(), []int{1, 2, 3}},
		{"eq", filter.Eq("name", "b"), []int{2}},
		{"ne", filter.Ne("name", "b"), []int{1, 3}},
		{"gt", filter.Gt("score", 10), []int{2, 3}},
		{"lte", filter.Lte("score", 20), []int{1, 2}},
		{"in", filter.In("_id", 1, 3), []int{1, 3}},
		{"nin", bson.D{{Key: "_id", Value: bson.D{{Key: "$nin", Value: bson.A{1, 3}}}}}, []int{2}},
		{"array membership", filter.Eq("tags", "y"), []int{1, 2}},
		{"dotted path", filter.Eq("meta.owner", "bob"), []int{3}},
		{"exists", filter.Exists("meta", true), []int{1, 3}},
		{"null matches missing", filter.Eq("meta", nil), []int{2}},
		{"and", filter.And(filter.Gte("score", 20), filter.Eq("tags", "y")), []int{2}},
		{"or", filter.Or(filter.Eq("_id", 1), filter.Eq("_id", 3)), []int{1, 3}},
		{"nor", bson.D{{Key: "$nor", Value: bson.A{filter.Eq("_id", 1)}}}, []int{2, 3}},
		{"not", bson.D{{Key: "score", Value: bson.D{{Key: "$not", Value: bson.D{{Key: "$gt", Value: 15}}}}}}, []int{1}},
		{"type mismatch", filter.Gt("name", 1), []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, find(t, c, tt.f, store.FindOptions{}))
		})
	}
}

func TestFind_SortLimit(t *testing.T) {
	t.Parallel()

	_, c := newColl(t)
	seed(t, c)
	got := find(t, c, nil, store.FindOptions{Sort: bson.D{{Key: "score", Value: -1}}, Limit: 2})
	require.Equal(t, []int{3, 2}, got)
}

func TestFind_UnsupportedOperator(t *testing.T) {
	t.Parallel()

	_, c := newColl(t)
	seed(t, c)
	_, err := c.Find(context.Background(), bson.D{{Key: "name", Value: bson.D{{Key: "$regex", Value: "a"}}}}, store.FindOptions{})
	require.ErrorContains(t, err, "$regex")
}

func TestInsert_DuplicateID(t *testing.T) {
	t.Parallel()

	_, c := newColl(t)
	seed(t, c)
	err := c.InsertOne(context.Background(), row{ID: 2})
	require.ErrorIs(t, err, ErrDuplicateKey)
}

func TestUniqueIndex(t *testing.T) {
	t.Parallel()

	srv, c := newColl(t)
	seed(t, c)
	name, err := c.CreateIndex(context.Background(), model.Index{Keys: []model.IndexKey{{Field: "name"}}, Unique: true})
	require.NoError(t, err)
	require.Equal(t, "name_1", name)
	require.Len(t, srv.Indexes("app", "rows"), 1)

	err = c.InsertOne(context.Background(), row{ID: 9, Name: "a"})
	require.ErrorIs(t, err, ErrDuplicateKey)
}

func TestFindOneAndReplace(t *testing.T) {
	t.Parallel()

	_, c := newColl(t)
	seed(t, c)
	ctx := context.Background()

	var out row
	require.NoError(t, c.FindOneAndReplace(ctx, filter.ByID(2), row{ID: 2, Name: "bb", Score: 21}, &out))
	require.Equal(t, "bb", out.Name)
	require.Equal(t, []int{2}, find(t, c, filter.Eq("score", 21), store.FindOptions{}))

	err := c.FindOneAndReplace(ctx, filter.ByID(42), row{ID: 42}, &out)
	require.ErrorIs(t, err, store.ErrNoDocuments)

	err = c.FindOneAndReplace(ctx, filter.ByID(1), row{ID: 7}, &out)
	require.ErrorContains(t, err, "_id")
}

func TestDelete(t *testing.T) {
	t.Parallel()

	_, c := newColl(t)
	seed(t, c)
	ctx := context.Background()

	n, err := c.DeleteOne(ctx, filter.Gte("score", 10))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = c.DeleteMany(ctx, filter.Gte("score", 10))
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	cnt, err := c.CountDocuments(ctx, nil)
	require.NoError(t, err)
	require.Zero(t, cnt)
}

func TestCapped_EvictsOldest(t *testing.T) {
	t.Parallel()

	srv := New()
	cl, err := srv.Connect(context.Background(), config.Options{})
	require.NoError(t, err)
	db := cl.Database("app", store.Settings{})
	require.NoError(t, db.CreateCollection(context.Background(), "log", store.CreateCollectionOptions{Capped: true, MaxDocuments: 2}))
	c := db.Collection("log", store.Settings{})
	for i := 1; i <= 3; i++ {
		require.NoError(t, c.InsertOne(context.Background(), row{ID: i}))
	}
	require.Equal(t, []int{2, 3}, find(t, c, nil, store.FindOptions{}))
	require.Equal(t, []string{"app.log"}, srv.CreatedCollections())
}

func TestCapped_EvictsBySize(t *testing.T) {
	t.Parallel()

	one, err := bson.Marshal(row{ID: 1})
	require.NoError(t, err)

	srv := New()
	cl, err := srv.Connect(context.Background(), config.Options{})
	require.NoError(t, err)
	db := cl.Database("app", store.Settings{})
	opts := store.CreateCollectionOptions{Capped: true, MaxSizeBytes: int64(2*len(one) + 1)}
	require.NoError(t, db.CreateCollection(context.Background(), "log", opts))
	c := db.Collection("log", store.Settings{})
	for i := 1; i <= 4; i++ {
		require.NoError(t, c.InsertOne(context.Background(), row{ID: i}))
	}
	require.Equal(t, []int{3, 4}, find(t, c, nil, store.FindOptions{}))
}

func TestExistenceAndSettings(t *testing.T) {
	t.Parallel()

	srv := New()
	ctx := context.Background()
	cl, err := srv.Connect(ctx, config.Options{})
	require.NoError(t, err)

	names, err := cl.ListDatabaseNames(ctx)
	require.NoError(t, err)
	require.Empty(t, names)

	srv.Seed("app", "rows")
	names, err = cl.ListDatabaseNames(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"app"}, names)

	db := cl.Database("app", store.Settings{ReadConcern: config.ReadMajority})
	require.Equal(t, config.ReadMajority, srv.DatabaseSettings("app").ReadConcern)

	colls, err := db.ListCollectionNames(ctx, "rows")
	require.NoError(t, err)
	require.Equal(t, []string{"rows"}, colls)
	colls, err = db.ListCollectionNames(ctx, "other")
	require.NoError(t, err)
	require.Empty(t, colls)

	require.Error(t, db.CreateCollection(ctx, "rows", store.CreateCollectionOptions{}))

	db.Collection("rows", store.Settings{WriteConcern: config.WriteMajority})
	require.Equal(t, config.WriteMajority, srv.CollectionSettings("app", "rows").WriteConcern)
}

func TestFailNextAndDisconnect(t *testing.T) {
	t.Parallel()

	srv, c := newColl(t)
	ctx := context.Background()
	boom := errors.New("boom")
	srv.FailNext(OpInsert, boom)

	require.ErrorIs(t, c.InsertOne(ctx, row{ID: 1}), boom)
	require.NoError(t, c.InsertOne(ctx, row{ID: 1}))
	require.Equal(t, 2, srv.Calls(OpInsert))

	cl, err := srv.Connect(ctx, config.Options{})
	require.NoError(t, err)
	require.NoError(t, cl.Disconnect(ctx))
	_, err = cl.ListDatabaseNames(ctx)
	require.ErrorIs(t, err, mongo.ErrClientDisconnected)
}
