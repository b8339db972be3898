package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/and161185/docrepo/internal/version"
)

type note struct {
	Object `bson:",inline"`
	Text   string `bson:"text"`
}

func TestIndex_KeysDocument(t *testing.T) {
	t.Parallel()

	ix := Index{Name: "by_owner", Keys: []IndexKey{
		{Field: "owner", Order: Asc},
		{Field: "createdAt", Order: Desc},
		{Field: "body", Order: Text},
	}}
	require.Equal(t, bson.D{
		{Key: "owner", Value: 1},
		{Key: "createdAt", Value: -1},
		{Key: "body", Value: "text"},
	}, ix.KeysDocument())
}

func TestObject_InlineFieldNames(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	n := &note{Text: "hi"}
	n.ID = primitive.NewObjectID()
	n.Version = version.NewMonotonic()
	n.CreatedAt, n.LastModified = now, now

	var e Entity = n
	require.Same(t, &n.Object, e.Base())

	raw, err := bson.Marshal(n)
	require.NoError(t, err)
	var flat bson.M
	require.NoError(t, bson.Unmarshal(raw, &flat))
	for _, f := range []string{FieldID, FieldVersion, FieldCreatedAt, FieldLastModified, FieldDeleted, FieldDeletedAt, "text"} {
		require.Contains(t, flat, f)
	}

	var back note
	require.NoError(t, bson.Unmarshal(raw, &back))
	require.Equal(t, n.ID, back.ID)
	require.Equal(t, int64(0), back.Version.Value())
	require.True(t, back.CreatedAt.Equal(now))
	require.Nil(t, back.DeletedAt)
}

func TestObject_ZeroIDOmitted(t *testing.T) {
	t.Parallel()

	raw, err := bson.Marshal(&note{})
	require.NoError(t, err)
	var flat bson.M
	require.NoError(t, bson.Unmarshal(raw, &flat))
	require.NotContains(t, flat, FieldID)
}
