// Package filter builds store query documents.
package filter

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/and161185/docrepo/internal/model"
)

// All matches every document.
func All() bson.D { return bson.D{} }

func Eq(field string, v any) bson.D { return bson.D{{Key: field, Value: v}} }

func Ne(field string, v any) bson.D { return op(field, "$ne", v) }

func Gt(field string, v any) bson.D { return op(field, "$gt", v) }

func Gte(field string, v any) bson.D { return op(field, "$gte", v) }

func Lt(field string, v any) bson.D { return op(field, "$lt", v) }

func Lte(field string, v any) bson.D { return op(field, "$lte", v) }

func Exists(field string, exists bool) bson.D { return op(field, "$exists", exists) }

// In matches documents whose field equals any of vs.
func In[V any](field string, vs ...V) bson.D {
	arr := make(bson.A, 0, len(vs))
	for _, v := range vs {
		arr = append(arr, v)
	}
	return op(field, "$in", arr)
}

// ByID matches a single document by primary key.
func ByID(id any) bson.D { return Eq(model.FieldID, id) }

// ByIDs matches any of the given primary keys.
func ByIDs[V any](ids ...V) bson.D { return In(model.FieldID, ids...) }

// NotDeleted hides soft-deleted documents.
func NotDeleted() bson.D { return Eq(model.FieldDeleted, false) }

// OnlyDeleted selects soft-deleted documents.
func OnlyDeleted() bson.D { return Eq(model.FieldDeleted, true) }

// And combines filters. Empty filters are dropped; a single remaining filter
// is returned as is.
func And(fs ...bson.D) bson.D { return combine("$and", fs) }

// Or matches when any filter matches. Empty filters are dropped.
func Or(fs ...bson.D) bson.D { return combine("$or", fs) }

func op(field, operator string, v any) bson.D {
	return bson.D{{Key: field, Value: bson.D{{Key: operator, Value: v}}}}
}

func combine(operator string, fs []bson.D) bson.D {
	parts := make(bson.A, 0, len(fs))
	var last bson.D
	for _, f := range fs {
		if len(f) == 0 {
			continue
		}
		parts = append(parts, f)
		last = f
	}
	switch len(parts) {
	case 0:
		return bson.D{}
	case 1:
		return last
	default:
		return bson.D{{Key: operator, Value: parts}}
	}
}
