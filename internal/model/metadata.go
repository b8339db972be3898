package model

import "go.mongodb.org/mongo-driver/bson"

// Order is the direction or kind of an index key.
type Order int

const (
	Asc Order = iota
	Desc
	Text
)

// IndexKey is one field of an index.
type IndexKey struct {
	Field string
	Order Order
}

// Index declares a secondary index created when the collection is provisioned.
type Index struct {
	Name   string
	Keys   []IndexKey
	Unique bool
}

// KeysDocument renders the keys in declaration order.
func (ix Index) KeysDocument() bson.D {
	d := make(bson.D, 0, len(ix.Keys))
	for _, k := range ix.Keys {
		var v any
		switch k.Order {
		case Desc:
			v = -1
		case Text:
			v = "text"
		default:
			v = 1
		}
		d = append(d, bson.E{Key: k.Field, Value: v})
	}
	return d
}

// Validation actions and levels understood by the store.
const (
	ValidationError = "error"
	ValidationWarn  = "warn"

	ValidationStrict   = "strict"
	ValidationModerate = "moderate"
	ValidationOff      = "off"
)

// Metadata describes how the collection of an entity type is created and
// indexed. The zero value means a default collection named by convention
// with no indexes.
type Metadata struct {
	Name             string
	Capped           bool
	MaxSizeBytes     int64
	MaxDocuments     int64
	Validator        bson.D
	ValidationAction string
	ValidationLevel  string
	Indexes          []Index
}

// MetadataProvider is implemented by entity types that declare their
// collection. It must be callable on the zero value.
type MetadataProvider interface {
	CollectionMetadata() Metadata
}
