// Package version implements the optimistic concurrency token carried by
// every stored entity.
package version

import (
	"errors"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"

	"github.com/and161185/docrepo/internal/crypto"
)

// Kind tags the token variant.
type Kind uint8

const (
	// Monotonic starts at 0 and grows by one per update.
	Monotonic Kind = iota
	// RandomLong is replaced by a fresh non-negative random value per update.
	RandomLong
)

func (k Kind) String() string {
	switch k {
	case Monotonic:
		return "monotonic"
	case RandomLong:
		return "random_long"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "monotonic":
		return Monotonic, nil
	case "random_long":
		return RandomLong, nil
	default:
		return 0, fmt.Errorf("unknown token kind %q", s)
	}
}

// randInt63 is a seam for tests.
var randInt63 = crypto.RandInt63

// Token is a tagged union over the two variants. Readers treat the value as
// opaque: values of different kinds are never ordered against each other.
// The zero value is a Monotonic token at 0.
type Token struct {
	mu    sync.Mutex
	kind  Kind
	value int64
}

// NewMonotonic returns a token at 0.
func NewMonotonic() *Token { return &Token{kind: Monotonic} }

// NewRandomLong returns a token seeded with a random non-negative value.
func NewRandomLong() (*Token, error) {
	v, err := randInt63()
	if err != nil {
		return nil, fmt.Errorf("seed token: %w", err)
	}
	return &Token{kind: RandomLong, value: v}, nil
}

// New returns a fresh token of the given kind.
func New(k Kind) (*Token, error) {
	switch k {
	case Monotonic:
		return NewMonotonic(), nil
	case RandomLong:
		return NewRandomLong()
	default:
		return nil, fmt.Errorf("unknown token kind %d", k)
	}
}

func (t *Token) Kind() Kind {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.kind
}

func (t *Token) Value() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value
}

// Increment advances the token and returns the new value.
func (t *Token) Increment() (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.kind {
	case Monotonic:
		t.value++
	case RandomLong:
		for {
			v, err := randInt63()
			if err != nil {
				return t.value, fmt.Errorf("increment token: %w", err)
			}
			if v != t.value {
				t.value = v
				break
			}
		}
	default:
		return t.value, fmt.Errorf("increment token: unknown kind %d", t.kind)
	}
	return t.value, nil
}

// Restore puts back a value observed before a failed mutation.
func (t *Token) Restore(v int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.value = v
}

func (t *Token) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fmt.Sprintf("%s:%d", t.kind, t.value)
}

type tokenDoc struct {
	Kind  string `bson:"kind"`
	Value int64  `bson:"value"`
}

// MarshalBSONValue stores the token as {kind, value}, or null for a nil token.
func (t *Token) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if t == nil {
		return bsontype.Null, nil, nil
	}
	t.mu.Lock()
	doc := tokenDoc{Kind: t.kind.String(), Value: t.value}
	t.mu.Unlock()
	b, err := bson.Marshal(doc)
	if err != nil {
		return 0, nil, err
	}
	return bsontype.EmbeddedDocument, b, nil
}

// UnmarshalBSON restores a token written by MarshalBSONValue.
func (t *Token) UnmarshalBSON(data []byte) error {
	var doc tokenDoc
	if err := bson.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.Kind == "" {
		return errors.New("token: missing kind")
	}
	k, err := ParseKind(doc.Kind)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.kind, t.value = k, doc.Value
	return nil
}
