package memstore

import (
	"bytes"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// toDoc normalises any marshalable value into a bson.D with bson.D/bson.A nesting.
func toDoc(v any) (bson.D, error) {
	if v == nil {
		return bson.D{}, nil
	}
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return d, nil
}

func get(d bson.D, key string) (any, bool) {
	for _, e := range d {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// lookup resolves a dotted path. Arrays of documents fan out into an array
// of the resolved values.
func lookup(v any, path string) (any, bool) {
	head, rest, nested := strings.Cut(path, ".")
	switch c := v.(type) {
	case bson.D:
		next, ok := get(c, head)
		if !ok {
			return nil, false
		}
		if !nested {
			return next, true
		}
		return lookup(next, rest)
	case bson.A:
		if i, err := strconv.Atoi(head); err == nil {
			if i < 0 || i >= len(c) {
				return nil, false
			}
			if !nested {
				return c[i], true
			}
			return lookup(c[i], rest)
		}
		var out bson.A
		for _, el := range c {
			if got, ok := lookup(el, path); ok {
				out = append(out, got)
			}
		}
		return out, len(out) > 0
	default:
		return nil, false
	}
}

func isOperatorDoc(v any) (bson.D, bool) {
	d, ok := v.(bson.D)
	if !ok || len(d) == 0 {
		return nil, false
	}
	return d, strings.HasPrefix(d[0].Key, "$")
}

// match reports whether doc satisfies filter.
func match(doc, filter bson.D) (bool, error) {
	for _, e := range filter {
		var (
			ok  bool
			err error
		)
		switch e.Key {
		case "$and":
			ok, err = matchList(doc, e.Value, func(n, total int) bool { return n == total })
		case "$or":
			ok, err = matchList(doc, e.Value, func(n, _ int) bool { return n > 0 })
		case "$nor":
			ok, err = matchList(doc, e.Value, func(n, _ int) bool { return n == 0 })
		default:
			if strings.HasPrefix(e.Key, "$") {
				return false, fmt.Errorf("unsupported top-level operator %s", e.Key)
			}
			val, found := lookup(doc, e.Key)
			if ops, isOps := isOperatorDoc(e.Value); isOps {
				ok, err = matchOps(val, found, ops)
			} else {
				ok = eqMatch(val, found, e.Value)
			}
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchList(doc bson.D, v any, accept func(n, total int) bool) (bool, error) {
	arr, ok := v.(bson.A)
	if !ok || len(arr) == 0 {
		return false, fmt.Errorf("logical operator expects a non-empty array, got %T", v)
	}
	n := 0
	for _, el := range arr {
		sub, ok := el.(bson.D)
		if !ok {
			return false, fmt.Errorf("logical operator element must be a document, got %T", el)
		}
		m, err := match(doc, sub)
		if err != nil {
			return false, err
		}
		if m {
			n++
		}
	}
	return accept(n, len(arr)), nil
}

func matchOps(val any, found bool, ops bson.D) (bool, error) {
	for _, op := range ops {
		var ok bool
		switch op.Key {
		case "$eq":
			ok = eqMatch(val, found, op.Value)
		case "$ne":
			ok = !eqMatch(val, found, op.Value)
		case "$in", "$nin":
			arr, isArr := op.Value.(bson.A)
			if !isArr {
				return false, fmt.Errorf("%s expects an array, got %T", op.Key, op.Value)
			}
			for _, want := range arr {
				if eqMatch(val, found, want) {
					ok = true
					break
				}
			}
			if op.Key == "$nin" {
				ok = !ok
			}
		case "$gt", "$gte", "$lt", "$lte":
			ok = found && anyElem(val, func(v any) bool {
				c, comparable := compare(v, op.Value)
				if !comparable {
					return false
				}
				switch op.Key {
				case "$gt":
					return c > 0
				case "$gte":
					return c >= 0
				case "$lt":
					return c < 0
				default:
					return c <= 0
				}
			})
		case "$exists":
			want, isBool := op.Value.(bool)
			if !isBool {
				return false, fmt.Errorf("$exists expects a bool, got %T", op.Value)
			}
			ok = found == want
		case "$not":
			sub, isOps := isOperatorDoc(op.Value)
			if !isOps {
				return false, fmt.Errorf("$not expects an operator document")
			}
			m, err := matchOps(val, found, sub)
			if err != nil {
				return false, err
			}
			ok = !m
		default:
			return false, fmt.Errorf("unsupported operator %s", op.Key)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// eqMatch follows store equality: null matches a missing field and a scalar
// matches an array containing it.
func eqMatch(val any, found bool, want any) bool {
	if !found {
		return want == nil
	}
	if equal(val, want) {
		return true
	}
	if _, wantArr := want.(bson.A); !wantArr {
		if arr, ok := val.(bson.A); ok {
			for _, el := range arr {
				if equal(el, want) {
					return true
				}
			}
		}
	}
	return false
}

func anyElem(val any, pred func(any) bool) bool {
	if pred(val) {
		return true
	}
	if arr, ok := val.(bson.A); ok {
		for _, el := range arr {
			if pred(el) {
				return true
			}
		}
	}
	return false
}

func equal(a, b any) bool {
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

// compare orders two scalars of the same type class.
func compare(a, b any) (int, bool) {
	if ai, aok := asInt(a); aok {
		if bi, bok := asInt(b); bok {
			return cmp3(ai < bi, ai > bi), true
		}
	}
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return cmp3(af < bf, af > bf), true
		}
		return 0, false
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return strings.Compare(x, y), ok
	case bool:
		y, ok := b.(bool)
		return cmp3(!x && y, x && !y), ok
	case primitive.DateTime:
		y, ok := b.(primitive.DateTime)
		return cmp3(x < y, x > y), ok
	case primitive.ObjectID:
		y, ok := b.(primitive.ObjectID)
		return bytes.Compare(x[:], y[:]), ok
	case nil:
		return 0, b == nil
	}
	return 0, false
}

func cmp3(lt, gt bool) int {
	switch {
	case lt:
		return -1
	case gt:
		return 1
	default:
		return 0
	}
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	if i, ok := asInt(v); ok {
		return float64(i), true
	}
	if f, ok := v.(float64); ok {
		return f, true
	}
	return 0, false
}

// less orders documents by a sort spec; missing values sort first.
func less(a, b bson.D, spec bson.D) bool {
	for _, s := range spec {
		dir := 1
		if n, ok := asInt(s.Value); ok && n < 0 {
			dir = -1
		}
		av, aok := lookup(a, s.Key)
		bv, bok := lookup(b, s.Key)
		switch {
		case !aok && !bok:
			continue
		case !aok:
			return dir > 0
		case !bok:
			return dir < 0
		}
		if c, ok := compare(av, bv); ok && c != 0 {
			return c*dir < 0
		}
	}
	return false
}
