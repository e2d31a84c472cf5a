package memory

import (
	"strings"
	"time"

	"github.com/labdepot/labdepot/pkg/model"
)

func matchFilters(doc model.Document, filters model.Filters) bool {
	for _, f := range filters {
		if !matchFilter(doc, f) {
			return false
		}
	}
	return true
}

func matchFilter(doc model.Document, f model.Filter) bool {
	v, ok := doc.Get(f.Field)
	if !ok {
		v = nil
	}

	switch f.Op {
	case model.OpEq:
		return compareValues(v, f.Value) == 0
	case model.OpNe:
		return compareValues(v, f.Value) != 0
	case model.OpGt:
		return sameKind(v, f.Value) && compareValues(v, f.Value) > 0
	case model.OpGte:
		return sameKind(v, f.Value) && compareValues(v, f.Value) >= 0
	case model.OpLt:
		return sameKind(v, f.Value) && compareValues(v, f.Value) < 0
	case model.OpLte:
		return sameKind(v, f.Value) && compareValues(v, f.Value) <= 0
	case model.OpIn:
		for _, candidate := range toSlice(f.Value) {
			if compareValues(v, candidate) == 0 {
				return true
			}
		}
		return false
	}
	return false
}

// lessBySort orders a before b by the sort keys, falling back to _id
// ascending so the order is total.
func lessBySort(a, b model.Document, keys []model.Sort) bool {
	for _, k := range keys {
		av, _ := a.Get(k.Field)
		bv, _ := b.Get(k.Field)
		c := compareValues(av, bv)
		if c == 0 {
			continue
		}
		if k.Direction == model.Descending {
			return c > 0
		}
		return c < 0
	}
	return strings.Compare(a.GetID(), b.GetID()) < 0
}

// typeRank follows MongoDB's cross-type comparison order.
func typeRank(v interface{}) int {
	switch v.(type) {
	case nil:
		return 0
	case int, int32, int64, float32, float64:
		return 1
	case string:
		return 2
	case model.Document, map[string]interface{}:
		return 3
	case []interface{}:
		return 4
	case bool:
		return 8
	case time.Time:
		return 9
	default:
		return 10
	}
}

func sameKind(a, b interface{}) bool {
	return typeRank(a) == typeRank(b)
}

func compareValues(a, b interface{}) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch av := a.(type) {
	case nil:
		return 0
	case string:
		return strings.Compare(av, b.(string))
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case time.Time:
		return av.Compare(b.(time.Time))
	}

	if ra == 1 {
		af, bf := toFloat(a), toFloat(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}

	// Documents and arrays only compare equal to themselves here.
	if equalDeep(a, b) {
		return 0
	}
	return 1
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

func toSlice(v interface{}) []interface{} {
	switch s := v.(type) {
	case []interface{}:
		return s
	case []string:
		out := make([]interface{}, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out
	default:
		return []interface{}{v}
	}
}

func equalDeep(a, b interface{}) bool {
	switch av := a.(type) {
	case model.Document:
		bm, ok := asMap(b)
		if !ok || len(av) != len(bm) {
			return false
		}
		for k, v := range av {
			if compareValues(v, bm[k]) != 0 {
				return false
			}
		}
		return true
	case map[string]interface{}:
		return equalDeep(model.Document(av), b)
	case []interface{}:
		bs, ok := b.([]interface{})
		if !ok || len(av) != len(bs) {
			return false
		}
		for i := range av {
			if compareValues(av[i], bs[i]) != 0 {
				return false
			}
		}
		return true
	}
	return false
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case model.Document:
		return m, true
	case map[string]interface{}:
		return m, true
	}
	return nil, false
}
