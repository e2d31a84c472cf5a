package mongo

import (
	"fmt"

	"github.com/labdepot/labdepot/pkg/model"
	"go.mongodb.org/mongo-driver/bson"
)

// makeFilterBSON translates filters into a match document. Several
// filters on the same field are merged into one operator document.
func makeFilterBSON(filters model.Filters) (bson.M, error) {
	bsonFilter := bson.M{}

	for _, f := range filters {
		op := mapOp(f.Op)
		if op == "" || f.Field == "" {
			return nil, fmt.Errorf("%w: unsupported filter %q %q", model.ErrInvalidQuery, f.Field, f.Op)
		}
		cond, ok := bsonFilter[f.Field].(bson.M)
		if !ok {
			cond = bson.M{}
			bsonFilter[f.Field] = cond
		}
		cond[op] = f.Value
	}

	return bsonFilter, nil
}

func makeSortBSON(keys []model.Sort) bson.D {
	sort := bson.D{}
	for _, k := range keys {
		dir := 1
		if k.Direction == model.Descending {
			dir = -1
		}
		sort = append(sort, bson.E{Key: k.Field, Value: dir})
	}
	return sort
}

func mapOp(op model.FilterOp) string {
	switch op {
	case model.OpEq:
		return "$eq"
	case model.OpNe:
		return "$ne"
	case model.OpGt:
		return "$gt"
	case model.OpGte:
		return "$gte"
	case model.OpLt:
		return "$lt"
	case model.OpLte:
		return "$lte"
	case model.OpIn:
		return "$in"
	default:
		return ""
	}
}
