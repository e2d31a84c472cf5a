package model

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ToDocument converts a bson-tagged entity into a Document.
func ToDocument(v interface{}) (Document, error) {
	data, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	var m bson.M
	if err := bson.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return FromBSON(m), nil
}

// DecodeDocument decodes a Document into a bson-tagged entity.
func DecodeDocument(doc Document, out interface{}) error {
	if doc == nil {
		return fmt.Errorf("%w: nil document", ErrInvalidDocument)
	}
	data, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := bson.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return nil
}

// FromBSON converts a decoded BSON map into a Document of plain Go values.
func FromBSON(m bson.M) Document {
	result := make(Document, len(m))
	for k, v := range m {
		result[k] = convertBSONValue(v)
	}
	return result
}

func convertBSONValue(v interface{}) interface{} {
	switch val := v.(type) {
	case bson.M:
		return FromBSON(val)
	case bson.D:
		return FromBSON(val.Map())
	case bson.A:
		result := make([]interface{}, len(val))
		for i, item := range val {
			result[i] = convertBSONValue(item)
		}
		return result
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return val.Time().UTC()
	case time.Time:
		return val.UTC()
	case int32:
		return int64(val)
	case int:
		return int64(val)
	default:
		return v
	}
}
