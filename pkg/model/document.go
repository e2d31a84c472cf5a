package model

import (
	"regexp"
	"strings"
)

// IDField is the storage key of a document's identifier.
const IDField = "_id"

var objectIDRegex = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// IsObjectIDHex reports whether id has the 24 hex character ObjectId format.
func IsObjectIDHex(id string) bool {
	return objectIDRegex.MatchString(id)
}

// Document is the storage-level representation of a record.
// Values are plain Go types: string, bool, int64, float64, time.Time,
// Document (nested) and []interface{}.
type Document map[string]interface{}

func (doc Document) GetID() string {
	if id, ok := doc[IDField].(string); ok {
		return id
	}
	return ""
}

func (doc Document) SetID(id string) {
	doc[IDField] = id
}

// Get resolves a dotted path such as "threshold.minQuantity".
func (doc Document) Get(path string) (interface{}, bool) {
	var cur interface{} = doc
	for _, part := range strings.Split(path, ".") {
		switch m := cur.(type) {
		case Document:
			v, ok := m[part]
			if !ok {
				return nil, false
			}
			cur = v
		case map[string]interface{}:
			v, ok := m[part]
			if !ok {
				return nil, false
			}
			cur = v
		default:
			return nil, false
		}
	}
	return cur, true
}

// Clone returns a deep copy of the document.
func (doc Document) Clone() Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case Document:
		return val.Clone()
	case map[string]interface{}:
		return Document(val).Clone()
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
