package events

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/labdepot/labdepot/pkg/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RawEvent is a MongoDB change stream notice before normalization.
type RawEvent struct {
	OperationType     string              `bson:"operationType"`
	ClusterTime       primitive.Timestamp `bson:"clusterTime"`
	WallTime          primitive.DateTime  `bson:"wallTime,omitempty"`
	FullDocument      bson.M              `bson:"fullDocument,omitempty"`
	UpdateDescription *RawUpdate          `bson:"updateDescription,omitempty"`
	DocumentKey       bson.M              `bson:"documentKey"`
	Namespace         struct {
		DB   string `bson:"db"`
		Coll string `bson:"coll"`
	} `bson:"ns"`
	ResumeToken bson.Raw `bson:"_id"`
}

type RawUpdate struct {
	UpdatedFields bson.M   `bson:"updatedFields"`
	RemovedFields []string `bson:"removedFields"`
}

// Normalize decodes a raw change notice into a ChangeEvent. Errors wrap
// ErrMalformedChangeEvent.
func Normalize(raw bson.Raw) (*ChangeEvent, error) {
	var ev RawEvent
	if err := bson.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedChangeEvent, err)
	}
	return NormalizeRaw(&ev)
}

// NormalizeRaw converts an already decoded RawEvent.
func NormalizeRaw(raw *RawEvent) (*ChangeEvent, error) {
	opType := OperationType(raw.OperationType)
	if !opType.IsValid() {
		return nil, fmt.Errorf("%w: unknown operation type %q", ErrMalformedChangeEvent, raw.OperationType)
	}
	if len(raw.ResumeToken) == 0 {
		return nil, fmt.Errorf("%w: missing resume token", ErrMalformedChangeEvent)
	}

	docID, err := extractDocumentID(raw.DocumentKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedChangeEvent, err)
	}

	evt := &ChangeEvent{
		Collection:    raw.Namespace.Coll,
		OperationType: opType,
		DocumentID:    docID,
		ResumeToken:   raw.ResumeToken,
		ClusterTime:   ClusterTimeFromPrimitive(raw.ClusterTime),
		ObservedAt:    observedAt(raw),
	}

	if raw.FullDocument != nil {
		evt.FullDocument = model.FromBSON(raw.FullDocument)
	}

	if raw.UpdateDescription != nil {
		fields := make([]string, 0, len(raw.UpdateDescription.UpdatedFields)+len(raw.UpdateDescription.RemovedFields))
		for f := range raw.UpdateDescription.UpdatedFields {
			fields = append(fields, f)
		}
		fields = append(fields, raw.UpdateDescription.RemovedFields...)
		sort.Strings(fields)
		evt.UpdatedFields = fields
	}

	return evt, nil
}

// observedAt prefers the millisecond wall time (MongoDB 6.0+) over the
// second-resolution cluster time.
func observedAt(raw *RawEvent) time.Time {
	if raw.WallTime != 0 {
		return raw.WallTime.Time().UTC()
	}
	return time.Unix(int64(raw.ClusterTime.T), 0).UTC()
}

func extractDocumentID(docKey bson.M) (string, error) {
	if docKey == nil {
		return "", fmt.Errorf("documentKey is nil")
	}
	if id, ok := docKey["_id"]; ok {
		return formatID(id), nil
	}
	// Sharded collections may key on a compound shard key.
	return formatCompoundKey(docKey), nil
}

func formatID(id any) string {
	switch v := id.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case string:
		return v
	case int, int32, int64:
		return fmt.Sprintf("%d", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func formatCompoundKey(docKey bson.M) string {
	data, _ := bson.Marshal(docKey)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:16])
}
