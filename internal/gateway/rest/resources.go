package rest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/labdepot/labdepot/pkg/model"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// entity is a request body type that checks and completes itself.
type entity interface {
	Validate() error
}

// resource describes one collection exposed under /api/v1.
type resource struct {
	collection string
	label      string

	// objectIDs means ids are 24 hex character ObjectIds; malformed
	// ids are rejected before touching the store.
	objectIDs bool
	readOnly  bool

	newID     func() string
	newEntity func() entity

	// update turns a PUT body into the fields to set.
	update func(body []byte) (model.Document, error)

	stampUpdatedAt bool
	conflict       string
}

// validationError is a client mistake in a request body; its message is
// returned to the client as is.
type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }

func invalid(format string, args ...interface{}) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}

func newObjectID() string {
	return primitive.NewObjectID().Hex()
}

var resources = []*resource{
	{
		collection: model.CollectionListings,
		label:      "Listing",
		newID:      uuid.NewString,
		newEntity:  func() entity { return &model.Listing{} },
		update:     fieldUpdate(checkListingUpdate, "itemId", "labId"),
		conflict:   "This listing already exists.",
	},
	{
		collection:     model.CollectionItems,
		label:          "Item",
		objectIDs:      true,
		newID:          newObjectID,
		newEntity:      func() entity { return &model.Item{} },
		update:         itemUpdateFields,
		stampUpdatedAt: true,
		conflict:       "This item already exists.",
	},
	{
		collection: model.CollectionLabs,
		label:      "Lab",
		objectIDs:  true,
		newID:      newObjectID,
		newEntity:  func() entity { return &model.Lab{} },
		update:     fieldUpdate(checkLabUpdate),
		conflict:   "This lab already exists.",
	},
	{
		collection: model.CollectionUsers,
		label:      "User",
		objectIDs:  true,
		newID:      newObjectID,
		newEntity:  func() entity { return &model.User{} },
		update:     fieldUpdate(checkUserUpdate),
		conflict:   "A user with this email already exists.",
	},
	{
		collection: model.CollectionNotifications,
		label:      "Notification",
		objectIDs:  true,
		readOnly:   true,
	},
}

// protectedFields are never writable through PUT.
var protectedFields = map[string]bool{
	model.IDField: true,
	"id":          true,
	"createdAt":   true,
}

// itemUpdate is the accepted shape of an item PUT. Threshold fields are set
// one by one so that the alert bookkeeping survives.
type itemUpdate struct {
	Name      *string `json:"name"`
	Quantity  *int    `json:"quantity"`
	Threshold *struct {
		MinQuantity *int  `json:"minQuantity"`
		Enabled     *bool `json:"enabled"`
	} `json:"threshold"`
}

func itemUpdateFields(body []byte) (model.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	var u itemUpdate
	if err := dec.Decode(&u); err != nil {
		return nil, invalid("Update doesn't follow schema: %v", err)
	}

	set := model.Document{}
	if u.Name != nil {
		if *u.Name == "" {
			return nil, invalid("name must not be empty")
		}
		set["name"] = *u.Name
	}
	if u.Quantity != nil {
		if *u.Quantity < 0 {
			return nil, invalid("quantity must be non-negative")
		}
		set["quantity"] = *u.Quantity
	}
	if u.Threshold != nil {
		if m := u.Threshold.MinQuantity; m != nil {
			if *m < 0 {
				return nil, invalid("threshold.minQuantity must be non-negative")
			}
			set["threshold.minQuantity"] = *m
		}
		if e := u.Threshold.Enabled; e != nil {
			set["threshold.enabled"] = *e
		}
	}
	if len(set) == 0 {
		return nil, invalid("No updatable fields")
	}
	return set, nil
}

// fieldUpdate builds an update func that accepts any top-level field except
// the protected and immutable ones, then runs check over the result.
func fieldUpdate(check func(model.Document) error, immutable ...string) func([]byte) (model.Document, error) {
	return func(body []byte) (model.Document, error) {
		fields, err := decodeObject(body)
		if err != nil {
			return nil, err
		}
		set := model.Document{}
		for k, v := range fields {
			if protectedFields[k] {
				continue
			}
			if k == "" || strings.HasPrefix(k, "$") || strings.Contains(k, ".") {
				return nil, invalid("invalid field name %q", k)
			}
			for _, f := range immutable {
				if k == f {
					return nil, invalid("%s cannot be changed", k)
				}
			}
			set[k] = v
		}
		if len(set) == 0 {
			return nil, invalid("No updatable fields")
		}
		if check != nil {
			if err := check(set); err != nil {
				return nil, err
			}
		}
		return set, nil
	}
}

func decodeObject(body []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil || fields == nil {
		return nil, invalid("Invalid request body.")
	}
	return normalizeJSON(fields).(map[string]interface{}), nil
}

// normalizeJSON turns json.Number into int64 when integral, float64 otherwise.
func normalizeJSON(v interface{}) interface{} {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case map[string]interface{}:
		for k, item := range val {
			val[k] = normalizeJSON(item)
		}
		return val
	case []interface{}:
		for i, item := range val {
			val[i] = normalizeJSON(item)
		}
		return val
	default:
		return v
	}
}

func checkListingUpdate(set model.Document) error {
	if v, ok := set["quantityAvailable"]; ok {
		n, isInt := v.(int64)
		if !isInt || n < 1 {
			return invalid("quantityAvailable must be an integer of at least 1")
		}
	}
	if v, ok := set["status"]; ok {
		switch model.ListingStatus(fmt.Sprint(v)) {
		case model.ListingActive, model.ListingInactive:
		default:
			return invalid("status must be ACTIVE or INACTIVE")
		}
	}
	return nil
}

func checkLabUpdate(set model.Document) error {
	for _, f := range []string{"name", "department"} {
		if v, ok := set[f]; ok {
			if s, isStr := v.(string); !isStr || s == "" {
				return invalid("%s must be a non-empty string", f)
			}
		}
	}
	return nil
}

func checkUserUpdate(set model.Document) error {
	if v, ok := set["email"]; ok {
		if s, isStr := v.(string); !isStr || s == "" {
			return invalid("email must be a non-empty string")
		}
	}
	if v, ok := set["permissions"]; ok {
		list, isList := v.([]interface{})
		if !isList {
			return invalid("permissions must be a list")
		}
		for _, p := range list {
			if s, _ := p.(string); !model.Role(s).IsValid() {
				return invalid("invalid permission: %v", p)
			}
		}
	}
	return nil
}

func isValidationError(err error) bool {
	var ve *validationError
	return errors.As(err, &ve)
}
