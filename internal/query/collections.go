package query

import "github.com/labdepot/labdepot/pkg/model"

// Collection describes how list requests map onto a stored collection.
type Collection struct {
	Name     string
	MaxLimit int64

	// Filters maps request filter names ("labId", "itemId") to stored fields.
	// Filters a collection does not list are ignored.
	Filters map[string]string
}

// Collections are the listable collections.
var Collections = map[string]Collection{
	model.CollectionListings: {
		Name:     model.CollectionListings,
		MaxLimit: 20,
		Filters:  map[string]string{"labId": "labId", "itemId": "itemId"},
	},
	model.CollectionItems: {
		Name:     model.CollectionItems,
		MaxLimit: 50,
		Filters:  map[string]string{"labId": "labId"},
	},
	model.CollectionLabs: {
		Name:     model.CollectionLabs,
		MaxLimit: 50,
	},
	model.CollectionNotifications: {
		Name:     model.CollectionNotifications,
		MaxLimit: 50,
		Filters:  map[string]string{"labId": "labId", "itemId": "resourceId"},
	},
	model.CollectionUsers: {
		Name:     model.CollectionUsers,
		MaxLimit: 50,
	},
}
