package model

import (
	"errors"
	"time"
)

const CollectionLabs = "labs"

type Lab struct {
	ID         string    `bson:"_id" json:"id"`
	Name       string    `bson:"name" json:"name"`
	Department string    `bson:"department" json:"department"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
}

func (l *Lab) Validate() error {
	if l.Name == "" {
		return errors.New("name is required")
	}
	if l.Department == "" {
		return errors.New("department is required")
	}
	return nil
}
