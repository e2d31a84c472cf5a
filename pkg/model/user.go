package model

import (
	"errors"
	"time"
)

const CollectionUsers = "users"

type Role string

const (
	RolePI         Role = "PI"
	RoleLabManager Role = "LAB_MANAGER"
	RoleResearcher Role = "RESEARCHER"
	RoleViewer     Role = "VIEWER"
)

func (r Role) IsValid() bool {
	switch r {
	case RolePI, RoleLabManager, RoleResearcher, RoleViewer:
		return true
	}
	return false
}

type UserStatus string

const (
	UserActive    UserStatus = "ACTIVE"
	UserInactive  UserStatus = "INACTIVE"
	UserSuspended UserStatus = "SUSPENDED"
)

type UserName struct {
	First string `bson:"first" json:"first"`
	Last  string `bson:"last" json:"last"`
}

// LabMembership is one lab a user belongs to and the role held there.
type LabMembership struct {
	LabID string `bson:"labId" json:"labId"`
	Role  Role   `bson:"role" json:"role"`
}

type NotificationPreferences struct {
	Email bool `bson:"email" json:"email"`
	SMS   bool `bson:"sms" json:"sms"`
	InApp bool `bson:"inApp" json:"inApp"`
}

type User struct {
	ID                      string                  `bson:"_id" json:"id"`
	Email                   string                  `bson:"email" json:"email"`
	Name                    UserName                `bson:"name" json:"name"`
	Permissions             []Role                  `bson:"permissions,omitempty" json:"permissions,omitempty"`
	Labs                    []LabMembership         `bson:"labs,omitempty" json:"labs,omitempty"`
	NotificationPreferences NotificationPreferences `bson:"notificationPreferences" json:"notificationPreferences"`
	Status                  UserStatus              `bson:"status" json:"status"`
	CreatedAt               time.Time               `bson:"createdAt" json:"createdAt"`
}

func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.Name.First == "" || u.Name.Last == "" {
		return errors.New("name.first and name.last are required")
	}
	for _, p := range u.Permissions {
		if !p.IsValid() {
			return errors.New("invalid permission: " + string(p))
		}
	}
	for _, m := range u.Labs {
		if m.LabID == "" || !m.Role.IsValid() {
			return errors.New("lab memberships need a labId and a valid role")
		}
	}
	if u.Status == "" {
		u.Status = UserActive
	}
	return nil
}

// IsLabAdmin reports whether the user administers the given lab.
func (u *User) IsLabAdmin(labID string) bool {
	for _, m := range u.Labs {
		if m.LabID == labID && (m.Role == RolePI || m.Role == RoleLabManager) {
			return true
		}
	}
	return false
}
