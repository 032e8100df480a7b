package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserStatus is the account state of a panel user
type UserStatus string

const (
	UserStatusActive  UserStatus = "active"
	UserStatusPassive UserStatus = "passive"
	UserStatusDraft   UserStatus = "draft"
)

// UserType separates tenant owners from panel administrators
type UserType string

const (
	UserTypeTenantOwner UserType = "tenant_owner"
	UserTypePanelAdmin  UserType = "panel_admin"
)

// User is shared between tenants (as members) and the admin panel
type User struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Email     string     `json:"email" gorm:"size:255;uniqueIndex;not null"`
	Password  string     `json:"-" gorm:"size:255;not null"`
	FirstName string     `json:"first_name" gorm:"size:100"`
	LastName  string     `json:"last_name" gorm:"size:100"`
	Status    UserStatus `json:"status" gorm:"size:20;not null;default:'active';index"`
	UserType  UserType   `json:"user_type" gorm:"size:20;not null;default:'tenant_owner';index"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	if u.UserType == "" {
		u.UserType = UserTypeTenantOwner
	}
	return nil
}

// FullName joins first and last name
func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
