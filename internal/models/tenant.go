package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TenantStatus is the lifecycle state of a tenant account
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusExpired   TenantStatus = "expired"
	TenantStatusSuspended TenantStatus = "suspended"
)

// IsValid reports whether s is a known tenant status
func (s TenantStatus) IsValid() bool {
	switch s {
	case TenantStatusActive, TenantStatusExpired, TenantStatusSuspended:
		return true
	}
	return false
}

// Membership roles
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// TenantAccount is the embedded account blob of a tenant
type TenantAccount struct {
	Title        string `json:"title"`
	BillingEmail string `json:"billing_email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Country      string `json:"country,omitempty"`
}

// Tenant represents a business account
type Tenant struct {
	ID        uuid.UUID                         `json:"id" gorm:"type:uuid;primaryKey"`
	Code      string                            `json:"code" gorm:"size:32;uniqueIndex;not null"`
	Name      string                            `json:"name" gorm:"size:255;not null"`
	Slug      string                            `json:"slug" gorm:"size:300;uniqueIndex;not null"`
	Status    TenantStatus                      `json:"status" gorm:"size:20;not null;default:'active';index"`
	Account   datatypes.JSONType[TenantAccount] `json:"account"`
	CreatedAt time.Time                         `json:"created_at"`
	UpdatedAt time.Time                         `json:"updated_at"`

	Members []TenantUser `json:"members,omitempty" gorm:"foreignKey:TenantID"`
}

func (Tenant) TableName() string {
	return "tenants"
}

func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = TenantStatusActive
	}
	return nil
}

// TenantUser is the tenant membership pivot
type TenantUser struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID  uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;uniqueIndex:idx_tenant_user"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_tenant_user;index"`
	Role      string    `json:"role" gorm:"size:20;not null;index"`
	JoinedAt  time.Time `json:"joined_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (TenantUser) TableName() string {
	return "tenant_users"
}

func (m *TenantUser) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// TenantInvitation invites an email address to join a tenant
type TenantInvitation struct {
	ID         uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID   uuid.UUID  `json:"tenant_id" gorm:"type:uuid;not null;index"`
	Email      string     `json:"email" gorm:"size:255;not null;index"`
	Role       string     `json:"role" gorm:"size:20;not null"`
	Token      string     `json:"-" gorm:"size:64;uniqueIndex;not null"`
	InvitedBy  *uuid.UUID `json:"invited_by,omitempty" gorm:"type:uuid"`
	ExpiresAt  time.Time  `json:"expires_at" gorm:"not null"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	Tenant *Tenant `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
}

func (TenantInvitation) TableName() string {
	return "tenant_invitations"
}

func (i *TenantInvitation) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// IsPendingAt reports whether the invitation can still be accepted at now
func (i *TenantInvitation) IsPendingAt(now time.Time) bool {
	return i.AcceptedAt == nil && i.ExpiresAt.After(now)
}
