package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"billing-service/internal/models"
	"billing-service/internal/repository"
)

const (
	tenantCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxCodeAttempts    = 100
)

var slugSeparator = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// TenantCreationPolicy decides whether a user may create another tenant.
// It receives the repository to evaluate against so the check can run
// inside the creating transaction.
type TenantCreationPolicy interface {
	CanCreate(ctx context.Context, tenants repository.TenantRepository, userID uuid.UUID) (bool, error)
}

// OwnershipPolicy limits users to a single owned tenant unless AllowMultiple is set
type OwnershipPolicy struct {
	AllowMultiple bool
}

func (p OwnershipPolicy) CanCreate(ctx context.Context, tenants repository.TenantRepository, userID uuid.UUID) (bool, error) {
	if p.AllowMultiple {
		return true, nil
	}
	owned, err := tenants.CountOwnedBy(ctx, userID)
	if err != nil {
		return false, err
	}
	return owned == 0, nil
}

// CreateTenantRequest is the input to tenant registration
type CreateTenantRequest struct {
	Name         string `json:"name" validate:"required,min=2,max=255"`
	BillingEmail string `json:"billing_email" validate:"omitempty,email"`
	Phone        string `json:"phone" validate:"omitempty,max=32"`
	Country      string `json:"country" validate:"omitempty,len=2,uppercase"`
}

// TenantRegisteredPayload is published after a tenant is created
type TenantRegisteredPayload struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	TenantCode string    `json:"tenant_code"`
	TenantName string    `json:"tenant_name"`
	UserID     uuid.UUID `json:"user_id"`
	UserEmail  string    `json:"user_email"`
	IP         string    `json:"ip"`
	UserAgent  string    `json:"user_agent"`
}

// TenantService provisions tenants and enforces the ownership rule
type TenantService struct {
	db          *gorm.DB
	tenants     repository.TenantRepository
	users       repository.UserRepository
	invitations *InvitationService
	policy      TenantCreationPolicy
	codeLength  int
	events      eventEmitter
	logger      *logrus.Entry
	now         func() time.Time
	randomCode  func(length int) (string, error)
}

// NewTenantService creates a new tenant service
func NewTenantService(
	db *gorm.DB,
	tenants repository.TenantRepository,
	users repository.UserRepository,
	invitations *InvitationService,
	policy TenantCreationPolicy,
	codeLength int,
	publisher EventPublisher,
	logger *logrus.Logger,
) *TenantService {
	entry := logger.WithField("service", "tenant")
	return &TenantService{
		db:          db,
		tenants:     tenants,
		users:       users,
		invitations: invitations,
		policy:      policy,
		codeLength:  codeLength,
		events:      newEventEmitter(publisher, entry, utcNow),
		logger:      entry,
		now:         utcNow,
		randomCode:  randomTenantCode,
	}
}

// CanCreate reports whether the user may create a tenant right now
func (s *TenantService) CanCreate(ctx context.Context, userID uuid.UUID) (bool, error) {
	return s.policy.CanCreate(ctx, s.tenants, userID)
}

// Create registers a tenant owned by userID. The ownership check, code
// generation and both inserts share one transaction holding a lock on the
// user row, so concurrent attempts by the same user serialize.
func (s *TenantService) Create(ctx context.Context, userID uuid.UUID, req CreateTenantRequest, actor Actor) (*models.Tenant, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	var (
		tenant *models.Tenant
		owner  *models.User
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := s.users.WithTx(tx)
		tenants := s.tenants.WithTx(tx)

		user, err := users.LockByID(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return NewNotFoundError("user", userID)
		}

		allowed, err := s.policy.CanCreate(ctx, tenants, userID)
		if err != nil {
			return err
		}
		if !allowed {
			return NewPermissionDeniedError("create tenant", "user already owns a tenant")
		}

		code, err := s.uniqueCode(ctx, tenants)
		if err != nil {
			return err
		}

		now := s.now()
		t := &models.Tenant{
			Code:   code,
			Name:   req.Name,
			Slug:   Slugify(req.Name + "-" + code),
			Status: models.TenantStatusActive,
			Account: datatypes.NewJSONType(models.TenantAccount{
				Title:        req.Name,
				BillingEmail: req.BillingEmail,
				Phone:        req.Phone,
				Country:      req.Country,
			}),
		}
		if err := tenants.Create(ctx, t); err != nil {
			if repository.IsDuplicateKey(err) {
				return NewConflictError("tenant", "tenant code or slug already taken")
			}
			return err
		}

		if err := tenants.AddMember(ctx, &models.TenantUser{
			TenantID: t.ID,
			UserID:   user.ID,
			Role:     models.RoleOwner,
			JoinedAt: now,
		}); err != nil {
			return err
		}

		tenant = t
		owner = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"tenant_id":   tenant.ID,
		"tenant_code": tenant.Code,
		"user_id":     owner.ID,
	}).Info("Tenant created")

	s.events.emit(ctx, EventTenantRegistered, actor, TenantRegisteredPayload{
		TenantID:   tenant.ID,
		TenantCode: tenant.Code,
		TenantName: tenant.Name,
		UserID:     owner.ID,
		UserEmail:  owner.Email,
		IP:         actor.IP,
		UserAgent:  actor.UserAgent,
	})

	s.acceptPendingInvitations(ctx, owner, actor)

	return tenant, nil
}

// acceptPendingInvitations joins the new owner to tenants that already
// invited their email. Failures are logged and never undo the creation.
func (s *TenantService) acceptPendingInvitations(ctx context.Context, user *models.User, actor Actor) {
	if s.invitations == nil {
		return
	}
	pending, err := s.invitations.PendingForEmail(ctx, user.Email)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Warn("Failed to load pending invitations")
		return
	}
	for _, inv := range pending {
		if _, err := s.invitations.Accept(ctx, inv.ID, user.ID, actor); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"user_id":       user.ID,
				"invitation_id": inv.ID,
				"tenant_id":     inv.TenantID,
			}).Warn("Failed to accept pending invitation")
		}
	}
}

func (s *TenantService) uniqueCode(ctx context.Context, tenants repository.TenantRepository) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.randomCode(s.codeLength)
		if err != nil {
			return "", fmt.Errorf("failed to generate tenant code: %w", err)
		}
		exists, err := tenants.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", ErrTenantCodeExhausted
}

// Get returns the tenant with its members, or nil when missing
func (s *TenantService) Get(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	return s.tenants.GetByID(ctx, id)
}

// GetByCode returns the tenant with the given code, or nil when missing
func (s *TenantService) GetByCode(ctx context.Context, code string) (*models.Tenant, error) {
	return s.tenants.GetByCode(ctx, strings.ToUpper(code))
}

// List returns a page of tenants and the total count
func (s *TenantService) List(ctx context.Context, filters repository.TenantFilters) ([]models.Tenant, int64, error) {
	return s.tenants.List(ctx, filters)
}

// Members lists the memberships of a tenant
func (s *TenantService) Members(ctx context.Context, tenantID uuid.UUID) ([]models.TenantUser, error) {
	return s.tenants.ListMembers(ctx, tenantID)
}

// UpdateStatus changes the tenant lifecycle status
func (s *TenantService) UpdateStatus(ctx context.Context, id uuid.UUID, status models.TenantStatus, actor Actor) error {
	if !status.IsValid() {
		return NewValidationError("status", "must be one of: active, expired, suspended")
	}
	if err := s.tenants.UpdateStatus(ctx, id, status); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NewNotFoundError("tenant", id)
		}
		return err
	}

	s.events.emit(ctx, EventTenantStatusUpdated, actor, map[string]interface{}{
		"tenant_id": id,
		"status":    status,
	})
	return nil
}

// Slugify lowercases s and joins alphanumeric runs with dashes
func Slugify(s string) string {
	return strings.Trim(strings.ToLower(slugSeparator.ReplaceAllString(s, "-")), "-")
}

func randomTenantCode(length int) (string, error) {
	max := big.NewInt(int64(len(tenantCodeAlphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = tenantCodeAlphabet[n.Int64()]
	}
	return string(out), nil
}

func utcNow() time.Time {
	return time.Now().UTC()
}
