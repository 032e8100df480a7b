package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"billing-service/internal/models"
	"billing-service/internal/repository"
)

// InviteRequest invites an email address into a tenant
type InviteRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
	Role  string `json:"role" validate:"omitempty,oneof=owner member"`
}

// InvitationService manages tenant invitations
type InvitationService struct {
	db          *gorm.DB
	invitations repository.InvitationRepository
	tenants     repository.TenantRepository
	users       repository.UserRepository
	policy      TenantCreationPolicy
	ttl         time.Duration
	events      eventEmitter
	logger      *logrus.Entry
	now         func() time.Time
}

// NewInvitationService creates a new invitation service
func NewInvitationService(
	db *gorm.DB,
	invitations repository.InvitationRepository,
	tenants repository.TenantRepository,
	users repository.UserRepository,
	policy TenantCreationPolicy,
	ttl time.Duration,
	publisher EventPublisher,
	logger *logrus.Logger,
) *InvitationService {
	entry := logger.WithField("service", "invitation")
	return &InvitationService{
		db:          db,
		invitations: invitations,
		tenants:     tenants,
		users:       users,
		policy:      policy,
		ttl:         ttl,
		events:      newEventEmitter(publisher, entry, utcNow),
		logger:      entry,
		now:         utcNow,
	}
}

// Invite creates an invitation for email. The token is only exposed
// through the published event so the mailer can deliver it.
func (s *InvitationService) Invite(ctx context.Context, tenantID uuid.UUID, req InviteRequest, actor Actor) (*models.TenantInvitation, error) {
	req.Email = normalizeEmail(req.Email)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, NewNotFoundError("tenant", tenantID)
	}

	token, err := invitationToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate invitation token: %w", err)
	}

	role := req.Role
	if role == "" {
		role = models.RoleMember
	}
	invitation := &models.TenantInvitation{
		TenantID:  tenantID,
		Email:     req.Email,
		Role:      role,
		Token:     token,
		InvitedBy: actor.UserID,
		ExpiresAt: s.now().Add(s.ttl),
	}
	if err := s.invitations.Create(ctx, invitation); err != nil {
		return nil, err
	}

	s.events.emit(ctx, EventInvitationCreated, actor, map[string]interface{}{
		"invitation_id": invitation.ID,
		"tenant_id":     tenantID,
		"tenant_name":   tenant.Name,
		"email":         invitation.Email,
		"role":          invitation.Role,
		"token":         invitation.Token,
		"expires_at":    invitation.ExpiresAt,
	})
	return invitation, nil
}

// PendingForEmail lists invitations that can still be accepted
func (s *InvitationService) PendingForEmail(ctx context.Context, email string) ([]models.TenantInvitation, error) {
	return s.invitations.PendingForEmail(ctx, email, s.now())
}

// AcceptByToken accepts the invitation identified by its token
func (s *InvitationService) AcceptByToken(ctx context.Context, token string, userID uuid.UUID, actor Actor) (*models.TenantUser, error) {
	invitation, err := s.invitations.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if invitation == nil {
		return nil, NewNotFoundError("invitation", stringID("with token"))
	}
	return s.Accept(ctx, invitation.ID, userID, actor)
}

// Accept joins userID to the inviting tenant. An existing membership is
// kept as is and the invitation is still marked accepted. Owner invitations
// go through the same creation policy as tenant registration, under a lock
// on the user row.
func (s *InvitationService) Accept(ctx context.Context, invitationID, userID uuid.UUID, actor Actor) (*models.TenantUser, error) {
	var (
		member     *models.TenantUser
		invitation *models.TenantInvitation
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invitations := s.invitations.WithTx(tx)
		tenants := s.tenants.WithTx(tx)

		inv, err := invitations.GetByID(ctx, invitationID)
		if err != nil {
			return err
		}
		if inv == nil {
			return NewNotFoundError("invitation", invitationID)
		}
		now := s.now()
		if inv.AcceptedAt != nil {
			return NewValidationError("invitation", "has already been accepted")
		}
		if !inv.ExpiresAt.After(now) {
			return NewValidationError("invitation", "has expired")
		}

		existing, err := tenants.GetMembership(ctx, inv.TenantID, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			member = existing
		} else {
			if inv.Role == models.RoleOwner {
				if err := s.checkOwnership(ctx, tx, userID); err != nil {
					return err
				}
			}
			member = &models.TenantUser{
				TenantID: inv.TenantID,
				UserID:   userID,
				Role:     inv.Role,
				JoinedAt: now,
			}
			if err := tenants.AddMember(ctx, member); err != nil {
				if repository.IsDuplicateKey(err) {
					return NewConflictError("tenant_user", "user is already a member of this tenant")
				}
				return err
			}
		}

		if err := invitations.MarkAccepted(ctx, inv.ID, now); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NewValidationError("invitation", "has already been accepted")
			}
			return err
		}
		invitation = inv
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.emit(ctx, EventInvitationAccepted, actor, map[string]interface{}{
		"invitation_id": invitation.ID,
		"tenant_id":     invitation.TenantID,
		"user_id":       userID,
		"role":          member.Role,
	})
	return member, nil
}

func (s *InvitationService) checkOwnership(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error {
	user, err := s.users.WithTx(tx).LockByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return NewNotFoundError("user", userID)
	}
	allowed, err := s.policy.CanCreate(ctx, s.tenants.WithTx(tx), userID)
	if err != nil {
		return err
	}
	if !allowed {
		return NewPermissionDeniedError("accept owner invitation", "user already owns a tenant")
	}
	return nil
}

func invitationToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// stringID adapts a plain identifier to NewNotFoundError
type stringID string

func (s stringID) String() string { return string(s) }
