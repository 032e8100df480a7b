package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"billing-service/internal/models"
)

// InvitationRepository persists tenant invitations
type InvitationRepository interface {
	WithTx(tx *gorm.DB) InvitationRepository

	Create(ctx context.Context, invitation *models.TenantInvitation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.TenantInvitation, error)
	GetByToken(ctx context.Context, token string) (*models.TenantInvitation, error)
	PendingForEmail(ctx context.Context, email string, now time.Time) ([]models.TenantInvitation, error)
	MarkAccepted(ctx context.Context, id uuid.UUID, at time.Time) error
}

type invitationRepository struct {
	db *gorm.DB
}

// NewInvitationRepository creates a new invitation repository
func NewInvitationRepository(db *gorm.DB) InvitationRepository {
	return &invitationRepository{db: db}
}

func (r *invitationRepository) WithTx(tx *gorm.DB) InvitationRepository {
	return &invitationRepository{db: tx}
}

func (r *invitationRepository) Create(ctx context.Context, invitation *models.TenantInvitation) error {
	invitation.Email = strings.ToLower(strings.TrimSpace(invitation.Email))
	if err := r.db.WithContext(ctx).Omit("Tenant").Create(invitation).Error; err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	return nil
}

func (r *invitationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.TenantInvitation, error) {
	var invitation models.TenantInvitation
	if err := r.db.WithContext(ctx).First(&invitation, "id = ?", id).Error; err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return &invitation, nil
}

func (r *invitationRepository) GetByToken(ctx context.Context, token string) (*models.TenantInvitation, error) {
	var invitation models.TenantInvitation
	if err := r.db.WithContext(ctx).First(&invitation, "token = ?", token).Error; err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get invitation by token: %w", err)
	}
	return &invitation, nil
}

func (r *invitationRepository) PendingForEmail(ctx context.Context, email string, now time.Time) ([]models.TenantInvitation, error) {
	var invitations []models.TenantInvitation
	err := r.db.WithContext(ctx).
		Where("email = ? AND accepted_at IS NULL AND expires_at > ?", strings.ToLower(strings.TrimSpace(email)), now).
		Order("created_at ASC").
		Find(&invitations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending invitations: %w", err)
	}
	return invitations, nil
}

func (r *invitationRepository) MarkAccepted(ctx context.Context, id uuid.UUID, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.TenantInvitation{}).
		Where("id = ? AND accepted_at IS NULL", id).
		Update("accepted_at", at)
	if result.Error != nil {
		return fmt.Errorf("failed to accept invitation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
