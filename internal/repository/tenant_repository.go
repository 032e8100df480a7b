package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"billing-service/internal/models"
)

// TenantRepository persists tenants and their memberships
type TenantRepository interface {
	WithTx(tx *gorm.DB) TenantRepository

	Create(ctx context.Context, tenant *models.Tenant) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	GetByCode(ctx context.Context, code string) (*models.Tenant, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	List(ctx context.Context, filters TenantFilters) ([]models.Tenant, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.TenantStatus) error

	AddMember(ctx context.Context, member *models.TenantUser) error
	GetMembership(ctx context.Context, tenantID, userID uuid.UUID) (*models.TenantUser, error)
	ListMembers(ctx context.Context, tenantID uuid.UUID) ([]models.TenantUser, error)
	CountOwnedBy(ctx context.Context, userID uuid.UUID) (int64, error)
}

// TenantFilters narrows tenant listings
type TenantFilters struct {
	Status *models.TenantStatus
	Search string
	UserID *uuid.UUID
	Pagination
}

type tenantRepository struct {
	db *gorm.DB
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *gorm.DB) TenantRepository {
	return &tenantRepository{db: db}
}

func (r *tenantRepository) WithTx(tx *gorm.DB) TenantRepository {
	return &tenantRepository{db: tx}
}

func (r *tenantRepository) Create(ctx context.Context, tenant *models.Tenant) error {
	if err := r.db.WithContext(ctx).Omit("Members").Create(tenant).Error; err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

func (r *tenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.WithContext(ctx).Preload("Members").First(&tenant, "id = ?", id).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &tenant, nil
}

// LockByID loads the tenant row for update. Must run inside a transaction.
func (r *tenantRepository) LockByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&tenant, "id = ?", id).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock tenant: %w", err)
	}
	return &tenant, nil
}

func (r *tenantRepository) GetByCode(ctx context.Context, code string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.WithContext(ctx).First(&tenant, "code = ?", code).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get tenant by code: %w", err)
	}
	return &tenant, nil
}

func (r *tenantRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Tenant{}).Where("code = ?", code).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check tenant code: %w", err)
	}
	return count > 0, nil
}

func (r *tenantRepository) List(ctx context.Context, filters TenantFilters) ([]models.Tenant, int64, error) {
	var tenants []models.Tenant
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Tenant{})
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.Search != "" {
		like := "%" + filters.Search + "%"
		query = query.Where("name LIKE ? OR code LIKE ? OR slug LIKE ?", like, like, like)
	}
	if filters.UserID != nil {
		query = query.Where("id IN (?)", r.db.Model(&models.TenantUser{}).Select("tenant_id").Where("user_id = ?", *filters.UserID))
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count tenants: %w", err)
	}
	if err := query.Scopes(paginate(filters.Pagination)).Order("created_at DESC").Find(&tenants).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list tenants: %w", err)
	}
	return tenants, total, nil
}

func (r *tenantRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.TenantStatus) error {
	result := r.db.WithContext(ctx).Model(&models.Tenant{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update tenant status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *tenantRepository) AddMember(ctx context.Context, member *models.TenantUser) error {
	if err := r.db.WithContext(ctx).Omit("User").Create(member).Error; err != nil {
		return fmt.Errorf("failed to add tenant member: %w", err)
	}
	return nil
}

func (r *tenantRepository) GetMembership(ctx context.Context, tenantID, userID uuid.UUID) (*models.TenantUser, error) {
	var member models.TenantUser
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND user_id = ?", tenantID, userID).First(&member).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &member, nil
}

func (r *tenantRepository) ListMembers(ctx context.Context, tenantID uuid.UUID) ([]models.TenantUser, error) {
	var members []models.TenantUser
	err := r.db.WithContext(ctx).Preload("User").Where("tenant_id = ?", tenantID).Order("joined_at ASC").Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tenant members: %w", err)
	}
	return members, nil
}

func (r *tenantRepository) CountOwnedBy(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.TenantUser{}).
		Where("user_id = ? AND role = ?", userID, models.RoleOwner).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count owned tenants: %w", err)
	}
	return count, nil
}
