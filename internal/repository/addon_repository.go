package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"billing-service/internal/models"
)

// AddonRepository persists the addon catalogue
type AddonRepository interface {
	Create(ctx context.Context, addon *models.Addon) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Addon, error)
	GetBySlug(ctx context.Context, slug string) (*models.Addon, error)
	Update(ctx context.Context, addon *models.Addon) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filters AddonFilters) ([]models.Addon, int64, error)
}

// AddonFilters narrows addon listings
type AddonFilters struct {
	FeatureID  *uuid.UUID
	ActiveOnly bool
	PublicOnly bool
	Pagination
}

type addonRepository struct {
	db *gorm.DB
}

// NewAddonRepository creates a new addon repository
func NewAddonRepository(db *gorm.DB) AddonRepository {
	return &addonRepository{db: db}
}

func (r *addonRepository) Create(ctx context.Context, addon *models.Addon) error {
	if err := r.db.WithContext(ctx).Omit("Feature").Create(addon).Error; err != nil {
		return fmt.Errorf("failed to create addon: %w", err)
	}
	return nil
}

func (r *addonRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Addon, error) {
	var addon models.Addon
	if err := r.db.WithContext(ctx).Preload("Feature").First(&addon, "id = ?", id).Error; err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get addon: %w", err)
	}
	return &addon, nil
}

func (r *addonRepository) GetBySlug(ctx context.Context, slug string) (*models.Addon, error) {
	var addon models.Addon
	if err := r.db.WithContext(ctx).First(&addon, "slug = ?", slug).Error; err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get addon by slug: %w", err)
	}
	return &addon, nil
}

func (r *addonRepository) Update(ctx context.Context, addon *models.Addon) error {
	if err := r.db.WithContext(ctx).Omit("Feature").Save(addon).Error; err != nil {
		return fmt.Errorf("failed to update addon: %w", err)
	}
	return nil
}

func (r *addonRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("addon_id = ?", id).Delete(&models.TenantAddon{}).Error; err != nil {
			return fmt.Errorf("failed to detach addon from tenants: %w", err)
		}
		result := tx.Delete(&models.Addon{}, "id = ?", id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete addon: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *addonRepository) List(ctx context.Context, filters AddonFilters) ([]models.Addon, int64, error) {
	var addons []models.Addon
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Addon{})
	if filters.FeatureID != nil {
		query = query.Where("feature_id = ?", *filters.FeatureID)
	}
	if filters.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	if filters.PublicOnly {
		query = query.Where("is_public = ?", true)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count addons: %w", err)
	}
	if err := query.Scopes(paginate(filters.Pagination)).Order("name ASC").Find(&addons).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list addons: %w", err)
	}
	return addons, total, nil
}

// TenantAddonRepository persists addon assignments
type TenantAddonRepository interface {
	WithTx(tx *gorm.DB) TenantAddonRepository

	Find(ctx context.Context, tenantID, addonID uuid.UUID, forUpdate bool) (*models.TenantAddon, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.TenantAddon, error)
	Create(ctx context.Context, assignment *models.TenantAddon) error
	Save(ctx context.Context, assignment *models.TenantAddon) error
	DeactivateActive(ctx context.Context, tenantID, addonID uuid.UUID) (bool, error)
	Delete(ctx context.Context, tenantID, addonID uuid.UUID) (bool, error)
	ListForTenant(ctx context.Context, tenantID uuid.UUID) ([]models.TenantAddon, error)
	ActiveForTenant(ctx context.Context, tenantID uuid.UUID, now time.Time) ([]models.TenantAddon, error)
	ActiveForFeature(ctx context.Context, tenantID, featureID uuid.UUID, now time.Time) ([]models.TenantAddon, error)
}

type tenantAddonRepository struct {
	db *gorm.DB
}

// NewTenantAddonRepository creates a new tenant addon repository
func NewTenantAddonRepository(db *gorm.DB) TenantAddonRepository {
	return &tenantAddonRepository{db: db}
}

func (r *tenantAddonRepository) WithTx(tx *gorm.DB) TenantAddonRepository {
	return &tenantAddonRepository{db: tx}
}

// ActiveAssignments scopes tenant_addons to rows that count at now. It is
// the SQL form of TenantAddon.IsActiveAt.
func ActiveAssignments(now time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("tenant_addons.is_active = ? AND (tenant_addons.expires_at IS NULL OR tenant_addons.expires_at > ?)", true, now)
	}
}

func (r *tenantAddonRepository) Find(ctx context.Context, tenantID, addonID uuid.UUID, forUpdate bool) (*models.TenantAddon, error) {
	var assignment models.TenantAddon
	query := r.db.WithContext(ctx)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := query.Where("tenant_id = ? AND addon_id = ?", tenantID, addonID).First(&assignment).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get tenant addon: %w", err)
	}
	return &assignment, nil
}

func (r *tenantAddonRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.TenantAddon, error) {
	var assignment models.TenantAddon
	if err := r.db.WithContext(ctx).Preload("Addon").First(&assignment, "id = ?", id).Error; err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get tenant addon: %w", err)
	}
	return &assignment, nil
}

func (r *tenantAddonRepository) Create(ctx context.Context, assignment *models.TenantAddon) error {
	if err := r.db.WithContext(ctx).Omit("Addon").Create(assignment).Error; err != nil {
		return fmt.Errorf("failed to create tenant addon: %w", err)
	}
	return nil
}

func (r *tenantAddonRepository) Save(ctx context.Context, assignment *models.TenantAddon) error {
	if err := r.db.WithContext(ctx).Omit("Addon").Save(assignment).Error; err != nil {
		return fmt.Errorf("failed to save tenant addon: %w", err)
	}
	return nil
}

// DeactivateActive switches off the assignment when it is currently enabled
func (r *tenantAddonRepository) DeactivateActive(ctx context.Context, tenantID, addonID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.TenantAddon{}).
		Where("tenant_id = ? AND addon_id = ? AND is_active = ?", tenantID, addonID, true).
		Update("is_active", false)
	if result.Error != nil {
		return false, fmt.Errorf("failed to cancel tenant addon: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *tenantAddonRepository) Delete(ctx context.Context, tenantID, addonID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Where("tenant_id = ? AND addon_id = ?", tenantID, addonID).Delete(&models.TenantAddon{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to remove tenant addon: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *tenantAddonRepository) ListForTenant(ctx context.Context, tenantID uuid.UUID) ([]models.TenantAddon, error) {
	var assignments []models.TenantAddon
	err := r.db.WithContext(ctx).Preload("Addon").
		Where("tenant_id = ?", tenantID).
		Order("started_at ASC").
		Find(&assignments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tenant addons: %w", err)
	}
	return assignments, nil
}

func (r *tenantAddonRepository) ActiveForTenant(ctx context.Context, tenantID uuid.UUID, now time.Time) ([]models.TenantAddon, error) {
	var assignments []models.TenantAddon
	err := r.db.WithContext(ctx).Preload("Addon").
		Scopes(ActiveAssignments(now)).
		Where("tenant_addons.tenant_id = ?", tenantID).
		Order("tenant_addons.started_at ASC").
		Find(&assignments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active tenant addons: %w", err)
	}
	return assignments, nil
}

func (r *tenantAddonRepository) ActiveForFeature(ctx context.Context, tenantID, featureID uuid.UUID, now time.Time) ([]models.TenantAddon, error) {
	var assignments []models.TenantAddon
	err := r.db.WithContext(ctx).Preload("Addon").
		Joins("JOIN addons ON addons.id = tenant_addons.addon_id").
		Scopes(ActiveAssignments(now)).
		Where("tenant_addons.tenant_id = ? AND addons.feature_id = ?", tenantID, featureID).
		Find(&assignments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list feature addons: %w", err)
	}
	return assignments, nil
}
