package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"billing-service/internal/billing"
	"billing-service/internal/models"
	"billing-service/internal/repository"
)

// AddonRequest creates or replaces a catalogue addon
type AddonRequest struct {
	FeatureID     uuid.UUID        `json:"feature_id" validate:"required"`
	Name          string           `json:"name" validate:"required,max=255"`
	Slug          string           `json:"slug" validate:"required,max=100,slug"`
	Description   string           `json:"description"`
	AddonType     models.AddonType `json:"addon_type" validate:"required,oneof=increment override"`
	Value         int64            `json:"value" validate:"gte=0"`
	Price         decimal.Decimal  `json:"price"`
	Currency      string           `json:"currency" validate:"required,len=3,uppercase"`
	IsRecurring   bool             `json:"is_recurring"`
	Interval      *string          `json:"interval" validate:"omitempty,oneof=day week month year"`
	IntervalCount *int             `json:"interval_count" validate:"omitempty,gte=1"`
	IsActive      bool             `json:"is_active"`
	IsPublic      bool             `json:"is_public"`
}

func (r AddonRequest) validate() error {
	var extra ValidationErrors
	extra = appendIf(extra, isNegative(r.Price), "price", "must not be negative")
	extra = appendIf(extra, r.IsRecurring && (r.Interval == nil || *r.Interval == ""), "interval", "is required for recurring addons")
	return mergeValidation(validateStruct(r), extra)
}

func (r AddonRequest) apply(addon *models.Addon) {
	addon.FeatureID = r.FeatureID
	addon.Name = r.Name
	addon.Slug = r.Slug
	addon.Description = r.Description
	addon.AddonType = r.AddonType
	addon.Value = r.Value
	addon.Price = r.Price
	addon.Currency = r.Currency
	addon.IsRecurring = r.IsRecurring
	addon.Interval = r.Interval
	addon.IntervalCount = r.IntervalCount
	addon.IsActive = r.IsActive
	addon.IsPublic = r.IsPublic
	if !r.IsRecurring {
		addon.Interval = nil
		addon.IntervalCount = nil
	}
}

// CustomPricing overrides the catalogue price of one assignment
type CustomPricing struct {
	Price    *decimal.Decimal `json:"price"`
	Currency *string          `json:"currency" validate:"omitempty,len=3,uppercase"`
}

// TenantAddonPayload is published for assignment changes
type TenantAddonPayload struct {
	TenantAddonID uuid.UUID  `json:"tenant_addon_id"`
	TenantID      uuid.UUID  `json:"tenant_id"`
	AddonID       uuid.UUID  `json:"addon_id"`
	Quantity      int        `json:"quantity"`
	IsActive      bool       `json:"is_active"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

func newTenantAddonPayload(a *models.TenantAddon) TenantAddonPayload {
	return TenantAddonPayload{
		TenantAddonID: a.ID,
		TenantID:      a.TenantID,
		AddonID:       a.AddonID,
		Quantity:      a.Quantity,
		IsActive:      a.IsActive,
		ExpiresAt:     a.ExpiresAt,
	}
}

// AddonService manages the addon catalogue and tenant assignments
type AddonService struct {
	db          *gorm.DB
	addons      repository.AddonRepository
	assignments repository.TenantAddonRepository
	tenants     repository.TenantRepository
	plans       repository.PlanRepository
	currency    string
	events      eventEmitter
	logger      *logrus.Entry
	now         func() time.Time
}

// NewAddonService creates a new addon service
func NewAddonService(
	db *gorm.DB,
	addons repository.AddonRepository,
	assignments repository.TenantAddonRepository,
	tenants repository.TenantRepository,
	plans repository.PlanRepository,
	defaultCurrency string,
	publisher EventPublisher,
	logger *logrus.Logger,
) *AddonService {
	entry := logger.WithField("service", "addon")
	return &AddonService{
		db:          db,
		addons:      addons,
		assignments: assignments,
		tenants:     tenants,
		plans:       plans,
		currency:    defaultCurrency,
		events:      newEventEmitter(publisher, entry, utcNow),
		logger:      entry,
		now:         utcNow,
	}
}

// CreateAddon adds an addon to the catalogue
func (s *AddonService) CreateAddon(ctx context.Context, req AddonRequest, actor Actor) (*models.Addon, error) {
	if req.Currency == "" {
		req.Currency = s.currency
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	if err := s.requireFeature(ctx, req.FeatureID); err != nil {
		return nil, err
	}

	addon := &models.Addon{}
	req.apply(addon)
	if err := s.addons.Create(ctx, addon); err != nil {
		if repository.IsDuplicateKey(err) {
			return nil, NewConflictError("addon", "an addon with this slug already exists")
		}
		return nil, err
	}

	s.events.emit(ctx, EventAddonCreated, actor, addon)
	return addon, nil
}

// UpdateAddon replaces the catalogue fields of an addon
func (s *AddonService) UpdateAddon(ctx context.Context, id uuid.UUID, req AddonRequest, actor Actor) (*models.Addon, error) {
	if req.Currency == "" {
		req.Currency = s.currency
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	addon, err := s.addons.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if addon == nil {
		return nil, NewNotFoundError("addon", id)
	}
	if addon.FeatureID != req.FeatureID {
		if err := s.requireFeature(ctx, req.FeatureID); err != nil {
			return nil, err
		}
	}

	req.apply(addon)
	addon.Feature = nil
	if err := s.addons.Update(ctx, addon); err != nil {
		if repository.IsDuplicateKey(err) {
			return nil, NewConflictError("addon", "an addon with this slug already exists")
		}
		return nil, err
	}

	s.events.emit(ctx, EventAddonUpdated, actor, addon)
	return addon, nil
}

// DeleteAddon removes an addon and its tenant assignments
func (s *AddonService) DeleteAddon(ctx context.Context, id uuid.UUID, actor Actor) error {
	if err := s.addons.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NewNotFoundError("addon", id)
		}
		return err
	}
	s.events.emit(ctx, EventAddonDeleted, actor, map[string]interface{}{"addon_id": id})
	return nil
}

// GetAddon returns a catalogue addon, or nil when missing
func (s *AddonService) GetAddon(ctx context.Context, id uuid.UUID) (*models.Addon, error) {
	return s.addons.GetByID(ctx, id)
}

// ListAddons returns a page of catalogue addons
func (s *AddonService) ListAddons(ctx context.Context, filters repository.AddonFilters) ([]models.Addon, int64, error) {
	return s.addons.List(ctx, filters)
}

// Assign gives a tenant quantity units of an addon. Repeating the call
// updates the single pivot row in place instead of adding another one.
func (s *AddonService) Assign(ctx context.Context, tenantID, addonID uuid.UUID, quantity int, pricing *CustomPricing, actor Actor) (*models.TenantAddon, error) {
	if err := validateAssignment(quantity, pricing); err != nil {
		return nil, err
	}

	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, NewNotFoundError("tenant", tenantID)
	}
	addon, err := s.addons.GetByID(ctx, addonID)
	if err != nil {
		return nil, err
	}
	if addon == nil {
		return nil, NewNotFoundError("addon", addonID)
	}
	if !addon.IsActive {
		return nil, NewValidationError("addon_id", "addon is not available")
	}
	if addon.AddonType == models.AddonTypeOverride && quantity != 1 {
		return nil, NewValidationError("quantity", "override addons can only be assigned once")
	}

	now := s.now()
	var expiresAt *time.Time
	if addon.IsRecurring {
		t := billing.AddInterval(now, addon.IntervalUnit(), addon.IntervalCountOrOne())
		expiresAt = &t
	}

	var assignment *models.TenantAddon
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.assignments.WithTx(tx)

		existing, err := repo.Find(ctx, tenantID, addonID, true)
		if err != nil {
			return err
		}
		if existing != nil {
			existing.Quantity = quantity
			existing.ExpiresAt = expiresAt
			existing.IsActive = true
			applyPricing(existing, pricing)
			assignment = existing
			return repo.Save(ctx, existing)
		}

		assignment = &models.TenantAddon{
			TenantID:  tenantID,
			AddonID:   addonID,
			Quantity:  quantity,
			StartedAt: now,
			ExpiresAt: expiresAt,
			IsActive:  true,
		}
		applyPricing(assignment, pricing)
		return repo.Create(ctx, assignment)
	})
	if err != nil {
		if repository.IsDuplicateKey(err) {
			return nil, NewConflictError("tenant_addon", "addon was assigned concurrently, retry")
		}
		return nil, err
	}
	assignment.Addon = addon

	s.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"addon_id":  addonID,
		"quantity":  quantity,
	}).Info("Addon assigned")

	s.events.emit(ctx, EventTenantAddonAssigned, actor, newTenantAddonPayload(assignment))
	return assignment, nil
}

// UpdateQuantity changes the quantity of an assignment in place
func (s *AddonService) UpdateQuantity(ctx context.Context, tenantAddonID uuid.UUID, quantity int, actor Actor) (*models.TenantAddon, error) {
	if quantity < 1 {
		return nil, NewValidationError("quantity", "must be at least 1")
	}

	assignment, err := s.assignments.GetByID(ctx, tenantAddonID)
	if err != nil {
		return nil, err
	}
	if assignment == nil {
		return nil, NewNotFoundError("tenant_addon", tenantAddonID)
	}
	if assignment.Addon != nil && assignment.Addon.AddonType == models.AddonTypeOverride && quantity != 1 {
		return nil, NewValidationError("quantity", "override addons can only be assigned once")
	}

	assignment.Quantity = quantity
	if err := s.assignments.Save(ctx, assignment); err != nil {
		return nil, err
	}

	s.events.emit(ctx, EventTenantAddonQuantityUpdated, actor, newTenantAddonPayload(assignment))
	return assignment, nil
}

// Extend pushes the expiry days into the future from whichever is later,
// the current expiry or now, and reactivates the assignment
func (s *AddonService) Extend(ctx context.Context, tenantAddonID uuid.UUID, days int, actor Actor) (*models.TenantAddon, error) {
	if days < 1 {
		return nil, NewValidationError("days", "must be at least 1")
	}

	assignment, err := s.assignments.GetByID(ctx, tenantAddonID)
	if err != nil {
		return nil, err
	}
	if assignment == nil {
		return nil, NewNotFoundError("tenant_addon", tenantAddonID)
	}

	base := s.now()
	if assignment.ExpiresAt != nil && assignment.ExpiresAt.After(base) {
		base = *assignment.ExpiresAt
	}
	expiresAt := base.AddDate(0, 0, days)
	assignment.ExpiresAt = &expiresAt
	assignment.IsActive = true

	if err := s.assignments.Save(ctx, assignment); err != nil {
		return nil, err
	}

	s.events.emit(ctx, EventTenantAddonExtended, actor, newTenantAddonPayload(assignment))
	return assignment, nil
}

// Cancel deactivates an active assignment. It reports false when the
// tenant has no active assignment of the addon.
func (s *AddonService) Cancel(ctx context.Context, tenantID, addonID uuid.UUID, actor Actor) (bool, error) {
	canceled, err := s.assignments.DeactivateActive(ctx, tenantID, addonID)
	if err != nil || !canceled {
		return false, err
	}
	s.events.emit(ctx, EventTenantAddonCanceled, actor, map[string]interface{}{
		"tenant_id": tenantID,
		"addon_id":  addonID,
	})
	return true, nil
}

// Remove deletes the assignment row. It reports false when there was none.
func (s *AddonService) Remove(ctx context.Context, tenantID, addonID uuid.UUID, actor Actor) (bool, error) {
	removed, err := s.assignments.Delete(ctx, tenantID, addonID)
	if err != nil || !removed {
		return false, err
	}
	s.events.emit(ctx, EventTenantAddonRemoved, actor, map[string]interface{}{
		"tenant_id": tenantID,
		"addon_id":  addonID,
	})
	return true, nil
}

// ActiveAddons lists assignments that count for billing and gating now
func (s *AddonService) ActiveAddons(ctx context.Context, tenantID uuid.UUID) ([]models.TenantAddon, error) {
	return s.assignments.ActiveForTenant(ctx, tenantID, s.now())
}

// TenantAddons lists every assignment of a tenant, active or not
func (s *AddonService) TenantAddons(ctx context.Context, tenantID uuid.UUID) ([]models.TenantAddon, error) {
	return s.assignments.ListForTenant(ctx, tenantID)
}

func (s *AddonService) requireFeature(ctx context.Context, featureID uuid.UUID) error {
	feature, err := s.plans.GetFeature(ctx, featureID)
	if err != nil {
		return err
	}
	if feature == nil {
		return NewValidationError("feature_id", "feature does not exist")
	}
	return nil
}

func validateAssignment(quantity int, pricing *CustomPricing) error {
	var errs ValidationErrors
	errs = appendIf(errs, quantity < 1, "quantity", "must be at least 1")
	if pricing == nil {
		if len(errs) > 0 {
			return errs
		}
		return nil
	}
	errs = appendIf(errs, pricing.Price != nil && isNegative(*pricing.Price), "price", "must not be negative")
	return mergeValidation(validateStruct(pricing), errs)
}

// applyPricing replaces the custom pricing; nil clears it
func applyPricing(assignment *models.TenantAddon, pricing *CustomPricing) {
	if pricing == nil {
		assignment.CustomPrice = nil
		assignment.CustomCurrency = nil
		return
	}
	assignment.CustomPrice = pricing.Price
	assignment.CustomCurrency = pricing.Currency
}
