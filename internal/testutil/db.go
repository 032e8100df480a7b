package testutil

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"billing-service/internal/database"
	"billing-service/internal/models"
)

// NewDB opens a migrated in-memory database that lives for the test.
// A single connection keeps every query on the same memory database, so
// code running inside a transaction must use the transaction handle.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

// Clock returns a fixed clock and a setter to move it
func Clock(start time.Time) (func() time.Time, func(time.Time)) {
	current := start
	return func() time.Time { return current }, func(t time.Time) { current = t }
}

// CreateUser inserts an active tenant owner
func CreateUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := &models.User{Email: email, Password: "not-a-hash", FirstName: "Test", LastName: "User"}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateTenant inserts a tenant owned by owner when owner is not nil
func CreateTenant(t *testing.T, db *gorm.DB, code string, owner *models.User) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{
		Code:    code,
		Name:    "Tenant " + code,
		Slug:    "tenant-" + code,
		Status:  models.TenantStatusActive,
		Account: datatypes.NewJSONType(models.TenantAccount{Title: "Tenant " + code}),
	}
	require.NoError(t, db.Create(tenant).Error)

	if owner != nil {
		require.NoError(t, db.Create(&models.TenantUser{
			TenantID: tenant.ID,
			UserID:   owner.ID,
			Role:     models.RoleOwner,
			JoinedAt: time.Now().UTC(),
		}).Error)
	}
	return tenant
}

// CreateFeature inserts a feature
func CreateFeature(t *testing.T, db *gorm.DB, slug string) *models.Feature {
	t.Helper()
	feature := &models.Feature{Name: slug, Slug: slug}
	require.NoError(t, db.Create(feature).Error)
	return feature
}

// AddonOption customises CreateAddon
type AddonOption func(*models.Addon)

// Recurring makes the addon recurring on interval x count
func Recurring(interval string, count int) AddonOption {
	return func(a *models.Addon) {
		a.IsRecurring = true
		a.Interval = &interval
		a.IntervalCount = &count
	}
}

// Override makes the addon an override addon
func Override() AddonOption {
	return func(a *models.Addon) {
		a.AddonType = models.AddonTypeOverride
	}
}

// Inactive disables the addon
func Inactive() AddonOption {
	return func(a *models.Addon) {
		a.IsActive = false
	}
}

// CreateAddon inserts an active, public, non-recurring increment addon
func CreateAddon(t *testing.T, db *gorm.DB, feature *models.Feature, slug string, value int64, opts ...AddonOption) *models.Addon {
	t.Helper()
	addon := &models.Addon{
		FeatureID: feature.ID,
		Name:      slug,
		Slug:      slug,
		AddonType: models.AddonTypeIncrement,
		Value:     value,
		Price:     decimal.NewFromInt(10),
		Currency:  "USD",
		IsActive:  true,
		IsPublic:  true,
	}
	for _, opt := range opts {
		opt(addon)
	}
	require.NoError(t, db.Create(addon).Error)
	return addon
}

// CreatePlanPrice inserts an active plan with one price
func CreatePlanPrice(t *testing.T, db *gorm.DB, slug string, amount int64, interval string, trialDays int) *models.PlanPrice {
	t.Helper()
	plan := &models.Plan{Name: slug, Slug: slug, IsActive: true}
	require.NoError(t, db.Create(plan).Error)

	price := &models.PlanPrice{
		PlanID:        plan.ID,
		Amount:        decimal.NewFromInt(amount),
		Currency:      "USD",
		Interval:      interval,
		IntervalCount: 1,
		TrialDays:     trialDays,
		IsActive:      true,
	}
	require.NoError(t, db.Create(price).Error)
	return price
}

// NewID returns a random id for references that do not need a row
func NewID() uuid.UUID {
	return uuid.New()
}
