package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billing-service/internal/models"
	"billing-service/internal/repository"
	"billing-service/internal/testutil"
)

func TestEntitlementService_FeatureLimit(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	now, setNow := testutil.Clock(testStart)

	tenant := testutil.CreateTenant(t, db, "LIMIT001", nil)
	seats := testutil.CreateFeature(t, db, "seats")
	price := testutil.CreatePlanPrice(t, db, "pro", 50, "month", 0)
	require.NoError(t, db.Create(&models.PlanFeature{PlanID: price.PlanID, FeatureID: seats.ID, Value: 10}).Error)

	endsAt := testStart.AddDate(0, 1, 0)
	sub := &models.Subscription{TenantID: tenant.ID, PlanPriceID: price.ID, StartsAt: testStart, EndsAt: &endsAt}
	require.NoError(t, db.Create(sub).Error)

	svc := NewEntitlementService(
		repository.NewSubscriptionRepository(db),
		repository.NewPlanRepository(db),
		repository.NewTenantAddonRepository(db),
		testLogger())
	svc.now = now

	limit, err := svc.FeatureLimit(ctx, tenant.ID, seats.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), limit.Limit)
	require.NotNil(t, limit.SubscriptionID)
	assert.Equal(t, sub.ID, *limit.SubscriptionID)

	increment := testutil.CreateAddon(t, db, seats, "five-seats", 5)
	require.NoError(t, db.Create(&models.TenantAddon{
		TenantID: tenant.ID, AddonID: increment.ID, Quantity: 2, StartedAt: testStart, IsActive: true,
	}).Error)

	expiredAt := testStart.Add(-time.Hour)
	stale := testutil.CreateAddon(t, db, seats, "stale", 100)
	require.NoError(t, db.Create(&models.TenantAddon{
		TenantID: tenant.ID, AddonID: stale.ID, Quantity: 1, StartedAt: testStart, IsActive: true, ExpiresAt: &expiredAt,
	}).Error)

	limit, err = svc.FeatureLimit(ctx, tenant.ID, seats.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), limit.PlanValue)
	assert.Equal(t, int64(10), limit.AddonIncrement, "expired assignment does not count")
	assert.Equal(t, int64(20), limit.Limit)

	override := testutil.CreateAddon(t, db, seats, "unlimited", 500, testutil.Override())
	require.NoError(t, db.Create(&models.TenantAddon{
		TenantID: tenant.ID, AddonID: override.ID, Quantity: 1, StartedAt: testStart, IsActive: true,
	}).Error)

	limit, err = svc.FeatureLimit(ctx, tenant.ID, seats.ID)
	require.NoError(t, err)
	require.NotNil(t, limit.Override)
	assert.Equal(t, int64(500), limit.Limit)

	// after the subscription expires only addons remain
	setNow(endsAt.Add(time.Hour))
	limit, err = svc.FeatureLimit(ctx, tenant.ID, seats.ID)
	require.NoError(t, err)
	assert.Nil(t, limit.SubscriptionID)
	assert.Equal(t, int64(0), limit.PlanValue)
	assert.Equal(t, int64(500), limit.Limit)
}

func TestEntitlementService_NoSubscriptionNoAddons(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewEntitlementService(
		repository.NewSubscriptionRepository(db),
		repository.NewPlanRepository(db),
		repository.NewTenantAddonRepository(db),
		testLogger())

	limit, err := svc.FeatureLimit(context.Background(), testutil.NewID(), testutil.NewID())
	require.NoError(t, err)
	assert.Equal(t, int64(0), limit.Limit)
	assert.Nil(t, limit.Override)
}
