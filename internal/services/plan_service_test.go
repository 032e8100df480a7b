package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billing-service/internal/repository"
	"billing-service/internal/testutil"
)

func TestPlanService_PlansPricesAndFeatures(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewPlanService(repository.NewPlanRepository(db), testLogger())
	ctx := context.Background()

	plan, err := svc.CreatePlan(ctx, PlanRequest{Name: "Pro", Slug: "pro", IsActive: true})
	require.NoError(t, err)

	_, err = svc.CreatePlan(ctx, PlanRequest{Name: "Pro again", Slug: "pro"})
	_, conflict := IsConflictError(err)
	assert.True(t, conflict)

	price, err := svc.AddPrice(ctx, plan.ID, PriceRequest{
		Amount:   decimal.RequireFromString("29.00"),
		Currency: "USD",
		Interval: "month",
		IsActive: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, price.IntervalCount)

	_, err = svc.AddPrice(ctx, plan.ID, PriceRequest{Amount: decimal.NewFromInt(-1), Currency: "USD", Interval: "fortnight"})
	requireFieldError(t, err, "amount")
	requireFieldError(t, err, "interval")

	seats, err := svc.CreateFeature(ctx, FeatureRequest{Name: "Seats", Slug: "seats"})
	require.NoError(t, err)

	value, err := svc.SetPlanFeature(ctx, plan.ID, seats.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), value.Value)

	value, err = svc.SetPlanFeature(ctx, plan.ID, seats.ID, 8)
	require.NoError(t, err)
	assert.Equal(t, int64(8), value.Value, "setting again updates in place")

	_, err = svc.SetPlanFeature(ctx, plan.ID, testutil.NewID(), 1)
	_, notFound := IsNotFound(err)
	assert.True(t, notFound)

	loaded, err := svc.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Prices, 1)
	assert.Len(t, loaded.Features, 1)

	updated, err := svc.UpdatePlan(ctx, plan.ID, PlanRequest{Name: "Pro", Slug: "pro", IsActive: false})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	active, err := svc.ListPlans(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	features, err := svc.ListFeatures(ctx)
	require.NoError(t, err)
	assert.Len(t, features, 1)
}
