package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"billing-service/internal/billing"
	"billing-service/internal/models"
	"billing-service/internal/repository"
	"billing-service/internal/testutil"
)

type fixedSettings struct {
	values map[string]int64
}

func (s fixedSettings) GetInt(_ context.Context, key string, def int64) (int64, error) {
	if v, ok := s.values[key]; ok {
		return v, nil
	}
	return def, nil
}

type subscriptionFixture struct {
	db        *gorm.DB
	service   *SubscriptionService
	publisher *recordingPublisher
	setNow    func(time.Time)
	tenant    *models.Tenant
}

func newSubscriptionFixture(t *testing.T, policy billing.ProrationPolicy) *subscriptionFixture {
	t.Helper()
	db := testutil.NewDB(t)
	pub := &recordingPublisher{}
	now, setNow := testutil.Clock(testStart)

	svc := NewSubscriptionService(db,
		repository.NewSubscriptionRepository(db),
		repository.NewPlanRepository(db),
		repository.NewTenantRepository(db),
		fixedSettings{values: map[string]int64{gracePeriodSetting: 3}},
		policy, pub, testLogger())
	svc.now = now
	svc.events.now = now

	return &subscriptionFixture{
		db:        db,
		service:   svc,
		publisher: pub,
		setNow:    setNow,
		tenant:    testutil.CreateTenant(t, db, "SUBS0001", nil),
	}
}

func defaultPolicy(t *testing.T) billing.ProrationPolicy {
	t.Helper()
	policy, err := billing.NewProrationPolicy(string(billing.ProrateImmediately), string(billing.EndOfPeriod))
	require.NoError(t, err)
	return policy
}

func TestSubscriptionService_SubscribeWithTrial(t *testing.T) {
	f := newSubscriptionFixture(t, defaultPolicy(t))
	price := testutil.CreatePlanPrice(t, f.db, "pro", 30, "month", 14)

	sub, err := f.service.Subscribe(context.Background(), f.tenant.ID, price.ID, testActor())
	require.NoError(t, err)

	trialEnds := testStart.AddDate(0, 0, 14)
	endsAt := trialEnds.AddDate(0, 1, 0)
	assert.Equal(t, trialEnds, *sub.TrialEndsAt)
	assert.Equal(t, endsAt, *sub.EndsAt)
	assert.Equal(t, endsAt.AddDate(0, 0, 3), *sub.GracePeriodEndsAt)
	assert.Equal(t, models.SubscriptionTrialing, sub.Status(testStart))
	assert.Equal(t, models.SubscriptionActive, sub.Status(trialEnds))
	assert.Equal(t, models.SubscriptionPastDue, sub.Status(endsAt))
	assert.Equal(t, models.SubscriptionExpired, sub.Status(endsAt.AddDate(0, 0, 3)))
	assert.Equal(t, EventSubscriptionCreated, f.publisher.last(t).Type)

	_, err = f.service.Subscribe(context.Background(), f.tenant.ID, price.ID, testActor())
	_, conflict := IsConflictError(err)
	assert.True(t, conflict, "got %v", err)
}

func TestSubscriptionService_ConcurrentSubscribeSerializes(t *testing.T) {
	f := newSubscriptionFixture(t, defaultPolicy(t))
	price := testutil.CreatePlanPrice(t, f.db, "pro", 30, "month", 0)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.service.Subscribe(context.Background(), f.tenant.ID, price.ID, testActor())
		}(i)
	}
	wg.Wait()

	var succeeded, conflicts int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		if _, ok := IsConflictError(err); ok {
			conflicts++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, int64(1), countRows(t, f.db, &models.Subscription{}))

	_, err := f.service.Subscribe(context.Background(), testutil.NewID(), price.ID, testActor())
	_, notFound := IsNotFound(err)
	assert.True(t, notFound, "got %v", err)
}

func TestSubscriptionService_SubscribeRejectsUnavailablePrice(t *testing.T) {
	f := newSubscriptionFixture(t, defaultPolicy(t))
	price := testutil.CreatePlanPrice(t, f.db, "legacy", 30, "month", 0)
	require.NoError(t, f.db.Model(price).Update("is_active", false).Error)

	_, err := f.service.Subscribe(context.Background(), f.tenant.ID, price.ID, testActor())
	requireFieldError(t, err, "plan_price_id")

	_, err = f.service.Subscribe(context.Background(), f.tenant.ID, testutil.NewID(), testActor())
	_, notFound := IsNotFound(err)
	assert.True(t, notFound)
}

func TestSubscriptionService_CancelAndResume(t *testing.T) {
	f := newSubscriptionFixture(t, defaultPolicy(t))
	ctx := context.Background()
	price := testutil.CreatePlanPrice(t, f.db, "pro", 30, "month", 0)

	sub, err := f.service.Subscribe(ctx, f.tenant.ID, price.ID, testActor())
	require.NoError(t, err)

	canceled, err := f.service.Cancel(ctx, sub.ID, false, testActor())
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionCanceled, canceled.Status(testStart))
	assert.Nil(t, canceled.GracePeriodEndsAt)
	assert.Equal(t, models.SubscriptionExpired, canceled.Status(canceled.EndsAt.UTC()))

	_, err = f.service.Cancel(ctx, sub.ID, false, testActor())
	requireFieldError(t, err, "subscription")

	resumed, err := f.service.Resume(ctx, sub.ID, testActor())
	require.NoError(t, err)
	assert.Nil(t, resumed.CanceledAt)
	assert.NotNil(t, resumed.GracePeriodEndsAt)
	assert.Equal(t, models.SubscriptionActive, resumed.Status(testStart))

	_, err = f.service.Resume(ctx, sub.ID, testActor())
	requireFieldError(t, err, "subscription")

	ended, err := f.service.Cancel(ctx, sub.ID, true, testActor())
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionExpired, ended.Status(testStart))

	_, err = f.service.Cancel(ctx, sub.ID, true, testActor())
	requireFieldError(t, err, "subscription")

	assert.Equal(t, []string{
		EventSubscriptionCreated,
		EventSubscriptionCanceled,
		EventSubscriptionResumed,
		EventSubscriptionCanceled,
	}, f.publisher.subjects())
}

func TestSubscriptionService_CancelDuringTrialEndsWithTrial(t *testing.T) {
	f := newSubscriptionFixture(t, defaultPolicy(t))
	price := testutil.CreatePlanPrice(t, f.db, "pro", 30, "month", 7)

	sub, err := f.service.Subscribe(context.Background(), f.tenant.ID, price.ID, testActor())
	require.NoError(t, err)

	canceled, err := f.service.Cancel(context.Background(), sub.ID, false, testActor())
	require.NoError(t, err)
	trialEnds := testStart.AddDate(0, 0, 7)
	assert.Equal(t, models.SubscriptionTrialing, canceled.Status(testStart))
	assert.Equal(t, models.SubscriptionExpired, canceled.Status(trialEnds))
}

func TestSubscriptionService_UpgradeProratesImmediately(t *testing.T) {
	f := newSubscriptionFixture(t, defaultPolicy(t))
	ctx := context.Background()
	basic := testutil.CreatePlanPrice(t, f.db, "basic", 100, "week", 0)
	pro := testutil.CreatePlanPrice(t, f.db, "pro", 200, "week", 0)

	sub, err := f.service.Subscribe(ctx, f.tenant.ID, basic.ID, testActor())
	require.NoError(t, err)

	halfway := testStart.Add(84 * time.Hour)
	f.setNow(halfway)
	result, err := f.service.ChangePlan(ctx, sub.ID, pro.ID, testActor())
	require.NoError(t, err)

	assert.Equal(t, billing.Upgrade, result.Direction)
	assert.Equal(t, billing.ProrateImmediately, result.Behavior)
	assert.False(t, result.Scheduled)
	assert.True(t, decimal.NewFromInt(50).Equal(result.Credit), result.Credit.String())
	assert.True(t, decimal.NewFromInt(150).Equal(result.AmountDue), result.AmountDue.String())

	got, err := f.service.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, pro.ID, got.PlanPriceID)
	assert.Nil(t, got.NextPlanPriceID)
	assert.True(t, halfway.Equal(got.StartsAt))
	assert.True(t, halfway.AddDate(0, 0, 7).Equal(*got.EndsAt))
	assert.Equal(t, EventSubscriptionPlanChanged, f.publisher.last(t).Type)
}

func TestSubscriptionService_UpgradeDuringTrialKeepsTrial(t *testing.T) {
	f := newSubscriptionFixture(t, defaultPolicy(t))
	ctx := context.Background()
	basic := testutil.CreatePlanPrice(t, f.db, "basic", 100, "week", 14)
	pro := testutil.CreatePlanPrice(t, f.db, "pro", 200, "week", 0)

	sub, err := f.service.Subscribe(ctx, f.tenant.ID, basic.ID, testActor())
	require.NoError(t, err)
	trialEnds := *sub.TrialEndsAt

	dayOne := testStart.AddDate(0, 0, 1)
	f.setNow(dayOne)
	result, err := f.service.ChangePlan(ctx, sub.ID, pro.ID, testActor())
	require.NoError(t, err)
	assert.False(t, result.Scheduled)
	assert.True(t, result.Credit.IsZero(), "trial time is not credited: %s", result.Credit)
	assert.True(t, result.AmountDue.IsZero(), "nothing is due before the trial ends: %s", result.AmountDue)

	got, err := f.service.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, pro.ID, got.PlanPriceID)
	assert.True(t, testStart.Equal(got.StartsAt))
	assert.True(t, trialEnds.Equal(*got.TrialEndsAt))
	assert.True(t, trialEnds.AddDate(0, 0, 7).Equal(*got.EndsAt))
	assert.True(t, got.EndsAt.After(*got.TrialEndsAt))

	assert.Equal(t, models.SubscriptionTrialing, got.Status(dayOne))
	assert.Equal(t, models.SubscriptionActive, got.Status(trialEnds))
	assert.Equal(t, models.SubscriptionPastDue, got.Status(trialEnds.AddDate(0, 0, 7)))
}

func TestSubscriptionService_ChargeImmediatelyHasNoCredit(t *testing.T) {
	policy, err := billing.NewProrationPolicy(string(billing.ChargeImmediately), string(billing.ChargeImmediately))
	require.NoError(t, err)
	f := newSubscriptionFixture(t, policy)
	ctx := context.Background()
	basic := testutil.CreatePlanPrice(t, f.db, "basic", 100, "week", 0)
	pro := testutil.CreatePlanPrice(t, f.db, "pro", 200, "week", 0)

	sub, err := f.service.Subscribe(ctx, f.tenant.ID, basic.ID, testActor())
	require.NoError(t, err)
	f.setNow(testStart.Add(24 * time.Hour))

	result, err := f.service.ChangePlan(ctx, sub.ID, pro.ID, testActor())
	require.NoError(t, err)
	assert.True(t, result.Credit.IsZero())
	assert.True(t, decimal.NewFromInt(200).Equal(result.AmountDue))
	assert.Equal(t, pro.ID, result.Subscription.PlanPriceID)
}

func TestSubscriptionService_DowngradeWaitsForPeriodEnd(t *testing.T) {
	f := newSubscriptionFixture(t, defaultPolicy(t))
	ctx := context.Background()
	pro := testutil.CreatePlanPrice(t, f.db, "pro", 200, "month", 0)
	basic := testutil.CreatePlanPrice(t, f.db, "basic", 100, "month", 0)

	sub, err := f.service.Subscribe(ctx, f.tenant.ID, pro.ID, testActor())
	require.NoError(t, err)

	result, err := f.service.ChangePlan(ctx, sub.ID, basic.ID, testActor())
	require.NoError(t, err)
	assert.Equal(t, billing.Downgrade, result.Direction)
	assert.True(t, result.Scheduled)
	assert.True(t, sub.EndsAt.Equal(result.EffectiveAt))

	got, err := f.service.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, pro.ID, got.PlanPriceID)
	require.NotNil(t, got.NextPlanPriceID)
	assert.Equal(t, basic.ID, *got.NextPlanPriceID)

	applied, err := f.service.ApplyScheduledChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, applied, "period still running")

	f.setNow(*sub.EndsAt)
	applied, err = f.service.ApplyScheduledChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	got, err = f.service.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, basic.ID, got.PlanPriceID)
	assert.Nil(t, got.NextPlanPriceID)

	event := f.publisher.last(t)
	assert.Equal(t, EventSubscriptionPlanChangeApplied, event.Type)
	assert.Equal(t, "127.0.0.1", event.Actor.IP)
}

func TestSubscriptionService_ChangePlanRejections(t *testing.T) {
	f := newSubscriptionFixture(t, defaultPolicy(t))
	ctx := context.Background()
	basic := testutil.CreatePlanPrice(t, f.db, "basic", 100, "month", 0)
	pro := testutil.CreatePlanPrice(t, f.db, "pro", 200, "month", 0)

	sub, err := f.service.Subscribe(ctx, f.tenant.ID, basic.ID, testActor())
	require.NoError(t, err)

	_, err = f.service.ChangePlan(ctx, sub.ID, basic.ID, testActor())
	requireFieldError(t, err, "plan_price_id")

	_, err = f.service.Cancel(ctx, sub.ID, false, testActor())
	require.NoError(t, err)
	_, err = f.service.ChangePlan(ctx, sub.ID, pro.ID, testActor())
	requireFieldError(t, err, "subscription")

	_, err = f.service.ChangePlan(ctx, testutil.NewID(), pro.ID, testActor())
	_, notFound := IsNotFound(err)
	assert.True(t, notFound)
}

func TestSubscriptionService_ListByStatus(t *testing.T) {
	f := newSubscriptionFixture(t, defaultPolicy(t))
	ctx := context.Background()
	price := testutil.CreatePlanPrice(t, f.db, "pro", 30, "month", 0)
	other := testutil.CreateTenant(t, f.db, "SUBS0002", nil)

	active, err := f.service.Subscribe(ctx, f.tenant.ID, price.ID, testActor())
	require.NoError(t, err)
	canceled, err := f.service.Subscribe(ctx, other.ID, price.ID, testActor())
	require.NoError(t, err)
	_, err = f.service.Cancel(ctx, canceled.ID, false, testActor())
	require.NoError(t, err)

	status := models.SubscriptionActive
	subs, total, err := f.service.List(ctx, repository.SubscriptionFilters{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, subs, 1)
	assert.Equal(t, active.ID, subs[0].ID)

	status = models.SubscriptionCanceled
	subs, _, err = f.service.List(ctx, repository.SubscriptionFilters{Status: &status})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, canceled.ID, subs[0].ID)
}
