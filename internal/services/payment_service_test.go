package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billing-service/internal/models"
	"billing-service/internal/repository"
	"billing-service/internal/testutil"
)

func newPaymentService(t *testing.T) (*PaymentService, *models.Tenant, *recordingPublisher, func(time.Time)) {
	t.Helper()
	db := testutil.NewDB(t)
	pub := &recordingPublisher{}
	now, setNow := testutil.Clock(testStart)

	svc := NewPaymentService(repository.NewPaymentRepository(db), repository.NewTenantRepository(db), "EUR", pub, testLogger())
	svc.now = now
	svc.events.now = now
	return svc, testutil.CreateTenant(t, db, "PAY00001", nil), pub, setNow
}

func TestPaymentService_Lifecycle(t *testing.T) {
	svc, tenant, pub, setNow := newPaymentService(t)
	ctx := context.Background()

	payment, err := svc.Record(ctx, RecordPaymentRequest{
		TenantID:         tenant.ID,
		Amount:           decimal.RequireFromString("49.90"),
		Currency:         "USD",
		GatewayReference: "ch_123",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, payment.Status)
	assert.Nil(t, payment.PaidAt)

	paidAt := testStart.Add(time.Minute)
	setNow(paidAt)
	completed, err := svc.UpdateStatus(ctx, payment.ID, models.PaymentCompleted, testActor())
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, completed.Status)
	require.NotNil(t, completed.PaidAt)
	assert.Equal(t, paidAt, *completed.PaidAt)

	// paid_at is stamped once
	setNow(paidAt.Add(time.Hour))
	again, err := svc.UpdateStatus(ctx, payment.ID, models.PaymentCompleted, testActor())
	require.NoError(t, err)
	assert.True(t, paidAt.Equal(*again.PaidAt))

	refunded, err := svc.UpdateStatus(ctx, payment.ID, models.PaymentRefunded, testActor())
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, refunded.Status)

	event := pub.last(t)
	assert.Equal(t, EventPaymentStatusUpdated, event.Type)
	data := event.Data.(map[string]interface{})
	assert.Equal(t, models.PaymentCompleted, data["previous_status"])
}

func TestPaymentService_UpdateStatusRejections(t *testing.T) {
	svc, tenant, _, _ := newPaymentService(t)
	ctx := context.Background()

	payment, err := svc.Record(ctx, RecordPaymentRequest{TenantID: tenant.ID, Amount: decimal.NewFromInt(10), Currency: "USD"})
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, payment.ID, "settled", testActor())
	requireFieldError(t, err, "status")

	_, err = svc.UpdateStatus(ctx, payment.ID, models.PaymentRefunded, testActor())
	requireFieldError(t, err, "status")

	_, err = svc.UpdateStatus(ctx, testutil.NewID(), models.PaymentFailed, testActor())
	_, notFound := IsNotFound(err)
	assert.True(t, notFound)
}

func TestPaymentService_MarkInvoicedIsIdempotent(t *testing.T) {
	svc, tenant, pub, setNow := newPaymentService(t)
	ctx := context.Background()

	payment, err := svc.Record(ctx, RecordPaymentRequest{TenantID: tenant.ID, Amount: decimal.NewFromInt(10), Currency: "USD", Status: models.PaymentCompleted})
	require.NoError(t, err)
	require.NotNil(t, payment.PaidAt)

	first, err := svc.MarkInvoiced(ctx, payment.ID, testActor())
	require.NoError(t, err)
	assert.True(t, first.Invoiced)
	require.NotNil(t, first.InvoicedAt)

	setNow(testStart.Add(24 * time.Hour))
	second, err := svc.MarkInvoiced(ctx, payment.ID, testActor())
	require.NoError(t, err)
	assert.True(t, testStart.Equal(*second.InvoicedAt), "the first stamp is kept")

	assert.Equal(t, []string{EventPaymentInvoiced}, pub.subjects())

	invoiced := true
	items, total, err := svc.List(ctx, repository.PaymentFilters{Invoiced: &invoiced})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, items, 1)
}

func TestPaymentService_RecordValidation(t *testing.T) {
	svc, tenant, _, _ := newPaymentService(t)

	_, err := svc.Record(context.Background(), RecordPaymentRequest{TenantID: tenant.ID, Amount: decimal.Zero, Currency: "usd"})
	requireFieldError(t, err, "amount")
	requireFieldError(t, err, "currency")

	_, err = svc.Record(context.Background(), RecordPaymentRequest{TenantID: testutil.NewID(), Amount: decimal.NewFromInt(1), Currency: "USD"})
	_, notFound := IsNotFound(err)
	assert.True(t, notFound)
}

func TestPaymentService_RecordDefaultsCurrency(t *testing.T) {
	svc, tenant, _, _ := newPaymentService(t)

	payment, err := svc.Record(context.Background(), RecordPaymentRequest{TenantID: tenant.ID, Amount: decimal.NewFromInt(12)})
	require.NoError(t, err)
	assert.Equal(t, "EUR", payment.Currency)
}
