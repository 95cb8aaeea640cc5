package cartpayment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cartpay-io/cartpay-backend/pkg/db/models"
	"github.com/cartpay-io/cartpay-backend/pkg/enums"
	"github.com/cartpay-io/cartpay-backend/pkg/pagination"
)

func setupCartPaymentTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS cart_payments (
  id TEXT PRIMARY KEY,
  payer_id TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'usd',
  delay_capture INTEGER NOT NULL DEFAULT 0,
  idempotency_key TEXT NOT NULL,
  client_description TEXT,
  metadata TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  deleted_at DATETIME
);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_cart_payments_payer_idempotency
  ON cart_payments(payer_id, idempotency_key) WHERE deleted_at IS NULL;`,
		`CREATE TABLE IF NOT EXISTS payment_intents (
  id TEXT PRIMARY KEY,
  cart_payment_id TEXT NOT NULL,
  amount_initiated_cents INTEGER NOT NULL,
  amount_cents INTEGER NOT NULL,
  amount_capturable_cents INTEGER NOT NULL DEFAULT 0,
  amount_received_cents INTEGER NOT NULL DEFAULT 0,
  application_fee_cents INTEGER NOT NULL DEFAULT 0,
  currency TEXT NOT NULL DEFAULT 'usd',
  status TEXT NOT NULL DEFAULT 'initiated',
  capture_method TEXT NOT NULL DEFAULT 'automatic',
  capture_after DATETIME,
  idempotency_key TEXT NOT NULL UNIQUE,
  adjustment_count INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  captured_at DATETIME,
  cancelled_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS gateway_payment_intents (
  id TEXT PRIMARY KEY,
  payment_intent_id TEXT NOT NULL UNIQUE,
  gateway TEXT NOT NULL,
  resource_id TEXT NOT NULL,
  status TEXT NOT NULL,
  payment_method_resource_id TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  amount_capturable_cents INTEGER NOT NULL DEFAULT 0,
  amount_received_cents INTEGER NOT NULL DEFAULT 0,
  currency TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS charges (
  id TEXT PRIMARY KEY,
  payment_intent_id TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  amount_refunded_cents INTEGER NOT NULL DEFAULT 0,
  application_fee_cents INTEGER NOT NULL DEFAULT 0,
  currency TEXT NOT NULL DEFAULT 'usd',
  status TEXT NOT NULL DEFAULT 'pending',
  idempotency_key TEXT NOT NULL UNIQUE,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS gateway_charges (
  id TEXT PRIMARY KEY,
  charge_id TEXT NOT NULL UNIQUE,
  gateway TEXT NOT NULL,
  resource_id TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  currency TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS refunds (
  id TEXT PRIMARY KEY,
  charge_id TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  reason TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  idempotency_key TEXT NOT NULL UNIQUE,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS gateway_refunds (
  id TEXT PRIMARY KEY,
  refund_id TEXT NOT NULL UNIQUE,
  gateway TEXT NOT NULL,
  resource_id TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  currency TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS payment_adjustments (
  id TEXT PRIMARY KEY,
  payment_intent_id TEXT NOT NULL,
  sequence INTEGER NOT NULL,
  amount_original_cents INTEGER NOT NULL,
  amount_delta_cents INTEGER NOT NULL,
  amount_cents INTEGER NOT NULL,
  idempotency_key TEXT NOT NULL UNIQUE,
  created_at DATETIME,
  UNIQUE (payment_intent_id, sequence)
);`,
	}
	for _, stmt := range statements {
		require.NoError(t, gdb.Exec(stmt).Error)
	}
	return gdb
}

func seedPayment(t *testing.T, repo Repository, payerID uuid.UUID, key string) *models.CartPayment {
	t.Helper()

	payment := &models.CartPayment{
		ID:             uuid.New(),
		PayerID:        payerID,
		AmountCents:    500,
		Currency:       "usd",
		IdempotencyKey: key,
	}
	require.NoError(t, repo.CreateCartPayment(context.Background(), payment))
	return payment
}

func seedIntent(t *testing.T, repo Repository, cartPaymentID uuid.UUID, status enums.IntentStatus, captureAfter *time.Time) *models.PaymentIntent {
	t.Helper()

	id := uuid.New()
	intent := &models.PaymentIntent{
		ID:                   id,
		CartPaymentID:        cartPaymentID,
		AmountInitiatedCents: 500,
		AmountCents:          500,
		Currency:             "usd",
		Status:               status,
		CaptureMethod:        enums.CaptureMethodManual,
		CaptureAfter:         captureAfter,
		IdempotencyKey:       deriveKey(id, opIntentCreate, 0),
	}
	if status == enums.IntentStatusRequiresCapture {
		intent.AmountCapturableCents = 500
	}
	require.NoError(t, repo.CreatePaymentIntent(context.Background(), intent))
	return intent
}

func TestFindCartPaymentByPayerAndKey(t *testing.T) {
	gdb := setupCartPaymentTestDB(t)
	repo := NewRepository(gdb)
	ctx := context.Background()

	payerID := uuid.New()
	payment := seedPayment(t, repo, payerID, "order-123")

	found, err := repo.FindCartPaymentByPayerAndKey(ctx, payerID, "order-123")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, payment.ID, found.ID)

	missing, err := repo.FindCartPaymentByPayerAndKey(ctx, payerID, "other-key")
	require.NoError(t, err)
	require.Nil(t, missing)

	otherPayer, err := repo.FindCartPaymentByPayerAndKey(ctx, uuid.New(), "order-123")
	require.NoError(t, err)
	require.Nil(t, otherPayer)
}

func TestFindCartPaymentByPayerAndKeyIgnoresDeleted(t *testing.T) {
	gdb := setupCartPaymentTestDB(t)
	repo := NewRepository(gdb)
	ctx := context.Background()

	payerID := uuid.New()
	payment := seedPayment(t, repo, payerID, "order-123")

	now := time.Now()
	payment.DeletedAt = &now
	require.NoError(t, repo.UpdateCartPayment(ctx, payment))

	found, err := repo.FindCartPaymentByPayerAndKey(ctx, payerID, "order-123")
	require.NoError(t, err)
	require.Nil(t, found)
}

func TestDueForCaptureReturnsOnlyDueManualIntents(t *testing.T) {
	gdb := setupCartPaymentTestDB(t)
	repo := NewRepository(gdb)
	ctx := context.Background()

	payment := seedPayment(t, repo, uuid.New(), "order-123")
	now := time.Now()

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	due := seedIntent(t, repo, payment.ID, enums.IntentStatusRequiresCapture, &past)
	seedIntent(t, repo, payment.ID, enums.IntentStatusRequiresCapture, &future)
	seedIntent(t, repo, payment.ID, enums.IntentStatusCaptured, &past)
	seedIntent(t, repo, payment.ID, enums.IntentStatusRequiresCapture, nil)

	intents, err := repo.DueForCapture(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	require.Equal(t, due.ID, intents[0].ID)
}

func TestUpsertGatewayIntentUpdatesInPlace(t *testing.T) {
	gdb := setupCartPaymentTestDB(t)
	repo := NewRepository(gdb)
	ctx := context.Background()

	payment := seedPayment(t, repo, uuid.New(), "order-123")
	intent := seedIntent(t, repo, payment.ID, enums.IntentStatusRequiresCapture, nil)

	first := &models.GatewayPaymentIntent{
		ID:                      uuid.New(),
		PaymentIntentID:         intent.ID,
		Gateway:                 enums.GatewayKindStripe,
		ResourceID:              "pi_123",
		Status:                  "requires_capture",
		PaymentMethodResourceID: "pm_123",
		AmountCents:             500,
		AmountCapturableCents:   500,
		Currency:                "usd",
	}
	require.NoError(t, repo.UpsertGatewayIntent(ctx, first))

	second := &models.GatewayPaymentIntent{
		ID:                      uuid.New(),
		PaymentIntentID:         intent.ID,
		Gateway:                 enums.GatewayKindStripe,
		ResourceID:              "pi_123",
		Status:                  "succeeded",
		PaymentMethodResourceID: "pm_123",
		AmountCents:             500,
		AmountReceivedCents:     500,
		Currency:                "usd",
	}
	require.NoError(t, repo.UpsertGatewayIntent(ctx, second))

	mirror, err := repo.FindGatewayIntent(ctx, intent.ID)
	require.NoError(t, err)
	require.NotNil(t, mirror)
	require.Equal(t, "succeeded", mirror.Status)
	require.Equal(t, int64(500), mirror.AmountReceivedCents)
	require.Equal(t, int64(0), mirror.AmountCapturableCents)

	var count int64
	require.NoError(t, gdb.Model(&models.GatewayPaymentIntent{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestFindAdjustmentByKey(t *testing.T) {
	gdb := setupCartPaymentTestDB(t)
	repo := NewRepository(gdb)
	ctx := context.Background()

	payment := seedPayment(t, repo, uuid.New(), "order-123")
	intent := seedIntent(t, repo, payment.ID, enums.IntentStatusCaptured, nil)

	adjustment := &models.PaymentAdjustment{
		ID:                  uuid.New(),
		PaymentIntentID:     intent.ID,
		Sequence:            1,
		AmountOriginalCents: 500,
		AmountDeltaCents:    -200,
		AmountCents:         300,
		IdempotencyKey:      "adj-1",
	}
	require.NoError(t, repo.CreateAdjustment(ctx, adjustment))

	found, err := repo.FindAdjustmentByKey(ctx, "adj-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, adjustment.ID, found.ID)
	require.Equal(t, int64(-200), found.AmountDeltaCents)

	missing, err := repo.FindAdjustmentByKey(ctx, "adj-2")
	require.NoError(t, err)
	require.Nil(t, missing)

	// Append-only: a second row for the same key must be rejected.
	duplicate := &models.PaymentAdjustment{
		ID:                  uuid.New(),
		PaymentIntentID:     intent.ID,
		Sequence:            2,
		AmountOriginalCents: 300,
		AmountDeltaCents:    100,
		AmountCents:         400,
		IdempotencyKey:      "adj-1",
	}
	require.Error(t, repo.CreateAdjustment(ctx, duplicate))
}

func TestCountRefundsForCharge(t *testing.T) {
	gdb := setupCartPaymentTestDB(t)
	repo := NewRepository(gdb)
	ctx := context.Background()

	payment := seedPayment(t, repo, uuid.New(), "order-123")
	intent := seedIntent(t, repo, payment.ID, enums.IntentStatusCaptured, nil)

	charge := &models.Charge{
		ID:              uuid.New(),
		PaymentIntentID: intent.ID,
		AmountCents:     500,
		Currency:        "usd",
		Status:          enums.ChargeStatusSucceeded,
		IdempotencyKey:  deriveKey(intent.ID, opChargeCreate, 0),
	}
	require.NoError(t, repo.CreateCharge(ctx, charge))

	count, err := repo.CountRefundsForCharge(ctx, charge.ID)
	require.NoError(t, err)
	require.Zero(t, count)

	refund := &models.Refund{
		ID:             uuid.New(),
		ChargeID:       charge.ID,
		AmountCents:    200,
		Reason:         "amount_adjustment",
		Status:         enums.RefundStatusSucceeded,
		IdempotencyKey: deriveKey(charge.ID, opRefundCreate, 0),
	}
	require.NoError(t, repo.CreateRefund(ctx, refund))

	count, err = repo.CountRefundsForCharge(ctx, charge.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestListCartPaymentsPaginates(t *testing.T) {
	gdb := setupCartPaymentTestDB(t)
	repo := NewRepository(gdb)
	ctx := context.Background()

	payerID := uuid.New()
	base := time.Now().Add(-time.Hour)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		payment := &models.CartPayment{
			ID:             uuid.New(),
			PayerID:        payerID,
			AmountCents:    int64(100 * (i + 1)),
			Currency:       "usd",
			IdempotencyKey: uuid.NewString(),
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, repo.CreateCartPayment(ctx, payment))
		ids = append(ids, payment.ID)
	}

	firstPage, err := repo.ListCartPayments(ctx, payerID, nil, 2)
	require.NoError(t, err)
	require.Len(t, firstPage, 2)
	require.Equal(t, ids[2], firstPage[0].ID)
	require.Equal(t, ids[1], firstPage[1].ID)

	cursor := &pagination.Cursor{CreatedAt: firstPage[1].CreatedAt, ID: firstPage[1].ID}
	secondPage, err := repo.ListCartPayments(ctx, payerID, cursor, 2)
	require.NoError(t, err)
	require.Len(t, secondPage, 1)
	require.Equal(t, ids[0], secondPage[0].ID)
}
