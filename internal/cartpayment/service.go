package cartpayment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cartpay-io/cartpay-backend/internal/paymentmethods"
	"github.com/cartpay-io/cartpay-backend/pkg/config"
	"github.com/cartpay-io/cartpay-backend/pkg/db"
	"github.com/cartpay-io/cartpay-backend/pkg/db/models"
	"github.com/cartpay-io/cartpay-backend/pkg/enums"
	pkgerrors "github.com/cartpay-io/cartpay-backend/pkg/errors"
	"github.com/cartpay-io/cartpay-backend/pkg/gateway"
	"github.com/cartpay-io/cartpay-backend/pkg/logger"
	"github.com/cartpay-io/cartpay-backend/pkg/outbox"
	"github.com/cartpay-io/cartpay-backend/pkg/outbox/payloads"
	"github.com/cartpay-io/cartpay-backend/pkg/pagination"
)

const defaultGatewayTimeout = 15 * time.Second

// cartPaymentsUniqueIndex is the partial unique index guarding one active
// cart payment per (payer, idempotency key).
const cartPaymentsUniqueIndex = "ux_cart_payments_payer_idempotency"

// CreateInput carries everything needed to open a cart payment.
type CreateInput struct {
	PayerID        uuid.UUID
	AmountCents    int64
	Currency       string
	PaymentMethod  paymentmethods.Ref
	IdempotencyKey string
	DelayCapture   bool
	Description    string
	Metadata       json.RawMessage
}

// UpdateAmountInput requests a mid-flight amount change.
type UpdateAmountInput struct {
	CartPaymentID  uuid.UUID
	AmountCents    int64
	IdempotencyKey string
}

// ListResult is one page of a payer's cart payments.
type ListResult struct {
	Payments   []models.CartPayment
	NextCursor string
}

// Service orchestrates the payment intent lifecycle: create, amount
// adjustment, capture, cancel, and the read paths. All four mutating
// operations are safe to retry with the same idempotency key.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.CartPayment, error)
	Get(ctx context.Context, id uuid.UUID) (*models.CartPayment, error)
	List(ctx context.Context, payerID uuid.UUID, params pagination.Params) (*ListResult, error)
	UpdateAmount(ctx context.Context, input UpdateAmountInput) (*models.CartPayment, error)
	Cancel(ctx context.Context, id uuid.UUID) (*models.CartPayment, error)
	Capture(ctx context.Context, paymentIntentID uuid.UUID) (*models.PaymentIntent, error)
	DueForCapture(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type methodResolver interface {
	Resolve(ctx context.Context, payerID uuid.UUID, ref paymentmethods.Ref) (*paymentmethods.Resolved, error)
}

type customerProvider interface {
	CustomerResourceID(ctx context.Context, payerID uuid.UUID, kind enums.GatewayKind) (string, error)
}

type service struct {
	tx       txRunner
	repo     Repository
	gw       gateway.Gateway
	methods  methodResolver
	payers   customerProvider
	outbox   outboxPublisher
	logg     *logger.Logger
	payments config.PaymentsConfig
}

// NewService builds the payment lifecycle orchestrator.
func NewService(
	tx txRunner,
	repo Repository,
	gw gateway.Gateway,
	methods methodResolver,
	payers customerProvider,
	publisher outboxPublisher,
	logg *logger.Logger,
	payments config.PaymentsConfig,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("repository required")
	}
	if gw == nil {
		return nil, fmt.Errorf("gateway required")
	}
	if methods == nil {
		return nil, fmt.Errorf("payment method resolver required")
	}
	if payers == nil {
		return nil, fmt.Errorf("customer provider required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:       tx,
		repo:     repo,
		gw:       gw,
		methods:  methods,
		payers:   payers,
		outbox:   publisher,
		logg:     logg,
		payments: payments,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.CartPayment, error) {
	input.Currency = strings.ToLower(strings.TrimSpace(input.Currency))
	if err := s.validateCreate(input); err != nil {
		return nil, err
	}

	// Idempotent replay: an existing active payment for this (payer, key)
	// short-circuits before any gateway traffic.
	existing, err := s.repo.FindCartPaymentByPayerAndKey(ctx, input.PayerID, input.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.replay(ctx, existing, input)
	}

	resolved, err := s.resolveMethod(ctx, input.PayerID, input.PaymentMethod)
	if err != nil {
		return nil, err
	}
	customerID, err := s.payers.CustomerResourceID(ctx, input.PayerID, s.gw.Kind())
	if err != nil {
		return nil, err
	}

	captureMethod := enums.CaptureMethodAutomatic
	if input.DelayCapture {
		captureMethod = enums.CaptureMethodManual
	}

	payment := &models.CartPayment{
		ID:             uuid.New(),
		PayerID:        input.PayerID,
		AmountCents:    input.AmountCents,
		Currency:       input.Currency,
		DelayCapture:   input.DelayCapture,
		IdempotencyKey: input.IdempotencyKey,
		Metadata:       input.Metadata,
	}
	if desc := strings.TrimSpace(input.Description); desc != "" {
		payment.ClientDescription = &desc
	}

	intentID := uuid.New()
	intent := &models.PaymentIntent{
		ID:                   intentID,
		CartPaymentID:        payment.ID,
		AmountInitiatedCents: input.AmountCents,
		AmountCents:          input.AmountCents,
		ApplicationFeeCents:  applicationFeeCents(input.AmountCents, s.payments.PlatformFeeBPS),
		Currency:             input.Currency,
		Status:               enums.IntentStatusInitiated,
		CaptureMethod:        captureMethod,
		IdempotencyKey:       deriveKey(intentID, opIntentCreate, 0),
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateCartPayment(ctx, payment); err != nil {
			return err
		}
		if err := repo.CreatePaymentIntent(ctx, intent); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentCreated,
			AggregateType: enums.AggregateCartPayment,
			AggregateID:   payment.ID,
			Data: payloads.PaymentCreatedEvent{
				CartPaymentID:   payment.ID,
				PaymentIntentID: intent.ID,
				PayerID:         payment.PayerID,
				AmountCents:     payment.AmountCents,
				Currency:        payment.Currency,
				DelayCapture:    payment.DelayCapture,
				Status:          intent.Status,
			},
		})
	})
	if err != nil {
		if db.IsUniqueViolation(err, cartPaymentsUniqueIndex) {
			// Lost a create race for the same (payer, key); the winner's row
			// is the canonical one.
			winner, ferr := s.repo.FindCartPaymentByPayerAndKey(ctx, input.PayerID, input.IdempotencyKey)
			if ferr == nil && winner != nil {
				return s.replay(ctx, winner, input)
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeIdempotency, err, "idempotency key already in use")
		}
		return nil, err
	}

	return s.confirm(ctx, payment, intent, resolved.ResourceID, customerID)
}

// replay handles a create call that found an existing cart payment for the
// same (payer, idempotency key). A terminal intent returns the recorded
// outcome; an unconfirmed intent re-drives the gateway call with the same
// derived token, which the gateway deduplicates.
func (s *service) replay(ctx context.Context, payment *models.CartPayment, input CreateInput) (*models.CartPayment, error) {
	intent, err := s.repo.FindLatestIntent(ctx, payment.ID)
	if err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart payment has no payment intent")
	}

	switch intent.Status {
	case enums.IntentStatusFailed:
		return nil, pkgerrors.New(pkgerrors.CodePaymentDeclined, "payment was previously declined").
			WithDetails(map[string]any{"cart_payment_id": payment.ID.String()})
	case enums.IntentStatusInitiated:
		resolved, rerr := s.resolveMethod(ctx, payment.PayerID, input.PaymentMethod)
		if rerr != nil {
			return nil, rerr
		}
		customerID, cerr := s.payers.CustomerResourceID(ctx, payment.PayerID, s.gw.Kind())
		if cerr != nil {
			return nil, cerr
		}
		return s.confirm(ctx, payment, intent, resolved.ResourceID, customerID)
	default:
		return payment, nil
	}
}

// confirm drives the gateway create-and-confirm call for an INITIATED intent
// and persists the outcome. The intent's idempotency key doubles as the
// gateway token, so re-running confirm after an ambiguous failure cannot
// double-charge.
func (s *service) confirm(ctx context.Context, payment *models.CartPayment, intent *models.PaymentIntent, methodResourceID, customerID string) (*models.CartPayment, error) {
	gctx, cancel := s.gatewayCtx(ctx)
	defer cancel()

	result, gerr := s.gw.CreateIntent(gctx, gateway.CreateIntentParams{
		IdempotencyKey:          intent.IdempotencyKey,
		CustomerResourceID:      customerID,
		PaymentMethodResourceID: methodResourceID,
		AmountCents:             intent.AmountCents,
		Currency:                intent.Currency,
		CaptureMethod:           intent.CaptureMethod,
		ApplicationFeeCents:     intent.ApplicationFeeCents,
		Description:             derefString(payment.ClientDescription),
		Metadata:                map[string]string{"cart_payment_id": payment.ID.String()},
	})
	if gerr != nil {
		return s.failConfirm(ctx, payment, intent, gerr)
	}

	now := time.Now()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.UpsertGatewayIntent(ctx, s.mirrorFromResult(intent.ID, result)); err != nil {
			return err
		}

		switch result.Status {
		case gateway.IntentStatusRequiresCapture:
			captureAfter := now.Add(s.captureDelay())
			intent.Status = enums.IntentStatusRequiresCapture
			intent.AmountCapturableCents = intent.AmountCents
			intent.CaptureAfter = &captureAfter
			if err := checkIntentInvariant(intent); err != nil {
				return err
			}
			return repo.UpdatePaymentIntent(ctx, intent)

		case gateway.IntentStatusSucceeded:
			intent.Status = enums.IntentStatusCaptured
			intent.AmountReceivedCents = intent.AmountCents
			intent.AmountCapturableCents = 0
			intent.CapturedAt = &now
			if err := checkIntentInvariant(intent); err != nil {
				return err
			}
			if err := repo.UpdatePaymentIntent(ctx, intent); err != nil {
				return err
			}
			if err := s.recordCharge(ctx, repo, intent, intent.AmountCents, chargeResourceID(result)); err != nil {
				return err
			}
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPaymentCaptured,
				AggregateType: enums.AggregatePaymentIntent,
				AggregateID:   intent.ID,
				Data: payloads.PaymentCapturedEvent{
					CartPaymentID:       payment.ID,
					PaymentIntentID:     intent.ID,
					AmountReceivedCents: intent.AmountReceivedCents,
					Currency:            intent.Currency,
					CapturedAt:          now,
				},
			})

		case gateway.IntentStatusFailed, gateway.IntentStatusCanceled:
			intent.Status = enums.IntentStatusFailed
			return repo.UpdatePaymentIntent(ctx, intent)

		default:
			// Still processing at the gateway; the intent stays INITIATED and
			// a later replay with the same token resolves it.
			return nil
		}
	})
	if err != nil {
		return nil, err
	}
	if intent.Status == enums.IntentStatusFailed {
		return nil, pkgerrors.New(pkgerrors.CodePaymentDeclined, "gateway did not confirm the intent")
	}
	return payment, nil
}

// failConfirm records a declined intent as FAILED and keeps the cart payment
// row, so a replayed create returns the terminal failure instead of retrying
// the gateway. Ambiguous failures leave the intent INITIATED with no mirror
// row; the error's retryable flag tells the caller to replay.
func (s *service) failConfirm(ctx context.Context, payment *models.CartPayment, intent *models.PaymentIntent, gerr error) (*models.CartPayment, error) {
	domainErr := gateway.DomainError(gerr, "create intent")

	gwErr := gateway.AsError(gerr)
	if gwErr == nil || !gwErr.Declined() {
		logCtx := s.logg.WithCartPaymentID(ctx, payment.ID.String())
		s.logg.Error(logCtx, "intent confirmation left ambiguous", gerr)
		return nil, domainErr
	}

	txErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		intent.Status = enums.IntentStatusFailed
		if err := repo.UpdatePaymentIntent(ctx, intent); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePaymentIntent,
			AggregateID:   intent.ID,
			Data: payloads.PaymentFailedEvent{
				CartPaymentID:   payment.ID,
				PaymentIntentID: intent.ID,
				Reason:          string(gwErr.Kind),
				ProviderCode:    gwErr.ProviderCode,
			},
		})
	})
	if txErr != nil {
		logCtx := s.logg.WithCartPaymentID(ctx, payment.ID.String())
		s.logg.Error(logCtx, "failed to persist declined intent", txErr)
	}
	return nil, domainErr
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.CartPayment, error) {
	payment, err := s.repo.FindCartPaymentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment == nil || payment.DeletedAt != nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart payment not found")
	}
	return payment, nil
}

func (s *service) List(ctx context.Context, payerID uuid.UUID, params pagination.Params) (*ListResult, error) {
	if payerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payer id is required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListCartPayments(ctx, payerID, cursor, limit+1)
	if err != nil {
		return nil, err
	}

	result := &ListResult{Payments: rows}
	if len(rows) > limit {
		result.Payments = rows[:limit]
		last := result.Payments[limit-1]
		result.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return result, nil
}

func (s *service) UpdateAmount(ctx context.Context, input UpdateAmountInput) (*models.CartPayment, error) {
	if input.CartPaymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart payment id is required")
	}
	if strings.TrimSpace(input.IdempotencyKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	var result *models.CartPayment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		payment, intent, err := s.lockAggregate(ctx, repo, input.CartPaymentID)
		if err != nil {
			return err
		}

		// Adjustment replay: a completed history row for this key returns the
		// recorded outcome without re-executing.
		existing, err := repo.FindAdjustmentByKey(ctx, input.IdempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.PaymentIntentID != intent.ID {
				return pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key was used for another payment")
			}
			result = payment
			return nil
		}

		if err := s.checkAdjustable(payment, intent, input.AmountCents); err != nil {
			return err
		}

		decision := resolveAdjustment(intent.AmountCents, input.AmountCents, intent.Status == enums.IntentStatusCaptured)
		if decision.Resolution == resolutionNoop {
			result = payment
			return nil
		}

		sequence := intent.AdjustmentCount + 1
		original := intent.AmountCents

		switch decision.Resolution {
		case resolutionReprice:
			if err := s.repriceIntent(ctx, repo, intent, input.AmountCents, sequence); err != nil {
				return err
			}
		case resolutionAdditionalCharge:
			if err := s.chargeDelta(ctx, repo, payment, intent, decision.DeltaCents); err != nil {
				return err
			}
		case resolutionPartialRefund:
			if err := s.refundDelta(ctx, tx, repo, payment, intent, decision.DeltaCents); err != nil {
				return err
			}
		}

		intent.AmountCents = input.AmountCents
		intent.AdjustmentCount = sequence
		if err := checkIntentInvariant(intent); err != nil {
			return err
		}
		if err := repo.UpdatePaymentIntent(ctx, intent); err != nil {
			return err
		}

		payment.AmountCents = input.AmountCents
		if err := repo.UpdateCartPayment(ctx, payment); err != nil {
			return err
		}

		adjustment := &models.PaymentAdjustment{
			ID:                  uuid.New(),
			PaymentIntentID:     intent.ID,
			Sequence:            sequence,
			AmountOriginalCents: original,
			AmountDeltaCents:    input.AmountCents - original,
			AmountCents:         input.AmountCents,
			IdempotencyKey:      input.IdempotencyKey,
		}
		if err := repo.CreateAdjustment(ctx, adjustment); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentAdjusted,
			AggregateType: enums.AggregatePaymentIntent,
			AggregateID:   intent.ID,
			Data: payloads.PaymentAdjustedEvent{
				CartPaymentID:   payment.ID,
				PaymentIntentID: intent.ID,
				AdjustmentID:    adjustment.ID,
				Sequence:        sequence,
				AmountOriginal:  original,
				AmountDelta:     adjustment.AmountDeltaCents,
				AmountCents:     input.AmountCents,
				Resolution:      string(decision.Resolution),
			},
		}); err != nil {
			return err
		}

		result = payment
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Cancel(ctx context.Context, id uuid.UUID) (*models.CartPayment, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart payment id is required")
	}

	var result *models.CartPayment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		payment, intent, err := s.lockAggregate(ctx, repo, id)
		if err != nil {
			return err
		}

		switch intent.Status {
		case enums.IntentStatusCancelled, enums.IntentStatusFailed:
			// Idempotent: cancelling a terminal intent is a no-op success.
			result = payment
			return nil

		case enums.IntentStatusInitiated, enums.IntentStatusRequiresCapture:
			if err := s.voidIntent(ctx, repo, intent); err != nil {
				return err
			}

		case enums.IntentStatusCaptured:
			if err := s.refundOutstanding(ctx, tx, repo, payment, intent); err != nil {
				return err
			}
		}

		now := time.Now()
		intent.Status = enums.IntentStatusCancelled
		intent.AmountCapturableCents = 0
		intent.CancelledAt = &now
		if err := checkIntentInvariant(intent); err != nil {
			return err
		}
		if err := repo.UpdatePaymentIntent(ctx, intent); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentCancelled,
			AggregateType: enums.AggregatePaymentIntent,
			AggregateID:   intent.ID,
			Data: payloads.PaymentCancelledEvent{
				CartPaymentID:   payment.ID,
				PaymentIntentID: intent.ID,
				CancelledAt:     now,
			},
		}); err != nil {
			return err
		}

		result = payment
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Capture settles a REQUIRES_CAPTURE intent. It is the internal primitive
// the capture job drives; callers never reach it over HTTP directly.
func (s *service) Capture(ctx context.Context, paymentIntentID uuid.UUID) (*models.PaymentIntent, error) {
	if paymentIntentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}

	var captured *models.PaymentIntent
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		intent, err := repo.LockPaymentIntent(ctx, paymentIntentID)
		if err != nil {
			return err
		}
		if intent == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
		}
		if intent.Status == enums.IntentStatusCaptured {
			captured = intent
			return nil
		}
		if intent.Status != enums.IntentStatusRequiresCapture {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot capture intent in status %s", intent.Status))
		}

		mirror, err := repo.FindGatewayIntent(ctx, intent.ID)
		if err != nil {
			return err
		}
		if mirror == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "intent has no gateway record")
		}

		amount := intent.AmountCapturableCents
		gctx, cancel := s.gatewayCtx(ctx)
		defer cancel()
		result, gerr := s.gw.CaptureIntent(gctx, gateway.CaptureIntentParams{
			IdempotencyKey: deriveKey(intent.ID, opIntentCapture, 0),
			ResourceID:     mirror.ResourceID,
			AmountCents:    amount,
		})
		if gerr != nil {
			return gateway.DomainError(gerr, "capture intent")
		}

		now := time.Now()
		intent.Status = enums.IntentStatusCaptured
		intent.AmountReceivedCents += amount
		intent.AmountCapturableCents = 0
		intent.CapturedAt = &now
		if err := checkIntentInvariant(intent); err != nil {
			return err
		}
		if err := repo.UpdatePaymentIntent(ctx, intent); err != nil {
			return err
		}
		if err := repo.UpsertGatewayIntent(ctx, s.mirrorFromResult(intent.ID, result)); err != nil {
			return err
		}
		if err := s.recordCharge(ctx, repo, intent, amount, chargeResourceID(result)); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentCaptured,
			AggregateType: enums.AggregatePaymentIntent,
			AggregateID:   intent.ID,
			Data: payloads.PaymentCapturedEvent{
				CartPaymentID:       intent.CartPaymentID,
				PaymentIntentID:     intent.ID,
				AmountReceivedCents: intent.AmountReceivedCents,
				Currency:            intent.Currency,
				CapturedAt:          now,
			},
		}); err != nil {
			return err
		}

		captured = intent
		return nil
	})
	if err != nil {
		return nil, err
	}
	return captured, nil
}

// DueForCapture lists manual intents whose deferred capture time has
// elapsed. The engine itself never polls; the cron collaborator drives this.
func (s *service) DueForCapture(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	intents, err := s.repo.DueForCapture(ctx, before, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(intents))
	for _, intent := range intents {
		ids = append(ids, intent.ID)
	}
	return ids, nil
}

// lockAggregate loads the cart payment and row-locks its latest intent. The
// lock decides which gateway operation runs; two concurrent mutators cannot
// both decide against the same amounts.
func (s *service) lockAggregate(ctx context.Context, repo Repository, cartPaymentID uuid.UUID) (*models.CartPayment, *models.PaymentIntent, error) {
	payment, err := repo.FindCartPaymentByID(ctx, cartPaymentID)
	if err != nil {
		return nil, nil, err
	}
	if payment == nil || payment.DeletedAt != nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart payment not found")
	}

	latest, err := repo.FindLatestIntent(ctx, payment.ID)
	if err != nil {
		return nil, nil, err
	}
	if latest == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeInternal, "cart payment has no payment intent")
	}

	intent, err := repo.LockPaymentIntent(ctx, latest.ID)
	if err != nil {
		return nil, nil, err
	}
	if intent == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
	}
	return payment, intent, nil
}

func (s *service) checkAdjustable(payment *models.CartPayment, intent *models.PaymentIntent, requestedCents int64) error {
	if minimum := s.payments.MinAmountFor(payment.Currency); requestedCents < minimum {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("amount below minimum of %d for currency %s", minimum, payment.Currency))
	}
	switch intent.Status {
	case enums.IntentStatusRequiresCapture, enums.IntentStatusCaptured:
		return nil
	case enums.IntentStatusInitiated:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "intent is not yet confirmed by the gateway")
	default:
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot adjust intent in status %s", intent.Status))
	}
}

// repriceIntent updates the uncaptured amount at the gateway. No funds have
// moved yet, so any new amount is safe.
func (s *service) repriceIntent(ctx context.Context, repo Repository, intent *models.PaymentIntent, newAmountCents int64, sequence int) error {
	mirror, err := repo.FindGatewayIntent(ctx, intent.ID)
	if err != nil {
		return err
	}
	if mirror == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "intent has no gateway record")
	}

	gctx, cancel := s.gatewayCtx(ctx)
	defer cancel()
	result, gerr := s.gw.UpdateIntentAmount(gctx, gateway.UpdateIntentAmountParams{
		IdempotencyKey: deriveKey(intent.ID, opIntentUpdate, sequence),
		ResourceID:     mirror.ResourceID,
		AmountCents:    newAmountCents,
	})
	if gerr != nil {
		return gateway.DomainError(gerr, "update intent amount")
	}

	intent.AmountCapturableCents = newAmountCents
	return repo.UpsertGatewayIntent(ctx, s.mirrorFromResult(intent.ID, result))
}

// chargeDelta captures an additional amount post-capture by charging the
// same instrument off session. A gateway rejection rolls the whole
// adjustment back; no partial state survives.
func (s *service) chargeDelta(ctx context.Context, repo Repository, payment *models.CartPayment, intent *models.PaymentIntent, deltaCents int64) error {
	mirror, err := repo.FindGatewayIntent(ctx, intent.ID)
	if err != nil {
		return err
	}
	if mirror == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "intent has no gateway record")
	}

	customerID, err := s.payers.CustomerResourceID(ctx, payment.PayerID, s.gw.Kind())
	if err != nil {
		return err
	}

	charges, err := repo.FindChargesByIntent(ctx, intent.ID)
	if err != nil {
		return err
	}

	gctx, cancel := s.gatewayCtx(ctx)
	defer cancel()
	result, gerr := s.gw.CreateCharge(gctx, gateway.CreateChargeParams{
		IdempotencyKey:          deriveKey(intent.ID, opChargeCreate, len(charges)),
		CustomerResourceID:      customerID,
		PaymentMethodResourceID: mirror.PaymentMethodResourceID,
		AmountCents:             deltaCents,
		Currency:                intent.Currency,
		Description:             derefString(payment.ClientDescription),
		Metadata:                map[string]string{"cart_payment_id": payment.ID.String()},
	})
	if gerr != nil {
		return gateway.DomainError(gerr, "create charge")
	}

	charge := &models.Charge{
		ID:                  uuid.New(),
		PaymentIntentID:     intent.ID,
		AmountCents:         deltaCents,
		ApplicationFeeCents: applicationFeeCents(deltaCents, s.payments.PlatformFeeBPS),
		Currency:            intent.Currency,
		Status:              enums.ChargeStatusSucceeded,
		IdempotencyKey:      deriveKey(intent.ID, opChargeCreate, len(charges)),
	}
	if err := repo.CreateCharge(ctx, charge); err != nil {
		return err
	}
	if err := repo.CreateGatewayCharge(ctx, &models.GatewayCharge{
		ID:          uuid.New(),
		ChargeID:    charge.ID,
		Gateway:     s.gw.Kind(),
		ResourceID:  result.ResourceID,
		Status:      string(result.Status),
		AmountCents: deltaCents,
		Currency:    intent.Currency,
	}); err != nil {
		return err
	}

	intent.AmountReceivedCents += deltaCents
	return nil
}

// refundDelta returns deltaCents across the intent's charges, oldest first.
// Refunding more than the unrefunded remainder is a contract violation.
func (s *service) refundDelta(ctx context.Context, tx *gorm.DB, repo Repository, payment *models.CartPayment, intent *models.PaymentIntent, deltaCents int64) error {
	charges, err := repo.FindChargesByIntent(ctx, intent.ID)
	if err != nil {
		return err
	}

	var unrefunded int64
	for _, charge := range charges {
		unrefunded += charge.UnrefundedCents()
	}
	if deltaCents > unrefunded {
		return pkgerrors.New(pkgerrors.CodeValidation, "refund exceeds the unrefunded remainder").
			WithDetails(map[string]any{"requested_cents": deltaCents, "unrefunded_cents": unrefunded})
	}

	remaining := deltaCents
	for i := range charges {
		if remaining == 0 {
			break
		}
		charge := &charges[i]
		available := charge.UnrefundedCents()
		if available == 0 {
			continue
		}
		amount := remaining
		if amount > available {
			amount = available
		}
		if err := s.refundCharge(ctx, tx, repo, payment, intent, charge, amount, "amount_adjustment"); err != nil {
			return err
		}
		remaining -= amount
	}

	intent.AmountReceivedCents -= deltaCents
	return nil
}

// refundOutstanding refunds every charge's unrefunded remainder; used by
// cancel on a captured intent. The intent only transitions to CANCELLED
// after the gateway confirms each refund.
func (s *service) refundOutstanding(ctx context.Context, tx *gorm.DB, repo Repository, payment *models.CartPayment, intent *models.PaymentIntent) error {
	charges, err := repo.FindChargesByIntent(ctx, intent.ID)
	if err != nil {
		return err
	}
	for i := range charges {
		charge := &charges[i]
		remainder := charge.UnrefundedCents()
		if remainder == 0 {
			continue
		}
		if err := s.refundCharge(ctx, tx, repo, payment, intent, charge, remainder, "cancellation"); err != nil {
			return err
		}
		intent.AmountReceivedCents -= remainder
	}
	return nil
}

// refundCharge issues one gateway refund against a charge and records the
// refund row, its mirror, and the charge's new refunded total.
func (s *service) refundCharge(ctx context.Context, tx *gorm.DB, repo Repository, payment *models.CartPayment, intent *models.PaymentIntent, charge *models.Charge, amountCents int64, reason string) error {
	chargeMirror, err := repo.FindGatewayCharge(ctx, charge.ID)
	if err != nil {
		return err
	}
	if chargeMirror == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "charge has no gateway record")
	}

	refundSeq, err := repo.CountRefundsForCharge(ctx, charge.ID)
	if err != nil {
		return err
	}

	gctx, cancel := s.gatewayCtx(ctx)
	defer cancel()
	result, gerr := s.gw.RefundCharge(gctx, gateway.RefundChargeParams{
		IdempotencyKey:   deriveKey(charge.ID, opRefundCreate, int(refundSeq)),
		ChargeResourceID: chargeMirror.ResourceID,
		AmountCents:      amountCents,
		Currency:         charge.Currency,
		Reason:           reason,
	})
	if gerr != nil {
		return gateway.DomainError(gerr, "refund charge")
	}

	refund := &models.Refund{
		ID:             uuid.New(),
		ChargeID:       charge.ID,
		AmountCents:    amountCents,
		Reason:         reason,
		Status:         enums.RefundStatusSucceeded,
		IdempotencyKey: deriveKey(charge.ID, opRefundCreate, int(refundSeq)),
	}
	if err := repo.CreateRefund(ctx, refund); err != nil {
		return err
	}
	if err := repo.CreateGatewayRefund(ctx, &models.GatewayRefund{
		ID:          uuid.New(),
		RefundID:    refund.ID,
		Gateway:     s.gw.Kind(),
		ResourceID:  result.ResourceID,
		Status:      string(result.Status),
		AmountCents: amountCents,
		Currency:    charge.Currency,
	}); err != nil {
		return err
	}

	charge.AmountRefundedCents += amountCents
	if charge.UnrefundedCents() == 0 {
		charge.Status = enums.ChargeStatusRefunded
	} else {
		charge.Status = enums.ChargeStatusPartiallyRefunded
	}
	if err := repo.UpdateCharge(ctx, charge); err != nil {
		return err
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentRefunded,
		AggregateType: enums.AggregateCharge,
		AggregateID:   charge.ID,
		Data: payloads.PaymentRefundedEvent{
			CartPaymentID: payment.ID,
			ChargeID:      charge.ID,
			RefundID:      refund.ID,
			AmountCents:   amountCents,
			Currency:      charge.Currency,
		},
	})
}

// voidIntent cancels an uncaptured intent at the gateway. An INITIATED
// intent without a mirror row never reached the gateway, so there is
// nothing to void.
func (s *service) voidIntent(ctx context.Context, repo Repository, intent *models.PaymentIntent) error {
	mirror, err := repo.FindGatewayIntent(ctx, intent.ID)
	if err != nil {
		return err
	}
	if mirror == nil {
		return nil
	}

	gctx, cancel := s.gatewayCtx(ctx)
	defer cancel()
	result, gerr := s.gw.CancelIntent(gctx, gateway.CancelIntentParams{
		IdempotencyKey: deriveKey(intent.ID, opIntentCancel, 0),
		ResourceID:     mirror.ResourceID,
		Reason:         "requested_by_customer",
	})
	if gerr != nil {
		return gateway.DomainError(gerr, "cancel intent")
	}
	return repo.UpsertGatewayIntent(ctx, s.mirrorFromResult(intent.ID, result))
}

// recordCharge persists the Charge and its gateway mirror after a capture.
func (s *service) recordCharge(ctx context.Context, repo Repository, intent *models.PaymentIntent, amountCents int64, resourceID string) error {
	charges, err := repo.FindChargesByIntent(ctx, intent.ID)
	if err != nil {
		return err
	}
	charge := &models.Charge{
		ID:                  uuid.New(),
		PaymentIntentID:     intent.ID,
		AmountCents:         amountCents,
		ApplicationFeeCents: intent.ApplicationFeeCents,
		Currency:            intent.Currency,
		Status:              enums.ChargeStatusSucceeded,
		IdempotencyKey:      deriveKey(intent.ID, opChargeCreate, len(charges)),
	}
	if err := repo.CreateCharge(ctx, charge); err != nil {
		return err
	}
	return repo.CreateGatewayCharge(ctx, &models.GatewayCharge{
		ID:          uuid.New(),
		ChargeID:    charge.ID,
		Gateway:     s.gw.Kind(),
		ResourceID:  resourceID,
		Status:      string(gateway.ChargeStatusSucceeded),
		AmountCents: amountCents,
		Currency:    intent.Currency,
	})
}

func (s *service) validateCreate(input CreateInput) error {
	if input.PayerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "payer id is required")
	}
	if strings.TrimSpace(input.IdempotencyKey) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is required")
	}
	if len(input.Currency) != 3 {
		return pkgerrors.New(pkgerrors.CodeValidation, "currency must be a 3-letter code")
	}
	if input.AmountCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if minimum := s.payments.MinAmountFor(input.Currency); input.AmountCents < minimum {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("amount below minimum of %d for currency %s", minimum, input.Currency))
	}
	if !input.PaymentMethod.Valid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment method reference is invalid")
	}
	return nil
}

func (s *service) resolveMethod(ctx context.Context, payerID uuid.UUID, ref paymentmethods.Ref) (*paymentmethods.Resolved, error) {
	resolved, err := s.methods.Resolve(ctx, payerID, ref)
	if err != nil {
		return nil, err
	}
	if resolved.Gateway != s.gw.Kind() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method belongs to a different gateway")
	}
	return resolved, nil
}

func (s *service) mirrorFromResult(paymentIntentID uuid.UUID, result *gateway.Intent) *models.GatewayPaymentIntent {
	return &models.GatewayPaymentIntent{
		ID:                      uuid.New(),
		PaymentIntentID:         paymentIntentID,
		Gateway:                 s.gw.Kind(),
		ResourceID:              result.ResourceID,
		Status:                  string(result.Status),
		PaymentMethodResourceID: result.PaymentMethodResourceID,
		AmountCents:             result.AmountCents,
		AmountCapturableCents:   result.AmountCapturableCents,
		AmountReceivedCents:     result.AmountReceivedCents,
		Currency:                result.Currency,
	}
}

func (s *service) gatewayCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.payments.GatewayTimeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func (s *service) captureDelay() time.Duration {
	if s.payments.CaptureDelay > 0 {
		return s.payments.CaptureDelay
	}
	return 72 * time.Hour
}

func checkIntentInvariant(intent *models.PaymentIntent) error {
	if intent.AmountReceivedCents+intent.AmountCapturableCents > intent.AmountCents {
		return pkgerrors.New(pkgerrors.CodeInternal, "intent amount invariant violated").
			WithDetails(map[string]any{
				"payment_intent_id": intent.ID.String(),
				"amount_cents":      intent.AmountCents,
				"received_cents":    intent.AmountReceivedCents,
				"capturable_cents":  intent.AmountCapturableCents,
			})
	}
	return nil
}

func chargeResourceID(result *gateway.Intent) string {
	if result.LatestChargeResourceID != "" {
		return result.LatestChargeResourceID
	}
	return result.ResourceID
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
