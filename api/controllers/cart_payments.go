package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cartpay-io/cartpay-backend/api/responses"
	"github.com/cartpay-io/cartpay-backend/api/validators"
	"github.com/cartpay-io/cartpay-backend/internal/cartpayment"
	"github.com/cartpay-io/cartpay-backend/internal/paymentmethods"
	"github.com/cartpay-io/cartpay-backend/pkg/db/models"
	pkgerrors "github.com/cartpay-io/cartpay-backend/pkg/errors"
	"github.com/cartpay-io/cartpay-backend/pkg/logger"
	"github.com/cartpay-io/cartpay-backend/pkg/pagination"
)

type cartPaymentCreateRequest struct {
	PayerID        uuid.UUID        `json:"payer_id" validate:"required,uuid4"`
	AmountCents    int64            `json:"amount_cents" validate:"required,gt=0"`
	Currency       string           `json:"currency" validate:"omitempty,len=3"`
	PaymentMethod  paymentMethodRef `json:"payment_method" validate:"required"`
	IdempotencyKey string           `json:"idempotency_key" validate:"required,min=1,max=255"`
	DelayCapture   bool             `json:"delay_capture"`
	Description    string           `json:"description" validate:"omitempty,max=1000"`
	Metadata       json.RawMessage  `json:"metadata"`
}

type paymentMethodRef struct {
	Kind  string `json:"kind" validate:"required,oneof=id gateway_id"`
	Value string `json:"value" validate:"required"`
}

type cartPaymentUpdateAmountRequest struct {
	AmountCents    int64  `json:"amount_cents" validate:"required,gt=0"`
	IdempotencyKey string `json:"idempotency_key" validate:"required,min=1,max=255"`
}

type cartPaymentResponse struct {
	ID             uuid.UUID               `json:"id"`
	PayerID        uuid.UUID               `json:"payer_id"`
	AmountCents    int64                   `json:"amount_cents"`
	Currency       string                  `json:"currency"`
	DelayCapture   bool                    `json:"delay_capture"`
	IdempotencyKey string                  `json:"idempotency_key"`
	Description    *string                 `json:"description,omitempty"`
	Metadata       json.RawMessage         `json:"metadata,omitempty"`
	Intents        []paymentIntentResponse `json:"intents"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

type paymentIntentResponse struct {
	ID                    uuid.UUID  `json:"id"`
	AmountInitiatedCents  int64      `json:"amount_initiated_cents"`
	AmountCents           int64      `json:"amount_cents"`
	AmountCapturableCents int64      `json:"amount_capturable_cents"`
	AmountReceivedCents   int64      `json:"amount_received_cents"`
	Currency              string     `json:"currency"`
	Status                string     `json:"status"`
	CaptureMethod         string     `json:"capture_method"`
	CaptureAfter          *time.Time `json:"capture_after,omitempty"`
	AdjustmentCount       int        `json:"adjustment_count"`
	CreatedAt             time.Time  `json:"created_at"`
	CapturedAt            *time.Time `json:"captured_at,omitempty"`
	CancelledAt           *time.Time `json:"cancelled_at,omitempty"`
}

type cartPaymentListResponse struct {
	Payments   []cartPaymentResponse `json:"payments"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

func newCartPaymentResponse(payment *models.CartPayment) cartPaymentResponse {
	intents := make([]paymentIntentResponse, 0, len(payment.Intents))
	for _, intent := range payment.Intents {
		intents = append(intents, newPaymentIntentResponse(intent))
	}
	return cartPaymentResponse{
		ID:             payment.ID,
		PayerID:        payment.PayerID,
		AmountCents:    payment.AmountCents,
		Currency:       payment.Currency,
		DelayCapture:   payment.DelayCapture,
		IdempotencyKey: payment.IdempotencyKey,
		Description:    payment.ClientDescription,
		Metadata:       payment.Metadata,
		Intents:        intents,
		CreatedAt:      payment.CreatedAt,
		UpdatedAt:      payment.UpdatedAt,
	}
}

func newPaymentIntentResponse(intent models.PaymentIntent) paymentIntentResponse {
	return paymentIntentResponse{
		ID:                    intent.ID,
		AmountInitiatedCents:  intent.AmountInitiatedCents,
		AmountCents:           intent.AmountCents,
		AmountCapturableCents: intent.AmountCapturableCents,
		AmountReceivedCents:   intent.AmountReceivedCents,
		Currency:              intent.Currency,
		Status:                string(intent.Status),
		CaptureMethod:         string(intent.CaptureMethod),
		CaptureAfter:          intent.CaptureAfter,
		AdjustmentCount:       intent.AdjustmentCount,
		CreatedAt:             intent.CreatedAt,
		CapturedAt:            intent.CapturedAt,
		CancelledAt:           intent.CancelledAt,
	}
}

// CartPaymentCreate opens a cart payment and drives its first intent through
// the gateway. Replays with the same idempotency key return the current row.
func CartPaymentCreate(svc cartpayment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart payment service unavailable"))
			return
		}

		var payload cartPaymentCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.Create(r.Context(), cartpayment.CreateInput{
			PayerID:     payload.PayerID,
			AmountCents: payload.AmountCents,
			Currency:    payload.Currency,
			PaymentMethod: paymentmethods.Ref{
				Kind:  paymentmethods.RefKind(payload.PaymentMethod.Kind),
				Value: payload.PaymentMethod.Value,
			},
			IdempotencyKey: payload.IdempotencyKey,
			DelayCapture:   payload.DelayCapture,
			Description:    validators.SanitizeString(payload.Description, 1000),
			Metadata:       payload.Metadata,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newCartPaymentResponse(payment))
	}
}

// CartPaymentGet returns one cart payment with its full intent history.
func CartPaymentGet(svc cartpayment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart payment service unavailable"))
			return
		}

		id, err := validators.ParsePathUUID(chi.URLParam(r, "cartPaymentID"), "cart_payment_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCartPaymentResponse(payment))
	}
}

// CartPaymentList pages a payer's cart payments newest first.
func CartPaymentList(svc cartpayment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart payment service unavailable"))
			return
		}

		payerID, err := validators.ParsePathUUID(r.URL.Query().Get("payer_id"), "payer_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), payerID, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payments := make([]cartPaymentResponse, 0, len(result.Payments))
		for i := range result.Payments {
			payments = append(payments, newCartPaymentResponse(&result.Payments[i]))
		}

		responses.WriteSuccess(w, cartPaymentListResponse{
			Payments:   payments,
			NextCursor: result.NextCursor,
		})
	}
}

// CartPaymentUpdateAmount changes the amount of a live cart payment. Before
// capture the authorization is repriced; after capture the delta is charged
// or refunded.
func CartPaymentUpdateAmount(svc cartpayment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart payment service unavailable"))
			return
		}

		id, err := validators.ParsePathUUID(chi.URLParam(r, "cartPaymentID"), "cart_payment_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cartPaymentUpdateAmountRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.UpdateAmount(r.Context(), cartpayment.UpdateAmountInput{
			CartPaymentID:  id,
			AmountCents:    payload.AmountCents,
			IdempotencyKey: payload.IdempotencyKey,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCartPaymentResponse(payment))
	}
}

// CartPaymentCancel voids or refunds the active intent. Cancelling an
// already-terminal payment succeeds without side effects.
func CartPaymentCancel(svc cartpayment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart payment service unavailable"))
			return
		}

		id, err := validators.ParsePathUUID(chi.URLParam(r, "cartPaymentID"), "cart_payment_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.Cancel(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCartPaymentResponse(payment))
	}
}
