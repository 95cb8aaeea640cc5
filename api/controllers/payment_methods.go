package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cartpay-io/cartpay-backend/api/responses"
	"github.com/cartpay-io/cartpay-backend/api/validators"
	"github.com/cartpay-io/cartpay-backend/internal/paymentmethods"
	"github.com/cartpay-io/cartpay-backend/pkg/db/models"
	pkgerrors "github.com/cartpay-io/cartpay-backend/pkg/errors"
	"github.com/cartpay-io/cartpay-backend/pkg/logger"
)

type paymentMethodVaultRequest struct {
	PayerID     uuid.UUID `json:"payer_id" validate:"required,uuid4"`
	Token       string    `json:"token" validate:"required,min=1,max=255"`
	MakeDefault bool      `json:"make_default"`
}

type paymentMethodResponse struct {
	ID           uuid.UUID `json:"id"`
	PayerID      uuid.UUID `json:"payer_id"`
	Gateway      string    `json:"gateway"`
	Type         string    `json:"type"`
	CardBrand    *string   `json:"card_brand,omitempty"`
	CardLast4    *string   `json:"card_last4,omitempty"`
	CardExpMonth *int      `json:"card_exp_month,omitempty"`
	CardExpYear  *int      `json:"card_exp_year,omitempty"`
	IsDefault    bool      `json:"is_default"`
	CreatedAt    time.Time `json:"created_at"`
}

func newPaymentMethodResponse(method *models.PaymentMethod) paymentMethodResponse {
	return paymentMethodResponse{
		ID:           method.ID,
		PayerID:      method.PayerID,
		Gateway:      string(method.Gateway),
		Type:         string(method.Type),
		CardBrand:    method.CardBrand,
		CardLast4:    method.CardLast4,
		CardExpMonth: method.CardExpMonth,
		CardExpYear:  method.CardExpYear,
		IsDefault:    method.IsDefault,
		CreatedAt:    method.CreatedAt,
	}
}

// PaymentMethodVault attaches a gateway token to the payer's customer and
// stores the vaulted instrument.
func PaymentMethodVault(svc paymentmethods.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment method service unavailable"))
			return
		}

		var payload paymentMethodVaultRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := svc.Vault(r.Context(), paymentmethods.VaultInput{
			PayerID:     payload.PayerID,
			Token:       payload.Token,
			MakeDefault: payload.MakeDefault,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newPaymentMethodResponse(method))
	}
}

// PaymentMethodList returns a payer's vaulted instruments, newest first.
func PaymentMethodList(svc paymentmethods.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment method service unavailable"))
			return
		}

		payerID, err := validators.ParsePathUUID(r.URL.Query().Get("payer_id"), "payer_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		methods, err := svc.List(r.Context(), payerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]paymentMethodResponse, 0, len(methods))
		for i := range methods {
			out = append(out, newPaymentMethodResponse(&methods[i]))
		}

		responses.WriteSuccess(w, out)
	}
}

// PaymentMethodGet returns one vaulted instrument, scoped to its payer.
func PaymentMethodGet(svc paymentmethods.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment method service unavailable"))
			return
		}

		payerID, err := validators.ParsePathUUID(r.URL.Query().Get("payer_id"), "payer_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := validators.ParsePathUUID(chi.URLParam(r, "paymentMethodID"), "payment_method_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := svc.Get(r.Context(), payerID, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newPaymentMethodResponse(method))
	}
}

// PaymentMethodRemove soft-deletes a vaulted instrument. In-flight payments
// referencing it are unaffected.
func PaymentMethodRemove(svc paymentmethods.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment method service unavailable"))
			return
		}

		payerID, err := validators.ParsePathUUID(r.URL.Query().Get("payer_id"), "payer_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := validators.ParsePathUUID(chi.URLParam(r, "paymentMethodID"), "payment_method_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Remove(r.Context(), payerID, id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "removed"})
	}
}
