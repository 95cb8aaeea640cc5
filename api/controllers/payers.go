package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cartpay-io/cartpay-backend/api/responses"
	"github.com/cartpay-io/cartpay-backend/api/validators"
	"github.com/cartpay-io/cartpay-backend/internal/payers"
	"github.com/cartpay-io/cartpay-backend/pkg/db/models"
	pkgerrors "github.com/cartpay-io/cartpay-backend/pkg/errors"
	"github.com/cartpay-io/cartpay-backend/pkg/logger"
)

type payerCreateRequest struct {
	ReferenceID string `json:"reference_id" validate:"required,min=1,max=255"`
	Country     string `json:"country" validate:"omitempty,len=2"`
}

type payerResponse struct {
	ID          uuid.UUID `json:"id"`
	ReferenceID string    `json:"reference_id"`
	Country     string    `json:"country"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newPayerResponse(payer *models.Payer) payerResponse {
	return payerResponse{
		ID:          payer.ID,
		ReferenceID: payer.ReferenceID,
		Country:     payer.Country,
		CreatedAt:   payer.CreatedAt,
		UpdatedAt:   payer.UpdatedAt,
	}
}

// PayerCreate registers a payer. Re-posting an existing reference id returns
// the existing payer instead of failing.
func PayerCreate(svc payers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payer service unavailable"))
			return
		}

		var payload payerCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payer, err := svc.Create(r.Context(), payers.CreateInput{
			ReferenceID: payload.ReferenceID,
			Country:     payload.Country,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newPayerResponse(payer))
	}
}

// PayerGet returns a payer by id.
func PayerGet(svc payers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payer service unavailable"))
			return
		}

		id, err := validators.ParsePathUUID(chi.URLParam(r, "payerID"), "payer_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payer, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newPayerResponse(payer))
	}
}
