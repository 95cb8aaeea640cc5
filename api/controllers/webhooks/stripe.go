package webhooks

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/cartpay-io/cartpay-backend/api/responses"
	"github.com/cartpay-io/cartpay-backend/internal/disputes"
	"github.com/cartpay-io/cartpay-backend/pkg/enums"
	pkgerrors "github.com/cartpay-io/cartpay-backend/pkg/errors"
	"github.com/cartpay-io/cartpay-backend/pkg/logger"
)

type stripeClient interface {
	SigningSecret() string
}

// StripeWebhook receives dispute lifecycle events. Event-id deduplication
// lives in the dispute service, so redeliveries are acknowledged without
// reprocessing. An event for a charge this engine never recorded is
// acknowledged too; returning an error would only make Stripe redeliver a
// payload we can never match.
func StripeWebhook(svc disputes.Service, client stripeClient, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dispute service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		event, err := webhook.ConstructEvent(payload, sigHeader, client.SigningSecret())
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "verify signature"))
			return
		}

		if !isDisputeEvent(event.Type) {
			responses.WriteSuccess(w, nil)
			return
		}

		var dispute stripe.Dispute
		if err := json.Unmarshal(event.Data.Raw, &dispute); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode dispute payload"))
			return
		}

		disputeEvent, err := disputeEventFrom(&event, &dispute)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if _, err := svc.HandleEvent(ctx, disputeEvent); err != nil {
			if appErr := pkgerrors.As(err); appErr != nil && appErr.Code() == pkgerrors.CodeNotFound {
				if logg != nil {
					logCtx := logg.WithField(ctx, "gateway_event_id", event.ID)
					logg.Warn(logCtx, "dispute event for unknown charge acknowledged")
				}
				responses.WriteSuccess(w, nil)
				return
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("stripe event %s processed", event.ID))
		}
		responses.WriteSuccess(w, nil)
	}
}

func isDisputeEvent(eventType stripe.EventType) bool {
	switch eventType {
	case "charge.dispute.created", "charge.dispute.updated", "charge.dispute.closed", "charge.dispute.funds_withdrawn", "charge.dispute.funds_reinstated":
		return true
	default:
		return false
	}
}

func disputeEventFrom(event *stripe.Event, dispute *stripe.Dispute) (disputes.Event, error) {
	if dispute.ID == "" {
		return disputes.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "dispute id missing")
	}
	if dispute.Charge == nil || dispute.Charge.ID == "" {
		return disputes.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "dispute charge missing")
	}

	status, err := disputeStatusFrom(dispute.Status)
	if err != nil {
		return disputes.Event{}, err
	}

	return disputes.Event{
		GatewayEventID:   event.ID,
		GatewayDisputeID: dispute.ID,
		ChargeResourceID: dispute.Charge.ID,
		AmountCents:      dispute.Amount,
		Currency:         string(dispute.Currency),
		Reason:           string(dispute.Reason),
		Status:           status,
	}, nil
}

// disputeStatusFrom collapses Stripe's warning_* inquiry statuses into their
// full-dispute counterparts; the response workflow is the same either way.
func disputeStatusFrom(status stripe.DisputeStatus) (enums.DisputeStatus, error) {
	switch status {
	case stripe.DisputeStatusNeedsResponse, stripe.DisputeStatusWarningNeedsResponse:
		return enums.DisputeStatusNeedsResponse, nil
	case stripe.DisputeStatusUnderReview, stripe.DisputeStatusWarningUnderReview:
		return enums.DisputeStatusUnderReview, nil
	case stripe.DisputeStatusWon:
		return enums.DisputeStatusWon, nil
	case stripe.DisputeStatusLost:
		return enums.DisputeStatusLost, nil
	case stripe.DisputeStatusWarningClosed:
		return enums.DisputeStatusWarningClosed, nil
	default:
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported dispute status %q", status))
	}
}
