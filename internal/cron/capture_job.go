package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/cartpay-io/cartpay-backend/pkg/db/models"
	pkgerrors "github.com/cartpay-io/cartpay-backend/pkg/errors"
	"github.com/cartpay-io/cartpay-backend/pkg/logger"
)

const defaultCaptureBatch = 100

// captureService is the slice of the payment engine the sweep drives.
type captureService interface {
	DueForCapture(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error)
	Capture(ctx context.Context, paymentIntentID uuid.UUID) (*models.PaymentIntent, error)
}

// CaptureJobParams configure the delayed capture sweep.
type CaptureJobParams struct {
	Logger    *logger.Logger
	Payments  captureService
	BatchSize int
}

// NewCaptureJob constructs the job that settles intents whose capture_after
// has elapsed. Capture itself is idempotent, so a crashed sweep simply
// retries the same intents next cycle.
func NewCaptureJob(params CaptureJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultCaptureBatch
	}
	return &captureJob{
		logg:     params.Logger,
		payments: params.Payments,
		batch:    batch,
		now:      time.Now,
	}, nil
}

type captureJob struct {
	logg     *logger.Logger
	payments captureService
	batch    int
	now      func() time.Time
}

func (j *captureJob) Name() string { return "delayed-capture" }

func (j *captureJob) Run(ctx context.Context) error {
	due, err := j.payments.DueForCapture(ctx, j.now().UTC(), j.batch)
	if err != nil {
		return fmt.Errorf("query due intents: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	var captured int
	var errs []error
	for _, intentID := range due {
		if _, err := j.payments.Capture(ctx, intentID); err != nil {
			// A retryable failure (row locked, gateway briefly down) resolves
			// itself on the next sweep; only persistent failures surface.
			if pkgerrors.IsRetryable(err) {
				logCtx := j.logg.WithField(ctx, "payment_intent_id", intentID.String())
				j.logg.Warn(logCtx, "capture deferred to next sweep")
				continue
			}
			errs = append(errs, fmt.Errorf("capture intent %s: %w", intentID, err))
			continue
		}
		captured++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"due":      len(due),
		"captured": captured,
		"failed":   len(errs),
	})
	j.logg.Info(logCtx, "delayed capture sweep complete")
	return multierr.Combine(errs...)
}
