package disputes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cartpay-io/cartpay-backend/pkg/db/models"
	"github.com/cartpay-io/cartpay-backend/pkg/enums"
	pkgerrors "github.com/cartpay-io/cartpay-backend/pkg/errors"
	"github.com/cartpay-io/cartpay-backend/pkg/logger"
	"github.com/cartpay-io/cartpay-backend/pkg/outbox"
	"github.com/cartpay-io/cartpay-backend/pkg/outbox/payloads"
)

// Webhook deliveries are deduplicated by event id for this long; gateways
// redeliver within hours, not days.
const eventDedupeTTL = 72 * time.Hour

// Event is a normalized gateway dispute notification.
type Event struct {
	GatewayEventID   string
	GatewayDisputeID string
	ChargeResourceID string
	AmountCents      int64
	Currency         string
	Reason           string
	Status           enums.DisputeStatus
}

// Service annotates charges with gateway dispute events. Disputes never
// mutate payment or intent amounts; money movement from a lost dispute shows
// up through the gateway's balance reporting, not this engine.
type Service interface {
	HandleEvent(ctx context.Context, event Event) (*models.Dispute, error)
	ListByCharge(ctx context.Context, chargeID uuid.UUID) ([]models.Dispute, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type eventGuard interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

type service struct {
	tx     txRunner
	repo   Repository
	guard  eventGuard
	outbox outboxPublisher
	logg   *logger.Logger
}

// NewService wires the dispute reconciler.
func NewService(tx txRunner, repo Repository, guard eventGuard, publisher outboxPublisher, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("repository required")
	}
	if guard == nil {
		return nil, fmt.Errorf("event guard required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{tx: tx, repo: repo, guard: guard, outbox: publisher, logg: logg}, nil
}

// HandleEvent upserts the dispute a gateway webhook describes. Redelivered
// event ids are dropped; an updated dispute (new status) arrives under a new
// event id and lands on the same dispute row.
func (s *service) HandleEvent(ctx context.Context, event Event) (*models.Dispute, error) {
	if err := validateEvent(event); err != nil {
		return nil, err
	}

	dedupeKey := s.guard.IdempotencyKey("dispute-event", event.GatewayEventID)
	fresh, err := s.guard.SetNX(ctx, dedupeKey, "1", eventDedupeTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "dispute event dedupe check")
	}
	if !fresh {
		logCtx := s.logg.WithField(ctx, "gateway_event_id", event.GatewayEventID)
		s.logg.Info(logCtx, "dispute event already processed, dropping redelivery")
		return s.repo.FindByGatewayDisputeID(ctx, event.GatewayDisputeID)
	}

	dispute, err := s.record(ctx, event)
	if err != nil {
		// The dispute was not committed; free the dedupe slot so the
		// gateway's redelivery of this event id gets processed.
		if delErr := s.guard.Del(ctx, dedupeKey); delErr != nil {
			logCtx := s.logg.WithField(ctx, "gateway_event_id", event.GatewayEventID)
			logCtx = s.logg.WithField(logCtx, "error", delErr)
			s.logg.Warn(logCtx, "failed to release dispute event dedupe key")
		}
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"dispute_id":         dispute.ID,
		"gateway_dispute_id": dispute.GatewayDisputeID,
		"charge_id":          dispute.ChargeID,
		"status":             dispute.Status,
	})
	s.logg.Info(logCtx, "dispute recorded")
	return dispute, nil
}

func (s *service) record(ctx context.Context, event Event) (*models.Dispute, error) {
	mirror, err := s.repo.FindGatewayChargeByResourceID(ctx, event.ChargeResourceID)
	if err != nil {
		return nil, err
	}
	if mirror == nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"gateway_dispute_id": event.GatewayDisputeID,
			"charge_resource_id": event.ChargeResourceID,
		})
		s.logg.Warn(logCtx, "dispute references an unknown gateway charge")
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "charge for dispute not found").
			WithDetails(map[string]any{"charge_resource_id": event.ChargeResourceID})
	}

	dispute := &models.Dispute{
		ID:               uuid.New(),
		GatewayDisputeID: event.GatewayDisputeID,
		ChargeID:         mirror.ChargeID,
		AmountCents:      event.AmountCents,
		Currency:         strings.ToLower(event.Currency),
		Reason:           event.Reason,
		Status:           event.Status,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.UpsertDispute(ctx, dispute); err != nil {
			return err
		}
		current, err := repo.FindByGatewayDisputeID(ctx, event.GatewayDisputeID)
		if err != nil {
			return err
		}
		if current != nil {
			dispute = current
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDisputeReceived,
			AggregateType: enums.AggregateDispute,
			AggregateID:   dispute.ID,
			Data: payloads.DisputeReceivedEvent{
				DisputeID:        dispute.ID,
				ChargeID:         dispute.ChargeID,
				GatewayDisputeID: dispute.GatewayDisputeID,
				AmountCents:      dispute.AmountCents,
				Currency:         dispute.Currency,
				Reason:           dispute.Reason,
				Status:           dispute.Status,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return dispute, nil
}

func (s *service) ListByCharge(ctx context.Context, chargeID uuid.UUID) ([]models.Dispute, error) {
	if chargeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge id is required")
	}
	return s.repo.ListByCharge(ctx, chargeID)
}

func validateEvent(event Event) error {
	if strings.TrimSpace(event.GatewayEventID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "gateway event id is required")
	}
	if strings.TrimSpace(event.GatewayDisputeID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "gateway dispute id is required")
	}
	if strings.TrimSpace(event.ChargeResourceID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "charge resource id is required")
	}
	if !event.Status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown dispute status %q", event.Status))
	}
	return nil
}
