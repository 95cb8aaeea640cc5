package disputes

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cartpay-io/cartpay-backend/pkg/db/models"
	"github.com/cartpay-io/cartpay-backend/pkg/enums"
	pkgerrors "github.com/cartpay-io/cartpay-backend/pkg/errors"
	"github.com/cartpay-io/cartpay-backend/pkg/logger"
	"github.com/cartpay-io/cartpay-backend/pkg/outbox"
)

func newTestService(t *testing.T, repo *stubRepo) (Service, *stubGuard, *stubOutboxPublisher) {
	t.Helper()
	guard := newStubGuard()
	publisher := &stubOutboxPublisher{}
	svc, err := NewService(stubTxRunner{}, repo, guard, publisher, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc, guard, publisher
}

func disputeEvent(eventID string) Event {
	return Event{
		GatewayEventID:   eventID,
		GatewayDisputeID: "dp_1",
		ChargeResourceID: "ch_1",
		AmountCents:      500,
		Currency:         "USD",
		Reason:           "fraudulent",
		Status:           enums.DisputeStatusNeedsResponse,
	}
}

func TestHandleEventAnnotatesCharge(t *testing.T) {
	t.Parallel()

	repo := newStubRepo()
	chargeID := repo.seedMirror("ch_1")
	svc, _, publisher := newTestService(t, repo)

	dispute, err := svc.HandleEvent(context.Background(), disputeEvent("evt_1"))
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}

	if dispute.ChargeID != chargeID {
		t.Fatalf("charge id = %s, want %s", dispute.ChargeID, chargeID)
	}
	if dispute.Currency != "usd" {
		t.Fatalf("currency = %s, want normalized usd", dispute.Currency)
	}
	if dispute.Status != enums.DisputeStatusNeedsResponse {
		t.Fatalf("status = %s", dispute.Status)
	}
	if len(publisher.events) != 1 || publisher.events[0].EventType != enums.EventDisputeReceived {
		t.Fatalf("events = %+v, want one dispute.received", publisher.events)
	}
}

func TestHandleEventDropsRedeliveredEventID(t *testing.T) {
	t.Parallel()

	repo := newStubRepo()
	repo.seedMirror("ch_1")
	svc, _, publisher := newTestService(t, repo)
	ctx := context.Background()

	first, err := svc.HandleEvent(ctx, disputeEvent("evt_1"))
	if err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	second, err := svc.HandleEvent(ctx, disputeEvent("evt_1"))
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	if second.ID != first.ID {
		t.Fatal("redelivery must resolve to the same dispute")
	}
	if repo.upserts != 1 {
		t.Fatalf("upserts = %d, want 1", repo.upserts)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("events = %d, want 1", len(publisher.events))
	}
}

func TestHandleEventUpdatesDisputeInPlace(t *testing.T) {
	t.Parallel()

	repo := newStubRepo()
	repo.seedMirror("ch_1")
	svc, _, _ := newTestService(t, repo)
	ctx := context.Background()

	first, err := svc.HandleEvent(ctx, disputeEvent("evt_1"))
	if err != nil {
		t.Fatalf("first event: %v", err)
	}

	update := disputeEvent("evt_2")
	update.Status = enums.DisputeStatusLost
	second, err := svc.HandleEvent(ctx, update)
	if err != nil {
		t.Fatalf("update event: %v", err)
	}

	if second.ID != first.ID {
		t.Fatal("status update must land on the same dispute row")
	}
	if second.Status != enums.DisputeStatusLost {
		t.Fatalf("status = %s, want lost", second.Status)
	}
	if len(repo.disputes) != 1 {
		t.Fatalf("dispute rows = %d, want 1", len(repo.disputes))
	}
}

func TestHandleEventUnknownChargeSurfacesNotFound(t *testing.T) {
	t.Parallel()

	svc, _, publisher := newTestService(t, newStubRepo())

	_, err := svc.HandleEvent(context.Background(), disputeEvent("evt_1"))
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}
	if len(publisher.events) != 0 {
		t.Fatal("no event may be emitted for an unresolvable dispute")
	}
}

func TestHandleEventReleasesDedupeSlotOnFailedWrite(t *testing.T) {
	t.Parallel()

	repo := newStubRepo()
	repo.seedMirror("ch_1")
	repo.failUpserts = 1
	svc, guard, _ := newTestService(t, repo)
	ctx := context.Background()

	_, err := svc.HandleEvent(ctx, disputeEvent("evt_1"))
	if err == nil {
		t.Fatal("first delivery must surface the write failure")
	}
	if len(guard.released) != 1 {
		t.Fatalf("released keys = %v, want the dedupe slot freed", guard.released)
	}

	dispute, err := svc.HandleEvent(ctx, disputeEvent("evt_1"))
	if err != nil {
		t.Fatalf("redelivery after transient failure: %v", err)
	}
	if dispute == nil || len(repo.disputes) != 1 {
		t.Fatalf("dispute = %v, rows = %d, want the redelivery persisted", dispute, len(repo.disputes))
	}
}

func TestHandleEventRejectsUnknownStatus(t *testing.T) {
	t.Parallel()

	svc, guard, _ := newTestService(t, newStubRepo())

	event := disputeEvent("evt_1")
	event.Status = enums.DisputeStatus("escalated")
	_, err := svc.HandleEvent(context.Background(), event)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("err = %v, want VALIDATION_ERROR", err)
	}
	if len(guard.seen) != 0 {
		t.Fatal("invalid events must not consume the dedupe slot")
	}
}

// ---- stubs ----

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubGuard struct {
	seen     map[string]bool
	released []string
}

func newStubGuard() *stubGuard {
	return &stubGuard{seen: map[string]bool{}}
}

func (g *stubGuard) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if g.seen[key] {
		return false, nil
	}
	g.seen[key] = true
	return true, nil
}

func (g *stubGuard) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(g.seen, key)
		g.released = append(g.released, key)
	}
	return nil
}

func (g *stubGuard) IdempotencyKey(scope, id string) string {
	return scope + ":" + id
}

type stubOutboxPublisher struct {
	events []outbox.DomainEvent
}

func (p *stubOutboxPublisher) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	p.events = append(p.events, event)
	return nil
}

type stubRepo struct {
	mirrors     map[string]*models.GatewayCharge
	disputes    map[string]*models.Dispute
	upserts     int
	failUpserts int
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		mirrors:  map[string]*models.GatewayCharge{},
		disputes: map[string]*models.Dispute{},
	}
}

func (r *stubRepo) seedMirror(resourceID string) uuid.UUID {
	chargeID := uuid.New()
	r.mirrors[resourceID] = &models.GatewayCharge{
		ID:          uuid.New(),
		ChargeID:    chargeID,
		Gateway:     enums.GatewayKindStripe,
		ResourceID:  resourceID,
		Status:      "succeeded",
		AmountCents: 500,
		Currency:    "usd",
	}
	return chargeID
}

func (r *stubRepo) WithTx(tx *gorm.DB) Repository { return r }

func (r *stubRepo) FindGatewayChargeByResourceID(ctx context.Context, resourceID string) (*models.GatewayCharge, error) {
	return r.mirrors[resourceID], nil
}

func (r *stubRepo) UpsertDispute(ctx context.Context, dispute *models.Dispute) error {
	r.upserts++
	if r.failUpserts > 0 {
		r.failUpserts--
		return pkgerrors.New(pkgerrors.CodeDependency, "connection reset")
	}
	if existing, ok := r.disputes[dispute.GatewayDisputeID]; ok {
		existing.AmountCents = dispute.AmountCents
		existing.Currency = dispute.Currency
		existing.Reason = dispute.Reason
		existing.Status = dispute.Status
		return nil
	}
	r.disputes[dispute.GatewayDisputeID] = dispute
	return nil
}

func (r *stubRepo) FindByGatewayDisputeID(ctx context.Context, gatewayDisputeID string) (*models.Dispute, error) {
	return r.disputes[gatewayDisputeID], nil
}

func (r *stubRepo) ListByCharge(ctx context.Context, chargeID uuid.UUID) ([]models.Dispute, error) {
	var out []models.Dispute
	for _, dispute := range r.disputes {
		if dispute.ChargeID == chargeID {
			out = append(out, *dispute)
		}
	}
	return out, nil
}
