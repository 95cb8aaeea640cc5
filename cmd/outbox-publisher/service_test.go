package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cartpay-io/cartpay-backend/pkg/config"
	"github.com/cartpay-io/cartpay-backend/pkg/db/models"
	"github.com/cartpay-io/cartpay-backend/pkg/enums"
	"github.com/cartpay-io/cartpay-backend/pkg/logger"
)

type stubDB struct{}

func (stubDB) Ping(ctx context.Context) error { return nil }

func (stubDB) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubOutboxRepo struct {
	pending   []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (r *stubOutboxRepo) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if len(r.pending) > limit {
		return r.pending[:limit], nil
	}
	return r.pending, nil
}

func (r *stubOutboxRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	r.published = append(r.published, id)
	return nil
}

func (r *stubOutboxRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	r.failed = append(r.failed, id)
	return nil
}

func (r *stubOutboxRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	r.terminal = append(r.terminal, id)
	return nil
}

type stubDLQRepo struct {
	entries []models.OutboxDLQ
}

func (r *stubDLQRepo) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	r.entries = append(r.entries, entry)
	return nil
}

type stubPublishResult struct {
	err error
}

func (r stubPublishResult) Get(ctx context.Context) (string, error) {
	return "msg-1", r.err
}

type stubPublisher struct {
	calls    int
	messages []*gcppubsub.Message
	err      error
}

func (p *stubPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	p.calls++
	p.messages = append(p.messages, msg)
	return stubPublishResult{err: p.err}
}

type publisherFixture struct {
	service *Service
	repo    *stubOutboxRepo
	dlq     *stubDLQRepo
	pub     *stubPublisher
}

func newPublisherFixture(t *testing.T, pending []models.OutboxEvent) *publisherFixture {
	t.Helper()

	repo := &stubOutboxRepo{pending: pending}
	dlq := &stubDLQRepo{}
	pub := &stubPublisher{}

	cfg := &config.Config{}
	cfg.Outbox.BatchSize = 10
	cfg.Outbox.MaxAttempts = 3

	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:            stubDB{},
		Repository:    repo,
		DLQRepository: dlq,
		Publisher:     pub,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &publisherFixture{service: service, repo: repo, dlq: dlq, pub: pub}
}

func pendingEvent(eventType enums.OutboxEventType, attempts int) models.OutboxEvent {
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregateCartPayment,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{"version":1}`),
		CreatedAt:     time.Now().UTC(),
		AttemptCount:  attempts,
	}
}

func TestProcessBatchPublishesPendingEvents(t *testing.T) {
	events := []models.OutboxEvent{
		pendingEvent(enums.EventPaymentCreated, 0),
		pendingEvent(enums.EventPaymentCaptured, 0),
	}
	f := newPublisherFixture(t, events)

	processed, err := f.service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to be processed")
	}
	if f.pub.calls != 2 {
		t.Fatalf("expected 2 publishes, got %d", f.pub.calls)
	}
	if len(f.repo.published) != 2 {
		t.Fatalf("expected 2 events marked published, got %d", len(f.repo.published))
	}
	if got := f.pub.messages[0].Attributes["event_type"]; got != "payment.created" {
		t.Fatalf("expected event_type attribute, got %q", got)
	}
}

func TestProcessBatchEmptyIsNotProcessed(t *testing.T) {
	f := newPublisherFixture(t, nil)

	processed, err := f.service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if processed {
		t.Fatalf("empty batch must not count as processed")
	}
	if f.pub.calls != 0 {
		t.Fatalf("no publish expected for empty batch")
	}
}

func TestProcessBatchRetriesBelowMaxAttempts(t *testing.T) {
	events := []models.OutboxEvent{pendingEvent(enums.EventPaymentRefunded, 0)}
	f := newPublisherFixture(t, events)
	f.pub.err = errors.New("topic unavailable")

	if _, err := f.service.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if len(f.repo.failed) != 1 {
		t.Fatalf("expected one failure mark, got %d", len(f.repo.failed))
	}
	if len(f.repo.terminal) != 0 || len(f.dlq.entries) != 0 {
		t.Fatalf("event below max attempts must not be parked")
	}
}

func TestProcessBatchParksAtMaxAttempts(t *testing.T) {
	// Attempt count 2 with max 3: this failure is the final one.
	events := []models.OutboxEvent{pendingEvent(enums.EventPaymentFailed, 2)}
	f := newPublisherFixture(t, events)
	f.pub.err = errors.New("topic unavailable")

	if _, err := f.service.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if len(f.repo.terminal) != 1 {
		t.Fatalf("expected event marked terminal, got %d", len(f.repo.terminal))
	}
	if len(f.dlq.entries) != 1 {
		t.Fatalf("expected one dlq entry, got %d", len(f.dlq.entries))
	}
	if f.dlq.entries[0].Reason != enums.DLQReasonMaxAttempts {
		t.Fatalf("expected max attempts reason, got %s", f.dlq.entries[0].Reason)
	}
	if len(f.repo.failed) != 0 {
		t.Fatalf("terminal event must not also be marked failed")
	}
}

func TestProcessBatchParksUnknownEventType(t *testing.T) {
	events := []models.OutboxEvent{pendingEvent(enums.OutboxEventType("order.shipped"), 0)}
	f := newPublisherFixture(t, events)

	if _, err := f.service.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if f.pub.calls != 0 {
		t.Fatalf("unknown event type must not be published")
	}
	if len(f.dlq.entries) != 1 || f.dlq.entries[0].Reason != enums.DLQReasonPublishFailed {
		t.Fatalf("expected publish_failed dlq entry, got %+v", f.dlq.entries)
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	cfg := &config.Config{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	if _, err := NewService(ServiceParams{Logger: logg, DB: stubDB{}, Repository: &stubOutboxRepo{}, DLQRepository: &stubDLQRepo{}, Publisher: &stubPublisher{}}); err == nil {
		t.Fatalf("expected error without config")
	}
	if _, err := NewService(ServiceParams{Config: cfg, Logger: logg, DB: stubDB{}, Repository: &stubOutboxRepo{}, DLQRepository: &stubDLQRepo{}}); err == nil {
		t.Fatalf("expected error without publisher or pubsub client")
	}
}
