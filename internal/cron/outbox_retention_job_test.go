package cron

import (
	"context"
	"io"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/cartpay-io/cartpay-backend/pkg/logger"
)

type stubRetentionRepo struct {
	cutoff      time.Time
	minAttempts int
	deleted     int64
}

func (s *stubRetentionRepo) DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error) {
	s.cutoff = cutoff
	s.minAttempts = minAttemptCount
	return s.deleted, nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func TestOutboxRetentionJobUsesConfiguredWindow(t *testing.T) {
	t.Parallel()

	repo := &stubRetentionRepo{deleted: 7}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:      logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		DB:          stubTxRunner{},
		Repository:  repo,
		Retention:   14,
		MinAttempts: 3,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	wantCutoff := time.Now().UTC().Add(-14 * 24 * time.Hour)
	if diff := repo.cutoff.Sub(wantCutoff); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("cutoff = %s, want about %s", repo.cutoff, wantCutoff)
	}
	if repo.minAttempts != 3 {
		t.Fatalf("min attempts = %d, want 3", repo.minAttempts)
	}
}
