package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestIsUniqueViolation(t *testing.T) {
	pgxErr := &pgconn.PgError{Code: "23505", ConstraintName: "payment_intents_idempotency_key_key"}

	if !IsUniqueViolation(pgxErr, "") {
		t.Fatalf("expected pgx unique violation to match")
	}
	if !IsUniqueViolation(pgxErr, "payment_intents_idempotency_key_key") {
		t.Fatalf("expected constraint name to match")
	}
	if IsUniqueViolation(pgxErr, "other_constraint") {
		t.Fatalf("expected mismatched constraint to fail")
	}

	wrapped := fmt.Errorf("create intent: %w", pgxErr)
	if !IsUniqueViolation(wrapped, "") {
		t.Fatalf("expected wrapped error to match")
	}

	pqErr := &pq.Error{Code: "23505", Constraint: "charges_idempotency_key_key"}
	if !IsUniqueViolation(pqErr, "charges_idempotency_key_key") {
		t.Fatalf("expected pq unique violation to match")
	}

	sqliteErr := errors.New("UNIQUE constraint failed: payment_intents.idempotency_key")
	if !IsUniqueViolation(sqliteErr, "idempotency_key") {
		t.Fatalf("expected sqlite message fallback to match")
	}

	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Fatalf("foreign key violation should not match")
	}
	if IsUniqueViolation(nil, "") {
		t.Fatalf("nil error should not match")
	}
}

func TestIsLockNotAvailable(t *testing.T) {
	if !IsLockNotAvailable(&pgconn.PgError{Code: "55P03"}) {
		t.Fatalf("expected pgx lock error to match")
	}
	if !IsLockNotAvailable(&pq.Error{Code: "55P03"}) {
		t.Fatalf("expected pq lock error to match")
	}
	if !IsLockNotAvailable(errors.New("pq: could not obtain lock on row in relation \"payment_intents\"")) {
		t.Fatalf("expected message fallback to match")
	}
	if IsLockNotAvailable(&pgconn.PgError{Code: "23505"}) {
		t.Fatalf("unique violation should not match lock check")
	}
	if IsLockNotAvailable(nil) {
		t.Fatalf("nil error should not match")
	}
}
