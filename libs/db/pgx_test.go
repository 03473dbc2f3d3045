package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestErrorClassification(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "appointments_active_slot_uidx"})
	if !IsUniqueViolation(unique) {
		t.Fatalf("expected unique violation")
	}
	if IsExclusionViolation(unique) {
		t.Fatalf("unique violation misclassified as exclusion")
	}
	if got := ConstraintName(unique); got != "appointments_active_slot_uidx" {
		t.Fatalf("constraint = %q", got)
	}
	if !IsExclusionViolation(&pgconn.PgError{Code: "23P01"}) {
		t.Fatalf("expected exclusion violation")
	}
	if IsUniqueViolation(errors.New("boom")) {
		t.Fatalf("plain error is not a unique violation")
	}
	if !IsNoRows(fmt.Errorf("get: %w", pgx.ErrNoRows)) {
		t.Fatalf("expected no rows")
	}
}
