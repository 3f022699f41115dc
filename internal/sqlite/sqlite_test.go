package sqlite_test

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/myrjola/periodize/internal/sqlite"
	"github.com/myrjola/periodize/internal/testhelpers"
)

func newDatabase(t *testing.T) *sqlite.Database {
	t.Helper()
	db, err := sqlite.NewDatabase(t.Context(), ":memory:", testhelpers.NewLogger(testhelpers.NewWriter(t)))
	if err != nil {
		t.Fatalf("NewDatabase() unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewDatabase_Fixtures(t *testing.T) {
	db := newDatabase(t)
	var count int
	if err := db.ReadOnly.QueryRowContext(t.Context(), "SELECT COUNT(*) FROM exercises").Scan(&count); err != nil {
		t.Fatalf("count exercises: %v", err)
	}
	if count == 0 {
		t.Error("expected fixture exercises")
	}
}

func TestDatabase_WithTx(t *testing.T) {
	db := newDatabase(t)
	ctx := t.Context()
	errBoom := errors.New("boom")

	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO exercises (name) VALUES ('Front Squat')"); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("WithTx() error = %v, want %v", err, errBoom)
	}

	var count int
	if err = db.ReadOnly.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM exercises WHERE name = 'Front Squat'").Scan(&count); err != nil {
		t.Fatalf("count exercises: %v", err)
	}
	if count != 0 {
		t.Errorf("rolled back insert is visible, count = %d", count)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	db := newDatabase(t)
	ctx := t.Context()

	_, err := db.ReadWrite.ExecContext(ctx, `
INSERT INTO plan_applications (id, plan_name, start_date) VALUES ('00000000-0000-0000-0000-000000000001', 'p', '2026-01-05');
INSERT INTO workouts (plan_application_id, order_index, workout_date) VALUES
    ('00000000-0000-0000-0000-000000000001', 0, '2026-01-05'),
    ('00000000-0000-0000-0000-000000000001', 1, '2026-01-06');`)
	if err != nil {
		t.Fatalf("insert workouts: %v", err)
	}

	// A single-pass shift collides with the neighbouring row.
	_, err = db.ReadWrite.ExecContext(ctx, "UPDATE workouts SET order_index = order_index + 1 WHERE order_index = 0")
	if !sqlite.IsUniqueViolation(err) {
		t.Errorf("IsUniqueViolation(%v) = false, want true", err)
	}
	if sqlite.IsUniqueViolation(errors.New("other")) {
		t.Error("IsUniqueViolation(other) = true, want false")
	}
	if sqlite.IsUniqueViolation(nil) {
		t.Error("IsUniqueViolation(nil) = true, want false")
	}
}
