package storage

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func beginTx(t *testing.T, mock pgxmock.PgxPoolIface) pgx.Tx {
	t.Helper()
	mock.ExpectBegin()
	tx, err := mock.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	return tx
}

func TestResolvePatientReusesExistingByPhone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	tx := beginTx(t, mock)
	mock.ExpectQuery("SELECT id::text FROM patients").
		WithArgs("09175550101").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("p1"))

	repo := NewBookingRepository(nil)
	id, err := repo.ResolvePatient(context.Background(), tx, "Maria S.", "other@example.com", "09175550101")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != "p1" {
		t.Fatalf("expected existing patient p1, got %q", id)
	}
	// No INSERT or UPDATE was expected: the stored record keeps its original
	// name and email even when the booking supplies different ones.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestResolvePatientCreatesWhenPhoneIsNew(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	tx := beginTx(t, mock)
	mock.ExpectQuery("SELECT id::text FROM patients").
		WithArgs("09175550102").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("INSERT INTO patients").
		WithArgs(pgxmock.AnyArg(), "Juan Cruz", "juan@example.com", "09175550102").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("p-new"))

	repo := NewBookingRepository(nil)
	id, err := repo.ResolvePatient(context.Background(), tx, "Juan Cruz", "juan@example.com", "09175550102")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != "p-new" {
		t.Fatalf("expected p-new, got %q", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestResolvePatientAdoptsWinnerAfterInsertRace(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	tx := beginTx(t, mock)
	mock.ExpectQuery("SELECT id::text FROM patients").
		WithArgs("09175550103").
		WillReturnError(pgx.ErrNoRows)
	// ON CONFLICT DO NOTHING returns no row when a concurrent insert won.
	mock.ExpectQuery("INSERT INTO patients").
		WithArgs(pgxmock.AnyArg(), "Ana Reyes", "", "09175550103").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT id::text FROM patients").
		WithArgs("09175550103").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("p-winner"))

	repo := NewBookingRepository(nil)
	id, err := repo.ResolvePatient(context.Background(), tx, "Ana Reyes", "", "09175550103")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != "p-winner" {
		t.Fatalf("expected the concurrent winner's id, got %q", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
