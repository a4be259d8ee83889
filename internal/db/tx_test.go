package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
)

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(&mysql.MySQLError{Number: 1213}) {
		t.Errorf("deadlock must be retryable")
	}
	if !IsRetryable(fmt.Errorf("wrapped: %w", &mysql.MySQLError{Number: 1205})) {
		t.Errorf("lock wait timeout must be retryable through wrapping")
	}
	if IsRetryable(&mysql.MySQLError{Number: 1062}) {
		t.Errorf("duplicate key is not retryable")
	}
	if IsRetryable(errors.New("random")) {
		t.Errorf("plain error is not retryable")
	}
}

func TestIsDuplicate(t *testing.T) {
	if !IsDuplicate(&mysql.MySQLError{Number: 1062}) {
		t.Errorf("1062 must be duplicate")
	}
	if IsDuplicate(&mysql.MySQLError{Number: 1213}) {
		t.Errorf("1213 is not duplicate")
	}
	if IsDuplicate(nil) {
		t.Errorf("nil is not duplicate")
	}
}

func TestWithTxCommitsOnNil(t *testing.T) {
	dbc, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer dbc.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE bookings").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = WithTx(context.Background(), dbc, func(tx *sql.Tx) error {
		_, err := tx.Exec("UPDATE bookings SET status=? WHERE id=?", "confirmed", 1)
		return err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	dbc, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer dbc.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	if got := WithTx(context.Background(), dbc, func(tx *sql.Tx) error { return boom }); !errors.Is(got, boom) {
		t.Fatalf("expected boom, got %v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWithTxRetryRetriesDeadlock(t *testing.T) {
	dbc, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	defer dbc.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	err = WithTxRetry(context.Background(), dbc, 3, func(tx *sql.Tx) error {
		calls++
		if calls == 1 {
			return &mysql.MySQLError{Number: 1213}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
