package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "gorm", err: gorm.ErrDuplicatedKey, want: true},
		{name: "postgres", err: &pgconn.PgError{Code: "23505"}, want: true},
		{name: "postgres wrapped", err: fmt.Errorf("claim: %w", &pgconn.PgError{Code: "23505"}), want: true},
		{name: "postgres other", err: &pgconn.PgError{Code: "40001"}, want: false},
		{name: "mysql", err: &mysql.MySQLError{Number: 1062}, want: true},
		{name: "sqlite", err: errors.New("UNIQUE constraint failed: reference_numbers.value"), want: true},
		{name: "other", err: errors.New("boom"), want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsDuplicateKeyErr(tc.err); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestIsRetryableTxErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "serialization", err: &pgconn.PgError{Code: "40001"}, want: true},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, want: true},
		{name: "lock timeout", err: fmt.Errorf("lock: %w", &pgconn.PgError{Code: "55P03"}), want: true},
		{name: "unique", err: &pgconn.PgError{Code: "23505"}, want: false},
		{name: "mysql deadlock", err: &mysql.MySQLError{Number: 1213}, want: true},
		{name: "mysql lock wait", err: &mysql.MySQLError{Number: 1205}, want: true},
		{name: "sqlite busy", err: errors.New("database is locked (5) (SQLITE_BUSY)"), want: true},
		{name: "not found", err: gorm.ErrRecordNotFound, want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryableTxErr(tc.err); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestIsLockTimeoutErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "postgres lock not available", err: fmt.Errorf("lock: %w", &pgconn.PgError{Code: "55P03"}), want: true},
		{name: "postgres deadlock", err: &pgconn.PgError{Code: "40P01"}, want: false},
		{name: "mysql lock wait", err: &mysql.MySQLError{Number: 1205}, want: true},
		{name: "mysql deadlock", err: &mysql.MySQLError{Number: 1213}, want: false},
		{name: "sqlite busy", err: errors.New("database is locked (5) (SQLITE_BUSY)"), want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsLockTimeoutErr(tc.err); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}
