package lock

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestMySQLLockerAcquireRelease(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	locker := NewMySQLLocker(db, 0)
	key := InvocationKey("task-1")
	mock.ExpectQuery("SELECT GET_LOCK").
		WithArgs(key, 0).
		WillReturnRows(sqlmock.NewRows([]string{"acquired"}).AddRow(1))

	if err := locker.Acquire(context.Background(), key, 2*time.Minute); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := locker.Acquire(context.Background(), key, 2*time.Minute); err != ErrAlreadyHeld {
		t.Fatalf("expected ErrAlreadyHeld, got %v", err)
	}

	mock.ExpectExec("SELECT RELEASE_LOCK").
		WithArgs(key).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := locker.Release(context.Background(), key); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMySQLLockerNotAcquired(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	locker := NewMySQLLocker(db, 5*time.Second)
	mock.ExpectQuery("SELECT GET_LOCK").
		WithArgs("lock-key", 5).
		WillReturnRows(sqlmock.NewRows([]string{"acquired"}).AddRow(0))

	if err := locker.Acquire(context.Background(), "lock-key", 2*time.Minute); err != ErrNotAcquired {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLockNameHashesLongKeys(t *testing.T) {
	t.Parallel()

	short := InvocationKey("0b9f6c1e-6f2a-4b53-9d7e-2f1a8f3c4d5e")
	if lockName(short) != short {
		t.Fatalf("expected short key unchanged")
	}

	long := "mailtasks:" + strings.Repeat("x", 80)
	name := lockName(long)
	if len(name) > mysqlMaxLockName {
		t.Fatalf("expected name within %d chars, got %d", mysqlMaxLockName, len(name))
	}
	if name != lockName(long) {
		t.Fatalf("expected stable hashing")
	}
}
