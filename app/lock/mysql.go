package lock

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// mysqlMaxLockName is the longest name GET_LOCK accepts.
const mysqlMaxLockName = 64

type MySQLLocker struct {
	db    *sql.DB
	wait  time.Duration
	mu    sync.Mutex
	conns map[string]*sql.Conn
}

// NewMySQLLocker constructs a MySQL-based advisory lock manager. Acquire waits up to wait
// for a competing holder; zero fails immediately.
func NewMySQLLocker(db *sql.DB, wait time.Duration) *MySQLLocker {
	return &MySQLLocker{
		db:    db,
		wait:  wait,
		conns: make(map[string]*sql.Conn),
	}
}

// Acquire obtains a named MySQL advisory lock and holds a connection. The lock lives as long
// as the held connection, so ttl is not used.
func (l *MySQLLocker) Acquire(ctx context.Context, key string, _ time.Duration) error {
	l.mu.Lock()
	if _, exists := l.conns[key]; exists {
		l.mu.Unlock()
		return ErrAlreadyHeld
	}
	l.mu.Unlock()

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("lock connection for %s: %w", key, err)
	}

	timeoutSeconds := int(l.wait.Seconds())

	// GET_LOCK yields NULL on server-side errors such as a killed thread.
	var acquired sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", lockName(key), timeoutSeconds).Scan(&acquired); err != nil {
		_ = conn.Close()
		return fmt.Errorf("get_lock %s: %w", key, err)
	}
	if !acquired.Valid || acquired.Int64 != 1 {
		_ = conn.Close()
		return ErrNotAcquired
	}

	l.mu.Lock()
	l.conns[key] = conn
	l.mu.Unlock()

	return nil
}

// Release frees a named MySQL advisory lock and closes its connection.
func (l *MySQLLocker) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	conn, ok := l.conns[key]
	if ok {
		delete(l.conns, key)
	}
	l.mu.Unlock()

	if !ok {
		return nil
	}

	defer conn.Close()
	if _, err := conn.ExecContext(ctx, "SELECT RELEASE_LOCK(?)", lockName(key)); err != nil {
		return fmt.Errorf("release_lock %s: %w", key, err)
	}
	return nil
}

// lockName fits key into GET_LOCK's name limit, hashing keys that are too long.
func lockName(key string) string {
	if len(key) <= mysqlMaxLockName {
		return key
	}
	sum := sha1.Sum([]byte(key))
	return "mailtasks:" + hex.EncodeToString(sum[:])
}
