// Package lock provides MySQL advisory locks that keep two hosts sharing an
// audit ledger from wiping the same device at once.
package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrLockTimeout is returned when another holder keeps the lock past the
// acquisition timeout.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Acquisition timeouts in seconds.
const (
	// TimeoutImmediate fails at once if the lock is taken.
	TimeoutImmediate = 0
	// TimeoutShort is used for fast duplicate detection.
	TimeoutShort = 1
	// TimeoutInfinite waits until the lock is free. MySQL treats negative
	// values as infinite.
	TimeoutInfinite = -1
)

// releaseTimeout bounds RELEASE_LOCK during cleanup.
const releaseTimeout = 5 * time.Second

// AdvisoryLock is a named MySQL lock (GET_LOCK/RELEASE_LOCK). MySQL binds the
// lock to a session, so the lock pins one pooled connection while held.
type AdvisoryLock struct {
	db       *sql.DB
	conn     *sql.Conn
	lockName string
}

// NewAdvisoryLock creates a lock with the given name. Nothing is acquired
// until AcquireLock.
func NewAdvisoryLock(db *sql.DB, lockName string) *AdvisoryLock {
	return &AdvisoryLock{db: db, lockName: lockName}
}

// AcquireLock tries to take the lock within timeoutSeconds. It reports false
// without error when another session holds it.
//
// GET_LOCK returns 1 on success, 0 on timeout and NULL on error.
func (a *AdvisoryLock) AcquireLock(ctx context.Context, timeoutSeconds int) (bool, error) {
	if a.conn != nil {
		return true, nil
	}

	conn, err := a.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to reserve connection for lock %q: %w", a.lockName, err)
	}

	var result sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", a.lockName, timeoutSeconds).Scan(&result); err != nil {
		conn.Close()
		return false, fmt.Errorf("failed to execute GET_LOCK: %w", err)
	}
	if !result.Valid {
		conn.Close()
		return false, fmt.Errorf("GET_LOCK returned NULL for lock %q (possible database error)", a.lockName)
	}

	switch result.Int64 {
	case 1:
		a.conn = conn
		return true, nil
	case 0:
		conn.Close()
		return false, nil
	default:
		conn.Close()
		return false, fmt.Errorf("unexpected GET_LOCK return value: %d", result.Int64)
	}
}

// ReleaseLock releases the lock and returns its connection to the pool. It
// reports false when the lock was not held.
//
// RELEASE_LOCK returns 1 when released, 0 when held by another session and
// NULL when no such lock exists.
func (a *AdvisoryLock) ReleaseLock(ctx context.Context) (bool, error) {
	if a.conn == nil {
		return false, nil
	}
	conn := a.conn
	a.conn = nil
	defer conn.Close()

	var result sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", a.lockName).Scan(&result); err != nil {
		return false, fmt.Errorf("failed to execute RELEASE_LOCK: %w", err)
	}
	if !result.Valid {
		return false, fmt.Errorf("RELEASE_LOCK returned NULL for lock %q (lock did not exist)", a.lockName)
	}
	return result.Int64 == 1, nil
}

// IsHeld reports whether this instance holds the lock.
func (a *AdvisoryLock) IsHeld() bool {
	return a.conn != nil
}

// LockName returns the lock's name.
func (a *AdvisoryLock) LockName() string {
	return a.lockName
}

// AcquireOrFail takes the lock with TimeoutShort, returning ErrLockTimeout
// when another holder has it.
func (a *AdvisoryLock) AcquireOrFail(ctx context.Context) error {
	acquired, err := a.AcquireLock(ctx, TimeoutShort)
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("%w: lock %q is held by another instance", ErrLockTimeout, a.lockName)
	}
	return nil
}

// WithLock runs fn while holding the lock. The lock is released even if fn
// panics.
func (a *AdvisoryLock) WithLock(ctx context.Context, timeoutSeconds int, fn func() error) error {
	acquired, err := a.AcquireLock(ctx, timeoutSeconds)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("%w: lock %q is held by another instance", ErrLockTimeout, a.lockName)
	}

	defer func() {
		// The caller's context may already be cancelled.
		releaseCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		_, _ = a.ReleaseLock(releaseCtx)
	}()

	return fn()
}

// DeviceLockName returns "gowipe:device:<serial>" with unsafe characters
// replaced. MySQL caps lock names at 64 characters.
func DeviceLockName(serial string) string {
	sanitized := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, strings.TrimSpace(serial))

	name := "gowipe:device:" + sanitized
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}

// NewDeviceLock creates the advisory lock for a device serial.
func NewDeviceLock(db *sql.DB, serial string) *AdvisoryLock {
	return NewAdvisoryLock(db, DeviceLockName(serial))
}

// IsDeviceBusy reports whether another session holds the device's lock. The
// answer may change immediately after it is returned.
func IsDeviceBusy(ctx context.Context, db *sql.DB, serial string) (bool, error) {
	l := NewDeviceLock(db, serial)
	acquired, err := l.AcquireLock(ctx, TimeoutImmediate)
	if err != nil {
		return false, fmt.Errorf("failed to check lock for device %q: %w", serial, err)
	}
	if acquired {
		_, _ = l.ReleaseLock(ctx)
		return false, nil
	}
	return true, nil
}
