package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dbsmedya/gowipe/internal/lock"
	"github.com/dbsmedya/gowipe/internal/logger"
	"github.com/dbsmedya/gowipe/internal/wipeerr"
)

const lockReleaseTimeout = 5 * time.Second

// MySQLLocker implements DeviceLocker with per-device advisory locks on the
// audit database.
type MySQLLocker struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewMySQLLocker creates a MySQLLocker.
func NewMySQLLocker(db *sql.DB, log *logger.Logger) (*MySQLLocker, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &MySQLLocker{db: db, logger: log}, nil
}

// Acquire takes the device lock or fails with DeviceUnavailable when another
// host holds it.
func (m *MySQLLocker) Acquire(ctx context.Context, serial string) (func(), error) {
	l := lock.NewDeviceLock(m.db, serial)
	if err := l.AcquireOrFail(ctx); err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			return nil, wipeerr.WithHint(
				wipeerr.Wrap(err, wipeerr.DeviceUnavailable, "Device %s is being wiped by another host", serial),
				"wait for the other wipe to finish, then retry")
		}
		return nil, err
	}
	m.logger.Debugw("Device lock acquired", "lock", l.LockName())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), lockReleaseTimeout)
		defer cancel()
		if _, err := l.ReleaseLock(ctx); err != nil {
			m.logger.Warnw("Failed to release device lock", "lock", l.LockName(), "error", err)
		}
	}, nil
}
