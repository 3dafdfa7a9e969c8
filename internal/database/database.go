// Package database manages the MySQL connection behind the audit ledger.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver

	"github.com/dbsmedya/gowipe/internal/config"
	"github.com/dbsmedya/gowipe/internal/logger"
)

// Manager owns the audit database handle.
type Manager struct {
	DB         *sql.DB
	config     *config.DatabaseConfig
	logger     *logger.Logger
	maxRetries int
	backoff    time.Duration
}

// NewManager creates a manager for cfg. Connect must be called before DB
// is usable.
func NewManager(cfg *config.DatabaseConfig, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Manager{
		config:     cfg,
		logger:     log,
		maxRetries: 3,
		backoff:    time.Second,
	}
}

// Connect opens and pings the audit database, retrying with exponential
// backoff.
func (m *Manager) Connect(ctx context.Context) error {
	if m.config == nil {
		return fmt.Errorf("database config is nil")
	}
	db, err := m.connectWithRetry(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to audit database %s:%d: %w", m.config.Host, m.config.Port, err)
	}
	m.DB = db
	m.logger.Infow("Connected to audit database",
		"host", m.config.Host,
		"port", m.config.Port,
		"database", m.config.Database)
	return nil
}

func (m *Manager) connectWithRetry(ctx context.Context) (*sql.DB, error) {
	var err error
	backoff := m.backoff

	for i := 0; i < m.maxRetries; i++ {
		var db *sql.DB
		db, err = m.open()
		if err == nil {
			if err = db.PingContext(ctx); err == nil {
				return db, nil
			}
			db.Close()
		}

		if i < m.maxRetries-1 {
			m.logger.Debugw("Audit database not reachable, retrying", "attempt", i+1, "error", err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}
	}
	return nil, fmt.Errorf("failed after %d retries: %w", m.maxRetries, err)
}

func (m *Manager) open() (*sql.DB, error) {
	db, err := sql.Open("mysql", BuildDSN(m.config))
	if err != nil {
		return nil, err
	}
	if m.config.MaxConnections > 0 {
		db.SetMaxOpenConns(m.config.MaxConnections)
	}
	if m.config.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(m.config.MaxIdleConnections)
	}
	db.SetConnMaxLifetime(10 * time.Minute)
	return db, nil
}

// BuildDSN constructs a MySQL DSN from configuration.
func BuildDSN(cfg *config.DatabaseConfig) string {
	// user:password@tcp(host:port)/database?params
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	params := "?parseTime=true&loc=UTC"
	switch cfg.TLS {
	case "disable":
		params += "&tls=false"
	case "required":
		params += "&tls=true"
	case "preferred", "":
		params += "&tls=preferred"
	}
	return dsn + params
}

// Close closes the audit connection if open.
func (m *Manager) Close() error {
	if m.DB == nil {
		return nil
	}
	err := m.DB.Close()
	m.DB = nil
	if err != nil {
		return fmt.Errorf("audit database close: %w", err)
	}
	return nil
}

// Ping verifies the audit connection is alive.
func (m *Manager) Ping(ctx context.Context) error {
	if m.DB == nil {
		return fmt.Errorf("audit database not connected")
	}
	if err := m.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("audit database ping failed: %w", err)
	}
	return nil
}
