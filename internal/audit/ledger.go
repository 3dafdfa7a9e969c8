// Package audit records erase attempts and their verification in MySQL so
// operators keep a history that outlives the local state file.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dbsmedya/gowipe/internal/executor"
	"github.com/dbsmedya/gowipe/internal/logger"
	"github.com/dbsmedya/gowipe/internal/planner"
	"github.com/dbsmedya/gowipe/internal/state"
)

const createOperationTableSQL = `
CREATE TABLE IF NOT EXISTS gowipe_erase_operation (
	operation_id CHAR(36) PRIMARY KEY,
	plan_id CHAR(36) NOT NULL,
	attempt INT NOT NULL DEFAULT 1,
	retry_of CHAR(36) NULL,
	host_uuid VARCHAR(64) NOT NULL DEFAULT '',
	device_serial VARCHAR(64) NOT NULL,
	device_model VARCHAR(255) NOT NULL DEFAULT '',
	device_path VARCHAR(255) NOT NULL,
	erase_method VARCHAR(20) NOT NULL,
	command_line TEXT NOT NULL,
	status VARCHAR(20) NOT NULL,
	error_kind VARCHAR(40) NULL,
	error_message TEXT NULL,
	started_at DATETIME(3) NOT NULL,
	ended_at DATETIME(3) NULL,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	INDEX idx_serial (device_serial),
	INDEX idx_plan (plan_id),
	INDEX idx_started (started_at)
) ENGINE=InnoDB;
`

const createVerificationTableSQL = `
CREATE TABLE IF NOT EXISTS gowipe_verification (
	operation_id CHAR(36) PRIMARY KEY,
	success TINYINT(1) NOT NULL,
	error_message TEXT NULL,
	expected_result VARCHAR(10) NOT NULL,
	wipe_effective TINYINT(1) NOT NULL,
	total_bytes BIGINT NOT NULL DEFAULT 0,
	zero_bytes BIGINT NOT NULL DEFAULT 0,
	non_zero_bytes BIGINT NOT NULL DEFAULT 0,
	zero_percentage DECIMAL(5,2) NOT NULL DEFAULT 0,
	hexdump_sample VARCHAR(256) NOT NULL DEFAULT '',
	technique VARCHAR(40) NOT NULL,
	verified_at DATETIME(3) NOT NULL,
	FOREIGN KEY (operation_id) REFERENCES gowipe_erase_operation(operation_id) ON DELETE CASCADE
) ENGINE=InnoDB;
`

const insertOperationSQL = `INSERT INTO gowipe_erase_operation
	(operation_id, plan_id, attempt, retry_of, host_uuid, device_serial, device_model, device_path,
	 erase_method, command_line, status, error_kind, error_message, started_at, ended_at, duration_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const insertVerificationSQL = `INSERT INTO gowipe_verification
	(operation_id, success, error_message, expected_result, wipe_effective, total_bytes, zero_bytes,
	 non_zero_bytes, zero_percentage, hexdump_sample, technique, verified_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const historySQL = `SELECT o.operation_id, o.plan_id, o.attempt, o.erase_method, o.status,
	o.error_kind, o.error_message, o.started_at, o.duration_ms, v.wipe_effective
	FROM gowipe_erase_operation o
	LEFT JOIN gowipe_verification v ON v.operation_id = o.operation_id
	WHERE o.device_serial = ?
	ORDER BY o.started_at DESC
	LIMIT ?`

// Entry is one row of a device's erase history.
type Entry struct {
	OperationID   string
	PlanID        string
	Attempt       int
	Method        string
	Status        state.Status
	ErrorKind     string
	ErrorMessage  string
	StartedAt     time.Time
	DurationMS    int64
	WipeEffective sql.NullBool
}

// Ledger writes erase attempts to the audit database.
type Ledger struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewLedger creates a ledger over db.
func NewLedger(db *sql.DB, log *logger.Logger) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Ledger{db: db, logger: log}, nil
}

// InitializeTables creates the ledger tables if needed. Safe on every start.
func (l *Ledger) InitializeTables(ctx context.Context) error {
	l.logger.Debug("Initializing audit tables")

	if _, err := l.db.ExecContext(ctx, createOperationTableSQL); err != nil {
		return fmt.Errorf("failed to create gowipe_erase_operation table: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, createVerificationTableSQL); err != nil {
		return fmt.Errorf("failed to create gowipe_verification table: %w", err)
	}

	l.logger.Info("Audit tables initialized")
	return nil
}

// Record stores one attempt and, when present, its verification in a single
// transaction.
func (l *Ledger) Record(ctx context.Context, hostUUID string, plan *planner.ExecutionPlan, out *executor.Outcome) error {
	if plan == nil || out == nil || out.Operation == nil {
		return fmt.Errorf("nothing to record")
	}
	op := out.Operation

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, insertOperationSQL,
		op.ID,
		op.PlanID,
		op.Attempt,
		nullString(op.RetryOf),
		hostUUID,
		plan.Device.Serial,
		plan.Device.Model,
		op.DevicePath,
		string(op.Method),
		plan.Command.String(),
		string(op.Status),
		nullString(string(op.ErrorKind)),
		nullString(op.ErrorMessage),
		op.StartTime,
		nullTime(op.EndTime),
		op.DurationMS,
	); err != nil {
		return fmt.Errorf("failed to record erase operation %s: %w", op.ID, err)
	}

	if v := out.Verification; v != nil {
		if _, err := tx.ExecContext(ctx, insertVerificationSQL,
			op.ID,
			v.Success,
			nullString(v.Error),
			string(v.ExpectedResult),
			v.WipeEffective,
			v.TotalBytes,
			v.ZeroBytes,
			v.NonZeroBytes,
			v.ZeroPercentage,
			v.HexdumpSample,
			v.Technique,
			v.VerifiedAt,
		); err != nil {
			return fmt.Errorf("failed to record verification for %s: %w", op.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit record: %w", err)
	}

	l.logger.Infow("Erase attempt recorded in audit ledger",
		"operation", op.ID,
		"serial", plan.Device.Serial,
		"status", op.Status)
	return nil
}

// History returns the most recent attempts for a device serial, newest first.
func (l *Ledger) History(ctx context.Context, serial string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx, historySQL, serial, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history for %s: %w", serial, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                   Entry
			status              string
			errorKind, errorMsg sql.NullString
		)
		if err := rows.Scan(&e.OperationID, &e.PlanID, &e.Attempt, &e.Method, &status,
			&errorKind, &errorMsg, &e.StartedAt, &e.DurationMS, &e.WipeEffective); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		e.Status = state.Status(status)
		e.ErrorKind = errorKind.String
		e.ErrorMessage = errorMsg.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history for %s: %w", serial, err)
	}
	return entries, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
