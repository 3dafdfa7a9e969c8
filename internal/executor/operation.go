package executor

import (
	"time"

	"github.com/google/uuid"

	"github.com/dbsmedya/gowipe/internal/device"
	"github.com/dbsmedya/gowipe/internal/state"
	"github.com/dbsmedya/gowipe/internal/wipeerr"
)

// EraseOperation records one execution attempt of a plan. It moves from
// pending to running and then to exactly one terminal status. A retry
// creates a new operation; an existing one is never reused.
type EraseOperation struct {
	ID           string        `json:"id"`
	PlanID       string        `json:"plan_id"`
	Attempt      int           `json:"attempt"`
	RetryOf      string        `json:"retry_of,omitempty"`
	Method       device.Method `json:"method"`
	DevicePath   string        `json:"device_path"`
	Serial       string        `json:"serial"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      *time.Time    `json:"end_time,omitempty"`
	Duration     float64       `json:"duration"`
	DurationMS   int64         `json:"duration_ms"`
	Status       state.Status  `json:"status"`
	ErrorKind    wipeerr.Kind  `json:"error_kind,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// Succeeded reports whether the operation completed.
func (op *EraseOperation) Succeeded() bool {
	return op.Status == state.StatusCompleted
}

// Terminal reports whether the operation reached completed or failed.
func (op *EraseOperation) Terminal() bool {
	return op.Status == state.StatusCompleted || op.Status == state.StatusFailed
}

func (op *EraseOperation) start(now time.Time) {
	op.StartTime = now
	op.Status = state.StatusRunning
}

// finish records the terminal transition. Duration keeps millisecond
// precision.
func (op *EraseOperation) finish(now time.Time, err error) {
	end := now
	op.EndTime = &end
	op.DurationMS = end.Sub(op.StartTime).Milliseconds()
	op.Duration = float64(op.DurationMS) / 1000

	if err == nil {
		op.Status = state.StatusCompleted
		return
	}
	op.Status = state.StatusFailed
	op.ErrorKind = wipeerr.KindOf(err)
	op.ErrorMessage = err.Error()
}

func newOperation(planID string, method device.Method, path, serial string, attempt int) *EraseOperation {
	return &EraseOperation{
		ID:         uuid.NewString(),
		PlanID:     planID,
		Attempt:    attempt,
		Method:     method,
		DevicePath: path,
		Serial:     serial,
		Status:     state.StatusPending,
	}
}

// AttemptSummary is the compact history entry kept for every attempt.
type AttemptSummary struct {
	OperationID  string       `json:"operation_id"`
	Attempt      int          `json:"attempt"`
	Status       state.Status `json:"status"`
	ErrorKind    wipeerr.Kind `json:"error_kind,omitempty"`
	StartTime    time.Time    `json:"start_time"`
	DurationMS   int64        `json:"duration_ms"`
	WipeVerified *bool        `json:"wipe_verified,omitempty"`
}

// Summary condenses the operation and its verification, if any.
func (o *Outcome) Summary() AttemptSummary {
	s := AttemptSummary{
		OperationID: o.Operation.ID,
		Attempt:     o.Operation.Attempt,
		Status:      o.Operation.Status,
		ErrorKind:   o.Operation.ErrorKind,
		StartTime:   o.Operation.StartTime,
		DurationMS:  o.Operation.DurationMS,
	}
	if o.Verification != nil && o.Verification.Success {
		v := o.Verification.WipeEffective
		s.WipeVerified = &v
	}
	return s
}
