// Package state persists the workflow's phase records.
package state

import (
	"github.com/dbsmedya/gowipe/internal/wipeerr"
)

// Phase names one stage of the wipe workflow.
type Phase string

const (
	PhaseCollect Phase = "collect"
	PhasePlan    Phase = "plan"
	PhaseExecute Phase = "execute"
	PhaseReport  Phase = "report"
)

// Phases lists the phases in workflow order.
var Phases = []Phase{PhaseCollect, PhasePlan, PhaseExecute, PhaseReport}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	for _, known := range Phases {
		if p == known {
			return true
		}
	}
	return false
}

// Predecessor returns the phase that must be completed before p may run.
// The first phase has none.
func (p Phase) Predecessor() (Phase, bool) {
	for i, known := range Phases {
		if known == p && i > 0 {
			return Phases[i-1], true
		}
	}
	return "", false
}

// ParsePhase converts a phase name, failing with InvalidPhase when unknown.
func ParsePhase(name string) (Phase, error) {
	p := Phase(name)
	if !p.Valid() {
		return "", wipeerr.New(wipeerr.InvalidPhase, "unknown phase %q", name)
	}
	return p, nil
}

// Status is the lifecycle state of a phase.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}
