// Package wipeerr defines the error kinds surfaced by the wipe workflow.
//
// Every kind has a sentinel; errors built here are marked with that sentinel
// so classification survives wrapping with fmt.Errorf or errors.Wrap.
package wipeerr

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Kind classifies a workflow failure.
type Kind string

const (
	InvalidPhase            Kind = "InvalidPhase"
	PhaseOutOfOrder         Kind = "PhaseOutOfOrder"
	DeviceUnavailable       Kind = "DeviceUnavailable"
	NoSupportedMethod       Kind = "NoSupportedMethod"
	CommandNotFound         Kind = "CommandNotFound"
	CommandFailed           Kind = "CommandFailed"
	Timeout                 Kind = "Timeout"
	VerificationUnavailable Kind = "VerificationUnavailable"
	// Cancelled means the operator declined the destructive confirmation.
	Cancelled Kind = "Cancelled"
	// StateCorrupted means the persisted state document could not be trusted.
	StateCorrupted Kind = "StateCorrupted"
)

// Kinds lists every kind in a stable order.
var Kinds = []Kind{
	InvalidPhase,
	PhaseOutOfOrder,
	DeviceUnavailable,
	NoSupportedMethod,
	CommandNotFound,
	CommandFailed,
	Timeout,
	VerificationUnavailable,
	Cancelled,
	StateCorrupted,
}

var sentinels = func() map[Kind]error {
	m := make(map[Kind]error, len(Kinds))
	for _, k := range Kinds {
		m[k] = errors.New(string(k))
	}
	return m
}()

// Sentinel returns the reference error for kind, usable with errors.Is.
func Sentinel(kind Kind) error {
	return sentinels[kind]
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...interface{}) error {
	return errors.Mark(errors.NewWithDepthf(1, format, args...), sentinels[kind])
}

// Wrap annotates err and marks it with kind. A nil err yields nil.
func Wrap(err error, kind Kind, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.WrapWithDepthf(1, err, format, args...), sentinels[kind])
}

// WithHint attaches operator remediation text.
func WithHint(err error, hint string) error {
	return errors.WithHint(err, hint)
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	s, ok := sentinels[kind]
	if !ok || err == nil {
		return false
	}
	return errors.Is(err, s)
}

// KindOf returns the first kind err is marked with, or "" when unclassified.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range Kinds {
		if errors.Is(err, sentinels[k]) {
			return k
		}
	}
	return ""
}

// Hints returns all hints attached to err, joined by newlines.
func Hints(err error) string {
	if err == nil {
		return ""
	}
	return strings.Join(errors.GetAllHints(err), "\n")
}

// ExitCode maps an error to a process exit code.
func ExitCode(err error) int {
	switch KindOf(err) {
	case "":
		if err == nil {
			return 0
		}
		return 1
	case Cancelled:
		return 130
	case InvalidPhase, PhaseOutOfOrder:
		return 2
	default:
		return 1
	}
}
