package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dbsmedya/gowipe/internal/logger"
	"github.com/dbsmedya/gowipe/internal/wipeerr"
)

// ErrLocked is returned by Open when another process holds the state lock.
var ErrLocked = errors.New("state file is locked by another gowipe process")

// Store is the handle every phase component uses to read and advance the
// workflow state. Each Transition is durably persisted before it becomes
// visible through the handle.
type Store struct {
	path   string
	logger *logger.Logger
	now    func() time.Time

	mu    sync.Mutex
	state *WorkflowState
	lock  *fileLock
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open loads the state document at path, creating it with every phase
// pending when it does not exist. An exclusive lock on "<path>.lock" is held
// until Close. A document that fails validation is returned as an error and
// left untouched.
func Open(path string, log *logger.Logger, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("state path is empty")
	}
	if log == nil {
		log = logger.NewDefault()
	}

	s := &Store{
		path:   path,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	lock, err := acquireFileLock(path + ".lock")
	if err != nil {
		return nil, err
	}
	s.lock = lock

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		st, perr := Parse(data)
		if perr != nil {
			_ = lock.release()
			return nil, wipeerr.WithHint(perr, fmt.Sprintf("inspect or move %s before re-running", path))
		}
		s.state = st
		s.logger.Debugw("Loaded workflow state", "path", path)
	case errors.Is(err, os.ErrNotExist):
		s.state = NewWorkflowState(s.now())
		if err := s.persist(s.state); err != nil {
			_ = lock.release()
			return nil, err
		}
		s.logger.Infow("Created workflow state", "path", path)
	default:
		_ = lock.release()
		return nil, fmt.Errorf("read state file: %w", err)
	}

	return s, nil
}

// Load reads the state document without locking or creating anything.
// A missing document yields a state with every phase pending.
func Load(path string) (*WorkflowState, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewWorkflowState(time.Time{}), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	return Parse(data)
}

// Path returns the location of the state document.
func (s *Store) Path() string {
	return s.path
}

// GetStatus returns the status of phase.
func (s *Store) GetStatus(phase Phase) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Status(phase)
}

// GetData returns a copy of the phase's data.
func (s *Store) GetData(phase Phase) (map[string]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.state.Record(phase)
	if err != nil {
		return nil, err
	}
	return rec.clone().Data, nil
}

// Decode unmarshals phase data stored under key into v, reporting whether
// the key was present.
func (s *Store) Decode(phase Phase, key string, v interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Decode(phase, key, v)
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() *WorkflowState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Transition sets the status of phase and merges data into its existing
// payload key by key. The new state is written atomically before it
// replaces the in-memory copy; on failure the previous state is kept.
func (s *Store) Transition(phase Phase, status Status, data map[string]interface{}) error {
	if !phase.Valid() {
		return wipeerr.New(wipeerr.InvalidPhase, "unknown phase %q", phase)
	}
	if !status.Valid() {
		return fmt.Errorf("unknown status %q", status)
	}

	encoded := make(map[string]json.RawMessage, len(data))
	for k, v := range data {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s.%s: %w", phase, k, err)
		}
		encoded[k] = raw
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.Clone()
	rec, _ := next.Phases.Get(phase)
	if rec == nil {
		rec = newPhaseRecord()
		next.Phases.Set(phase, rec)
	}
	previous := rec.Status
	rec.Status = status
	for k, v := range encoded {
		rec.Data[k] = v
	}
	next.UpdatedAt = s.now()

	if err := s.persist(next); err != nil {
		return err
	}
	s.state = next

	s.logger.WithPhase(string(phase)).Infow("Phase transition",
		"from", previous,
		"to", status,
		"keys", len(encoded))
	return nil
}

func (s *Store) persist(st *WorkflowState) error {
	data, err := st.Encode()
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := writeFileAtomic(s.path, data, 0644); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Close releases the state lock.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lock == nil {
		return nil
	}
	err := s.lock.release()
	s.lock = nil
	return err
}
