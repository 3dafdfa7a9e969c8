package state

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/dbsmedya/gowipe/internal/wipeerr"
)

// PhaseRecord holds a phase's status and its accumulated result payload.
type PhaseRecord struct {
	Status Status                     `json:"status"`
	Data   map[string]json.RawMessage `json:"data"`
}

func newPhaseRecord() *PhaseRecord {
	return &PhaseRecord{Status: StatusPending, Data: map[string]json.RawMessage{}}
}

func (r *PhaseRecord) clone() *PhaseRecord {
	data := make(map[string]json.RawMessage, len(r.Data))
	for k, v := range r.Data {
		data[k] = v
	}
	return &PhaseRecord{Status: r.Status, Data: data}
}

// WorkflowState is the single persisted root: one record per phase plus
// workflow-level timestamps. Phases are always kept in workflow order.
type WorkflowState struct {
	CreatedAt time.Time
	UpdatedAt time.Time
	Phases    *orderedmap.OrderedMap[Phase, *PhaseRecord]
}

// NewWorkflowState returns a state with every phase pending.
func NewWorkflowState(now time.Time) *WorkflowState {
	phases := orderedmap.NewOrderedMap[Phase, *PhaseRecord]()
	for _, p := range Phases {
		phases.Set(p, newPhaseRecord())
	}
	return &WorkflowState{CreatedAt: now, UpdatedAt: now, Phases: phases}
}

// Record returns the record for phase. Unknown phases fail with InvalidPhase.
func (s *WorkflowState) Record(phase Phase) (*PhaseRecord, error) {
	if !phase.Valid() {
		return nil, wipeerr.New(wipeerr.InvalidPhase, "unknown phase %q", phase)
	}
	rec, ok := s.Phases.Get(phase)
	if !ok {
		return newPhaseRecord(), nil
	}
	return rec, nil
}

// Status returns the status of phase, pending when never run.
func (s *WorkflowState) Status(phase Phase) (Status, error) {
	rec, err := s.Record(phase)
	if err != nil {
		return "", err
	}
	return rec.Status, nil
}

// Decode unmarshals the data value stored under key into v.
// It reports false when the key is absent.
func (s *WorkflowState) Decode(phase Phase, key string, v interface{}) (bool, error) {
	rec, err := s.Record(phase)
	if err != nil {
		return false, err
	}
	raw, ok := rec.Data[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, wipeerr.Wrap(err, wipeerr.StateCorrupted, "decode %s.%s", phase, key)
	}
	return true, nil
}

// Clone returns a deep copy.
func (s *WorkflowState) Clone() *WorkflowState {
	phases := orderedmap.NewOrderedMap[Phase, *PhaseRecord]()
	for el := s.Phases.Front(); el != nil; el = el.Next() {
		phases.Set(el.Key, el.Value.clone())
	}
	return &WorkflowState{CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt, Phases: phases}
}

type phaseList struct {
	m *orderedmap.OrderedMap[Phase, *PhaseRecord]
}

func (l phaseList) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for el := l.m.Front(); el != nil; el = el.Next() {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		key, err := json.Marshal(string(el.Key))
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(el.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type wireState struct {
	CreatedAt time.Time `json:"created_at"`
	Phases    phaseList `json:"phases"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MarshalJSON emits phases in workflow order.
func (s *WorkflowState) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireState{CreatedAt: s.CreatedAt, Phases: phaseList{s.Phases}, UpdatedAt: s.UpdatedAt})
}

// UnmarshalJSON rebuilds the phase map in workflow order. Missing phases
// are pending; unknown phases or statuses are rejected.
func (s *WorkflowState) UnmarshalJSON(data []byte) error {
	var raw struct {
		CreatedAt time.Time               `json:"created_at"`
		Phases    map[string]*PhaseRecord `json:"phases"`
		UpdatedAt time.Time               `json:"updated_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	for name, rec := range raw.Phases {
		if !Phase(name).Valid() {
			return fmt.Errorf("unknown phase %q", name)
		}
		if rec == nil || !rec.Status.Valid() {
			return fmt.Errorf("phase %q has invalid status", name)
		}
	}

	phases := orderedmap.NewOrderedMap[Phase, *PhaseRecord]()
	for _, p := range Phases {
		rec, ok := raw.Phases[string(p)]
		if !ok {
			rec = newPhaseRecord()
		}
		if rec.Data == nil {
			rec.Data = map[string]json.RawMessage{}
		}
		phases.Set(p, rec)
	}

	s.CreatedAt = raw.CreatedAt
	s.UpdatedAt = raw.UpdatedAt
	s.Phases = phases
	return nil
}

// Encode renders the document as persisted on disk.
func (s *WorkflowState) Encode() ([]byte, error) {
	out, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

//go:embed state.schema.json
var schemaDocument []byte

const schemaURL = "state.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func documentSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaDocument)); err != nil {
			schemaErr = fmt.Errorf("add state schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// Parse decodes and validates a persisted state document.
// Any structural problem is reported as StateCorrupted.
func Parse(data []byte) (*WorkflowState, error) {
	var instance interface{}
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, wipeerr.Wrap(err, wipeerr.StateCorrupted, "state document is not valid JSON")
	}

	schema, err := documentSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(instance); err != nil {
		return nil, wipeerr.Wrap(err, wipeerr.StateCorrupted, "state document failed schema validation")
	}

	var st WorkflowState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, wipeerr.Wrap(err, wipeerr.StateCorrupted, "state document could not be decoded")
	}
	return &st, nil
}
