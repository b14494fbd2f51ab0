// Package session keeps the live state of every in-flight simulated call.
package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/chadiek/patient-qa/internal/domain"
)

var ErrNotFound = errors.New("session not found")

// ErrComplete is returned when a finalized session is asked to record more input.
var ErrComplete = errors.New("session already complete")

// CallSession is the state of one call from placement to finalization.
type CallSession struct {
	CallID           string
	Scenario         domain.Scenario
	Patient          domain.Patient
	Turns            []domain.Turn
	AgentTurns       int
	StartedAt        time.Time
	Complete         bool
	ConsecutiveEmpty int
}

// Snapshot is the metadata persisted alongside a transcript.
type Snapshot struct {
	CallID         string
	ScenarioID     string
	ScenarioName   string
	PatientName    string
	TurnCount      int
	ElapsedSeconds int
	Complete       bool
}

type entry struct {
	sess CallSession
	done chan struct{}
}

// Store is a concurrent registry of call sessions keyed by call id.
// Every method holds the lock for the whole read or mutation so callers never observe a partial update.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry
	now      func() time.Time
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*entry), now: time.Now}
}

// WithClock overrides the wall clock, for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

// Create registers a new session, replacing any existing one with the same id.
func (s *Store) Create(callID string, scenario domain.Scenario, patient domain.Patient) error {
	callID = strings.TrimSpace(callID)
	if callID == "" {
		return errors.New("call id is required")
	}
	if strings.TrimSpace(scenario.ID) == "" {
		return errors.New("scenario id is required")
	}
	if strings.TrimSpace(patient.FullName) == "" {
		return errors.New("patient full name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[callID] = &entry{
		sess: CallSession{
			CallID:    callID,
			Scenario:  scenario,
			Patient:   patient,
			StartedAt: s.now().UTC(),
		},
		done: make(chan struct{}),
	}
	return nil
}

// Get returns a copy of the session.
func (s *Store) Get(callID string) (CallSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[callID]
	if !ok {
		return CallSession{}, false
	}
	out := e.sess
	out.Turns = copyTurns(e.sess.Turns)
	return out, true
}

// AppendTurn records a turn. Agent turns bump the turn count; empty text bumps the
// consecutive-empty counter and non-empty text resets it. Unknown and completed
// sessions are left untouched and report false.
func (s *Store) AppendTurn(callID string, role domain.Role, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[callID]
	if !ok || e.sess.Complete {
		return false
	}
	e.sess.Turns = append(e.sess.Turns, domain.Turn{Role: role, Text: text})
	if role == domain.RoleAgent {
		e.sess.AgentTurns++
	}
	if strings.TrimSpace(text) == "" {
		e.sess.ConsecutiveEmpty++
	} else {
		e.sess.ConsecutiveEmpty = 0
	}
	return true
}

// RecordEmpty increments the consecutive-empty counter without appending a turn
// and returns the new value.
func (s *Store) RecordEmpty(callID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[callID]
	if !ok {
		return 0, ErrNotFound
	}
	if e.sess.Complete {
		return e.sess.ConsecutiveEmpty, ErrComplete
	}
	e.sess.ConsecutiveEmpty++
	return e.sess.ConsecutiveEmpty, nil
}

// MarkComplete flips the completion flag. It returns true only for the call that
// performed the transition, so it doubles as the finalization guard.
func (s *Store) MarkComplete(callID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[callID]
	if !ok || e.sess.Complete {
		return false
	}
	e.sess.Complete = true
	close(e.done)
	return true
}

// IsComplete reports completion; a missing session counts as complete.
func (s *Store) IsComplete(callID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[callID]
	return !ok || e.sess.Complete
}

// Done returns a channel closed once the session completes. Missing sessions
// yield an already-closed channel.
func (s *Store) Done(callID string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[callID]; ok {
		return e.done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// Snapshot summarises the session with elapsed time measured against the store clock.
func (s *Store) Snapshot(callID string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[callID]
	if !ok {
		return Snapshot{}, false
	}
	elapsed := s.now().UTC().Sub(e.sess.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	return Snapshot{
		CallID:         e.sess.CallID,
		ScenarioID:     e.sess.Scenario.ID,
		ScenarioName:   e.sess.Scenario.Name,
		PatientName:    e.sess.Patient.FullName,
		TurnCount:      e.sess.AgentTurns,
		ElapsedSeconds: int(elapsed / time.Second),
		Complete:       e.sess.Complete,
	}, true
}

// History returns a copy of the turn list.
func (s *Store) History(callID string) []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[callID]
	if !ok {
		return []domain.Turn{}
	}
	return copyTurns(e.sess.Turns)
}

// AllComplete reports whether every listed session is complete; missing sessions count as complete.
func (s *Store) AllComplete(callIDs []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range callIDs {
		if e, ok := s.sessions[id]; ok && !e.sess.Complete {
			return false
		}
	}
	return true
}

// Active counts sessions that have not completed.
func (s *Store) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.sessions {
		if !e.sess.Complete {
			n++
		}
	}
	return n
}

func copyTurns(in []domain.Turn) []domain.Turn {
	out := make([]domain.Turn, len(in))
	copy(out, in)
	return out
}
