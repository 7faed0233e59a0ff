package session

import (
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"spi-dashboard/internal/modules/spi/types"
)

// State is where a session stands in the submission pipeline.
type State int

const (
	StateIdle State = iota
	StateAwaitingModelResponse
	StateExecuting
	StateClassifying
	StateAppended
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingModelResponse:
		return "awaiting_model_response"
	case StateExecuting:
		return "executing"
	case StateClassifying:
		return "classifying"
	case StateAppended:
		return "appended"
	default:
		return "unknown"
	}
}

// Session holds one browser's transcript and active table.
type Session struct {
	ID string

	gate *semaphore.Weighted

	mu         sync.Mutex
	state      State
	transcript []types.Turn
	active     *types.Table
	lastSeen   time.Time
}

func newSession(id string, now time.Time) *Session {
	return &Session{ID: id, gate: semaphore.NewWeighted(1), lastSeen: now}
}

// New returns a detached session, mainly for tests and the JSON API.
func New(id string) *Session {
	return newSession(id, time.Now())
}

// TryBegin claims the session for one submission. It returns false when a
// submission is already running.
func (s *Session) TryBegin() bool {
	return s.gate.TryAcquire(1)
}

// End releases the claim taken by TryBegin and returns the session to idle.
func (s *Session) End() {
	s.SetState(StateIdle)
	s.gate.Release(1)
}

func (s *Session) SetState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Append adds turns to the transcript.
func (s *Session) Append(turns ...types.Turn) {
	s.mu.Lock()
	s.transcript = append(s.transcript, turns...)
	s.mu.Unlock()
}

// Transcript returns a copy of the transcript in submission order.
func (s *Session) Transcript() []types.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Turn, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// ActiveTable returns the session's table, or false when none has been set
// and the base dataset applies.
func (s *Session) ActiveTable() (types.Table, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return types.Table{}, false
	}
	return *s.active, true
}

// SetActiveTable replaces the active table wholesale.
func (s *Session) SetActiveTable(t types.Table) {
	s.mu.Lock()
	s.active = &t
	s.mu.Unlock()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}
