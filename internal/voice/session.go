package voice

import (
	"context"
	"strings"
	"sync"
)

// State is the listening state of a Session.
type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
)

// Transcript is one recognition result from a speech-to-text source.
type Transcript struct {
	Text  string
	Final bool
}

// Session gates transcripts on an externally controlled listening state.
// Recognition is single-shot: the first final transcript delivered while
// listening is interpreted and the session returns to idle.
type Session struct {
	interp  *Interpreter
	onState func(State)

	mu    sync.Mutex
	state State
}

// NewSession creates an idle session. onState, if not nil, is called after
// every state change.
func NewSession(interp *Interpreter, onState func(State)) *Session {
	return &Session{
		interp:  interp,
		onState: onState,
		state:   StateIdle,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start begins listening. It returns false if already listening.
func (s *Session) Start() bool {
	return s.transition(StateIdle, StateListening)
}

// Stop stops listening. An interpretation already under way still completes.
// It returns false if the session was idle.
func (s *Session) Stop() bool {
	return s.transition(StateListening, StateIdle)
}

func (s *Session) transition(from, to State) bool {
	s.mu.Lock()
	if s.state != from {
		s.mu.Unlock()
		return false
	}
	s.state = to
	s.mu.Unlock()

	if s.onState != nil {
		s.onState(to)
	}
	return true
}

// Deliver hands a transcript to the session. Interim transcripts, empty text
// and anything arriving while idle are ignored and reported with false.
func (s *Session) Deliver(ctx context.Context, tr Transcript) (Result, bool) {
	if !tr.Final || strings.TrimSpace(tr.Text) == "" {
		return Result{}, false
	}
	if !s.transition(StateListening, StateIdle) {
		return Result{}, false
	}
	return s.interp.Submit(ctx, tr.Text), true
}

// Run delivers transcripts from in until ctx is done or in is closed.
func (s *Session) Run(ctx context.Context, in <-chan Transcript) {
	for {
		select {
		case <-ctx.Done():
			return
		case tr, ok := <-in:
			if !ok {
				return
			}
			s.Deliver(ctx, tr)
		}
	}
}
