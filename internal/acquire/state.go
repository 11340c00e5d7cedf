package acquire

import (
	"fmt"
	"sync"

	"sheetfetch/internal/services"
)

// State is a step of the acquisition lifecycle.
type State string

const (
	StateIdle            State = "idle"
	StateSearching       State = "searching"
	StateSongSelected    State = "song_selected"
	StateKeyNegotiated   State = "key_negotiated"
	StatePartsEnumerated State = "parts_enumerated"
	StateDownloading     State = "downloading"
	StateDone            State = "done"
	StateFailed          State = "failed"
)

// Reason explains why the machine stopped in Done or Failed.
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonNoResults             Reason = "no_results"
	ReasonOrchestrationNotFound Reason = "orchestration_not_found"
	ReasonKeyNotResolved        Reason = "key_not_resolved"
	ReasonNoPartsFound          Reason = "no_parts_found"
	ReasonInstrumentNotResolved Reason = "instrument_not_resolved"
	ReasonNoPages               Reason = "no_pages"
	ReasonSessionError          Reason = "session_error"
)

var allowedTransitions = map[State][]State{
	StateIdle:            {StateSearching},
	StateSearching:       {StateSongSelected, StateDone, StateFailed},
	StateSongSelected:    {StateKeyNegotiated, StateFailed},
	StateKeyNegotiated:   {StatePartsEnumerated, StateFailed},
	StatePartsEnumerated: {StateDownloading, StateFailed},
	StateDownloading:     {StateDownloading, StateDone, StateFailed},
	StateDone:            {},
	StateFailed:          {},
}

// CanTransition reports whether from -> to is part of the lifecycle.
func CanTransition(from, to State) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Machine tracks the current state. It is safe for concurrent readers.
type Machine struct {
	mu      sync.Mutex
	state   State
	reason  Reason
	history []State
}

// NewMachine returns a machine in Idle.
func NewMachine() *Machine {
	return &Machine{state: StateIdle, history: []State{StateIdle}}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Reason returns the reason recorded by the last Fail or Finish.
func (m *Machine) Reason() Reason {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reason
}

// History returns the states visited since the last Reset.
func (m *Machine) History() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]State(nil), m.history...)
}

// Transition moves to next, rejecting moves outside the lifecycle.
func (m *Machine) Transition(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(next, ReasonNone)
}

// Fail moves to Failed with reason.
func (m *Machine) Fail(reason Reason) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(StateFailed, reason)
}

// Finish moves to Done with reason, which is empty for a normal completion.
func (m *Machine) Finish(reason Reason) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(StateDone, reason)
}

// Reset returns to Idle from any state.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateIdle
	m.reason = ReasonNone
	m.history = []State{StateIdle}
}

func (m *Machine) transitionLocked(next State, reason Reason) error {
	if !CanTransition(m.state, next) {
		return services.Wrap(services.ErrValidation, "acquire", "transition",
			fmt.Sprintf("%s -> %s is not allowed", m.state, next), nil)
	}
	m.state = next
	m.reason = reason
	m.history = append(m.history, next)
	return nil
}
