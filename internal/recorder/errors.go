package recorder

import (
	"errors"
	"fmt"
)

// Control-flow signals used to unwind a per-sentence recording cleanly.
// They trigger session cleanup, not user-facing error reporting.
var (
	// ErrRecordingPaused aborts the current sentence because a pause was
	// requested; the controller retries the same sentence after resume.
	ErrRecordingPaused = errors.New("recording paused")

	// ErrRecordingStopped aborts the current sentence and the whole run.
	ErrRecordingStopped = errors.New("recording stopped")
)

// InvalidTransitionError reports an illegal controller state transition.
// The controller state is unchanged when this is returned.
type InvalidTransitionError struct {
	Op    string
	State State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s from %s state", e.Op, e.State)
}

// State is the recording controller state, the single source of truth for
// whether the pipeline may run, is suspended, or has stopped.
type State int

const (
	StateIdle State = iota
	StateRecording
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}
