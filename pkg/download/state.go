package download

import "errors"

// ErrInvalidTransition is returned when a state change is not an edge of the
// download state machine.
var ErrInvalidTransition = errors.New("invalid state transition")

// ErrRemoved is returned when changing a download that was cancelled or
// deleted.
var ErrRemoved = errors.New("download removed")

// State is the lifecycle position of a chapter download.
type State int

const (
	StateNotDownloaded State = iota
	StateQueued
	StateDownloading
	StateDownloaded
	StateError
)

func (s State) String() string {
	switch s {
	case StateNotDownloaded:
		return "not_downloaded"
	case StateQueued:
		return "queued"
	case StateDownloading:
		return "downloading"
	case StateDownloaded:
		return "downloaded"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// IsActive returns true while the download occupies the queue.
func (s State) IsActive() bool {
	return s == StateQueued || s == StateDownloading
}

// IsFinished returns true for downloaded and failed downloads.
func (s State) IsFinished() bool {
	return s == StateDownloaded || s == StateError
}

var transitions = map[State][]State{
	StateNotDownloaded: {StateQueued},
	StateQueued:        {StateDownloading},
	StateDownloading:   {StateDownloaded, StateError},
	StateError:         {StateQueued},
}

// CanTransition reports whether to is reachable from s in one step.
func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}
