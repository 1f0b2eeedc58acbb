package task

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownState = errors.New("error: unknown task state")
)

// State is the lifecycle state of a task. The zero value is Ready.
type State int32

const (
	Ready State = iota
	Executing
	Finished
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Executing:
		return "executing"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// IsValid returns true if s is one of the known states.
func (s State) IsValid() bool {
	switch s {
	case Ready, Executing, Finished:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if no transition leaves s.
func (s State) IsTerminal() bool { return s == Finished }

// CanTransitionTo reports whether target is the next state after s.
// Only Ready -> Executing and Executing -> Finished are allowed.
func (s State) CanTransitionTo(target State) bool {
	switch s {
	case Ready:
		return target == Executing
	case Executing:
		return target == Finished
	default:
		return false
	}
}

func (s State) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownState, int32(s))
	}
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	v, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseState returns the State named by s.
func ParseState(s string) (State, error) {
	switch s {
	case "ready":
		return Ready, nil
	case "executing":
		return Executing, nil
	case "finished":
		return Finished, nil
	default:
		return Ready, fmt.Errorf("%w: %q", ErrUnknownState, s)
	}
}
