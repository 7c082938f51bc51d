package session

import "fmt"

// State is a user's capture state.
type State int

const (
	StateIdle State = iota
	StateRecording
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Input is the classified kind of an inbound message.
type Input int

const (
	InputContent Input = iota
	InputStart
	InputEnd
)

func (i Input) String() string {
	switch i {
	case InputContent:
		return "content"
	case InputStart:
		return "start"
	case InputEnd:
		return "end"
	}
	return fmt.Sprintf("input(%d)", int(i))
}

// Action is the side effect a transition performs.
type Action int

const (
	// ActionOpen creates a session and acknowledges the label.
	ActionOpen Action = iota
	// ActionReopen discards the active session and its files, then opens a new one.
	ActionReopen
	// ActionBuffer appends content silently.
	ActionBuffer
	// ActionFinish pops the session and runs the archival pipeline.
	ActionFinish
	// ActionDiscard drops content received while idle and reminds the user.
	ActionDiscard
	// ActionRemind answers an end command received while idle.
	ActionRemind
)

// Transition is one row of the state table.
type Transition struct {
	Next   State
	Action Action
}

type transitionKey struct {
	state State
	input Input
}

var transitions = map[transitionKey]Transition{
	{StateIdle, InputStart}:        {Next: StateRecording, Action: ActionOpen},
	{StateIdle, InputContent}:      {Next: StateIdle, Action: ActionDiscard},
	{StateIdle, InputEnd}:          {Next: StateIdle, Action: ActionRemind},
	{StateRecording, InputStart}:   {Next: StateRecording, Action: ActionReopen},
	{StateRecording, InputContent}: {Next: StateRecording, Action: ActionBuffer},
	{StateRecording, InputEnd}:     {Next: StateIdle, Action: ActionFinish},
}

// Next looks up the transition for state and input.
func Next(state State, input Input) (Transition, error) {
	t, ok := transitions[transitionKey{state, input}]
	if !ok {
		return Transition{}, fmt.Errorf("no transition for %s on %s", state, input)
	}
	return t, nil
}
