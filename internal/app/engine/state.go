package engine

import "github.com/dalemusser/mindpath/internal/domain/models"

// StateKind names a coordinator state.
type StateKind string

const (
	StateLocked         StateKind = "locked"
	StateComposing      StateKind = "composing"
	StateSubmitting     StateKind = "submitting"
	StateViewingHistory StateKind = "viewing_history"
)

// State is the tagged union of coordinator states. Only the types in this
// file implement it.
type State interface {
	Kind() StateKind
	state()
}

// Locked shows the newest submission read-only.
type Locked struct{}

// Composing holds an editable buffer.
type Composing struct{}

// Submitting has a submit in flight; edits are refused.
type Submitting struct{}

// ViewingHistory shows one older submission read-only.
type ViewingHistory struct {
	Submission models.Submission
}

func (Locked) Kind() StateKind         { return StateLocked }
func (Composing) Kind() StateKind      { return StateComposing }
func (Submitting) Kind() StateKind     { return StateSubmitting }
func (ViewingHistory) Kind() StateKind { return StateViewingHistory }

func (Locked) state()         {}
func (Composing) state()      {}
func (Submitting) state()     {}
func (ViewingHistory) state() {}

// transitions lists every legal (from, command) pair.
var transitions = map[StateKind]map[string]StateKind{
	StateLocked: {
		"start_new":    StateComposing,
		"view_history": StateViewingHistory,
	},
	StateComposing: {
		"cancel_new": StateLocked,
		"submit":     StateSubmitting,
	},
	StateSubmitting: {
		"submit_ok":   StateLocked,
		"submit_fail": StateComposing,
	},
	StateViewingHistory: {
		"view_history":  StateViewingHistory,
		"close_history": StateLocked,
	},
}

// next returns the target of cmd from the current state, or an
// ErrIllegalTransition.
func next(from StateKind, cmd string) (StateKind, error) {
	to, ok := transitions[from][cmd]
	if !ok {
		return "", illegal(cmd, from)
	}
	return to, nil
}
