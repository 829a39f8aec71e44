package inspect

import (
	"fmt"
	"time"

	"github.com/04d4/spinta/internal/core"
)

// State of one resource inspection.
type State string

const (
	StatePending    State = "Pending"
	StateConnecting State = "Connecting"
	StateEnumerate  State = "Enumerating"
	StateInspecting State = "PerEntityInspecting"
	StateMerging    State = "Merging"
	StateDone       State = "Done"
	StateFailed     State = "Failed"
)

var transitions = map[State][]State{
	StatePending:    {StateConnecting, StateFailed},
	StateConnecting: {StateEnumerate, StateFailed},
	StateEnumerate:  {StateInspecting, StateFailed},
	StateInspecting: {StateMerging, StateFailed},
	StateMerging:    {StateDone, StateFailed},
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition is one recorded state change.
type Transition struct {
	From State
	To   State
	At   time.Time
}

// ResourceReport is the outcome of inspecting one target.
type ResourceReport struct {
	Dataset  string
	Resource string
	Backend  string // backend kind, once a connector is selected

	State   State
	History []Transition

	Entities  int // enumerated
	Inspected int // merged
	Failed    int

	// Err is the cause of a Failed state.
	Err       error
	Cancelled bool

	Diagnostics core.Diagnostics
}

func newReport(t Target) *ResourceReport {
	return &ResourceReport{Dataset: t.Dataset, Resource: t.Resource, State: StatePending}
}

func (r *ResourceReport) transition(to State) {
	if !canTransition(r.State, to) {
		panic(fmt.Sprintf("inspect: illegal transition %s -> %s", r.State, to))
	}
	r.History = append(r.History, Transition{From: r.State, To: to, At: time.Now()})
	r.State = to
}

func (r *ResourceReport) fail(err error) {
	r.Err = err
	r.transition(StateFailed)
}

// States returns the visited states, starting with Pending.
func (r *ResourceReport) States() []State {
	out := []State{StatePending}
	for _, t := range r.History {
		out = append(out, t.To)
	}
	return out
}
