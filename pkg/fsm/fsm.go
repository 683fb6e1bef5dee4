// Package fsm implements a small generic state machine driven by an ordered
// list of guarded transitions. Transitions are evaluated in declaration order
// and the first one whose guard fires wins; all transitions share a single
// mutable context owned by the machine.
package fsm

import (
	"fmt"
	"sort"
)

// State denotes a discrete machine state, identified by a stable key
type State interface {

	// Key returns the unique label of the state
	Key() string
}

// Transition denotes a guarded edge between two states. OnTriggered runs after
// the machine has advanced to To; OnNotTriggered runs for every transition
// that was checked but did not fire. Both hooks are optional.
type Transition[D any, C any] struct {
	From State
	To   State

	IsTriggered    func(data D, ctx C) bool
	OnTriggered    func(data D, ctx C)
	OnNotTriggered func(data D, ctx C)
}

// Machine denotes a state machine instance holding the current state and the
// shared mutable context. It is not safe for concurrent use - the caller must
// serialize calls to Process.
type Machine[D any, C any] struct {
	state       State
	context     C
	transitions []Transition[D, C]
}

// New instantiates a new state machine with the given initial state, context
// and ordered transition list. Self-transitions are a configuration error and
// are rejected here, before any data flows
func New[D any, C any](initial State, ctx C, transitions []Transition[D, C]) (*Machine[D, C], error) {

	for _, t := range transitions {
		if t.From == nil || t.To == nil {
			return nil, fmt.Errorf("transition with missing source or target state")
		}
		if t.From.Key() == t.To.Key() {
			return nil, fmt.Errorf("transition from state `%s` to itself is not allowed", t.From.Key())
		}
		if t.IsTriggered == nil {
			return nil, fmt.Errorf("transition `%s` -> `%s` is missing a guard", t.From.Key(), t.To.Key())
		}
	}

	return &Machine[D, C]{
		state:       initial,
		context:     ctx,
		transitions: transitions,
	}, nil
}

// Process evaluates the transitions registered for the current state in
// declaration order against the given datum. The first transition whose guard
// fires advances the state, runs its OnTriggered hook and ends evaluation.
// If none fires, OnNotTriggered is invoked for every checked transition and
// the state is left unchanged
func (m *Machine[D, C]) Process(data D) State {

	for _, t := range m.transitions {
		if t.From.Key() != m.state.Key() {
			continue
		}

		if t.IsTriggered(data, m.context) {
			m.state = t.To
			if t.OnTriggered != nil {
				t.OnTriggered(data, m.context)
			}
			return m.state
		}

		if t.OnNotTriggered != nil {
			t.OnNotTriggered(data, m.context)
		}
	}

	return m.state
}

// State returns the current state
func (m *Machine[D, C]) State() State {
	return m.state
}

// Context returns the shared context
func (m *Machine[D, C]) Context() C {
	return m.context
}

// States returns every state referenced as source or target of a registered
// transition, sorted by key for stable external presentation
func (m *Machine[D, C]) States() []State {

	seen := make(map[string]State)
	for _, t := range m.transitions {
		seen[t.From.Key()] = t.From
		seen[t.To.Key()] = t.To
	}

	all := make([]State, 0, len(seen))
	for _, s := range seen {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Key() < all[j].Key()
	})

	return all
}
