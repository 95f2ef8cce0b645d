// Package fsm implements guarded, table driven document state machines.
//
// A machine is built once from a Definition and validated: every edge must move
// forward in the status order unless it is an explicitly whitelisted rework edge
// that steps back exactly one rank. Guards are pure predicates over the document
// and report every unmet condition at once.
package fsm

import (
	"fmt"

	"github.com/odyssey-erp/odyssey-textile/internal/shared"
)

// Event names a transition trigger.
type Event string

// Guard inspects a document and returns the conditions it fails. An empty
// result permits the transition.
type Guard[D any] func(doc D) []string

// Edge is a single row of the transition table.
type Edge[S ~string, D any] struct {
	From   []S
	Event  Event
	To     S
	Guard  Guard[D]
	Rework bool
}

// Definition describes a machine before validation.
type Definition[S ~string, D any] struct {
	Entity string
	// Order lists every status from initial to last; it defines monotonicity.
	Order       []S
	Terminal    []S
	AllowRework bool
	Edges       []Edge[S, D]
}

type edge[S ~string, D any] struct {
	to     S
	guard  Guard[D]
	rework bool
}

// Machine is an immutable, validated transition table.
type Machine[S ~string, D any] struct {
	entity   string
	rank     map[S]int
	terminal map[S]bool
	table    map[S]map[Event]edge[S, D]
	targets  map[Event]map[S]bool
}

// Build validates def and returns the machine.
func Build[S ~string, D any](def Definition[S, D]) (*Machine[S, D], error) {
	if def.Entity == "" {
		return nil, fmt.Errorf("fsm: entity name required")
	}
	if len(def.Order) == 0 {
		return nil, fmt.Errorf("fsm %s: status order required", def.Entity)
	}
	m := &Machine[S, D]{
		entity:   def.Entity,
		rank:     make(map[S]int, len(def.Order)),
		terminal: make(map[S]bool, len(def.Terminal)),
		table:    make(map[S]map[Event]edge[S, D]),
		targets:  make(map[Event]map[S]bool),
	}
	for i, s := range def.Order {
		if _, dup := m.rank[s]; dup {
			return nil, fmt.Errorf("fsm %s: duplicate status %s", def.Entity, s)
		}
		m.rank[s] = i
	}
	for _, s := range def.Terminal {
		if _, ok := m.rank[s]; !ok {
			return nil, fmt.Errorf("fsm %s: unknown terminal status %s", def.Entity, s)
		}
		m.terminal[s] = true
	}
	for _, e := range def.Edges {
		toRank, ok := m.rank[e.To]
		if !ok {
			return nil, fmt.Errorf("fsm %s: edge %s targets unknown status %s", def.Entity, e.Event, e.To)
		}
		if e.Event == "" || len(e.From) == 0 {
			return nil, fmt.Errorf("fsm %s: edge to %s needs an event and a source", def.Entity, e.To)
		}
		for _, from := range e.From {
			fromRank, ok := m.rank[from]
			if !ok {
				return nil, fmt.Errorf("fsm %s: edge %s from unknown status %s", def.Entity, e.Event, from)
			}
			if m.terminal[from] {
				return nil, fmt.Errorf("fsm %s: terminal status %s cannot have outgoing edge %s", def.Entity, from, e.Event)
			}
			switch {
			case e.Rework:
				if !def.AllowRework {
					return nil, fmt.Errorf("fsm %s: rework edge %s not permitted", def.Entity, e.Event)
				}
				if toRank != fromRank-1 {
					return nil, fmt.Errorf("fsm %s: rework edge %s must step back exactly one status", def.Entity, e.Event)
				}
			case toRank < fromRank:
				return nil, fmt.Errorf("fsm %s: edge %s from %s to %s is not monotonic", def.Entity, e.Event, from, e.To)
			}
			row := m.table[from]
			if row == nil {
				row = make(map[Event]edge[S, D])
				m.table[from] = row
			}
			if _, dup := row[e.Event]; dup {
				return nil, fmt.Errorf("fsm %s: duplicate edge %s from %s", def.Entity, e.Event, from)
			}
			row[e.Event] = edge[S, D]{to: e.To, guard: e.Guard, rework: e.Rework}
		}
		if m.targets[e.Event] == nil {
			m.targets[e.Event] = make(map[S]bool)
		}
		m.targets[e.Event][e.To] = true
	}
	return m, nil
}

// MustBuild is Build for package level machines.
func MustBuild[S ~string, D any](def Definition[S, D]) *Machine[S, D] {
	m, err := Build(def)
	if err != nil {
		panic(err)
	}
	return m
}

// Entity returns the machine name used in errors.
func (m *Machine[S, D]) Entity() string { return m.entity }

// Next resolves the target status for ev without evaluating guards.
func (m *Machine[S, D]) Next(current S, ev Event) (S, error) {
	e, ok := m.table[current][ev]
	if !ok {
		var zero S
		return zero, &shared.TransitionError{Entity: m.entity, From: string(current), Event: string(ev)}
	}
	return e.to, nil
}

// Fire checks that ev is legal from current and that its guard holds for doc.
// It returns the target status; persisting it is the caller's job.
func (m *Machine[S, D]) Fire(doc D, current S, ev Event) (S, error) {
	e, ok := m.table[current][ev]
	if !ok {
		var zero S
		return zero, &shared.TransitionError{Entity: m.entity, From: string(current), Event: string(ev)}
	}
	if e.guard != nil {
		if unmet := e.guard(doc); len(unmet) > 0 {
			var zero S
			return zero, &shared.GuardError{Entity: m.entity, Event: string(ev), Unmet: unmet}
		}
	}
	return e.to, nil
}

// Reached reports whether current is where ev would have led and ev cannot fire
// again from it. Callers use it to answer retried requests without repeating
// side effects.
func (m *Machine[S, D]) Reached(current S, ev Event) bool {
	if _, again := m.table[current][ev]; again {
		return false
	}
	return m.targets[ev][current]
}

// Terminal reports whether no event leaves s.
func (m *Machine[S, D]) Terminal(s S) bool {
	return m.terminal[s] || len(m.table[s]) == 0
}

// Rank returns the position of s in the status order, or -1.
func (m *Machine[S, D]) Rank(s S) int {
	if r, ok := m.rank[s]; ok {
		return r
	}
	return -1
}

// Events lists the events that may fire from s.
func (m *Machine[S, D]) Events(s S) []Event {
	row := m.table[s]
	out := make([]Event, 0, len(row))
	for ev := range row {
		out = append(out, ev)
	}
	return out
}
