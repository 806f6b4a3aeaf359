package model

import (
	"fmt"
	"log"
	"sort"
)

// #region defaults

const (
	// DefaultExcretion is the excretion bound applied to boundary
	// reactions when a media is applied.
	DefaultExcretion = 100.0
	// DefaultUptake is the uptake bound for compounds the media does not
	// list.
	DefaultUptake = 0.0
)

// #endregion defaults

// #region sense

// Sense is the optimization direction of the objective.
type Sense int

const (
	Maximize Sense = iota
	Minimize
)

// #endregion sense

// #region model-struct

// Model is the single mutable network handle every search and test routine
// operates on. It owns reaction bounds, the active objective, and the
// applied media, and delegates optimization to an injected Solver.
//
// A Model is not safe for concurrent use; parallel callers need per-worker
// clones.
type Model struct {
	reactions map[string]*Reaction
	order     []string
	objective string
	sense     Sense
	media     *Media
	solver    Solver

	defaultExcretion float64
	defaultUptake    float64

	scopes []*Scope
}

// New creates an empty model with the given solver. A nil solver is
// permitted until Solve is called.
func New(solver Solver) *Model {
	return &Model{
		reactions:        make(map[string]*Reaction),
		solver:           solver,
		defaultExcretion: DefaultExcretion,
		defaultUptake:    DefaultUptake,
	}
}

// #endregion model-struct

// #region reactions

// AddReaction inserts a reaction. Re-adding an existing ID is a contract
// violation.
func (m *Model) AddReaction(r *Reaction) error {
	if _, ok := m.reactions[r.ID]; ok {
		return fmt.Errorf("add reaction: duplicate id %s", r.ID)
	}
	m.reactions[r.ID] = r
	m.order = append(m.order, r.ID)
	return nil
}

// Reaction returns the reaction with the given ID, or nil.
func (m *Model) Reaction(id string) *Reaction {
	return m.reactions[id]
}

// Has reports whether the model contains the reaction.
func (m *Model) Has(id string) bool {
	_, ok := m.reactions[id]
	return ok
}

// Reactions returns all reactions in insertion order.
func (m *Model) Reactions() []*Reaction {
	out := make([]*Reaction, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.reactions[id])
	}
	return out
}

// RemoveReactions deletes the given reactions from the model. Unknown IDs
// are ignored (already gone is not an error during cleanup).
func (m *Model) RemoveReactions(ids []string) {
	for _, id := range ids {
		if _, ok := m.reactions[id]; !ok {
			continue
		}
		delete(m.reactions, id)
		for i, oid := range m.order {
			if oid == id {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
}

// Metabolites returns the sorted set of metabolite IDs across all reactions.
func (m *Model) Metabolites() []string {
	seen := make(map[string]bool)
	for _, r := range m.reactions {
		for met := range r.Stoich {
			seen[met] = true
		}
	}
	out := make([]string, 0, len(seen))
	for met := range seen {
		out = append(out, met)
	}
	sort.Strings(out)
	return out
}

// #endregion reactions

// #region bounds

// SetBounds assigns both bounds of a reaction, journaling into the active
// scope.
func (m *Model) SetBounds(id string, lower, upper float64) {
	r := m.reactions[id]
	if r == nil {
		log.Printf("[MODEL] set bounds on missing reaction %s ignored", id)
		return
	}
	m.journalBounds(r)
	r.Lower = lower
	r.Upper = upper
}

// Knock zeroes the bound for one direction of a reaction and returns the
// record needed to undo it. When the counter bound forces flux through the
// knocked direction (sign-crossed), it is zeroed as well, mirroring how the
// knockout must behave for forced reactions.
func (m *Model) Knock(id string, dir Direction) (Knockout, bool) {
	r := m.reactions[id]
	if r == nil {
		return Knockout{}, false
	}
	m.journalBounds(r)
	k := Knockout{ReactionID: id, Direction: dir}
	if dir == Forward {
		k.Bound = r.Upper
		if r.Lower > 0 {
			k.Counter = r.Lower
			k.HasCounter = true
			r.Lower = 0
		}
		r.Upper = 0
	} else {
		k.Bound = r.Lower
		if r.Upper < 0 {
			k.Counter = r.Upper
			k.HasCounter = true
			r.Upper = 0
		}
		r.Lower = 0
	}
	return k, true
}

// Restore reverses a Knockout.
func (m *Model) Restore(k Knockout) {
	r := m.reactions[k.ReactionID]
	if r == nil {
		log.Printf("[MODEL] restore on missing reaction %s ignored", k.ReactionID)
		return
	}
	m.journalBounds(r)
	if k.Direction == Forward {
		r.Upper = k.Bound
		if k.HasCounter {
			r.Lower = k.Counter
		}
	} else {
		r.Lower = k.Bound
		if k.HasCounter {
			r.Upper = k.Counter
		}
	}
}

// DirectionBound returns the bound governing flux in the given direction.
func (m *Model) DirectionBound(id string, dir Direction) (float64, bool) {
	r := m.reactions[id]
	if r == nil {
		return 0, false
	}
	if dir == Forward {
		return r.Upper, true
	}
	return r.Lower, true
}

// OpenDirection opens flux in one direction to the given magnitude without
// touching the counter bound. Used when integrating gapfilled reactions.
func (m *Model) OpenDirection(id string, dir Direction, magnitude float64) {
	r := m.reactions[id]
	if r == nil {
		return
	}
	m.journalBounds(r)
	if dir == Forward {
		r.Upper = magnitude
	} else {
		r.Lower = -magnitude
	}
}

// #endregion bounds

// #region objective

// SetObjective selects the reaction to optimize and the direction.
func (m *Model) SetObjective(reactionID string, sense Sense) {
	m.journalObjective()
	m.objective = reactionID
	m.sense = sense
}

// Objective returns the current objective reaction and sense.
func (m *Model) Objective() (string, Sense) {
	return m.objective, m.sense
}

// #endregion objective

// #region media

// ApplyMedia rewrites every boundary reaction's bounds from the media:
// uptake (negative lower bound) from the media flows, excretion opened to
// the default. Passing nil applies a complete media (default uptake
// everywhere).
func (m *Model) ApplyMedia(media *Media) {
	m.journalMedia()
	for _, id := range m.order {
		r := m.reactions[id]
		if !r.IsExchange() {
			continue
		}
		m.journalBounds(r)
		uptake := m.defaultUptake
		if media != nil {
			if flow, ok := media.Flows[r.ExchangeCompound()]; ok {
				uptake = flow
			}
		}
		r.Lower = -uptake
		r.Upper = m.defaultExcretion
	}
	m.media = media
}

// Media returns the applied media (nil for complete).
func (m *Model) Media() *Media {
	return m.media
}

// #endregion media

// #region solve

// SetSolver injects the optimization backend.
func (m *Model) SetSolver(s Solver) {
	m.solver = s
}

// Solve runs a fresh optimization of the current objective under the
// current bounds. A model without a solver reports StatusFailed rather
// than panicking.
func (m *Model) Solve() Solution {
	if m.solver == nil {
		log.Printf("[MODEL] solve requested with no solver attached")
		return Solution{Status: StatusFailed}
	}
	return m.solver.Solve(m)
}

// #endregion solve

// #region clone

// Clone deep-copies the model's reactions, objective, and media reference.
// The solver is shared (solvers are stateless over the model argument).
// Open scopes are not carried over.
func (m *Model) Clone() *Model {
	cp := New(m.solver)
	cp.defaultExcretion = m.defaultExcretion
	cp.defaultUptake = m.defaultUptake
	for _, id := range m.order {
		cp.reactions[id] = m.reactions[id].Clone()
		cp.order = append(cp.order, id)
	}
	cp.objective = m.objective
	cp.sense = m.sense
	cp.media = m.media
	return cp
}

// #endregion clone
