// Package needtest decides which reactions of an already-integrated
// gapfilling solution are actually needed: a reaction is needed when
// knocking it out alone drops any (target, media, threshold) pair below
// its threshold. Unneeded reactions stay knocked out while the remainder
// of the solution is screened, so combinatorial redundancy is caught.
package needtest

import (
	"log"

	"github.com/modelworks/gapfill-controller/internal/model"
)

// #region types

// Kind records which half of a gapfill solution an entry came from.
type Kind string

const (
	KindNew      Kind = "new"
	KindReversed Kind = "reversed"
)

// Entry is one reaction direction of an integrated solution.
type Entry struct {
	ReactionID string
	Direction  model.Direction
	Kind       Kind
}

// Unneeded is an entry proven removable, with the bounds captured at its
// final knockout so it can be restored or deleted.
//
// When the same entry is screened across pairs with different applied
// media, only the last-evaluated pair's captured bound is kept; entries
// whose original bounds differ across pairs are restored from that last
// capture (behavior carried from the reference implementation).
type Unneeded struct {
	Entry
	Bound      float64
	Counter    float64
	HasCounter bool
}

// Pair is one (target, media, threshold) growth requirement.
type Pair struct {
	Target    string
	Media     *model.Media
	Threshold float64
}

// Options controls what happens to unneeded reactions.
type Options struct {
	// RemoveUnneeded physically deletes unneeded reactions whose bounds
	// are fully zeroed, instead of restoring them.
	RemoveUnneeded bool
	// DoNotRemove protects entries from deletion; protected unneeded
	// entries are restored instead.
	DoNotRemove []Entry
}

// #endregion types

// #region evaluate

// Evaluate screens every solution entry against every pair and returns the
// unneeded ones. The model's objective and media are restored before
// returning on every path; bounds of needed reactions are restored
// immediately, and bounds of unneeded reactions are restored unless
// Options.RemoveUnneeded is set.
func Evaluate(m *model.Model, solution []Entry, pairs []Pair, opts Options) []Unneeded {
	savedObjective, savedSense := m.Objective()
	savedMedia := m.Media()
	defer func() {
		m.SetObjective(savedObjective, savedSense)
		if savedMedia != nil {
			m.ApplyMedia(savedMedia)
		}
	}()

	// Starting objectives, applied sequentially; with a single pair the
	// medium and objective stay applied for the whole screen.
	for _, p := range pairs {
		m.ApplyMedia(p.Media)
		m.SetObjective(p.Target, model.Maximize)
		sol := m.Solve()
		log.Printf("[NEEDTEST] starting objective for %s/%s = %g", p.Media.String(), p.Target, sol.Objective)
	}

	var unneeded []Unneeded
	for _, item := range solution {
		if !m.Has(item.ReactionID) {
			log.Printf("[NEEDTEST] solution reaction %s missing from model, bookkeeping inconsistency", item.ReactionID)
			continue
		}

		var last model.Knockout
		var counter float64
		hasCounter := false
		needed := false
		for _, p := range pairs {
			if len(pairs) > 1 {
				m.ApplyMedia(p.Media)
				m.SetObjective(p.Target, model.Maximize)
			}
			// Knockout strictly after the medium is applied, in case the
			// reaction is an exchange the medium just reopened.
			k, _ := m.Knock(item.ReactionID, item.Direction)
			if k.HasCounter && !hasCounter {
				counter = k.Counter
				hasCounter = true
			}
			last = k

			sol := m.Solve()
			if sol.Objective < p.Threshold {
				needed = true
				log.Printf("[NEEDTEST] %s/%s: %s%s needed: %g with min obj %g",
					p.Media.String(), p.Target, item.ReactionID, item.Direction, sol.Objective, p.Threshold)
			}
		}

		if !needed {
			unneeded = append(unneeded, Unneeded{
				Entry: item, Bound: last.Bound, Counter: counter, HasCounter: hasCounter,
			})
			log.Printf("[NEEDTEST] %s%s not needed", item.ReactionID, item.Direction)
			// Left knocked out so the rest of the solution is screened
			// against its absence.
		} else {
			m.Restore(model.Knockout{
				ReactionID: item.ReactionID, Direction: item.Direction,
				Bound: last.Bound, Counter: counter, HasCounter: hasCounter,
			})
		}
	}

	if !opts.RemoveUnneeded {
		for _, u := range unneeded {
			restore(m, u)
		}
		return unneeded
	}

	var removed []string
	for _, u := range unneeded {
		switch {
		case contains(opts.DoNotRemove, u.Entry, false):
			restore(m, u)
		case fullyClosed(m, u.ReactionID) && !contains(opts.DoNotRemove, u.Entry, true):
			removed = append(removed, u.ReactionID)
		}
	}
	if len(removed) > 0 {
		log.Printf("[NEEDTEST] removing %d unneeded reactions", len(removed))
		m.RemoveReactions(removed)
	}
	return unneeded
}

// #endregion evaluate

// #region helpers

func restore(m *model.Model, u Unneeded) {
	m.Restore(model.Knockout{
		ReactionID: u.ReactionID, Direction: u.Direction,
		Bound: u.Bound, Counter: u.Counter, HasCounter: u.HasCounter,
	})
}

func fullyClosed(m *model.Model, id string) bool {
	r := m.Reaction(id)
	return r != nil && r.Lower == 0 && r.Upper == 0
}

// contains reports whether list holds the entry, optionally ignoring the
// direction.
func contains(list []Entry, e Entry, ignoreDir bool) bool {
	for _, x := range list {
		if x.ReactionID != e.ReactionID {
			continue
		}
		if ignoreDir || x.Direction == e.Direction {
			return true
		}
	}
	return false
}

// #endregion helpers
