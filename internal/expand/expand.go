// Package expand reduces a set of candidate reactions to the subset that
// must stay disabled for a list of test conditions to keep passing. The
// search operates by zeroing and restoring reaction bounds on the live
// model; every run borrows the model and hands it back fully restored,
// with only the proven-filtered reactions left zeroed.
package expand

import (
	"errors"
	"log"
	"sort"
	"time"

	"github.com/modelworks/gapfill-controller/internal/attributes"
	"github.com/modelworks/gapfill-controller/internal/condition"
	"github.com/modelworks/gapfill-controller/internal/model"
	"github.com/modelworks/gapfill-controller/internal/scores"
)

// #region errors

// ErrNoSolution reports that no subset of the candidates can make the test
// conditions pass. It is a structural outcome, not a failure: batch
// callers check it with errors.Is and move on to the next media.
var ErrNoSolution = errors.New("no candidate subset satisfies the test conditions")

// #endregion errors

// #region types

// Candidate is one reaction direction under test.
type Candidate struct {
	ReactionID string
	Direction  model.Direction
}

// Filtered is a candidate the search proved must stay disabled, with the
// bound it held before being zeroed and the objective score observed when
// its presence broke the condition.
type Filtered struct {
	Candidate
	OriginalBound float64
	Score         float64
}

// Result is the outcome of one expansion pass. Breaking, when set, names a
// candidate whose removal could not be accepted (it failed the
// positive-growth check); the pass aborted early and the driver must
// retain the reaction as mandatory before searching again.
type Result struct {
	Filtered []Filtered
	Breaking *Candidate
}

// #endregion types

// #region config

// Config selects the search strategy.
type Config struct {
	// BinarySearch uses divide-and-conquer instead of one-at-a-time
	// restoration. Both produce the same filtered set.
	BinarySearch bool
	// ResortByScore orders candidates by reliability before searching.
	// Order changes which equivalent reactions are probed first, never
	// correctness.
	ResortByScore bool
}

// DefaultConfig enables binary search with reliability ordering.
func DefaultConfig() Config {
	return Config{BinarySearch: true, ResortByScore: true}
}

// #endregion config

// #region reducer

// Reducer runs expansion tests against a borrowed tester/model pair,
// memoizing per-condition results in the attributes cache (which may be
// nil).
type Reducer struct {
	tester *condition.Tester
	cache  *attributes.Store
	cfg    Config
}

// NewReducer creates a reducer over the given tester.
func NewReducer(tester *condition.Tester, cache *attributes.Store, cfg Config) *Reducer {
	return &Reducer{tester: tester, cache: cache, cfg: cfg}
}

// #endregion reducer

// #region linear

// Linear zeroes every candidate, then restores them one at a time,
// re-testing after each. A candidate whose restoration breaks the
// condition is zeroed again and recorded; the rest stay restored. The
// condition must already be applied.
func (r *Reducer) Linear(candidates []Candidate, cond condition.Condition) []Filtered {
	if r.tester.TestSingle(cond, false) {
		return nil
	}
	m := r.tester.Model()
	knocks := make([]model.Knockout, len(candidates))
	for i, c := range candidates {
		knocks[i], _ = m.Knock(c.ReactionID, c.Direction)
	}
	var filtered []Filtered
	for i, c := range candidates {
		m.Restore(knocks[i])
		if !r.tester.TestSingle(cond, false) {
			k, _ := m.Knock(c.ReactionID, c.Direction)
			filtered = append(filtered, Filtered{Candidate: c, OriginalBound: k.Bound, Score: r.tester.Score})
		}
	}
	return filtered
}

// #endregion linear

// #region binary

// Binary runs the divide-and-conquer expansion test. The condition must
// already be applied; candidates must be present (restored).
//
// Base-case acceptance can be vetoed by positiveGrowth conditions: if
// zeroing the lone candidate breaks any of them, the candidate is restored
// and reported as Breaking. After the veto check the probed condition is
// re-applied directly; this assumes no other condition was active when the
// search began (known limitation carried from the reference behavior).
func (r *Reducer) Binary(candidates []Candidate, cond condition.Condition, positiveGrowth []condition.Condition) Result {
	if r.tester.TestSingle(cond, false) {
		return Result{}
	}
	m := r.tester.Model()

	if len(candidates) == 1 {
		c := candidates[0]
		k, ok := m.Knock(c.ReactionID, c.Direction)
		if !ok {
			log.Printf("[EXPAND] candidate %s%s missing from model, skipping", c.ReactionID, c.Direction)
			return Result{}
		}
		if len(positiveGrowth) > 0 {
			for _, pc := range positiveGrowth {
				if !r.tester.TestSingle(pc, true) {
					log.Printf("[EXPAND] %s%s fails positive growth tests, retaining", c.ReactionID, c.Direction)
					m.Restore(k)
					r.tester.Apply(cond)
					return Result{Breaking: &c}
				}
			}
			r.tester.Apply(cond)
		}
		return Result{Filtered: []Filtered{{Candidate: c, OriginalBound: k.Bound, Score: r.tester.Score}}}
	}

	mid := len(candidates) / 2
	first, second := candidates[:mid], candidates[mid:]
	knocks := make([]model.Knockout, len(second))
	for i, c := range second {
		knocks[i], _ = m.Knock(c.ReactionID, c.Direction)
	}

	res := r.Binary(first, cond, positiveGrowth)
	if res.Breaking != nil {
		// Subdividing further is pointless while a hard dependency is
		// unresolved; the second half stays zeroed and the enclosing
		// scope restores it.
		return res
	}
	for i := range second {
		m.Restore(knocks[i])
	}
	secondRes := r.Binary(second, cond, positiveGrowth)
	return Result{
		Filtered: append(res.Filtered, secondRes.Filtered...),
		Breaking: secondRes.Breaking,
	}
}

// #endregion binary

// #region solution-exists

// CheckSolutionExists reports whether the condition can pass with every
// candidate zeroed — the best any subset removal can do. Bounds are
// restored before returning.
func (r *Reducer) CheckSolutionExists(candidates []Candidate, cond condition.Condition) bool {
	m := r.tester.Model()
	knocks := make([]model.Knockout, len(candidates))
	for i, c := range candidates {
		knocks[i], _ = m.Knock(c.ReactionID, c.Direction)
	}
	ok := r.tester.TestSingle(cond, true)
	for i := len(knocks) - 1; i >= 0; i-- {
		m.Restore(knocks[i])
	}
	return ok
}

// #endregion solution-exists

// #region run

// Run is the outer driver: for each condition it verifies a solution
// exists, runs the configured strategy until a full pass raises no
// breaking reaction, permanently zeroes the filtered reactions, and
// memoizes the result. Breaking reactions are removed from the searchable
// list for all later conditions (they are mandatory). Returns ErrNoSolution
// when a condition cannot pass even with every candidate removed; the
// failing condition's probes, including cache-seeded knockouts, are undone
// before returning, so only reactions proven filtered for an earlier
// condition in the same run stay zeroed.
func (r *Reducer) Run(
	candidates []Candidate,
	conditions []condition.Condition,
	positiveGrowth []condition.Condition,
	activeSets [][]scores.Active,
) ([]Filtered, error) {
	m := r.tester.Model()
	log.Printf("[EXPAND] expansion started: binary=%v candidates=%d conditions=%d",
		r.cfg.BinarySearch, len(candidates), len(conditions))

	searchable := append([]Candidate(nil), candidates...)
	if r.cfg.ResortByScore {
		rel := scores.Assign(m, activeSets)
		sort.SliceStable(searchable, func(i, j int) bool {
			return rel.Get(searchable[i].ReactionID, searchable[i].Direction) <
				rel.Get(searchable[j].ReactionID, searchable[j].Direction)
		})
	}

	var filtered []Filtered
	seen := make(map[Candidate]bool)

	for _, cond := range conditions {
		start := time.Now()
		key := filterKey(cond)

		// Skip candidates already filtered for this condition in a prior
		// run: zero them up front and record them without re-searching.
		cached, err := r.cache.Filter(key)
		if err != nil {
			log.Printf("[EXPAND] filter cache read failed: %v", err)
			cached = nil
		}
		var active []Candidate
		var seedKnocks []model.Knockout
		for _, c := range searchable {
			if seen[c] {
				continue
			}
			if score, ok := cached[c.ReactionID][c.Direction]; ok {
				k, _ := m.Knock(c.ReactionID, c.Direction)
				seedKnocks = append(seedKnocks, k)
				filtered = append(filtered, Filtered{Candidate: c, OriginalBound: k.Bound, Score: score})
				seen[c] = true
				continue
			}
			active = append(active, c)
		}
		restoreSeeds := func() {
			for i := len(seedKnocks) - 1; i >= 0; i-- {
				m.Restore(seedKnocks[i])
			}
		}

		if !r.CheckSolutionExists(active, cond) {
			log.Printf("[EXPAND] no solution exists that passes tests for %s", cond.Media.String())
			restoreSeeds()
			return nil, ErrNoSolution
		}

		scope := m.Begin()
		r.tester.Apply(cond)

		var condFiltered []Filtered
		if r.cfg.BinarySearch {
			for {
				pass := m.Begin()
				for _, f := range condFiltered {
					m.Knock(f.ReactionID, f.Direction)
				}
				res := r.Binary(remaining(active, condFiltered), cond, positiveGrowth)
				pass.Rollback()

				condFiltered = mergeFiltered(condFiltered, res.Filtered)
				if res.Breaking == nil {
					break
				}
				log.Printf("[EXPAND] keeping breaking reaction %s%s",
					res.Breaking.ReactionID, res.Breaking.Direction)
				active = remove(active, *res.Breaking)
				searchable = remove(searchable, *res.Breaking)
				// Re-check with the full remaining list zeroed. The pass
				// rollback above revived this condition's filtered
				// reactions, and active still holds them, so they are
				// knocked again here with everything else.
				if !r.CheckSolutionExists(active, cond) {
					log.Printf("[EXPAND] no solution exists after retaining %s%s",
						res.Breaking.ReactionID, res.Breaking.Direction)
					scope.Rollback()
					restoreSeeds()
					return nil, ErrNoSolution
				}
			}
		} else {
			condFiltered = r.Linear(active, cond)
		}
		scope.Rollback()

		// The rollback above revived this condition's filtered reactions;
		// zero them for good and record the live bound they held.
		var entries []attributes.FilterEntry
		for _, f := range condFiltered {
			k, _ := m.Knock(f.ReactionID, f.Direction)
			f.OriginalBound = k.Bound
			entries = append(entries, attributes.FilterEntry{
				ReactionID: f.ReactionID, Direction: f.Direction, Score: f.Score,
			})
			if !seen[f.Candidate] {
				filtered = append(filtered, f)
				seen[f.Candidate] = true
			}
		}
		if err := r.cache.SaveFilter(key, entries); err != nil {
			log.Printf("[EXPAND] filter cache write failed: %v", err)
		}

		log.Printf("[EXPAND] expansion time %s: %s", cond.Media.String(), time.Since(start))
		log.Printf("[EXPAND] filtered count: %d out of %d", len(filtered), len(searchable))
	}
	return filtered, nil
}

// #endregion run

// #region helpers

func filterKey(cond condition.Condition) attributes.FilterKey {
	id := "complete"
	if cond.Media != nil {
		id = cond.Media.ID
	}
	return attributes.FilterKey{MediaID: id, Objective: cond.Objective, Threshold: cond.Threshold}
}

func remaining(active []Candidate, filtered []Filtered) []Candidate {
	if len(filtered) == 0 {
		return active
	}
	drop := make(map[Candidate]bool, len(filtered))
	for _, f := range filtered {
		drop[f.Candidate] = true
	}
	var out []Candidate
	for _, c := range active {
		if !drop[c] {
			out = append(out, c)
		}
	}
	return out
}

func mergeFiltered(have, add []Filtered) []Filtered {
	seen := make(map[Candidate]bool, len(have))
	for _, f := range have {
		seen[f.Candidate] = true
	}
	for _, f := range add {
		if !seen[f.Candidate] {
			have = append(have, f)
			seen[f.Candidate] = true
		}
	}
	return have
}

func remove(list []Candidate, c Candidate) []Candidate {
	for i, x := range list {
		if x == c {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

// #endregion helpers
