package gapfill

import (
	"log"

	"github.com/modelworks/gapfill-controller/internal/model"
	"github.com/modelworks/gapfill-controller/internal/needtest"
)

// #region integrate

// Integrate applies a solved gapfilling solution to the live model: new
// reactions are copied in from the builder's scratch model with their
// gapfilled direction opened, reversed reactions get their reverse
// direction opened, and the need test strips what the solution does not
// actually require. The returned solution holds only the entries that
// survived the need test.
//
// Under PolicyIndependent, reactions accepted for earlier media are
// suppressed while this media's own requirement is screened, then
// restored; RunMultiGapfill re-tests the combined result at the end.
//
// Only this solution's own entries are screened and reported: reactions
// accepted for earlier media stay in the model, protected from removal,
// but do not reappear in the returned solution even when this media also
// depends on them. The cumulative list on the Gapfiller is the full
// picture across media.
func (g *Gapfiller) Integrate(sol *Solution, policy Policy, removeUnneeded, checkForGrowth bool) (*Solution, error) {
	m := g.mdl
	m.SetObjective(sol.Target, model.Maximize)

	var suppressed []model.Knockout
	if policy == PolicyIndependent {
		for _, item := range g.cumulative {
			if k, ok := m.Knock(item.ReactionID, item.Direction); ok {
				suppressed = append(suppressed, k)
			}
		}
	}

	entries := sol.Entries()
	applied := entries[:0]
	for _, e := range entries {
		if !g.applyEntry(m, e) {
			continue
		}
		applied = append(applied, e)
	}

	out := newSolution(sol.Media, sol.Target, sol.MinObjective, sol.BinaryCheck)
	pair := needtest.Pair{Target: sol.Target, Media: sol.Media, Threshold: sol.MinObjective}

	unneeded := needtest.Evaluate(m, applied, []needtest.Pair{pair}, needtest.Options{
		RemoveUnneeded: removeUnneeded,
		DoNotRemove:    g.cumulative,
	})
	removed := entriesOf(unneeded)
	for _, e := range applied {
		if containsEntry(removed, e) {
			continue
		}
		out.add(e)
		if !containsEntry(g.cumulative, e) {
			g.cumulative = append(g.cumulative, e)
		}
	}

	for _, k := range suppressed {
		m.Restore(k)
	}

	if checkForGrowth {
		m.ApplyMedia(sol.Media)
		growth := m.Solve()
		out.Growth = growth.Objective
		log.Printf("[GAPFILL] growth check media=%s target=%s status=%s objective=%f",
			mediaID(sol.Media), sol.Target, growth.Status, growth.Objective)
	}

	g.record(sol.Media, sol.Target, StateSolved, StateIntegrated,
		integrationReason(sol.Count(), out.Count()))
	return out, nil
}

// applyEntry copies a new reaction into the live model (or locates a
// reversed one) and opens its gapfilled direction. Returns false when the
// reaction exists in neither model, which indicates an inconsistent draft.
func (g *Gapfiller) applyEntry(m *model.Model, e needtest.Entry) bool {
	if !m.Has(e.ReactionID) {
		src := g.builder.ScratchModel().Reaction(e.ReactionID)
		if src == nil {
			log.Printf("[GAPFILL] warning: solution reaction %s missing from both models", e.ReactionID)
			return false
		}
		cp := src.Clone()
		cp.Lower, cp.Upper = 0, 0
		g.assignGenes(cp)
		if err := m.AddReaction(cp); err != nil {
			log.Printf("[GAPFILL] add reaction %s: %v", e.ReactionID, err)
			return false
		}
	}
	m.OpenDirection(e.ReactionID, e.Direction, g.cfg.OpenBound)
	return true
}

// assignGenes attaches the highest-probability candidate gene to a copied
// reaction that carries no gene rule.
func (g *Gapfiller) assignGenes(r *model.Reaction) {
	if r.GeneRule != "" || g.geneScores == nil {
		return
	}
	coreID := compartmentSuffix.ReplaceAllString(r.ID, "")
	gene, ok := g.geneScores.Best(coreID)
	if !ok {
		return
	}
	r.GeneRule = gene
	if r.Notes == nil {
		r.Notes = make(map[string]string)
	}
	r.Notes["new_genes"] = gene
}

// #endregion integrate

// #region helpers

func (s *Solution) add(e needtest.Entry) {
	if e.Kind == needtest.KindReversed {
		s.Reversed[e.ReactionID] = e.Direction
		return
	}
	s.New[e.ReactionID] = e.Direction
}

func entriesOf(unneeded []needtest.Unneeded) []needtest.Entry {
	out := make([]needtest.Entry, len(unneeded))
	for i, u := range unneeded {
		out[i] = u.Entry
	}
	return out
}

func containsEntry(list []needtest.Entry, e needtest.Entry) bool {
	for _, item := range list {
		if item.ReactionID == e.ReactionID && item.Direction == e.Direction {
			return true
		}
	}
	return false
}

// freshEntries returns the entries of list not already present in seen.
func freshEntries(list, seen []needtest.Entry) []needtest.Entry {
	var out []needtest.Entry
	for _, e := range list {
		if !containsEntry(seen, e) {
			out = append(out, e)
		}
	}
	return out
}

func integrationReason(solved, kept int) string {
	if kept == solved {
		return "all solution reactions needed"
	}
	return "need test trimmed solution"
}

// #endregion helpers
