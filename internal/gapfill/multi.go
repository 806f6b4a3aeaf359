package gapfill

import (
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/modelworks/gapfill-controller/internal/attributes"
	"github.com/modelworks/gapfill-controller/internal/condition"
	"github.com/modelworks/gapfill-controller/internal/expand"
	"github.com/modelworks/gapfill-controller/internal/model"
	"github.com/modelworks/gapfill-controller/internal/needtest"
	"github.com/modelworks/gapfill-controller/internal/scores"
	"github.com/modelworks/gapfill-controller/internal/sensitivity"
)

// #region multi

// RunMultiGapfill gapfills every media in the list under the configured
// policy and returns the integrated solution per media ID. Media no
// database extension can satisfy are rejected up front; a media failing
// later is skipped, not fatal. The error is ErrNoSolution only when no
// media survives at all.
func (g *Gapfiller) RunMultiGapfill(medias []*model.Media, opts MultiOptions) (map[string]*Solution, error) {
	start := time.Now()
	if opts.Policy == "" {
		opts.Policy = PolicyIndependent
	}

	if !opts.IntegrateSolutions {
		saved := g.mdl
		g.mdl = saved.Clone()
		defer func() { g.mdl = saved }()
	}

	runs := g.testAndAdjustConditions(medias, opts, true)
	if len(runs) == 0 {
		return nil, expand.ErrNoSolution
	}
	log.Printf("[GAPFILL] multi gapfill started: policy=%s media=%d/%d", opts.Policy, len(runs), len(medias))

	if opts.Prefilter {
		var err error
		runs, err = g.prefilterRuns(runs)
		if err != nil {
			return nil, err
		}
		if len(runs) == 0 {
			return nil, expand.ErrNoSolution
		}
	}

	solutions := make(map[string]*Solution, len(runs))
	switch opts.Policy {
	case PolicyGlobal:
		if err := g.runGlobal(runs, opts, solutions); err != nil {
			return nil, err
		}
	default:
		g.runPerMedia(runs, opts, solutions)
	}
	if len(solutions) == 0 {
		return nil, expand.ErrNoSolution
	}

	if opts.RunSensitivity {
		g.runSensitivity(solutions)
	}
	log.Printf("[GAPFILL] multi gapfill finished: %d/%d media solved in %s",
		len(solutions), len(medias), time.Since(start).Round(time.Millisecond))
	return solutions, nil
}

// prefilterRuns filters the candidate database once against every
// surviving media's growth condition, then re-screens the media against
// the reduced database.
func (g *Gapfiller) prefilterRuns(runs []mediaRun) ([]mediaRun, error) {
	growth := make([]condition.Condition, len(runs))
	activeSets := make([][]scores.Active, 0, len(runs))
	for i, run := range runs {
		growth[i] = run.growth
		if len(run.active) > 0 {
			activeSets = append(activeSets, run.active)
		}
	}
	if err := g.Prefilter(growth, activeSets); err != nil {
		if errors.Is(err, expand.ErrNoSolution) {
			return nil, err
		}
		return nil, fmt.Errorf("prefilter: %w", err)
	}

	kept := runs[:0]
	for _, run := range runs {
		if ok, _ := g.testDatabase(run.media, run.target, false); !ok {
			g.record(run.media, run.target, StateUnfiltered, StateRejected, "database test failed after filtering")
			continue
		}
		g.record(run.media, run.target, StateUnfiltered, StateFiltered, "database filtered against test conditions")
		kept = append(kept, run)
	}
	return kept, nil
}

// #endregion multi

// #region per-media

// runPerMedia handles the Independent and Sequential policies: each media
// is solved and integrated in turn. Sequential rebiases the penalty
// objective after each media so later media prefer already-paid-for
// reactions; Independent re-tests the combined result against all pairs at
// the end.
func (g *Gapfiller) runPerMedia(runs []mediaRun, opts MultiOptions, solutions map[string]*Solution) {
	for _, run := range runs {
		sol, err := g.RunGapfilling(run.media, run.target, run.threshold, opts.BinaryCheck, false)
		if err != nil {
			log.Printf("[GAPFILL] media %s: %v", mediaID(run.media), err)
			continue
		}
		integrated, err := g.Integrate(sol, opts.Policy, opts.RemoveUnneeded, opts.CheckForGrowth)
		if err != nil {
			log.Printf("[GAPFILL] integrate media %s: %v", mediaID(run.media), err)
			continue
		}
		solutions[mediaID(run.media)] = integrated
		if opts.Policy == PolicySequential {
			g.builder.ComputePenalties(g.cumulative, g.geneScores)
			g.builder.BuildObjective()
		}
	}

	switch opts.Policy {
	case PolicySequential:
		// Restore the unbiased objective for later single-media runs.
		g.builder.ComputePenalties(nil, g.geneScores)
		g.builder.BuildObjective()
	case PolicyIndependent:
		g.jointNeedTest(runs, opts, solutions)
	}
}

// jointNeedTest screens the full cumulative solution against every
// surviving pair at once and prunes both the cumulative record and the
// per-media solutions.
func (g *Gapfiller) jointNeedTest(runs []mediaRun, opts MultiOptions, solutions map[string]*Solution) {
	if len(g.cumulative) == 0 {
		return
	}
	pairs := make([]needtest.Pair, 0, len(runs))
	for _, run := range runs {
		if _, ok := solutions[mediaID(run.media)]; !ok {
			continue
		}
		pairs = append(pairs, needtest.Pair{Target: run.target, Media: run.media, Threshold: run.threshold})
	}
	if len(pairs) == 0 {
		return
	}
	unneeded := needtest.Evaluate(g.mdl, g.cumulative, pairs, needtest.Options{
		RemoveUnneeded: opts.RemoveUnneeded,
	})
	if len(unneeded) == 0 {
		return
	}
	log.Printf("[GAPFILL] joint need test removed %d of %d cumulative reactions", len(unneeded), len(g.cumulative))
	removed := entriesOf(unneeded)
	g.cumulative = freshEntries(g.cumulative, removed)
	for _, sol := range solutions {
		for _, e := range removed {
			if e.Kind == needtest.KindReversed {
				delete(sol.Reversed, e.ReactionID)
			} else {
				delete(sol.New, e.ReactionID)
			}
		}
	}
}

// #endregion per-media

// #region global

// runGlobal solves all media as one merged problem, integrates the shared
// solution into each media without per-media trimming, then runs the joint
// need test across the full media/target cross product.
func (g *Gapfiller) runGlobal(runs []mediaRun, opts MultiOptions, solutions map[string]*Solution) error {
	full, err := g.runGlobalGapfilling(runs)
	if err != nil {
		return err
	}
	for _, run := range runs {
		view := &Solution{
			ID:           full.ID,
			Media:        run.media,
			Target:       run.target,
			MinObjective: run.threshold,
			New:          full.New,
			Reversed:     full.Reversed,
		}
		integrated, err := g.Integrate(view, PolicyGlobal, false, opts.CheckForGrowth)
		if err != nil {
			log.Printf("[GAPFILL] integrate media %s: %v", mediaID(run.media), err)
			continue
		}
		solutions[mediaID(run.media)] = integrated
	}
	g.jointNeedTest(runs, opts, solutions)
	return nil
}

// runGlobalGapfilling merges one model copy per media into a single
// problem with shared max-flux indicators and minimizes the summed
// penalties once.
func (g *Gapfiller) runGlobalGapfilling(runs []mediaRun) (*Solution, error) {
	g.builder.CreateMaxFluxVariables()
	conditions := make([]condition.Condition, len(runs))
	for i, run := range runs {
		conditions[i] = run.growth
	}
	merged, err := g.builder.ReplicateProblem(conditions)
	if err != nil {
		return nil, fmt.Errorf("replicate problem: %w", err)
	}

	weights := make(map[string]map[model.Direction]float64)
	for _, c := range g.builder.Candidates() {
		w := 1.0
		if p, ok := g.builder.Penalty(c.ReactionID, c.Direction); ok {
			w = math.Abs(p)
		}
		if weights[c.ReactionID] == nil {
			weights[c.ReactionID] = make(map[model.Direction]float64)
		}
		weights[c.ReactionID][c.Direction] = w
	}

	sol := merged.Minimize(weights)
	log.Printf("[GAPFILL] global gapfill solve: status=%s objective=%f media=%d", sol.Status, sol.Objective, len(runs))
	if !sol.IsOptimal() {
		for _, run := range runs {
			g.record(run.media, run.target, StateFiltered, StateRejected, fmt.Sprintf("global solve %s", sol.Status))
		}
		return nil, expand.ErrNoSolution
	}

	draft, err := g.builder.ComputeSolutionFromFlux(merged.MaxFluxValues())
	if err != nil {
		return nil, fmt.Errorf("compute global solution: %w", err)
	}
	out := newSolution(runs[0].media, runs[0].target, runs[0].threshold, false)
	for id, dir := range draft.New {
		out.New[id] = dir
	}
	for id, dir := range draft.Reversed {
		out.Reversed[id] = dir
	}
	g.lastSolution = out
	return out, nil
}

// #endregion global

// #region sensitivity

// runSensitivity records, for every solved media, which biomass precursors
// depend on each accepted reaction direction. Media that failed the growth
// check get a bare failure record instead.
func (g *Gapfiller) runSensitivity(solutions map[string]*Solution) {
	analyzer := sensitivity.New(sensitivity.DefaultConfig())
	for id, sol := range solutions {
		if sol.Growth <= 0 {
			if err := g.cache.SaveSensitivity(attributes.SensitivityRecord{
				MediaID: id,
				Target:  sol.Target,
				Note:    attributes.NoteFailure,
			}); err != nil {
				log.Printf("[GAPFILL] sensitivity record failed: %v", err)
			}
			continue
		}

		scope := g.mdl.Begin()
		g.mdl.SetObjective(sol.Target, model.Maximize)
		g.mdl.ApplyMedia(sol.Media)
		kos := make([]sensitivity.Knockout, 0, sol.Count())
		for _, e := range sol.Entries() {
			kos = append(kos, sensitivity.Knockout{ReactionID: e.ReactionID, Direction: e.Direction})
		}
		deps, err := analyzer.KnockoutDependencies(g.mdl, sol.Target, kos)
		scope.Rollback()
		if err != nil {
			log.Printf("[GAPFILL] sensitivity analysis media %s: %v", id, err)
			continue
		}

		for _, ko := range kos {
			if err := g.cache.SaveSensitivity(attributes.SensitivityRecord{
				MediaID:    id,
				Target:     sol.Target,
				Note:       attributes.NoteSuccess,
				ReactionID: ko.ReactionID,
				Direction:  ko.Direction,
				Compounds:  deps[ko.ReactionID][ko.Direction],
			}); err != nil {
				log.Printf("[GAPFILL] sensitivity record failed: %v", err)
			}
		}
	}
}

// #endregion sensitivity
