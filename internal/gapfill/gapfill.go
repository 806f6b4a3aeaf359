// Package gapfill orchestrates constraint-based gapfilling: it drives the
// builder's LP formulation, prefilters the candidate database against test
// conditions, solves per media under a multi-media policy, and integrates
// accepted reactions into the live model.
package gapfill

import (
	"errors"
	"fmt"
	"log"
	"regexp"

	"github.com/modelworks/gapfill-controller/internal/attributes"
	"github.com/modelworks/gapfill-controller/internal/condition"
	"github.com/modelworks/gapfill-controller/internal/expand"
	"github.com/modelworks/gapfill-controller/internal/model"
	"github.com/modelworks/gapfill-controller/internal/needtest"
	"github.com/modelworks/gapfill-controller/internal/provenance"
	"github.com/modelworks/gapfill-controller/internal/scores"
	"github.com/modelworks/gapfill-controller/internal/sensitivity"
)

// #region config

// Config carries the gapfiller's defaults and wiring knobs.
type Config struct {
	DefaultTarget       string
	DefaultMinObjective float64
	ExpansionConfig     expand.Config
	// OpenBound is the magnitude applied when opening an integrated
	// reaction direction.
	OpenBound float64
}

// DefaultConfig returns the standard gapfiller settings.
func DefaultConfig() Config {
	return Config{
		DefaultTarget:       "bio1",
		DefaultMinObjective: 0.01,
		ExpansionConfig:     expand.DefaultConfig(),
		OpenBound:           100,
	}
}

// #endregion config

// #region gapfiller

var compartmentSuffix = regexp.MustCompile(`_[a-z]\d+$`)

// Gapfiller coordinates a gapfilling run over one live model.
type Gapfiller struct {
	mdl            *model.Model
	builder        Builder
	testConditions []condition.Condition
	geneScores     GeneScores
	cache          *attributes.Store
	prov           *provenance.Log
	runID          string
	cfg            Config

	// cumulative accumulates every reaction direction accepted across
	// media in the current multi-media run.
	cumulative   []needtest.Entry
	lastSolution *Solution
}

// New builds a gapfiller over the live model. cache and prov may be nil.
func New(mdl *model.Model, builder Builder, testConditions []condition.Condition, geneScores GeneScores, cache *attributes.Store, prov *provenance.Log, cfg Config) *Gapfiller {
	if cfg.DefaultTarget == "" {
		cfg.DefaultTarget = "bio1"
	}
	if cfg.OpenBound == 0 {
		cfg.OpenBound = 100
	}
	return &Gapfiller{
		mdl:            mdl,
		builder:        builder,
		testConditions: testConditions,
		geneScores:     geneScores,
		cache:          cache,
		prov:           prov,
		runID:          provenance.NewRunID(),
		cfg:            cfg,
	}
}

// Model returns the live model the gapfiller integrates into.
func (g *Gapfiller) Model() *model.Model { return g.mdl }

// LastSolution returns the most recently solved (pre-integration) solution.
func (g *Gapfiller) LastSolution() *Solution { return g.lastSolution }

// Cumulative returns every reaction direction accepted so far in this run.
func (g *Gapfiller) Cumulative() []needtest.Entry {
	out := make([]needtest.Entry, len(g.cumulative))
	copy(out, g.cumulative)
	return out
}

func (g *Gapfiller) record(media *model.Media, target string, from, to State, reason string) {
	if err := g.prov.Record(provenance.Entry{
		RunID:     g.runID,
		MediaID:   mediaID(media),
		Target:    target,
		FromState: string(from),
		ToState:   string(to),
		Reason:    reason,
	}); err != nil {
		log.Printf("[GAPFILL] provenance record failed: %v", err)
	}
}

func mediaID(media *model.Media) string {
	if media == nil {
		return "complete"
	}
	return media.ID
}

// #endregion gapfiller

// #region database-test

// testDatabase checks whether any gapfilling solution exists for the media
// with the full remaining candidate database enabled. On failure it logs
// and, unless the LP was hard-infeasible, records the target's
// unproducible precursor compounds for later diagnosis.
func (g *Gapfiller) testDatabase(media *model.Media, target string, beforeFiltering bool) (bool, []scores.Active) {
	g.builder.SetBaseObjective(target, 0)
	if media != nil {
		g.builder.SetMedia(media)
	}
	ok, infeasible, active := g.builder.TestDatabase()
	if ok {
		return true, active
	}
	phase := "after"
	note := attributes.NoteFailedAfterFiltering
	if beforeFiltering {
		phase = "before"
		note = attributes.NoteFailedBeforeFiltering
	}
	log.Printf("[GAPFILL] warning: no gapfilling solution found %s filtering for media %s activating %s", phase, mediaID(media), target)
	if infeasible {
		return false, nil
	}
	analyzer := sensitivity.New(sensitivity.DefaultConfig())
	unproducible, err := analyzer.UnproducibleCompounds(g.builder.ScratchModel(), target)
	if err != nil {
		log.Printf("[GAPFILL] unproducible compound scan failed: %v", err)
	}
	if err := g.cache.SaveSensitivity(attributes.SensitivityRecord{
		MediaID:   mediaID(media),
		Target:    target,
		Note:      note,
		Compounds: unproducible,
	}); err != nil {
		log.Printf("[GAPFILL] sensitivity record failed: %v", err)
	}
	return false, nil
}

// #endregion database-test

// #region conditions

type mediaRun struct {
	media     *model.Media
	target    string
	threshold float64
	growth    condition.Condition
	active    []scores.Active
}

// testAndAdjustConditions screens each media against the candidate
// database, dropping media no database extension can satisfy. The
// survivors come back with their growth condition and the reaction
// directions active in the database test.
func (g *Gapfiller) testAndAdjustConditions(medias []*model.Media, opts MultiOptions, beforeFiltering bool) []mediaRun {
	runs := make([]mediaRun, 0, len(medias))
	for _, media := range medias {
		target := opts.Target
		if t, ok := opts.TargetsByMedia[mediaID(media)]; ok {
			target = t
		}
		if target == "" {
			target = g.cfg.DefaultTarget
		}
		threshold := opts.MinObjective
		if v, ok := opts.MinObjectives[mediaID(media)]; ok {
			threshold = v
		}
		if threshold == 0 {
			threshold = g.cfg.DefaultMinObjective
		}
		ok, active := g.testDatabase(media, target, beforeFiltering)
		if !ok {
			g.record(media, target, StateUnfiltered, StateRejected, "database test failed")
			continue
		}
		runs = append(runs, mediaRun{
			media:     media,
			target:    target,
			threshold: threshold,
			growth: condition.Condition{
				Media:     media,
				Objective: target,
				Threshold: threshold,
			},
			active: active,
		})
	}
	return runs
}

// #endregion conditions

// #region prefilter

// Prefilter runs the expansion reducer over the candidate database,
// zeroing every database direction that breaks a test condition. The
// growth conditions veto any removal that would cut off a media's own
// target; activeSets bias the reliability scores toward directions the
// database tests actually used.
func (g *Gapfiller) Prefilter(growthConditions []condition.Condition, activeSets [][]scores.Active) error {
	if len(g.testConditions) == 0 {
		return nil
	}
	tester := condition.NewTester(g.builder.ScratchModel())
	reducer := expand.NewReducer(tester, g.cache, g.cfg.ExpansionConfig)
	filtered, err := reducer.Run(g.builder.Candidates(), g.testConditions, growthConditions, activeSets)
	if err != nil {
		return err
	}
	log.Printf("[GAPFILL] prefilter removed %d database directions across %d conditions", len(filtered), len(g.testConditions))
	return nil
}

// #endregion prefilter

// #region run

// RunGapfilling gapfills one media: it verifies a solution exists,
// optionally prefilters the database, solves the penalty LP, and extracts
// the solution. It returns ErrNoSolution when the media cannot be
// gapfilled.
func (g *Gapfiller) RunGapfilling(media *model.Media, target string, minObjective float64, binaryCheck, prefilter bool) (*Solution, error) {
	if target == "" {
		target = g.cfg.DefaultTarget
	}
	if minObjective == 0 {
		minObjective = g.cfg.DefaultMinObjective
	}
	g.builder.SetBaseObjective(target, minObjective)
	if media != nil {
		g.builder.SetMedia(media)
	}

	state := StateUnfiltered
	if prefilter {
		if ok, _ := g.testDatabase(media, target, true); !ok {
			g.record(media, target, state, StateRejected, "database test failed before filtering")
			return nil, expand.ErrNoSolution
		}
		growth := []condition.Condition{{Media: media, Objective: target, Threshold: minObjective}}
		if err := g.Prefilter(growth, nil); err != nil {
			if errors.Is(err, expand.ErrNoSolution) {
				g.record(media, target, state, StateRejected, "prefilter eliminated all solutions")
				return nil, err
			}
			return nil, fmt.Errorf("prefilter: %w", err)
		}
		if ok, _ := g.testDatabase(media, target, false); !ok {
			g.record(media, target, state, StateRejected, "database test failed after filtering")
			return nil, expand.ErrNoSolution
		}
		g.record(media, target, state, StateFiltered, "database filtered against test conditions")
		state = StateFiltered
	}

	sol := g.builder.ScratchModel().Solve()
	log.Printf("[GAPFILL] gapfill solve media=%s target=%s status=%s objective=%f", mediaID(media), target, sol.Status, sol.Objective)
	if !sol.IsOptimal() {
		g.record(media, target, state, StateRejected, fmt.Sprintf("gapfill solve %s", sol.Status))
		return nil, expand.ErrNoSolution
	}

	draft, err := g.builder.ComputeSolution()
	if err != nil {
		return nil, fmt.Errorf("compute solution: %w", err)
	}
	if binaryCheck {
		draft, err = g.builder.BinaryCheck(draft)
		if err != nil {
			return nil, fmt.Errorf("binary check: %w", err)
		}
	}

	out := newSolution(media, target, minObjective, binaryCheck)
	for id, dir := range draft.New {
		out.New[id] = dir
	}
	for id, dir := range draft.Reversed {
		out.Reversed[id] = dir
	}
	g.record(media, target, state, StateSolved, fmt.Sprintf("%d reactions in solution", out.Count()))
	g.lastSolution = out
	return out, nil
}

// #endregion run
