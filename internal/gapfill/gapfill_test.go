package gapfill

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/modelworks/gapfill-controller/internal/condition"
	"github.com/modelworks/gapfill-controller/internal/expand"
	"github.com/modelworks/gapfill-controller/internal/model"
	"github.com/modelworks/gapfill-controller/internal/needtest"
	"github.com/modelworks/gapfill-controller/internal/provenance"
	"github.com/modelworks/gapfill-controller/internal/scores"
)

// #region fake-builder

type fakeMerged struct {
	solution model.Solution
	flux     map[string]map[model.Direction]float64
	weights  map[string]map[model.Direction]float64
}

func (f *fakeMerged) Minimize(weights map[string]map[model.Direction]float64) model.Solution {
	f.weights = weights
	return f.solution
}

func (f *fakeMerged) MaxFluxValues() map[string]map[model.Direction]float64 {
	return f.flux
}

// fakeBuilder scripts the LP formulation side of the contract and records
// how the orchestrator drives it.
type fakeBuilder struct {
	scratch    *model.Model
	candidates []expand.Candidate
	draft      Draft
	// drafts, when set, selects the solution by the most recently applied
	// media ID.
	drafts       map[string]Draft
	currentMedia string
	testOK       bool

	objectives    []string
	medias        []string
	penaltyCalls  [][]needtest.Entry
	buildCalls    int
	maxFluxCalls  int
	replications  [][]condition.Condition
	merged        *fakeMerged
	binaryChecked bool
}

func (f *fakeBuilder) ScratchModel() *model.Model { return f.scratch }

func (f *fakeBuilder) Candidates() []expand.Candidate { return f.candidates }

func (f *fakeBuilder) SetBaseObjective(t string, _ float64) { f.objectives = append(f.objectives, t) }

func (f *fakeBuilder) SetMedia(m *model.Media) {
	f.medias = append(f.medias, m.ID)
	f.currentMedia = m.ID
}

func (f *fakeBuilder) TestDatabase() (bool, bool, []scores.Active) {
	if !f.testOK {
		// Hard infeasibility, so no unproducible-compound scan runs.
		return false, true, nil
	}
	active := make([]scores.Active, len(f.candidates))
	for i, c := range f.candidates {
		active[i] = scores.Active{ReactionID: c.ReactionID, Direction: c.Direction}
	}
	return true, false, active
}

func (f *fakeBuilder) ComputeSolution() (Draft, error) {
	if f.drafts != nil {
		return f.drafts[f.currentMedia], nil
	}
	return f.draft, nil
}

func (f *fakeBuilder) ComputeSolutionFromFlux(flux map[string]map[model.Direction]float64) (Draft, error) {
	d := Draft{New: make(map[string]model.Direction), Reversed: make(map[string]model.Direction)}
	for id, dirs := range flux {
		for dir, v := range dirs {
			if v > 0 {
				d.New[id] = dir
			}
		}
	}
	return d, nil
}

func (f *fakeBuilder) BinaryCheck(d Draft) (Draft, error) {
	f.binaryChecked = true
	return d, nil
}

func (f *fakeBuilder) ComputePenalties(exclude []needtest.Entry, _ GeneScores) {
	f.penaltyCalls = append(f.penaltyCalls, exclude)
}

func (f *fakeBuilder) BuildObjective() { f.buildCalls++ }

func (f *fakeBuilder) Penalty(string, model.Direction) (float64, bool) { return 0, false }

func (f *fakeBuilder) CreateMaxFluxVariables() { f.maxFluxCalls++ }

func (f *fakeBuilder) ReplicateProblem(conditions []condition.Condition) (MergedProblem, error) {
	f.replications = append(f.replications, conditions)
	return f.merged, nil
}

// #endregion fake-builder

// #region fixtures

// liveModel grows only when the gapfilled reaction is present and open.
func liveModel(t *testing.T) *model.Model {
	t.Helper()
	m := model.New(nil)
	reactions := []*model.Reaction{
		{ID: "EX_glc_e0", Lower: -10, Upper: 100, Stoich: map[string]float64{"glc_e0": -1}},
		{ID: "rxn1_c0", Lower: 0, Upper: 100},
		{ID: "bio1", Lower: 0, Upper: 100, Stoich: map[string]float64{"atp_c0": -1}},
	}
	for _, r := range reactions {
		if err := m.AddReaction(r); err != nil {
			t.Fatalf("AddReaction(%s): %v", r.ID, err)
		}
	}
	m.SetSolver(model.SolverFunc(func(mdl *model.Model) model.Solution {
		value := 0.0
		if mdl.Has("rxn_gap_c0") {
			if ub, _ := mdl.DirectionBound("rxn_gap_c0", model.Forward); ub > 0 {
				value = 1
			}
		}
		return model.Solution{Status: model.StatusOptimal, Objective: value}
	}))
	return m
}

func scratchModel(t *testing.T) *model.Model {
	t.Helper()
	m := model.New(model.SolverFunc(func(*model.Model) model.Solution {
		return model.Solution{Status: model.StatusOptimal, Objective: 1}
	}))
	reactions := []*model.Reaction{
		{ID: "bio1", Lower: 0, Upper: 100, Stoich: map[string]float64{"atp_c0": -1}},
		{ID: "rxn_gap_c0", Lower: 0, Upper: 100, Stoich: map[string]float64{"glc_e0": -1, "atp_c0": 1}},
		{ID: "rxn_extra_c0", Lower: 0, Upper: 100},
	}
	for _, r := range reactions {
		if err := m.AddReaction(r); err != nil {
			t.Fatalf("AddReaction(%s): %v", r.ID, err)
		}
	}
	return m
}

func newFake(t *testing.T) *fakeBuilder {
	t.Helper()
	return &fakeBuilder{
		scratch: scratchModel(t),
		candidates: []expand.Candidate{
			{ReactionID: "rxn_gap_c0", Direction: model.Forward},
			{ReactionID: "rxn_extra_c0", Direction: model.Forward},
		},
		draft:  Draft{New: map[string]model.Direction{"rxn_gap_c0": model.Forward}},
		testOK: true,
		merged: &fakeMerged{
			solution: model.Solution{Status: model.StatusOptimal, Objective: 2},
			flux:     map[string]map[model.Direction]float64{"rxn_gap_c0": {model.Forward: 1}},
		},
	}
}

func testMedia(id string) *model.Media {
	return &model.Media{ID: id, Flows: map[string]float64{"glc_e0": 10}}
}

// #endregion fixtures

// #region single-media

func TestRunGapfillingSolves(t *testing.T) {
	fake := newFake(t)
	g := New(liveModel(t), fake, nil, nil, nil, nil, DefaultConfig())

	sol, err := g.RunGapfilling(testMedia("m1"), "bio1", 0.01, false, false)
	if err != nil {
		t.Fatalf("RunGapfilling: %v", err)
	}
	if sol.ID == "" {
		t.Fatal("solution must carry an ID")
	}
	if dir, ok := sol.New["rxn_gap_c0"]; !ok || dir != model.Forward {
		t.Fatalf("expected rxn_gap_c0 forward, got %+v", sol.New)
	}
	if g.LastSolution() != sol {
		t.Fatal("last solution not recorded")
	}
	if len(fake.objectives) == 0 || fake.objectives[0] != "bio1" {
		t.Fatalf("base objective not set: %v", fake.objectives)
	}
	if len(fake.medias) == 0 || fake.medias[0] != "m1" {
		t.Fatalf("media not applied: %v", fake.medias)
	}
}

func TestRunGapfillingBinaryCheck(t *testing.T) {
	fake := newFake(t)
	g := New(liveModel(t), fake, nil, nil, nil, nil, DefaultConfig())

	sol, err := g.RunGapfilling(testMedia("m1"), "bio1", 0.01, true, false)
	if err != nil {
		t.Fatalf("RunGapfilling: %v", err)
	}
	if !fake.binaryChecked {
		t.Fatal("binary check requested but not run")
	}
	if !sol.BinaryCheck {
		t.Fatal("solution must record the binary check")
	}
}

func TestRunGapfillingRejectedOnBadSolve(t *testing.T) {
	fake := newFake(t)
	fake.scratch.SetSolver(model.SolverFunc(func(*model.Model) model.Solution {
		return model.Solution{Status: model.StatusInfeasible}
	}))
	prov, err := provenance.Open(filepath.Join(t.TempDir(), "prov.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { prov.Close() })
	g := New(liveModel(t), fake, nil, nil, nil, prov, DefaultConfig())

	_, err = g.RunGapfilling(testMedia("m1"), "bio1", 0.01, false, false)
	if !errors.Is(err, expand.ErrNoSolution) {
		t.Fatalf("expected ErrNoSolution, got %v", err)
	}

	entries, err := prov.Run(g.runID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(entries) != 1 || entries[0].ToState != string(StateRejected) {
		t.Fatalf("expected one rejected transition, got %+v", entries)
	}
}

// #endregion single-media

// #region integrate

func TestIntegrateAddsAndKeepsNeededReaction(t *testing.T) {
	fake := newFake(t)
	genes := GeneScores{"rxn_gap": {"gene_a": 0.4, "gene_b": 0.9}}
	m := liveModel(t)
	g := New(m, fake, nil, genes, nil, nil, DefaultConfig())

	sol, err := g.RunGapfilling(testMedia("m1"), "bio1", 0.01, false, false)
	if err != nil {
		t.Fatalf("RunGapfilling: %v", err)
	}
	integrated, err := g.Integrate(sol, PolicyIndependent, true, true)
	if err != nil {
		t.Fatalf("Integrate: %v", err)
	}

	r := m.Reaction("rxn_gap_c0")
	if r == nil {
		t.Fatal("gapfilled reaction not added to live model")
	}
	if r.Lower != 0 || r.Upper != 100 {
		t.Fatalf("expected [0, 100], got [%f, %f]", r.Lower, r.Upper)
	}
	if r.GeneRule != "gene_b" {
		t.Fatalf("expected best gene gene_b, got %q", r.GeneRule)
	}
	if r.Notes["new_genes"] != "gene_b" {
		t.Fatalf("gene note missing: %+v", r.Notes)
	}
	if _, ok := integrated.New["rxn_gap_c0"]; !ok {
		t.Fatalf("needed reaction missing from integrated solution: %+v", integrated.New)
	}
	if integrated.Growth != 1 {
		t.Fatalf("expected growth 1, got %f", integrated.Growth)
	}
	if len(g.Cumulative()) != 1 {
		t.Fatalf("expected 1 cumulative entry, got %d", len(g.Cumulative()))
	}
}

func TestIntegrateTrimsUnneededReaction(t *testing.T) {
	fake := newFake(t)
	fake.draft.New["rxn_extra_c0"] = model.Forward
	m := liveModel(t)
	g := New(m, fake, nil, nil, nil, nil, DefaultConfig())

	sol, err := g.RunGapfilling(testMedia("m1"), "bio1", 0.01, false, false)
	if err != nil {
		t.Fatalf("RunGapfilling: %v", err)
	}
	integrated, err := g.Integrate(sol, PolicyIndependent, true, false)
	if err != nil {
		t.Fatalf("Integrate: %v", err)
	}

	if _, ok := integrated.New["rxn_extra_c0"]; ok {
		t.Fatal("unneeded reaction survived integration")
	}
	if m.Has("rxn_extra_c0") {
		t.Fatal("unneeded reaction not removed from live model")
	}
	if !m.Has("rxn_gap_c0") {
		t.Fatal("needed reaction must stay")
	}
}

func TestIntegrateSkipsUnknownReaction(t *testing.T) {
	fake := newFake(t)
	fake.draft.New["rxn_ghost_c0"] = model.Forward
	m := liveModel(t)
	g := New(m, fake, nil, nil, nil, nil, DefaultConfig())

	sol, err := g.RunGapfilling(testMedia("m1"), "bio1", 0.01, false, false)
	if err != nil {
		t.Fatalf("RunGapfilling: %v", err)
	}
	if _, err := g.Integrate(sol, PolicyIndependent, true, false); err != nil {
		t.Fatalf("Integrate: %v", err)
	}
	if m.Has("rxn_ghost_c0") {
		t.Fatal("unknown reaction must be skipped, not added")
	}
}

// #endregion integrate

// #region multi-media

func multiOpts(policy Policy) MultiOptions {
	opts := DefaultMultiOptions()
	opts.Policy = policy
	opts.Prefilter = false
	return opts
}

func TestRunMultiGapfillIndependent(t *testing.T) {
	fake := newFake(t)
	m := liveModel(t)
	g := New(m, fake, nil, nil, nil, nil, DefaultConfig())

	medias := []*model.Media{testMedia("m1"), testMedia("m2")}
	solutions, err := g.RunMultiGapfill(medias, multiOpts(PolicyIndependent))
	if err != nil {
		t.Fatalf("RunMultiGapfill: %v", err)
	}
	if len(solutions) != 2 {
		t.Fatalf("expected 2 solutions, got %d", len(solutions))
	}
	for id, sol := range solutions {
		if _, ok := sol.New["rxn_gap_c0"]; !ok {
			t.Fatalf("media %s missing rxn_gap_c0: %+v", id, sol.New)
		}
		if sol.Growth != 1 {
			t.Fatalf("media %s growth %f", id, sol.Growth)
		}
	}
	// The shared reaction is accepted once, not once per media.
	if len(g.Cumulative()) != 1 {
		t.Fatalf("expected 1 cumulative entry, got %d", len(g.Cumulative()))
	}
	if !m.Has("rxn_gap_c0") {
		t.Fatal("integrated reaction missing after joint need test")
	}
}

func TestRunMultiGapfillSequentialRebiases(t *testing.T) {
	fake := newFake(t)
	g := New(liveModel(t), fake, nil, nil, nil, nil, DefaultConfig())

	medias := []*model.Media{testMedia("m1"), testMedia("m2")}
	if _, err := g.RunMultiGapfill(medias, multiOpts(PolicySequential)); err != nil {
		t.Fatalf("RunMultiGapfill: %v", err)
	}

	// One rebias per media plus the final unbiased restore.
	if len(fake.penaltyCalls) != 3 {
		t.Fatalf("expected 3 penalty computations, got %d", len(fake.penaltyCalls))
	}
	if fake.penaltyCalls[0] == nil || fake.penaltyCalls[1] == nil {
		t.Fatal("per-media rebias must exclude the cumulative solution")
	}
	if fake.penaltyCalls[2] != nil {
		t.Fatal("final penalty computation must be unbiased")
	}
	if fake.buildCalls != 3 {
		t.Fatalf("expected 3 objective rebuilds, got %d", fake.buildCalls)
	}
}

func TestRunMultiGapfillGlobal(t *testing.T) {
	fake := newFake(t)
	m := liveModel(t)
	g := New(m, fake, nil, nil, nil, nil, DefaultConfig())

	medias := []*model.Media{testMedia("m1"), testMedia("m2")}
	solutions, err := g.RunMultiGapfill(medias, multiOpts(PolicyGlobal))
	if err != nil {
		t.Fatalf("RunMultiGapfill: %v", err)
	}
	if len(solutions) != 2 {
		t.Fatalf("expected 2 solutions, got %d", len(solutions))
	}
	if fake.maxFluxCalls != 1 {
		t.Fatalf("expected 1 max-flux setup, got %d", fake.maxFluxCalls)
	}
	if len(fake.replications) != 1 || len(fake.replications[0]) != 2 {
		t.Fatalf("expected one replication over 2 conditions, got %+v", fake.replications)
	}
	// Unpenalized candidates enter the global objective with weight 1.
	if w := fake.merged.weights["rxn_gap_c0"][model.Forward]; w != 1 {
		t.Fatalf("expected weight 1, got %f", w)
	}
	for id, sol := range solutions {
		if _, ok := sol.New["rxn_gap_c0"]; !ok {
			t.Fatalf("media %s missing rxn_gap_c0", id)
		}
	}
}

func TestRunMultiGapfillGlobalRejected(t *testing.T) {
	fake := newFake(t)
	fake.merged.solution = model.Solution{Status: model.StatusInfeasible}
	g := New(liveModel(t), fake, nil, nil, nil, nil, DefaultConfig())

	_, err := g.RunMultiGapfill([]*model.Media{testMedia("m1")}, multiOpts(PolicyGlobal))
	if !errors.Is(err, expand.ErrNoSolution) {
		t.Fatalf("expected ErrNoSolution, got %v", err)
	}
}

func TestRunMultiGapfillAllRejected(t *testing.T) {
	fake := newFake(t)
	fake.testOK = false
	g := New(liveModel(t), fake, nil, nil, nil, nil, DefaultConfig())

	_, err := g.RunMultiGapfill([]*model.Media{testMedia("m1")}, multiOpts(PolicyIndependent))
	if !errors.Is(err, expand.ErrNoSolution) {
		t.Fatalf("expected ErrNoSolution, got %v", err)
	}
}

func TestRunMultiGapfillWithoutIntegration(t *testing.T) {
	fake := newFake(t)
	m := liveModel(t)
	g := New(m, fake, nil, nil, nil, nil, DefaultConfig())

	opts := multiOpts(PolicyIndependent)
	opts.IntegrateSolutions = false
	solutions, err := g.RunMultiGapfill([]*model.Media{testMedia("m1")}, opts)
	if err != nil {
		t.Fatalf("RunMultiGapfill: %v", err)
	}
	if len(solutions) != 1 {
		t.Fatalf("expected 1 solution, got %d", len(solutions))
	}
	if m.Has("rxn_gap_c0") {
		t.Fatal("live model must stay untouched when integration is off")
	}
}

func TestRunMultiGapfillPerMediaOverrides(t *testing.T) {
	fake := newFake(t)
	g := New(liveModel(t), fake, nil, nil, nil, nil, DefaultConfig())

	opts := multiOpts(PolicyIndependent)
	opts.TargetsByMedia = map[string]string{"m2": "bio1"}
	opts.Target = "bio1"
	opts.MinObjectives = map[string]float64{"m2": 0.5}

	solutions, err := g.RunMultiGapfill([]*model.Media{testMedia("m1"), testMedia("m2")}, opts)
	if err != nil {
		t.Fatalf("RunMultiGapfill: %v", err)
	}
	if sol := solutions["m2"]; sol == nil || sol.MinObjective != 0.5 {
		t.Fatalf("per-media threshold not honored: %+v", sol)
	}
}

// #endregion multi-media
