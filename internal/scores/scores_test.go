package scores

import (
	"testing"

	"github.com/modelworks/gapfill-controller/internal/model"
)

func scoredModel(t *testing.T, reactions ...*model.Reaction) *model.Model {
	t.Helper()
	m := model.New(nil)
	for _, r := range reactions {
		if err := m.AddReaction(r); err != nil {
			t.Fatalf("AddReaction(%s): %v", r.ID, err)
		}
	}
	return m
}

func TestDefaultsWithoutMeta(t *testing.T) {
	m := scoredModel(t,
		&model.Reaction{ID: "rxn1_c0"},
		&model.Reaction{ID: "EX_glc_e0", Stoich: map[string]float64{"glc_e0": -1}},
		&model.Reaction{ID: "bio1"},
	)
	rel := Assign(m, nil)

	if got := rel.Get("rxn1_c0", model.Forward); got != unannotatedScore {
		t.Fatalf("unannotated reaction: got %f", got)
	}
	if got := rel.Get("EX_glc_e0", model.Forward); got != boundaryScore {
		t.Fatalf("exchange reaction: got %f", got)
	}
	if got := rel.Get("bio1", model.Reverse); got != boundaryScore {
		t.Fatalf("biomass reaction: got %f", got)
	}
	if got := rel.Get("rxn_missing_c0", model.Forward); got != unannotatedScore {
		t.Fatalf("missing reaction must default to unannotated: got %f", got)
	}
}

func TestImbalancePrecedence(t *testing.T) {
	m := scoredModel(t,
		&model.Reaction{ID: "rxn1_c0", Meta: &model.ReactionMeta{MassImbalanced: true, ChargeImbalanced: true, DeltaG: model.NoDeltaG}},
		&model.Reaction{ID: "rxn2_c0", Meta: &model.ReactionMeta{ChargeImbalanced: true, DeltaG: model.NoDeltaG}},
		&model.Reaction{ID: "rxn3_c0", Meta: &model.ReactionMeta{DeltaG: model.NoDeltaG}},
	)
	rel := Assign(m, nil)

	// Unknown delta G replaces the imbalance base, so all three collapse
	// to the no-delta-G score.
	for _, id := range []string{"rxn1_c0", "rxn2_c0", "rxn3_c0"} {
		if got := rel.Get(id, model.Forward); got != noDeltaGScore {
			t.Fatalf("%s: got %f, want %f", id, got, noDeltaGScore)
		}
	}
}

func TestThermodynamicDirection(t *testing.T) {
	m := scoredModel(t,
		&model.Reaction{ID: "rxn1_c0", Meta: &model.ReactionMeta{DeltaG: -12}},
		&model.Reaction{ID: "rxn2_c0", Meta: &model.ReactionMeta{DeltaG: 7}},
	)
	rel := Assign(m, nil)

	// Strongly negative delta G penalizes the reverse direction twice.
	if fwd, rev := rel.Get("rxn1_c0", model.Forward), rel.Get("rxn1_c0", model.Reverse); fwd != 0 || rev != 2*deltaGStep {
		t.Fatalf("rxn1_c0: forward=%f reverse=%f", fwd, rev)
	}
	// Mildly positive delta G penalizes forward once.
	if fwd, rev := rel.Get("rxn2_c0", model.Forward), rel.Get("rxn2_c0", model.Reverse); fwd != deltaGStep || rev != 0 {
		t.Fatalf("rxn2_c0: forward=%f reverse=%f", fwd, rev)
	}
}

func TestAnnotationPenalties(t *testing.T) {
	m := scoredModel(t,
		&model.Reaction{ID: "rxn1_c0", Meta: &model.ReactionMeta{
			DeltaG:          0,
			MissingInChIKey: 2,
			MissingFormula:  1,
			MissingDeltaG:   3,
		}},
	)
	rel := Assign(m, nil)
	want := 2*missingInChIKeyScore + missingFormulaScore + 3*missingDeltaGScore
	if got := rel.Get("rxn1_c0", model.Forward); got != want {
		t.Fatalf("got %f, want %f", got, want)
	}
}

func TestATPAndChargeTransport(t *testing.T) {
	m := scoredModel(t,
		&model.Reaction{ID: "rxn1_c0", Meta: &model.ReactionMeta{DeltaG: 0, ATPCoefficient: 1, TransportedCharge: 2}},
	)
	rel := Assign(m, nil)
	wantFwd := atpProductionScore + 2*chargeTransportWeight
	if got := rel.Get("rxn1_c0", model.Forward); got != wantFwd {
		t.Fatalf("forward: got %f, want %f", got, wantFwd)
	}
	if got := rel.Get("rxn1_c0", model.Reverse); got != 0 {
		t.Fatalf("reverse: got %f, want 0", got)
	}
}

func TestActiveSetMultiplier(t *testing.T) {
	m := scoredModel(t, &model.Reaction{ID: "rxn1_c0"})
	sets := [][]Active{
		{{ReactionID: "rxn1_c0", Direction: model.Forward}},
		{{ReactionID: "rxn1_c0", Direction: model.Forward}},
	}
	rel := Assign(m, sets)

	want := unannotatedScore * (1 + 2*activeSetWeight)
	if got := rel.Get("rxn1_c0", model.Forward); got != want {
		t.Fatalf("forward with 2 active sets: got %f, want %f", got, want)
	}
	if got := rel.Get("rxn1_c0", model.Reverse); got != unannotatedScore {
		t.Fatalf("reverse must stay unweighted: got %f", got)
	}
}
