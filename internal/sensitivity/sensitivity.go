// Package sensitivity reports which biomass precursor compounds depend on
// which gapfilled reactions. It always works on a scratch clone, so the
// live model is never touched.
package sensitivity

import (
	"fmt"
	"log"
	"sort"

	"github.com/modelworks/gapfill-controller/internal/model"
)

// #region config

// Config tunes the producibility probes.
type Config struct {
	// FluxEpsilon is the smallest demand flux counted as production.
	FluxEpsilon float64
	// DemandBound caps the probe demand reactions.
	DemandBound float64
}

// DefaultConfig returns the standard probe settings.
func DefaultConfig() Config {
	return Config{FluxEpsilon: 1e-6, DemandBound: 100}
}

// #endregion config

// #region analyzer

// Analyzer runs biomass-dependency probes.
type Analyzer struct {
	cfg Config
}

// New creates an analyzer.
func New(cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// #endregion analyzer

// #region unproducible

// UnproducibleCompounds returns the precursor compounds of the target
// reaction that cannot be produced under the model's current media: for
// each consumed compound a demand drain is probed for nonzero maximum
// flux on a clone.
func (a *Analyzer) UnproducibleCompounds(m *model.Model, target string) ([]string, error) {
	tmp := m.Clone()
	precursors, err := precursorsOf(tmp, target)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, cpd := range precursors {
		if !a.producible(tmp, cpd) {
			out = append(out, cpd)
		}
	}
	return out, nil
}

// Knockout names one reaction direction to disable during the analysis.
type Knockout struct {
	ReactionID string
	Direction  model.Direction
}

// KnockoutDependencies reports, for each knockout, which precursor
// compounds of the target become unproducible with that single reaction
// direction disabled. Knockouts of reactions absent from the model are
// reported with no compounds (logged, not fatal).
func (a *Analyzer) KnockoutDependencies(
	m *model.Model,
	target string,
	knockouts []Knockout,
) (map[string]map[model.Direction][]string, error) {
	tmp := m.Clone()
	precursors, err := precursorsOf(tmp, target)
	if err != nil {
		return nil, err
	}

	out := make(map[string]map[model.Direction][]string)
	for _, ko := range knockouts {
		if out[ko.ReactionID] == nil {
			out[ko.ReactionID] = make(map[model.Direction][]string)
		}
		if !tmp.Has(ko.ReactionID) {
			log.Printf("[SENSITIVITY] reaction %s not in model during analysis", ko.ReactionID)
			out[ko.ReactionID][ko.Direction] = nil
			continue
		}
		k, _ := tmp.Knock(ko.ReactionID, ko.Direction)
		var deps []string
		for _, cpd := range precursors {
			if !a.producible(tmp, cpd) {
				deps = append(deps, cpd)
			}
		}
		tmp.Restore(k)
		out[ko.ReactionID][ko.Direction] = deps
	}
	return out, nil
}

// #endregion unproducible

// #region probes

// producible maximizes a demand drain for the compound and checks for
// nonzero flux.
func (a *Analyzer) producible(tmp *model.Model, compound string) bool {
	demandID := "DM_" + compound
	if !tmp.Has(demandID) {
		err := tmp.AddReaction(&model.Reaction{
			ID:     demandID,
			Lower:  0,
			Upper:  a.cfg.DemandBound,
			Stoich: map[string]float64{compound: -1},
		})
		if err != nil {
			return false
		}
	}
	tmp.SetObjective(demandID, model.Maximize)
	sol := tmp.Solve()
	return sol.IsOptimal() && sol.Objective > a.cfg.FluxEpsilon
}

// precursorsOf lists the compounds the target reaction consumes, sorted.
func precursorsOf(tmp *model.Model, target string) ([]string, error) {
	r := tmp.Reaction(target)
	if r == nil {
		return nil, fmt.Errorf("sensitivity: target %s not in model", target)
	}
	var out []string
	for cpd, coef := range r.Stoich {
		if coef < 0 {
			out = append(out, cpd)
		}
	}
	sort.Strings(out)
	return out, nil
}

// #endregion probes
