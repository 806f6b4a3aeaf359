package gapfill

import (
	"github.com/modelworks/gapfill-controller/internal/condition"
	"github.com/modelworks/gapfill-controller/internal/expand"
	"github.com/modelworks/gapfill-controller/internal/model"
	"github.com/modelworks/gapfill-controller/internal/needtest"
	"github.com/modelworks/gapfill-controller/internal/scores"
)

// #region draft

// Draft is a raw gapfilling solution computed by the builder: reactions to
// add in a direction, and existing reactions to open in their reverse
// direction.
type Draft struct {
	New      map[string]model.Direction
	Reversed map[string]model.Direction
}

// Count returns the total number of reaction directions in the draft.
func (d Draft) Count() int {
	return len(d.New) + len(d.Reversed)
}

// #endregion draft

// #region gene-scores

// GeneScores maps a core reaction ID (compartment suffix stripped) to
// candidate genes and their probabilities. Used when assigning gene
// associations to newly integrated reactions.
type GeneScores map[string]map[string]float64

// Best returns the highest-probability gene for a core reaction ID.
func (g GeneScores) Best(coreID string) (string, bool) {
	genes, ok := g[coreID]
	if !ok || len(genes) == 0 {
		return "", false
	}
	best := ""
	bestScore := 0.0
	for gene, score := range genes {
		if best == "" || score > bestScore {
			best = gene
			bestScore = score
		}
	}
	return best, true
}

// #endregion gene-scores

// #region builder

// MergedProblem is the cross-media problem produced for global gapfilling:
// per-media model copies sharing one max-flux indicator per reaction
// direction.
type MergedProblem interface {
	// Minimize solves the merged problem with the given per-direction
	// objective weights on the shared max-flux variables.
	Minimize(weights map[string]map[model.Direction]float64) model.Solution
	// MaxFluxValues returns the shared indicator values at the optimum.
	MaxFluxValues() map[string]map[model.Direction]float64
}

// Builder is the external gapfilling LP formulation. The orchestrator
// drives it but never looks inside: penalty construction, candidate
// generation, and the MILP encoding all live behind this contract.
type Builder interface {
	// ScratchModel is the builder's working clone: the live model plus
	// the candidate database. The reducer mutates its bounds during
	// prefiltering and integration copies reactions out of it.
	ScratchModel() *model.Model

	// Candidates lists every penalized reaction direction in the
	// database.
	Candidates() []expand.Candidate

	// SetBaseObjective sets the growth target and its minimum value.
	SetBaseObjective(target string, minObjective float64)

	// SetMedia applies a media to the scratch problem.
	SetMedia(media *model.Media)

	// TestDatabase checks whether any gapfilling solution exists with
	// the full candidate database enabled. active lists the reaction
	// directions carrying flux in the test solution; infeasible
	// distinguishes a hard LP infeasibility from a plain failure.
	TestDatabase() (ok bool, infeasible bool, active []scores.Active)

	// ComputeSolution extracts the gapfilled solution from the last
	// optimum.
	ComputeSolution() (Draft, error)

	// ComputeSolutionFromFlux extracts a solution from externally supplied
	// max-flux indicator values, as produced by a merged global problem.
	ComputeSolutionFromFlux(flux map[string]map[model.Direction]float64) (Draft, error)

	// BinaryCheck reduces a draft to a minimal reaction count using
	// indicator variables.
	BinaryCheck(d Draft) (Draft, error)

	// ComputePenalties recomputes per-direction penalties, dropping the
	// penalty on excluded (already integrated) reactions. A nil exclude
	// restores the unbiased penalties.
	ComputePenalties(exclude []needtest.Entry, geneScores GeneScores)

	// BuildObjective rebuilds the penalty objective after
	// ComputePenalties.
	BuildObjective()

	// Penalty reports the penalty weight for a reaction direction.
	Penalty(reactionID string, dir model.Direction) (float64, bool)

	// CreateMaxFluxVariables adds the shared per-direction max-flux
	// indicators required before ReplicateProblem.
	CreateMaxFluxVariables()

	// ReplicateProblem merges one model copy per condition into a single
	// problem with shared max-flux variables.
	ReplicateProblem(conditions []condition.Condition) (MergedProblem, error)
}

// #endregion builder
