// Package scores assigns a reliability score to every reaction direction.
// Higher scores mean less trustworthy; the reducer sorts candidates
// ascending so well-supported reactions are probed first. Scores change
// search order only, never which reactions survive.
package scores

import (
	"strings"

	"github.com/modelworks/gapfill-controller/internal/model"
)

// #region types

// Active marks a reaction direction observed carrying flux in a prior
// solution; active directions are slightly deprioritized for removal.
type Active struct {
	ReactionID string
	Direction  model.Direction
}

// Reliability maps reaction ID and direction to a score.
type Reliability map[string]map[model.Direction]float64

// Get returns the score for a reaction direction, defaulting to the
// unannotated penalty for unknown reactions.
func (r Reliability) Get(id string, dir model.Direction) float64 {
	if dirs, ok := r[id]; ok {
		if s, ok := dirs[dir]; ok {
			return s
		}
	}
	return unannotatedScore
}

// #endregion types

// #region penalties

const (
	massImbalanceScore  = 1000.0
	chargeImbalanceScore = 800.0
	noDeltaGScore       = 200.0
	unannotatedScore    = 1000.0
	boundaryScore       = -10.0

	chargeTransportWeight = 50.0
	deltaGStep            = 20.0
	atpProductionScore    = 100.0
	missingInChIKeyScore  = 40.0
	missingFormulaScore   = 60.0
	missingDeltaGScore    = 20.0

	activeSetWeight = 0.1
)

// #endregion penalties

// #region assign

// Assign computes reliability scores for every reaction in the model.
// activeSets lists reaction directions seen active in earlier solutions;
// each appearance multiplies that direction's score by (1 + 0.1·count).
func Assign(mdl *model.Model, activeSets [][]Active) Reliability {
	counts := make(map[string]map[model.Direction]int)
	for _, set := range activeSets {
		for _, a := range set {
			if counts[a.ReactionID] == nil {
				counts[a.ReactionID] = make(map[model.Direction]int)
			}
			counts[a.ReactionID][a.Direction]++
		}
	}

	out := make(Reliability)
	for _, r := range mdl.Reactions() {
		forward, reverse := scoreReaction(r)

		forMult, revMult := 1.0, 1.0
		if dirs, ok := counts[r.ID]; ok {
			forMult += activeSetWeight * float64(dirs[model.Forward])
			revMult += activeSetWeight * float64(dirs[model.Reverse])
		}
		out[r.ID] = map[model.Direction]float64{
			model.Forward: forward * forMult,
			model.Reverse: reverse * revMult,
		}
	}
	return out
}

func scoreReaction(r *model.Reaction) (forward, reverse float64) {
	if r.Meta == nil {
		if r.IsExchange() || strings.HasPrefix(r.ID, "bio") {
			return boundaryScore, boundaryScore
		}
		return unannotatedScore, unannotatedScore
	}
	meta := r.Meta

	// Net ion transport in the wrong direction.
	if meta.TransportedCharge > 0 {
		forward += chargeTransportWeight * meta.TransportedCharge
	}
	if meta.TransportedCharge < 0 {
		reverse += -chargeTransportWeight * meta.TransportedCharge
	}

	var base float64
	switch {
	case meta.MassImbalanced:
		base = massImbalanceScore
	case meta.ChargeImbalanced:
		base = chargeImbalanceScore
	}
	if meta.DeltaG == model.NoDeltaG {
		base = noDeltaGScore
	} else {
		// Penalize the thermodynamically unfavorable direction.
		if meta.DeltaG <= -5 {
			reverse += deltaGStep
		}
		if meta.DeltaG <= -10 {
			reverse += deltaGStep
		}
		if meta.DeltaG >= 5 {
			forward += deltaGStep
		}
		if meta.DeltaG >= 10 {
			forward += deltaGStep
		}
	}

	// Free ATP production is the classic gapfilling artifact.
	if meta.ATPCoefficient > 0 {
		forward += atpProductionScore
	}
	if meta.ATPCoefficient < 0 {
		reverse += atpProductionScore
	}

	base += missingInChIKeyScore * float64(meta.MissingInChIKey)
	base += missingFormulaScore * float64(meta.MissingFormula)
	base += missingDeltaGScore * float64(meta.MissingDeltaG)

	return base + forward, base + reverse
}

// #endregion assign
