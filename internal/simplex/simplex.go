// Package simplex solves the model's flux balance LP with gonum's simplex
// implementation: maximize (or minimize) the objective reaction's flux
// subject to steady-state mass balance and the current bounds.
package simplex

import (
	"errors"
	"log"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/modelworks/gapfill-controller/internal/model"
)

// #region solver

const defaultTol = 1e-9

// Solver is a model.Solver backed by lp.Simplex. It converts the bounded
// flux problem to standard form (shifted variables plus one slack per
// reaction) on every call, so it always sees the model's current bounds.
type Solver struct {
	Tol float64
}

// New returns a Solver with the default pivot tolerance.
func New() *Solver {
	return &Solver{Tol: defaultTol}
}

// #endregion solver

// #region solve

// Solve implements model.Solver.
//
// Conversion: for each reaction j with bounds [lb, ub], x_j = v_j - lb_j so
// x_j >= 0, with slack row x_j + s_j = ub_j - lb_j. Mass balance rows become
// S·x = -S·lb. The simplex minimizes, so a maximization objective enters
// with coefficient -1.
func (s *Solver) Solve(m *model.Model) model.Solution {
	reactions := m.Reactions()
	n := len(reactions)
	if n == 0 {
		return model.Solution{Status: model.StatusFailed}
	}

	objID, sense := m.Objective()
	objIdx := -1
	for j, r := range reactions {
		if r.ID == objID {
			objIdx = j
		}
		if r.Upper < r.Lower {
			return model.Solution{Status: model.StatusInfeasible}
		}
	}
	if objIdx < 0 {
		log.Printf("[SIMPLEX] objective reaction %s not in model", objID)
		return model.Solution{Status: model.StatusFailed}
	}

	mets := m.Metabolites()
	metRow := make(map[string]int, len(mets))
	for i, met := range mets {
		metRow[met] = i
	}

	rows := len(mets) + n
	cols := 2 * n
	a := mat.NewDense(rows, cols, nil)
	b := make([]float64, rows)

	for j, r := range reactions {
		for met, coef := range r.Stoich {
			i := metRow[met]
			a.Set(i, j, coef)
			b[i] -= coef * r.Lower
		}
		// bound row: x_j + s_j = ub - lb
		a.Set(len(mets)+j, j, 1)
		a.Set(len(mets)+j, n+j, 1)
		b[len(mets)+j] = r.Upper - r.Lower
	}

	c := make([]float64, cols)
	if sense == model.Maximize {
		c[objIdx] = -1
	} else {
		c[objIdx] = 1
	}

	tol := s.Tol
	if tol == 0 {
		tol = defaultTol
	}
	optF, optX, err := lp.Simplex(c, a, b, tol, nil)
	if err != nil {
		switch {
		case errors.Is(err, lp.ErrInfeasible):
			return model.Solution{Status: model.StatusInfeasible}
		case errors.Is(err, lp.ErrUnbounded):
			return model.Solution{Status: model.StatusUnbounded}
		default:
			log.Printf("[SIMPLEX] solve failed: %v", err)
			return model.Solution{Status: model.StatusFailed}
		}
	}

	fluxes := make(map[string]float64, n)
	for j, r := range reactions {
		fluxes[r.ID] = optX[j] + r.Lower
	}

	objective := optF + reactions[objIdx].Lower
	if sense == model.Maximize {
		objective = -optF + reactions[objIdx].Lower
	}
	return model.Solution{
		Status:    model.StatusOptimal,
		Objective: objective,
		Fluxes:    fluxes,
	}
}

// #endregion solve
