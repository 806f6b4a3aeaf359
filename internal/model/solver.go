package model

// #region solver

// Solver is the optimization backend contract: read the model's bounds,
// objective, and stoichiometry, and report the optimum. Implementations
// must not mutate the model.
type Solver interface {
	Solve(m *Model) Solution
}

// SolverFunc adapts a plain function to the Solver interface. Tests use it
// to play back scripted objective values against the live bound state.
type SolverFunc func(m *Model) Solution

// Solve implements Solver.
func (f SolverFunc) Solve(m *Model) Solution {
	return f(m)
}

// #endregion solver
