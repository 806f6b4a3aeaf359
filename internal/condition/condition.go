// Package condition applies growth test conditions to a model and checks
// the solved objective against thresholds.
package condition

import (
	"log"

	"github.com/modelworks/gapfill-controller/internal/model"
)

// #region condition

// Condition is one growth/threshold test: solve the objective on the media
// and compare against Threshold. With IsMaxThreshold the test fails when
// the objective reaches the threshold; otherwise it fails when the
// objective stays at or below it. Change switches the comparison to the
// delta against the last passing objective instead of the absolute value.
type Condition struct {
	Media          *model.Media
	Objective      string
	IsMaxThreshold bool
	Threshold      float64
	Change         bool
}

// #endregion condition

// #region tester

// Tester runs conditions against a borrowed model. It caches the last
// passing objective for Change-mode comparisons and exposes the last
// observed value as Score for callers that record it.
type Tester struct {
	mdl     *model.Model
	last    float64
	hasLast bool

	// Score is the value compared on the most recent TestSingle call.
	Score float64
}

// NewTester creates a tester over the given model.
func NewTester(mdl *model.Model) *Tester {
	return &Tester{mdl: mdl}
}

// Model returns the model under test.
func (t *Tester) Model() *model.Model {
	return t.mdl
}

// #endregion tester

// #region apply

// Apply sets the condition's objective (always maximized) and media on the
// model without solving.
func (t *Tester) Apply(c Condition) {
	t.mdl.SetObjective(c.Objective, model.Maximize)
	t.mdl.ApplyMedia(c.Media)
}

// #endregion apply

// #region test-single

// TestSingle solves and compares the objective against the condition's
// threshold. A non-optimal solver status is a failed test with a
// diagnostic dump, never an error. When applyCondition is false the caller
// has already applied the medium and objective.
func (t *Tester) TestSingle(c Condition, applyCondition bool) bool {
	if applyCondition {
		t.Apply(c)
	}
	sol := t.mdl.Solve()
	value := sol.Objective
	if c.Change && t.hasLast {
		value = sol.Objective - t.last
		log.Printf("[CONDITION] %s testing for change: %g = %g - %g",
			c.Media.String(), value, sol.Objective, t.last)
	}
	t.Score = value
	if !sol.IsOptimal() {
		t.dumpDiagnostics(c, sol)
		return false
	}
	if c.IsMaxThreshold && value >= c.Threshold {
		log.Printf("[CONDITION] failed high %s: %g vs %g", c.Media.String(), sol.Objective, c.Threshold)
		return false
	}
	if !c.IsMaxThreshold && value <= c.Threshold {
		log.Printf("[CONDITION] failed low %s: %g vs %g", c.Media.String(), sol.Objective, c.Threshold)
		return false
	}
	t.last = sol.Objective
	t.hasLast = true
	return true
}

// #endregion test-single

// #region test-all

// TestAll runs a condition list with AND semantics, short-circuiting on the
// first failure. Each condition overwrites the previous medium and
// objective.
func (t *Tester) TestAll(conditions []Condition) bool {
	for _, c := range conditions {
		if !t.TestSingle(c, true) {
			return false
		}
	}
	return true
}

// #endregion test-all

// #region diagnostics

// dumpDiagnostics logs the LP state that produced a non-optimal status so
// a failing batch can be debugged after the fact.
func (t *Tester) dumpDiagnostics(c Condition, sol model.Solution) {
	obj, _ := t.mdl.Objective()
	closed := 0
	for _, r := range t.mdl.Reactions() {
		if r.Lower == 0 && r.Upper == 0 {
			closed++
		}
	}
	log.Printf("[CONDITION] %s testing leads to %s problem: objective=%s closed=%d/%d",
		c.Media.String(), sol.Status, obj, closed, len(t.mdl.Reactions()))
}

// #endregion diagnostics
