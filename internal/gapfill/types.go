package gapfill

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/modelworks/gapfill-controller/internal/model"
	"github.com/modelworks/gapfill-controller/internal/needtest"
)

// #region state

// State tracks a media's progress through the gapfilling lifecycle.
type State string

const (
	StateUnfiltered State = "unfiltered"
	StateFiltered   State = "filtered"
	StateSolved     State = "solved"
	StateIntegrated State = "integrated"
	StateRejected   State = "rejected"
)

// #endregion state

// #region policy

// Policy selects how multiple media are gapfilled relative to each other.
type Policy string

const (
	// PolicyIndependent gapfills each media against the unbiased
	// penalties, suppressing previously accepted reactions while testing
	// each media's own requirement.
	PolicyIndependent Policy = "independent"
	// PolicySequential rebiasies penalties after each media so later
	// media prefer reactions already paid for.
	PolicySequential Policy = "sequential"
	// PolicyGlobal merges all media into one problem and solves once.
	PolicyGlobal Policy = "global"
)

// #endregion policy

// #region solution

// Solution is one accepted gapfilling outcome for a media.
type Solution struct {
	ID           string
	Media        *model.Media
	Target       string
	MinObjective float64
	BinaryCheck  bool
	New          map[string]model.Direction
	Reversed     map[string]model.Direction
	Growth       float64
}

func newSolution(media *model.Media, target string, minObjective float64, binaryCheck bool) *Solution {
	return &Solution{
		ID:           uuid.NewString(),
		Media:        media,
		Target:       target,
		MinObjective: minObjective,
		BinaryCheck:  binaryCheck,
		New:          make(map[string]model.Direction),
		Reversed:     make(map[string]model.Direction),
	}
}

// Count returns the number of reaction directions in the solution.
func (s *Solution) Count() int {
	return len(s.New) + len(s.Reversed)
}

// Entries flattens the solution into need-test entries, new reactions
// first.
func (s *Solution) Entries() []needtest.Entry {
	out := make([]needtest.Entry, 0, s.Count())
	for id, dir := range s.New {
		out = append(out, needtest.Entry{ReactionID: id, Direction: dir, Kind: needtest.KindNew})
	}
	for id, dir := range s.Reversed {
		out = append(out, needtest.Entry{ReactionID: id, Direction: dir, Kind: needtest.KindReversed})
	}
	return out
}

func (s *Solution) String() string {
	return fmt.Sprintf("solution %s media=%s target=%s new=%d reversed=%d",
		s.ID, s.Media.String(), s.Target, len(s.New), len(s.Reversed))
}

// #endregion solution

// #region options

// MultiOptions configures RunMultiGapfill.
type MultiOptions struct {
	// Target is the default objective reaction; TargetsByMedia overrides
	// it per media ID.
	Target         string
	TargetsByMedia map[string]string
	// MinObjective is the default growth threshold; MinObjectives
	// overrides it per media ID.
	MinObjective  float64
	MinObjectives map[string]float64

	Policy      Policy
	BinaryCheck bool
	Prefilter   bool

	// IntegrateSolutions applies accepted solutions to the live model.
	// When false the run works on a throwaway clone.
	IntegrateSolutions bool
	// RemoveUnneeded strips reactions the need test proves unnecessary.
	RemoveUnneeded bool
	CheckForGrowth bool
	RunSensitivity bool
}

// DefaultMultiOptions returns the standard multi-media settings.
func DefaultMultiOptions() MultiOptions {
	return MultiOptions{
		Policy:             PolicyIndependent,
		Target:             "bio1",
		MinObjective:       0.01,
		Prefilter:          true,
		IntegrateSolutions: true,
		RemoveUnneeded:     true,
		CheckForGrowth:     true,
	}
}

// #endregion options
