// Package pipeline orchestrates one synchronization run: for every enabled
// source it fetches, validates, watermark-filters and commits, fail-fast,
// and aggregates a run summary.
package pipeline

type (
	// Stage tracks one source's progress through a run. Stages appear in
	// structured logs so an aborted run can be traced to the exact phase a
	// source died in.
	Stage string
)

const (
	// StagePending means the source has not started.
	StagePending Stage = "pending"

	// StageFetching means the source collaborator is downloading data.
	StageFetching Stage = "fetching"

	// StageValidating means the fetched batch is being checked against the
	// schema catalog.
	StageValidating Stage = "validating"

	// StageFiltering means rows at or below the watermarks are being
	// dropped.
	StageFiltering Stage = "filtering"

	// StageCommitting means the delta is being written to staging and
	// bronze.
	StageCommitting Stage = "committing"

	// StageDone is the terminal success state.
	StageDone Stage = "done"

	// StageFailed is the terminal failure state. One failed source aborts
	// the whole run.
	StageFailed Stage = "failed"
)

// IsValid checks whether the stage is a member of the closed stage set.
func (s Stage) IsValid() bool {
	switch s {
	case StagePending, StageFetching, StageValidating, StageFiltering, StageCommitting, StageDone, StageFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the stage ends the source's run.
func (s Stage) IsTerminal() bool {
	return s == StageDone || s == StageFailed
}

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}

// stageTransitions is the allowed transition set. Failure is reachable from
// every non-terminal stage; success only through committing.
var stageTransitions = map[Stage][]Stage{
	StagePending:    {StageFetching, StageFailed},
	StageFetching:   {StageValidating, StageFailed},
	StageValidating: {StageFiltering, StageFailed},
	StageFiltering:  {StageCommitting, StageDone, StageFailed},
	StageCommitting: {StageDone, StageFailed},
	StageDone:       {},
	StageFailed:     {},
}

// CanTransitionTo reports whether moving from s to next is a legal step in
// the source lifecycle.
func (s Stage) CanTransitionTo(next Stage) bool {
	for _, allowed := range stageTransitions[s] {
		if next == allowed {
			return true
		}
	}

	return false
}
