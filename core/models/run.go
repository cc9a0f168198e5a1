package models

import "time"

// AttemptPhase represents where a single launch attempt is in its lifecycle.
type AttemptPhase string

const (
	PhaseIdle      AttemptPhase = "idle"
	PhaseLaunching AttemptPhase = "launching"
	PhaseRunning   AttemptPhase = "running"
	PhaseSucceeded AttemptPhase = "succeeded"
	PhaseFailed    AttemptPhase = "failed"
)

// RunRecord tracks one launch attempt. Owned by the supervisor for the
// duration of the attempt; superseded on retry. The record of the final
// successful attempt is handed to the finalizer.
type RunRecord struct {
	RunID        string
	Attempt      int
	Strategy     LaunchStrategy
	Phase        AttemptPhase
	StartedAt    time.Time
	FinishedAt   *time.Time
	ExitCode     int
	LastStep     int64
	LastProgress time.Time
}

// RunOutcome is the terminal result of the supervisor for the whole job.
type RunOutcome struct {
	Record  RunRecord
	Success bool
	Reason  string
}
