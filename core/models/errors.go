package models

import "fmt"

// MissingChannelError means a required data channel was absent or empty.
// Fatal before any process is launched.
type MissingChannelError struct {
	Channel Channel
	Reason  string
}

func (e *MissingChannelError) Error() string {
	return fmt.Sprintf("missing channel %s: %s", e.Channel, e.Reason)
}

// LaunchPlanError means no valid invocation could be derived from the
// topology and training config. Fatal before any process is launched.
type LaunchPlanError struct {
	Reason string
}

func (e *LaunchPlanError) Error() string {
	return fmt.Sprintf("launch plan: %s", e.Reason)
}

// AttemptError is one failed launch attempt. A distributed attempt failure
// is retried once as single-process; any other attempt failure is terminal.
type AttemptError struct {
	Attempt  int
	Strategy LaunchStrategy
	Stalled  bool
	ExitCode int
	Err      error
}

func (e *AttemptError) Error() string {
	if e.Stalled {
		return fmt.Sprintf("attempt %d (%s) stalled without step progress", e.Attempt, e.Strategy)
	}
	if e.Err != nil {
		return fmt.Sprintf("attempt %d (%s) failed: %v", e.Attempt, e.Strategy, e.Err)
	}
	return fmt.Sprintf("attempt %d (%s) exited with code %d", e.Attempt, e.Strategy, e.ExitCode)
}

func (e *AttemptError) Unwrap() error { return e.Err }

// ArtifactMissingError means the training process reported success but the
// expected adapter weights were not found. Fatal after the run.
type ArtifactMissingError struct {
	Dir string
}

func (e *ArtifactMissingError) Error() string {
	return fmt.Sprintf("no adapter weights found under %s", e.Dir)
}
