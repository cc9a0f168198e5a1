package models

// LaunchStrategy selects how the training process is spawned.
type LaunchStrategy string

const (
	StrategyDistributed   LaunchStrategy = "distributed"
	StrategySingleProcess LaunchStrategy = "single_process"
)

// LaunchPlan is the concrete invocation derived from the probed topology and
// the training spec. Recomputed only when the supervisor falls back after a
// failed distributed attempt.
type LaunchPlan struct {
	Strategy     LaunchStrategy
	ProcessCount int
	Argv         []string          // full command line, argv[0] included
	Env          map[string]string // overlay applied on top of the inherited environment
}
