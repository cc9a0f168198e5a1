package supervisor

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"finetune-launcher/core/models"
	"finetune-launcher/core/monitoring"
	"finetune-launcher/core/planner"

	"github.com/google/uuid"
)

// Supervisor drives the attempt state machine for one training job:
// launch per plan, stream output through the metric bridge, detect stalls,
// and fall back from a failed distributed attempt to a single-process
// attempt exactly once.
type Supervisor struct {
	proc        TrainingProcess
	topo        models.AcceleratorTopology
	inv         planner.Invocation
	stallWindow time.Duration
	bridge      *monitoring.Bridge
	liveness    *monitoring.LivenessTracker

	record recordBox
}

// New creates a new process supervisor
func New(
	proc TrainingProcess,
	topo models.AcceleratorTopology,
	inv planner.Invocation,
	stallWindow time.Duration,
	bridge *monitoring.Bridge,
) *Supervisor {
	s := &Supervisor{
		proc:        proc,
		topo:        topo,
		inv:         inv,
		stallWindow: stallWindow,
		bridge:      bridge,
		liveness:    monitoring.NewLivenessTracker(),
	}
	s.record.rec = models.RunRecord{Phase: models.PhaseIdle, LastStep: -1}
	bridge.SetObserver(func(event models.MetricEvent) {
		s.liveness.Observe(event.Step)
		s.record.observeStep(event.Step)
	})
	return s
}

// Snapshot returns a copy of the current run record.
func (s *Supervisor) Snapshot() models.RunRecord {
	return s.record.snapshot()
}

// Run executes attempts until terminal success or failure. At most two
// attempts ever run: the planned one, plus one single-process fallback if
// the planned one was distributed and failed.
func (s *Supervisor) Run(ctx context.Context) (models.RunOutcome, error) {
	priorDistributedFailure := false

	for attempt := 1; ; attempt++ {
		plan, err := planner.Plan(s.topo, s.inv, priorDistributedFailure)
		if err != nil {
			return models.RunOutcome{Record: s.Snapshot(), Reason: err.Error()}, err
		}

		s.record.begin(attempt, plan.Strategy)
		log.Printf("Attempt %d: launching %s run with %d process(es): %v",
			attempt, plan.Strategy, plan.ProcessCount, plan.Argv)

		err = s.runAttempt(ctx, attempt, plan)
		if err == nil {
			s.record.finish(models.PhaseSucceeded, 0)
			return models.RunOutcome{
				Record:  s.Snapshot(),
				Success: true,
				Reason:  "training completed",
			}, nil
		}

		if ctx.Err() != nil {
			return models.RunOutcome{Record: s.Snapshot(), Reason: "canceled"}, err
		}

		var attemptErr *models.AttemptError
		if errors.As(err, &attemptErr) &&
			plan.Strategy == models.StrategyDistributed &&
			!priorDistributedFailure {
			// Distributed failures may be environmental. One shot at a
			// single-process run; a failure there is assumed to be a real
			// defect and is not retried.
			log.Printf("Distributed attempt failed (%v), falling back to single-process", err)
			priorDistributedFailure = true
			continue
		}

		return models.RunOutcome{Record: s.Snapshot(), Reason: err.Error()}, err
	}
}

type attemptResult struct {
	code int
	err  error
}

func (s *Supervisor) runAttempt(ctx context.Context, attempt int, plan models.LaunchPlan) error {
	s.liveness.Reset()

	handle, err := s.proc.Invoke(ctx, plan)
	if err != nil {
		s.record.finish(models.PhaseFailed, -1)
		return &models.AttemptError{Attempt: attempt, Strategy: plan.Strategy, Err: err}
	}
	s.record.setPhase(models.PhaseRunning)

	// Single reader of the child's output; the bridge fans lines out to the
	// sinks and, via the observer, to liveness tracking.
	done := make(chan attemptResult, 1)
	var streamBroken atomic.Bool
	go func() {
		scanner := bufio.NewScanner(handle.Output())
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			s.bridge.HandleLine(ctx, scanner.Text())
		}
		if scanErr := scanner.Err(); scanErr != nil {
			// Not EOF: the stream broke mid-run (an oversized line, a read
			// error). Progress is no longer observable, so stall detection
			// stands down for this attempt; keep draining so the child
			// never blocks on a full pipe.
			streamBroken.Store(true)
			log.Printf("Attempt %d: output stream unreadable, metrics lost from here: %v",
				attempt, scanErr)
			io.Copy(io.Discard, handle.Output())
		}
		code, waitErr := handle.Wait()
		done <- attemptResult{code: code, err: waitErr}
	}()

	ticker := time.NewTicker(stallCheckInterval(s.stallWindow))
	defer ticker.Stop()

	for {
		select {
		case res := <-done:
			if res.err != nil || res.code != 0 {
				s.record.finish(models.PhaseFailed, res.code)
				return &models.AttemptError{
					Attempt:  attempt,
					Strategy: plan.Strategy,
					ExitCode: res.code,
					Err:      res.err,
				}
			}
			return nil

		case <-ctx.Done():
			handle.Terminate()
			<-done
			s.record.finish(models.PhaseFailed, -1)
			return &models.AttemptError{Attempt: attempt, Strategy: plan.Strategy, Err: ctx.Err()}

		case <-ticker.C:
			if streamBroken.Load() {
				continue
			}
			if s.liveness.SinceProgress() > s.stallWindow {
				log.Printf("Attempt %d: no step progress for %s, killing child",
					attempt, s.stallWindow)
				handle.Terminate()
				<-done
				s.record.finish(models.PhaseFailed, -1)
				return &models.AttemptError{Attempt: attempt, Strategy: plan.Strategy, Stalled: true}
			}
		}
	}
}

func stallCheckInterval(window time.Duration) time.Duration {
	interval := window / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	return interval
}

// recordBox guards the mutable run record shared with the status endpoint.
type recordBox struct {
	mu  sync.Mutex
	rec models.RunRecord
}

func (b *recordBox) begin(attempt int, strategy models.LaunchStrategy) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rec = models.RunRecord{
		RunID:        uuid.New().String(),
		Attempt:      attempt,
		Strategy:     strategy,
		Phase:        models.PhaseLaunching,
		StartedAt:    time.Now(),
		LastStep:     -1,
		LastProgress: time.Now(),
	}
}

func (b *recordBox) setPhase(phase models.AttemptPhase) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rec.Phase = phase
}

func (b *recordBox) observeStep(step int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if step > b.rec.LastStep {
		b.rec.LastStep = step
		b.rec.LastProgress = time.Now()
	}
}

func (b *recordBox) finish(phase models.AttemptPhase, exitCode int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	b.rec.Phase = phase
	b.rec.FinishedAt = &now
	b.rec.ExitCode = exitCode
}

func (b *recordBox) snapshot() models.RunRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rec
}
