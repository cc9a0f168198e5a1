package monitoring

import (
	"sync"
	"time"
)

// LivenessTracker records training-step progress for the supervisor's stall
// detection. Progress only counts when the step number advances; repeated
// output at the same step does not reset the clock.
type LivenessTracker struct {
	mu       sync.Mutex
	lastStep int64
	lastSeen time.Time
	now      func() time.Time
}

// NewLivenessTracker creates a new liveness tracker
func NewLivenessTracker() *LivenessTracker {
	t := &LivenessTracker{now: time.Now}
	t.Reset()
	return t
}

// Reset restarts the progress clock for a fresh attempt.
func (t *LivenessTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastStep = -1
	t.lastSeen = t.now()
}

// Observe records a step observation.
func (t *LivenessTracker) Observe(step int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if step > t.lastStep {
		t.lastStep = step
		t.lastSeen = t.now()
	}
}

// LastStep returns the highest step seen this attempt, or -1.
func (t *LivenessTracker) LastStep() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastStep
}

// SinceProgress returns how long ago the step number last advanced.
func (t *LivenessTracker) SinceProgress() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now().Sub(t.lastSeen)
}
