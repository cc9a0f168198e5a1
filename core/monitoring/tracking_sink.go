package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"finetune-launcher/core/models"

	"github.com/google/uuid"
)

// Tracking run lifecycle statuses.
const (
	RunStatusRunning  = "RUNNING"
	RunStatusFinished = "FINISHED"
	RunStatusFailed   = "FAILED"
)

// TrackingSink forwards metric events to the experiment-tracking service.
// Delivery is best-effort: the sink works fully offline by appending
// JSON-line records under the run directory, and in online mode it
// additionally POSTs each record with a short timeout. Either way a
// delivery failure is the caller's to log and drop.
type TrackingSink struct {
	project  string
	mode     string // "online" | "offline" | "disabled"
	endpoint string
	runID    string

	mu   sync.Mutex
	file *os.File

	client *http.Client
	now    func() time.Time
}

type trackingRecord struct {
	RunID     string             `json:"run_id"`
	Project   string             `json:"project"`
	Kind      string             `json:"kind"` // "status" | "metric"
	Status    string             `json:"status,omitempty"`
	Step      int64              `json:"step,omitempty"`
	Fields    map[string]float64 `json:"fields,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// NewTrackingSink creates a tracking sink writing under dir. In online mode
// records are also POSTed to endpoint.
func NewTrackingSink(dir, project, mode, endpoint string) (*TrackingSink, error) {
	sink := &TrackingSink{
		project:  project,
		mode:     mode,
		endpoint: endpoint,
		runID:    uuid.New().String(),
		client:   &http.Client{Timeout: 5 * time.Second},
		now:      time.Now,
	}
	if mode == "disabled" {
		return sink, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create tracking dir: %w", err)
	}
	file, err := os.OpenFile(
		filepath.Join(dir, fmt.Sprintf("run-%s.jsonl", sink.runID)),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open tracking log: %w", err)
	}
	sink.file = file
	return sink, nil
}

// RunID returns the tracking run identifier.
func (s *TrackingSink) RunID() string { return s.runID }

// Name implements MetricSink.
func (s *TrackingSink) Name() string { return "tracking" }

// StartRun records the run-started lifecycle event.
func (s *TrackingSink) StartRun(ctx context.Context) error {
	return s.write(ctx, trackingRecord{Kind: "status", Status: RunStatusRunning})
}

// FinishRun records the terminal lifecycle event.
func (s *TrackingSink) FinishRun(ctx context.Context, success bool) error {
	status := RunStatusFinished
	if !success {
		status = RunStatusFailed
	}
	return s.write(ctx, trackingRecord{Kind: "status", Status: status})
}

// Publish implements MetricSink.
func (s *TrackingSink) Publish(ctx context.Context, event models.MetricEvent) error {
	return s.write(ctx, trackingRecord{
		Kind:      "metric",
		Step:      event.Step,
		Fields:    event.Fields,
		Timestamp: event.Timestamp,
	})
}

// Flush implements MetricSink.
func (s *TrackingSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	return s.file.Sync()
}

// Close releases the offline log.
func (s *TrackingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *TrackingSink) write(ctx context.Context, rec trackingRecord) error {
	if s.mode == "disabled" {
		return nil
	}
	rec.RunID = s.runID
	rec.Project = s.project
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.file != nil {
		if _, err := s.file.Write(append(payload, '\n')); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Unlock()

	if s.mode == "online" && s.endpoint != "" {
		return s.post(ctx, payload)
	}
	return nil
}

func (s *TrackingSink) post(ctx context.Context, payload []byte) error {
	url := fmt.Sprintf("%s/api/runs/%s/records", s.endpoint, s.runID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("tracking endpoint returned %s", resp.Status)
	}
	return nil
}
