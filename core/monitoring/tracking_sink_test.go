package monitoring

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"finetune-launcher/core/models"
)

func TestTrackingSinkOffline(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewTrackingSink(dir, "finetune", "offline", "")
	if err != nil {
		t.Fatalf("NewTrackingSink returned error: %v", err)
	}
	defer sink.Close()

	ctx := context.Background()
	if err := sink.StartRun(ctx); err != nil {
		t.Fatalf("StartRun returned error: %v", err)
	}
	for step := int64(1); step <= 3; step++ {
		err := sink.Publish(ctx, models.MetricEvent{
			Step:      step,
			Fields:    map[string]float64{"loss": float64(step)},
			Timestamp: time.Unix(step, 0),
		})
		if err != nil {
			t.Fatalf("Publish returned error: %v", err)
		}
	}
	if err := sink.FinishRun(ctx, true); err != nil {
		t.Fatalf("FinishRun returned error: %v", err)
	}
	if err := sink.Flush(ctx); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}

	path := filepath.Join(dir, "run-"+sink.RunID()+".jsonl")
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("offline log not created: %v", err)
	}
	defer file.Close()

	var records []trackingRecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec trackingRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("bad record line: %v", err)
		}
		records = append(records, rec)
	}

	if len(records) != 5 {
		t.Fatalf("wrote %d records, want 5 (start + 3 metrics + finish)", len(records))
	}
	if records[0].Kind != "status" || records[0].Status != RunStatusRunning {
		t.Errorf("first record = %+v, want RUNNING status", records[0])
	}
	for i, step := range []int64{1, 2, 3} {
		rec := records[i+1]
		if rec.Kind != "metric" || rec.Step != step {
			t.Errorf("record %d = %+v, want metric step %d", i+1, rec, step)
		}
	}
	last := records[len(records)-1]
	if last.Status != RunStatusFinished {
		t.Errorf("last record status = %s, want FINISHED", last.Status)
	}
}

func TestTrackingSinkFailedRun(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewTrackingSink(dir, "finetune", "offline", "")
	if err != nil {
		t.Fatalf("NewTrackingSink returned error: %v", err)
	}
	defer sink.Close()

	if err := sink.FinishRun(context.Background(), false); err != nil {
		t.Fatalf("FinishRun returned error: %v", err)
	}
	sink.Flush(context.Background())

	raw, err := os.ReadFile(filepath.Join(dir, "run-"+sink.RunID()+".jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	var rec trackingRecord
	if err := json.Unmarshal(raw[:len(raw)-1], &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Status != RunStatusFailed {
		t.Errorf("status = %s, want FAILED", rec.Status)
	}
}

func TestTrackingSinkDisabled(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewTrackingSink(dir, "finetune", "disabled", "")
	if err != nil {
		t.Fatalf("NewTrackingSink returned error: %v", err)
	}

	if err := sink.Publish(context.Background(), models.MetricEvent{Step: 1}); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("disabled sink wrote %d files, want 0", len(entries))
	}
}
