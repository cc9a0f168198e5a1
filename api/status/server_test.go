package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"finetune-launcher/core/models"
)

func TestHealthEndpoint(t *testing.T) {
	server := NewServer("0", "job-1", func() models.RunRecord { return models.RunRecord{} })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	record := models.RunRecord{
		RunID:    "run-abc",
		Attempt:  2,
		Strategy: models.StrategySingleProcess,
		Phase:    models.PhaseRunning,
		LastStep: 42,
	}
	server := NewServer("0", "job-1", func() models.RunRecord { return record })

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}

	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if resp.JobName != "job-1" || resp.RunID != "run-abc" || resp.Attempt != 2 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Phase != string(models.PhaseRunning) || resp.LastStep != 42 {
		t.Errorf("unexpected progress fields: %+v", resp)
	}
}
