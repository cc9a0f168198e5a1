package status

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"finetune-launcher/core/models"

	"github.com/gorilla/mux"
)

// Server exposes the launcher's health and run progress over HTTP so the
// platform (or an operator shelling into the container) can probe the job
// without scraping logs.
type Server struct {
	httpServer *http.Server
	jobName    string
	snapshot   func() models.RunRecord
	startedAt  time.Time
}

// NewServer creates a new status server
func NewServer(port, jobName string, snapshot func() models.RunRecord) *Server {
	s := &Server{
		jobName:   jobName,
		snapshot:  snapshot,
		startedAt: time.Now(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/status", s.handleStatus).Methods("GET")

	s.httpServer = &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	return s
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		log.Printf("Status endpoint listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Status endpoint failed: %v", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("Status endpoint shutdown: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// statusResponse is the JSON shape of GET /status.
type statusResponse struct {
	JobName       string  `json:"job_name"`
	RunID         string  `json:"run_id"`
	Attempt       int     `json:"attempt"`
	Strategy      string  `json:"strategy"`
	Phase         string  `json:"phase"`
	LastStep      int64   `json:"last_step"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	rec := s.snapshot()
	resp := statusResponse{
		JobName:       s.jobName,
		RunID:         rec.RunID,
		Attempt:       rec.Attempt,
		Strategy:      string(rec.Strategy),
		Phase:         string(rec.Phase),
		LastStep:      rec.LastStep,
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("Failed to encode status response: %v", err)
	}
}
