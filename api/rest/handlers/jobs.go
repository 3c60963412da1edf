package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"training-orchestrator/core/lifecycle"
	"training-orchestrator/core/models"
	"training-orchestrator/core/orchestrator"

	"github.com/gorilla/mux"
)

// JobService is the orchestration surface the HTTP layer talks to.
// Satisfied by orchestrator.Orchestrator.
type JobService interface {
	CreateJob(name, specYAML string) (*models.Job, error)
	StartJob(id string) error
	GetJob(id string) (*models.Job, error)
	ListJobs(status *models.JobStatus, limit int) ([]*models.Job, error)
	CancelJob(id string) error
	Progress(id string) (models.ProgressSnapshot, error)
	Subscribe(id string) (<-chan models.ProgressSnapshot, func())
}

// EventLister lists a job's recorded status transitions
type EventLister interface {
	GetJobEvents(jobID string, limit int) ([]models.JobEvent, error)
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	service   JobService
	events    EventLister
	heartbeat time.Duration
}

// NewJobHandler creates a new job handler
func NewJobHandler(service JobService, events EventLister, heartbeat time.Duration) *JobHandler {
	return &JobHandler{
		service:   service,
		events:    events,
		heartbeat: heartbeat,
	}
}

// SubmitJobRequest represents the request to submit a job
type SubmitJobRequest struct {
	Name     string `json:"name"`
	SpecYAML string `json:"spec_yaml"`
}

// SubmitJob handles POST /v1/jobs
func (h *JobHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	job, err := h.service.CreateJob(req.Name, req.SpecYAML)
	if err != nil {
		if errors.Is(err, orchestrator.ErrConfigInvalid) {
			http.Error(w, "Invalid job spec: "+err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to create job: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, job)
}

// StartJob handles POST /v1/jobs/{id}/start
func (h *JobHandler) StartJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	if err := h.service.StartJob(jobID); err != nil {
		switch {
		case errors.Is(err, models.ErrJobNotFound):
			http.Error(w, "Job not found", http.StatusNotFound)
		case errors.Is(err, lifecycle.ErrAlreadyRunning):
			http.Error(w, "Job already started", http.StatusConflict)
		default:
			http.Error(w, "Failed to start job: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	job, err := h.service.GetJob(jobID)
	if err != nil {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// GetJob handles GET /v1/jobs/{id}
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.GetJob(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /v1/jobs
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	var status *models.JobStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st := models.JobStatus(s)
		switch st {
		case models.JobStatusPending, models.JobStatusRunning, models.JobStatusCompleted, models.JobStatusFailed:
			status = &st
		default:
			http.Error(w, "Unknown status filter: "+s, http.StatusBadRequest)
			return
		}
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	jobs, err := h.service.ListJobs(status, limit)
	if err != nil {
		http.Error(w, "Failed to list jobs: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []*models.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

// CancelJob handles POST /v1/jobs/{id}/cancel
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	if err := h.service.CancelJob(jobID); err != nil {
		switch {
		case errors.Is(err, models.ErrJobNotFound):
			http.Error(w, "Job not found", http.StatusNotFound)
		case errors.Is(err, models.ErrStatusConflict):
			http.Error(w, "Job already finished", http.StatusConflict)
		default:
			http.Error(w, "Failed to cancel job: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// GetJobEvents handles GET /v1/jobs/{id}/events
func (h *JobHandler) GetJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	if _, err := h.service.GetJob(jobID); err != nil {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	events, err := h.events.GetJobEvents(jobID, 100)
	if err != nil {
		http.Error(w, "Failed to list events: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []models.JobEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

// GetProgress handles GET /v1/jobs/{id}/progress
func (h *JobHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Progress(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Health handles GET /health
func (h *JobHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
