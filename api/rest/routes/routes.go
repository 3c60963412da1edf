package routes

import (
	"time"

	"training-orchestrator/api/rest/handlers"

	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *mux.Router, service handlers.JobService, events handlers.EventLister, heartbeat time.Duration) {
	jobHandler := handlers.NewJobHandler(service, events, heartbeat)

	r.HandleFunc("/health", jobHandler.Health).Methods("GET")

	api := r.PathPrefix("/v1").Subrouter()

	// Job endpoints
	api.HandleFunc("/jobs", jobHandler.SubmitJob).Methods("POST")
	api.HandleFunc("/jobs", jobHandler.ListJobs).Methods("GET")
	api.HandleFunc("/jobs/{id}", jobHandler.GetJob).Methods("GET")
	api.HandleFunc("/jobs/{id}/start", jobHandler.StartJob).Methods("POST")
	api.HandleFunc("/jobs/{id}/cancel", jobHandler.CancelJob).Methods("POST")
	api.HandleFunc("/jobs/{id}/events", jobHandler.GetJobEvents).Methods("GET")
	api.HandleFunc("/jobs/{id}/progress", jobHandler.GetProgress).Methods("GET")
	api.HandleFunc("/jobs/{id}/stream", jobHandler.StreamProgress).Methods("GET")
}
