package handlers_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"training-orchestrator/api/rest/routes"
	"training-orchestrator/core/lifecycle"
	"training-orchestrator/core/models"
	"training-orchestrator/core/orchestrator"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubService is a scripted JobService
type stubService struct {
	mu       sync.Mutex
	jobs     map[string]*models.Job
	snaps    map[string]models.ProgressSnapshot
	streams  map[string]chan models.ProgressSnapshot
	startErr error
}

func newStubService() *stubService {
	return &stubService{
		jobs:    make(map[string]*models.Job),
		snaps:   make(map[string]models.ProgressSnapshot),
		streams: make(map[string]chan models.ProgressSnapshot),
	}
}

func (s *stubService) CreateJob(name, specYAML string) (*models.Job, error) {
	if strings.Contains(specYAML, "bad") {
		return nil, fmt.Errorf("%w: job.dataset is required", orchestrator.ErrConfigInvalid)
	}
	job := &models.Job{ID: "job-1", Name: name, Kind: models.JobKindTraining, Status: models.JobStatusPending}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return job, nil
}

func (s *stubService) StartJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	job, ok := s.jobs[id]
	if !ok {
		return models.ErrJobNotFound
	}
	job.Status = models.JobStatusRunning
	return nil
}

func (s *stubService) GetJob(id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, models.ErrJobNotFound
	}
	return job, nil
}

func (s *stubService) ListJobs(status *models.JobStatus, limit int) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Job
	for _, j := range s.jobs {
		if status == nil || j.Status == *status {
			out = append(out, j)
		}
	}
	return out, nil
}

func (s *stubService) CancelJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return models.ErrJobNotFound
	}
	if job.Status.Terminal() {
		return models.ErrStatusConflict
	}
	job.Status = models.JobStatusFailed
	job.ErrorKind = models.ErrKindCancelled
	return nil
}

func (s *stubService) Progress(id string) (models.ProgressSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap, ok := s.snaps[id]; ok {
		return snap, nil
	}
	if _, ok := s.jobs[id]; ok {
		return models.EmptySnapshot(), nil
	}
	return models.ProgressSnapshot{}, models.ErrJobNotFound
}

func (s *stubService) Subscribe(id string) (<-chan models.ProgressSnapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan models.ProgressSnapshot, 16)
	s.streams[id] = ch
	return ch, func() {}
}

type stubEvents struct {
	events []models.JobEvent
}

func (s *stubEvents) GetJobEvents(jobID string, limit int) ([]models.JobEvent, error) {
	return s.events, nil
}

func newTestServer(service *stubService) *httptest.Server {
	r := mux.NewRouter()
	routes.SetupRoutes(r, service, &stubEvents{}, 50*time.Millisecond)
	return httptest.NewServer(r)
}

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestSubmitJob(t *testing.T) {
	srv := newTestServer(newStubService())
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/v1/jobs", `{"name":"baseline","spec_yaml":"job:\n  dataset: d.yaml\n"}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var job models.Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&job))
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, "baseline", job.Name)
	assert.Equal(t, models.JobStatusPending, job.Status)
}

func TestSubmitJobInvalidSpecIs400(t *testing.T) {
	srv := newTestServer(newStubService())
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/v1/jobs", `{"spec_yaml":"bad"}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitJobMalformedBodyIs400(t *testing.T) {
	srv := newTestServer(newStubService())
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/v1/jobs", `{not json`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStartJob(t *testing.T) {
	service := newStubService()
	service.jobs["job-1"] = &models.Job{ID: "job-1", Status: models.JobStatusPending}
	srv := newTestServer(service)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/v1/jobs/job-1/start", "")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var job models.Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&job))
	assert.Equal(t, models.JobStatusRunning, job.Status)
}

func TestStartJobConflictIs409(t *testing.T) {
	service := newStubService()
	service.jobs["job-1"] = &models.Job{ID: "job-1", Status: models.JobStatusRunning}
	service.startErr = lifecycle.ErrAlreadyRunning
	srv := newTestServer(service)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/v1/jobs/job-1/start", "")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestStartUnknownJobIs404(t *testing.T) {
	srv := newTestServer(newStubService())
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/v1/jobs/nope/start", "")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelTerminalJobIs409(t *testing.T) {
	service := newStubService()
	service.jobs["job-1"] = &models.Job{ID: "job-1", Status: models.JobStatusCompleted}
	srv := newTestServer(service)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/v1/jobs/job-1/cancel", "")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestListJobsFilterValidation(t *testing.T) {
	srv := newTestServer(newStubService())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/jobs?status=bogus")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/v1/jobs?status=running")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Jobs []models.Job `json:"jobs"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.NotNil(t, out.Jobs)
}

func TestGetProgress(t *testing.T) {
	service := newStubService()
	service.jobs["job-1"] = &models.Job{ID: "job-1", Status: models.JobStatusRunning}
	service.snaps["job-1"] = models.ProgressSnapshot{
		Status:           models.JobStatusRunning,
		CurrentIteration: 3,
		TotalIterations:  10,
	}
	srv := newTestServer(service)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/jobs/job-1/progress")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap models.ProgressSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, 3, snap.CurrentIteration)
}

func TestStreamDeliversSnapshotsAndHeartbeats(t *testing.T) {
	service := newStubService()
	service.jobs["job-1"] = &models.Job{ID: "job-1", Status: models.JobStatusRunning}
	service.snaps["job-1"] = models.ProgressSnapshot{Status: models.JobStatusRunning, CurrentIteration: 1}
	srv := newTestServer(service)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/jobs/job-1/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	go func() {
		// Let at least one heartbeat tick, then finish the stream
		time.Sleep(120 * time.Millisecond)
		service.mu.Lock()
		ch := service.streams["job-1"]
		service.mu.Unlock()
		ch <- models.ProgressSnapshot{Status: models.JobStatusCompleted, CurrentIteration: 5}
		close(ch)
	}()

	body := make([]byte, 0, 1024)
	buf := make([]byte, 256)
	for {
		n, rerr := resp.Body.Read(buf)
		body = append(body, buf[:n]...)
		if rerr != nil {
			break
		}
	}

	text := string(body)
	assert.Contains(t, text, `"current_iteration":1`, "initial snapshot served first")
	assert.Contains(t, text, ": heartbeat")
	assert.Contains(t, text, `"current_iteration":5`)
	assert.Contains(t, text, `"status":"completed"`)
}

func TestStreamOfTerminalJobEndsAfterFinalSnapshot(t *testing.T) {
	service := newStubService()
	service.jobs["job-1"] = &models.Job{ID: "job-1", Status: models.JobStatusCompleted}
	service.snaps["job-1"] = models.ProgressSnapshot{Status: models.JobStatusCompleted}
	srv := newTestServer(service)
	defer srv.Close()

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(srv.URL + "/v1/jobs/job-1/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	body := make([]byte, 0, 256)
	buf := make([]byte, 256)
	for {
		n, rerr := resp.Body.Read(buf)
		body = append(body, buf[:n]...)
		if rerr != nil {
			break
		}
	}
	assert.Contains(t, string(body), `"status":"completed"`)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(newStubService())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
