// Package tracker is the receiving end of the progress protocol: it stores
// the latest event per job and serves it to pollers.
package tracker

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"ytdownloader/internal/core/domain"
)

// Job statuses reported by the status endpoint.
const (
	StatusProcessing = "Processing"
	StatusComplete   = "Complete"
	StatusFailed     = "Failed"
)

// JobStatus is the latest known state of a job.
type JobStatus struct {
	ID        string              `json:"id"`
	Message   string              `json:"message"`
	Progress  int                 `json:"progress"`
	Status    string              `json:"status"`
	FinalFile *domain.VideoRecord `json:"finalFile,omitempty"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

// Tracker keeps job states in memory.
type Tracker struct {
	secret string
	logger log.FieldLogger

	mu   sync.RWMutex
	jobs map[string]JobStatus
}

// New creates a Tracker that accepts events carrying secret.
func New(secret string, logger log.FieldLogger) *Tracker {
	return &Tracker{
		secret: secret,
		logger: logger,
		jobs:   make(map[string]JobStatus),
	}
}

// Router returns the HTTP routes.
func (t *Tracker) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/ytdownloader").Subrouter()
	api.HandleFunc("/update-progress", t.handleUpdate).Methods(http.MethodPost)
	api.HandleFunc("/status/{jobId}", t.handleStatus).Methods(http.MethodGet)
	return r
}

// Get returns the status of jobID.
func (t *Tracker) Get(jobID string) (JobStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.jobs[jobID]
	return s, ok
}

// Apply records an event and returns the resulting status.
func (t *Tracker) Apply(ev domain.ProgressEvent) JobStatus {
	s := JobStatus{
		ID:        ev.JobID,
		Message:   ev.Message,
		Progress:  ev.Progress,
		Status:    statusFor(ev),
		FinalFile: ev.FinalFile,
		UpdatedAt: time.Now().UTC(),
	}
	t.mu.Lock()
	t.jobs[ev.JobID] = s
	t.mu.Unlock()
	return s
}

func statusFor(ev domain.ProgressEvent) string {
	switch {
	case ev.Progress >= 100 && ev.FinalFile != nil:
		return StatusComplete
	case ev.Progress >= 100:
		return StatusFailed
	default:
		return StatusProcessing
	}
}

func (t *Tracker) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var ev domain.ProgressEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if subtle.ConstantTimeCompare([]byte(ev.Secret), []byte(t.secret)) != 1 {
		writeError(w, http.StatusForbidden, "invalid secret")
		return
	}
	if ev.JobID == "" {
		writeError(w, http.StatusBadRequest, "jobId is required")
		return
	}
	if ev.Progress < 0 || ev.Progress > 100 {
		writeError(w, http.StatusBadRequest, "progress must be between 0 and 100")
		return
	}

	s := t.Apply(ev)
	t.logger.WithField("job", s.ID).Infof("%s %d%%: %s", s.Status, s.Progress, s.Message)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (t *Tracker) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["jobId"]
	s, ok := t.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
