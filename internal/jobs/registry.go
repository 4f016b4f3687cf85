// Package jobs tracks asynchronous analysis jobs in memory. Records
// live for the process lifetime; a restart forgets in-flight jobs and
// callers are expected to resubmit.
package jobs

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"geopulse/internal/model"
)

// Status is the lifecycle state of a job. Transitions are monotonic:
// pending -> running -> done|error, terminal states never revert.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// ErrNotFound is returned when polling an unknown job id.
var ErrNotFound = errors.New("job not found")

// Job is one analysis execution unit, identified by an opaque token.
type Job struct {
	ID         string                `json:"id"`
	Status     Status                `json:"status"`
	Result     *model.AnalysisResult `json:"result,omitempty"`
	Error      string                `json:"error,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
	StartedAt  *time.Time            `json:"started_at,omitempty"`
	FinishedAt *time.Time            `json:"finished_at,omitempty"`
}

func (j Job) terminal() bool {
	return j.Status == StatusDone || j.Status == StatusError
}

// Registry is a concurrent-safe job store. It is injected into its
// consumers rather than shared as a global, and has no eviction: a
// long-lived process accumulates finished records.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

// Create inserts a fresh pending job and returns its id.
func (r *Registry) Create() string {
	id := uuid.NewString()
	r.mu.Lock()
	r.jobs[id] = &Job{
		ID:        id,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	r.mu.Unlock()
	return id
}

// Get returns a copy of the job record, or ErrNotFound.
func (r *Registry) Get(id string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return *j, nil
}

// MarkRunning moves a pending job to running.
func (r *Registry) MarkRunning(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.Status != StatusPending {
		return
	}
	now := time.Now().UTC()
	j.Status = StatusRunning
	j.StartedAt = &now
}

// Complete stores the result and moves the job to done.
func (r *Registry) Complete(id string, result *model.AnalysisResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.terminal() {
		return
	}
	now := time.Now().UTC()
	j.Status = StatusDone
	j.Result = result
	j.FinishedAt = &now
}

// Fail records the error message and moves the job to error.
func (r *Registry) Fail(id, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.terminal() {
		return
	}
	now := time.Now().UTC()
	j.Status = StatusError
	j.Error = msg
	j.FinishedAt = &now
}

// Len reports how many job records are held.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
