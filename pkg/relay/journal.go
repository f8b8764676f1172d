package relay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobKind is what a relay job does
type JobKind string

const (
	JobClose  JobKind = "close"  // closeSwap on the target chain
	JobClaim  JobKind = "claim"  // claim on the source chain
	JobExpire JobKind = "expire" // lockCloseSwap on the target, then refund on the source
)

// JobStatus is where a job is in its lifecycle
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Job is one unit of relay work for a single swap request
type Job struct {
	ID          string    `json:"id"`
	Kind        JobKind   `json:"kind"`
	Status      JobStatus `json:"status"`
	SourceChain uint64    `json:"source_chain"`
	TargetChain uint64    `json:"target_chain"`
	SwapID      uint64    `json:"swap_id"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error,omitempty"`
	Result      string    `json:"result,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (j *Job) key() string {
	return jobKey(j.Kind, j.SourceChain, j.SwapID)
}

func jobKey(kind JobKind, sourceChain, swapID uint64) string {
	return fmt.Sprintf("%s/%d/%d", kind, sourceChain, swapID)
}

// journalFile is the JSON layout on disk
type journalFile struct {
	Jobs map[string]*Job `json:"jobs"`
}

// Journal persists relay jobs. With an empty path it is memory only.
type Journal struct {
	filePath string
	mu       sync.RWMutex
	jobs     map[string]*Job
	byKey    map[string]string
}

// OpenJournal loads the journal at filePath, if it exists
func OpenJournal(filePath string) (*Journal, error) {
	j := &Journal{
		filePath: filePath,
		jobs:     make(map[string]*Job),
		byKey:    make(map[string]string),
	}
	if filePath == "" {
		return j, nil
	}

	data, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return j, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	var f journalFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal journal: %w", err)
	}
	for id, job := range f.Jobs {
		j.jobs[id] = job
		j.byKey[job.key()] = id
	}
	return j, nil
}

// Add records a new pending job. If a job of the same kind already exists
// for the swap, that job is returned and added is false.
func (j *Journal) Add(kind JobKind, sourceChain, targetChain, swapID uint64) (job Job, added bool, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if id, exists := j.byKey[jobKey(kind, sourceChain, swapID)]; exists {
		return *j.jobs[id], false, nil
	}

	now := time.Now().UTC()
	created := &Job{
		ID:          uuid.New().String(),
		Kind:        kind,
		Status:      JobPending,
		SourceChain: sourceChain,
		TargetChain: targetChain,
		SwapID:      swapID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	j.jobs[created.ID] = created
	j.byKey[created.key()] = created.ID

	if err := j.save(); err != nil {
		delete(j.jobs, created.ID)
		delete(j.byKey, created.key())
		return Job{}, false, err
	}
	return *created, true, nil
}

// Update replaces a stored job
func (j *Journal) Update(job Job) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, exists := j.jobs[job.ID]; !exists {
		return fmt.Errorf("job '%s' not found", job.ID)
	}
	job.UpdatedAt = time.Now().UTC()
	j.jobs[job.ID] = &job
	return j.save()
}

// Get returns a job by id
func (j *Journal) Get(id string) (Job, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	job, exists := j.jobs[id]
	if !exists {
		return Job{}, fmt.Errorf("job '%s' not found", id)
	}
	return *job, nil
}

// Find returns the job of kind for a swap, if any
func (j *Journal) Find(kind JobKind, sourceChain, swapID uint64) (Job, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	id, exists := j.byKey[jobKey(kind, sourceChain, swapID)]
	if !exists {
		return Job{}, false
	}
	return *j.jobs[id], true
}

// Pending returns pending jobs of kind, oldest first
func (j *Journal) Pending(kind JobKind) []Job {
	return j.list(func(job *Job) bool {
		return job.Kind == kind && job.Status == JobPending
	})
}

// List returns every job, oldest first
func (j *Journal) List() []Job {
	return j.list(func(*Job) bool { return true })
}

func (j *Journal) list(keep func(*Job) bool) []Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]Job, 0)
	for _, job := range j.jobs {
		if keep(job) {
			out = append(out, *job)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			if out[a].SourceChain != out[b].SourceChain {
				return out[a].SourceChain < out[b].SourceChain
			}
			return out[a].SwapID < out[b].SwapID
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out
}

// save writes the journal to disk (must be called with lock held)
func (j *Journal) save() error {
	if j.filePath == "" {
		return nil
	}

	data, err := json.MarshalIndent(journalFile{Jobs: j.jobs}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal journal: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(j.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to temporary file first, then rename for atomic write
	tempFile := j.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write journal: %w", err)
	}
	if err := os.Rename(tempFile, j.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
