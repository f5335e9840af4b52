package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/khanhnv2901/safe-audit/internal/application/analysis"
)

// Job status values.
const (
	JobPending = "pending"
	JobRunning = "running"
	JobDone    = "done"
	JobError   = "error"
)

// MaxJobTargets bounds the size of one batch job.
const MaxJobTargets = 500

// Job is a batch analysis tracked in memory.
type Job struct {
	ID         string             `json:"id"`
	Status     string             `json:"status"`
	Total      int                `json:"total"`
	Completed  int                `json:"completed"`
	Failed     int                `json:"failed"`
	CreatedAt  time.Time          `json:"created_at"`
	StartedAt  *time.Time         `json:"started_at,omitempty"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
	Outcomes   []analysis.Outcome `json:"outcomes,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// JobRequest is the body of POST /jobs.
type JobRequest struct {
	Targets []analysis.Target `json:"targets"`
	Probe   bool              `json:"probe"`
}

// Validate checks the request shape; per-target validation happens during
// analysis so one bad address does not reject the batch.
func (r JobRequest) Validate() error {
	if len(r.Targets) == 0 {
		return errors.New("at least one target is required")
	}
	if len(r.Targets) > MaxJobTargets {
		return fmt.Errorf("too many targets: %d (max %d)", len(r.Targets), MaxJobTargets)
	}
	return nil
}

// JobManager runs batch jobs in the background and fans updates out to
// stream subscribers.
type JobManager struct {
	analyzer analysis.Analyzer
	runner   *analysis.Runner
	logger   *zap.Logger

	mu          sync.RWMutex
	jobs        map[string]*Job
	subscribers map[chan Job]struct{}
	maxJobs     int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJobManager creates a manager. Close stops running jobs.
func NewJobManager(analyzer analysis.Analyzer, runner *analysis.Runner, logger *zap.Logger) *JobManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if runner == nil {
		runner = &analysis.Runner{Concurrency: 4}
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &JobManager{
		analyzer:    analyzer,
		runner:      runner,
		logger:      logger,
		jobs:        make(map[string]*Job),
		subscribers: make(map[chan Job]struct{}),
		maxJobs:     1000,
		ctx:         ctx,
		cancel:      cancel,
	}
	m.wg.Add(1)
	go m.cleanupLoop()
	return m
}

// StartJob registers a job and runs it in the background.
func (m *JobManager) StartJob(_ context.Context, req JobRequest) (*Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if m.ctx.Err() != nil {
		return nil, errors.New("job manager is shut down")
	}

	m.mu.Lock()
	job := &Job{
		ID:        generateID("job"),
		Status:    JobPending,
		Total:     len(req.Targets),
		CreatedAt: time.Now().UTC(),
	}
	m.jobs[job.ID] = job
	snapshot := job.snapshot()
	m.broadcast(snapshot)
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(job.ID, req)
	return &snapshot, nil
}

func (m *JobManager) run(id string, req JobRequest) {
	defer m.wg.Done()

	m.UpdateJob(id, func(j *Job) {
		now := time.Now().UTC()
		j.Status = JobRunning
		j.StartedAt = &now
	})

	opts := analysis.Options{ProbeMultiChain: req.Probe}
	outcomes := m.runner.Run(m.ctx, m.analyzer, req.Targets, opts, func(_ int, o analysis.Outcome) {
		m.UpdateJob(id, func(j *Job) {
			j.Completed++
			if o.Failed() {
				j.Failed++
			}
		})
	})

	m.UpdateJob(id, func(j *Job) {
		now := time.Now().UTC()
		j.FinishedAt = &now
		j.Outcomes = outcomes
		j.Status = JobDone
		if m.ctx.Err() != nil {
			j.Status = JobError
			j.Error = "cancelled by shutdown"
		}
	})
	m.logger.Info("job finished", zap.String("job_id", id), zap.Int("targets", len(req.Targets)))
}

// UpdateJob applies update under the lock and broadcasts the result.
func (m *JobManager) UpdateJob(id string, update func(*Job)) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil
	}
	update(job)
	snapshot := job.snapshot()
	m.broadcast(snapshot)
	return &snapshot
}

// GetJob returns a copy of the job, or an error if it is unknown.
func (m *JobManager) GetJob(_ context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s not found", id)
	}
	snapshot := job.snapshot()
	return &snapshot, nil
}

// ListJobs returns up to limit jobs, newest first, without their outcomes.
func (m *JobManager) ListJobs(_ context.Context, limit int) ([]Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobs := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		summary := *job
		summary.Outcomes = nil
		jobs = append(jobs, summary)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].ID > jobs[j].ID
	})
	if limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// Subscribe returns a channel of job updates and its cancel function.
func (m *JobManager) Subscribe() (chan Job, func()) {
	ch := make(chan Job, 16)
	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()
	return ch, func() {
		m.mu.Lock()
		if _, ok := m.subscribers[ch]; ok {
			delete(m.subscribers, ch)
			close(ch)
		}
		m.mu.Unlock()
	}
}

// Close cancels running jobs and waits for them to stop.
func (m *JobManager) Close() {
	m.cancel()
	m.wg.Wait()
}

// SetMaxJobs configures the maximum number of jobs to retain in memory
func (m *JobManager) SetMaxJobs(max int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if max > 0 {
		m.maxJobs = max
	}
}

// broadcast must be called with m.mu held. Slow subscribers miss updates.
func (m *JobManager) broadcast(job Job) {
	for ch := range m.subscribers {
		select {
		case ch <- job:
		default:
			m.logger.Debug("dropped job update", zap.String("job_id", job.ID))
		}
	}
}

func (j *Job) snapshot() Job {
	out := *j
	if j.Outcomes != nil {
		out.Outcomes = append([]analysis.Outcome(nil), j.Outcomes...)
	}
	return out
}

func generateID(prefix string) string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(b))
}

func (m *JobManager) cleanupLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.prune()
		case <-m.ctx.Done():
			return
		}
	}
}

// prune drops the oldest finished jobs beyond maxJobs.
func (m *JobManager) prune() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.jobs) <= m.maxJobs {
		return
	}

	type finished struct {
		id string
		at time.Time
	}
	var done []finished
	for id, job := range m.jobs {
		if job.Status == JobDone || job.Status == JobError {
			at := job.CreatedAt
			if job.FinishedAt != nil {
				at = *job.FinishedAt
			}
			done = append(done, finished{id, at})
		}
	}
	sort.Slice(done, func(i, j int) bool { return done[i].at.Before(done[j].at) })

	toRemove := min(len(m.jobs)-m.maxJobs, len(done))
	for i := 0; i < toRemove; i++ {
		delete(m.jobs, done[i].id)
	}
}
