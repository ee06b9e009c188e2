package scheduler

import (
	"container/heap"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go-syncbridge/internal/config"
	"go-syncbridge/internal/features/syncjob"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// resultHistoryLimit bounds the per-job execution history.
const resultHistoryLimit = 10

// pollInterval is how often a dispatched execution checks its sync job.
const pollInterval = 5 * time.Second

// JobRunner is the manager surface the scheduler drives. The scheduler
// references sync jobs by id and never mutates them directly.
type JobRunner interface {
	CreateSyncJob(ctx context.Context, req syncjob.CreateJobRequest) (string, error)
	GetSyncJob(id string) (*syncjob.SyncJob, bool)
	CancelSyncJob(id string) bool
}

// ScheduleRequest carries the parameters of schedule_job.
type ScheduleRequest struct {
	Name             string                   `json:"name"`
	EntityType       string                   `json:"entity_type"`
	Direction        syncjob.Direction        `json:"direction"`
	Frequency        Frequency                `json:"frequency"`
	CronExpr         string                   `json:"cron_expr"`
	Priority         Priority                 `json:"priority"`
	FilterCriteria   map[string]interface{}   `json:"filter_criteria"`
	SyncAll          bool                     `json:"sync_all"`
	ConflictStrategy syncjob.ConflictStrategy `json:"conflict_strategy"`
	Enabled          *bool                    `json:"enabled"`
}

// SchedulerService owns the recurring job definitions and drives the manager
// on a timer.
type SchedulerService interface {
	ScheduleJob(req ScheduleRequest) (string, error)
	GetJob(id string) (*ScheduledJob, bool)
	GetJobs(frequency Frequency, entityType string, enabledOnly bool) []ScheduledJob
	UpdateJob(id string, updates map[string]interface{}) error
	DeleteJob(id string) error
	EnableJob(id string) error
	DisableJob(id string) error
	RunJobNow(id string) error
	GetJobResults(id string) ([]ExecutionResult, bool)
	Start() error
	Stop() error
	Pause()
	Resume()
}

type SchedulerImpl struct {
	cfg    *config.Config
	runner JobRunner
	store  StateStore
	logger *zap.Logger

	// jobsMu guards the job table, result histories and the running set.
	// The heap has its own lock so a rebuild never deadlocks against a
	// concurrent schedule call.
	jobsMu  sync.Mutex
	jobs    map[string]*ScheduledJob
	results map[string][]ExecutionResult
	running map[string]struct{}

	heapMu sync.Mutex
	h      *scheduleHeap

	paused  atomic.Bool
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	execWG  sync.WaitGroup
}

func NewSchedulerService(cfg *config.Config, runner JobRunner, store StateStore, logger *zap.Logger) SchedulerService {
	h := &scheduleHeap{}
	heap.Init(h)
	return &SchedulerImpl{
		cfg:     cfg,
		runner:  runner,
		store:   store,
		logger:  logger,
		jobs:    make(map[string]*ScheduledJob),
		results: make(map[string][]ExecutionResult),
		running: make(map[string]struct{}),
		h:       h,
	}
}

// ScheduleJob registers a recurring definition and computes its first run.
func (s *SchedulerImpl) ScheduleJob(req ScheduleRequest) (string, error) {
	if req.EntityType == "" {
		return "", fmt.Errorf("entity_type is required")
	}
	if req.Frequency == "" {
		return "", fmt.Errorf("frequency is required")
	}
	if req.Direction == "" {
		req.Direction = syncjob.DirectionBidirectional
	}
	if req.ConflictStrategy == "" {
		req.ConflictStrategy = syncjob.StrategyNewestWins
	}

	now := time.Now()
	job := &ScheduledJob{
		JobID:            uuid.NewString(),
		Name:             req.Name,
		EntityType:       req.EntityType,
		Direction:        req.Direction,
		Frequency:        req.Frequency,
		CronExpr:         req.CronExpr,
		Priority:         req.Priority,
		FilterCriteria:   req.FilterCriteria,
		SyncAll:          req.SyncAll,
		ConflictStrategy: req.ConflictStrategy,
		Enabled:          true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if req.Enabled != nil {
		job.Enabled = *req.Enabled
	}

	if job.Frequency == FrequencyOneTime {
		// One-time jobs become due immediately.
		job.NextRun = &now
	} else {
		next, err := ComputeNextRun(job, now)
		if err != nil {
			return "", err
		}
		job.NextRun = next
	}

	s.jobsMu.Lock()
	s.jobs[job.JobID] = job
	s.jobsMu.Unlock()

	if job.Enabled && job.NextRun != nil {
		s.pushEntry(job.JobID, *job.NextRun, job.Priority)
	}

	s.saveState()
	s.logger.Info("scheduled job created",
		zap.String("job_id", job.JobID),
		zap.String("name", job.Name),
		zap.String("frequency", string(job.Frequency)))

	return job.JobID, nil
}

func (s *SchedulerImpl) GetJob(id string) (*ScheduledJob, bool) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	return job.Clone(), true
}

func (s *SchedulerImpl) GetJobs(frequency Frequency, entityType string, enabledOnly bool) []ScheduledJob {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	jobs := []ScheduledJob{}
	for _, job := range s.jobs {
		if frequency != "" && job.Frequency != frequency {
			continue
		}
		if entityType != "" && job.EntityType != entityType {
			continue
		}
		if enabledOnly && !job.Enabled {
			continue
		}
		jobs = append(jobs, *job.Clone())
	}
	return jobs
}

// UpdateJob applies a partial update. Changing the frequency or cron
// expression recomputes next_run.
func (s *SchedulerImpl) UpdateJob(id string, updates map[string]interface{}) error {
	s.jobsMu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.jobsMu.Unlock()
		return fmt.Errorf("scheduled job not found: %s", id)
	}

	recompute := false
	for key, value := range updates {
		switch key {
		case "name":
			if v, ok := value.(string); ok {
				job.Name = v
			}
		case "entity_type":
			if v, ok := value.(string); ok {
				job.EntityType = v
			}
		case "direction":
			if v, ok := value.(string); ok {
				job.Direction = syncjob.Direction(v)
			}
		case "frequency":
			if v, ok := value.(string); ok {
				job.Frequency = Frequency(v)
				recompute = true
			}
		case "cron_expr":
			if v, ok := value.(string); ok {
				job.CronExpr = v
				recompute = true
			}
		case "priority":
			if v, ok := value.(float64); ok {
				job.Priority = Priority(int(v))
			}
		case "filter_criteria":
			if v, ok := value.(map[string]interface{}); ok {
				job.FilterCriteria = v
			}
		case "sync_all":
			if v, ok := value.(bool); ok {
				job.SyncAll = v
			}
		case "conflict_strategy":
			if v, ok := value.(string); ok {
				job.ConflictStrategy = syncjob.ConflictStrategy(v)
			}
		case "enabled":
			if v, ok := value.(bool); ok {
				job.Enabled = v
			}
		}
	}
	job.UpdatedAt = time.Now()

	if recompute {
		next, err := ComputeNextRun(job, time.Now())
		if err != nil {
			s.jobsMu.Unlock()
			return err
		}
		job.NextRun = next
	}

	enabled := job.Enabled
	nextRun := job.NextRun
	priority := job.Priority
	s.jobsMu.Unlock()

	if enabled && nextRun != nil {
		s.pushEntry(id, *nextRun, priority)
	}

	s.saveState()
	return nil
}

func (s *SchedulerImpl) DeleteJob(id string) error {
	s.jobsMu.Lock()
	if _, ok := s.jobs[id]; !ok {
		s.jobsMu.Unlock()
		return fmt.Errorf("scheduled job not found: %s", id)
	}
	delete(s.jobs, id)
	delete(s.results, id)
	s.jobsMu.Unlock()

	// Stale heap entries for the deleted job are dropped when popped.
	s.saveState()
	return nil
}

func (s *SchedulerImpl) EnableJob(id string) error {
	return s.UpdateJob(id, map[string]interface{}{"enabled": true})
}

func (s *SchedulerImpl) DisableJob(id string) error {
	return s.UpdateJob(id, map[string]interface{}{"enabled": false})
}

// RunJobNow forces the job to become due on the next loop tick.
func (s *SchedulerImpl) RunJobNow(id string) error {
	now := time.Now()

	s.jobsMu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.jobsMu.Unlock()
		return fmt.Errorf("scheduled job not found: %s", id)
	}
	job.NextRun = &now
	priority := job.Priority
	s.jobsMu.Unlock()

	s.pushEntry(id, now, priority)
	s.saveState()
	return nil
}

func (s *SchedulerImpl) GetJobResults(id string) ([]ExecutionResult, bool) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return nil, false
	}
	return append([]ExecutionResult(nil), s.results[id]...), true
}

// Start restores persisted state, rebuilds the heap and launches the loop.
func (s *SchedulerImpl) Start() error {
	s.jobsMu.Lock()
	if s.started {
		s.jobsMu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	s.started = true
	s.jobsMu.Unlock()

	s.loadState()
	s.rebuildHeap()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx)

	s.logger.Info("scheduler started",
		zap.Duration("interval", s.cfg.SchedulerInterval),
		zap.Int("max_concurrent_jobs", s.cfg.MaxConcurrentJobs))
	return nil
}

// Stop signals the loop to exit, cancels any sync jobs still being polled and
// joins with a bounded timeout.
func (s *SchedulerImpl) Stop() error {
	s.jobsMu.Lock()
	if !s.started {
		s.jobsMu.Unlock()
		return nil
	}
	s.started = false
	s.jobsMu.Unlock()

	s.cancel()

	finished := make(chan struct{})
	go func() {
		s.execWG.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(10 * time.Second):
		s.logger.Warn("timed out waiting for scheduled executions to stop")
	}
	<-s.done

	s.saveState()
	s.logger.Info("scheduler stopped")
	return nil
}

// Pause keeps the loop alive but stops dispatching due jobs.
func (s *SchedulerImpl) Pause() {
	s.paused.Store(true)
	s.logger.Info("scheduler paused")
}

func (s *SchedulerImpl) Resume() {
	s.paused.Store(false)
	s.logger.Info("scheduler resumed")
}

func (s *SchedulerImpl) loop(ctx context.Context) {
	defer close(s.done)

	interval := s.cfg.SchedulerInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.paused.Load() {
				continue
			}
			s.processDueJobs(ctx, time.Now())
			s.saveState()
		}
	}
}

// processDueJobs dispatches every due job in (next_run, priority) order,
// bounded by max_concurrent_jobs. The first not-yet-due entry stops the scan;
// heap ordering guarantees no due job sits behind it.
func (s *SchedulerImpl) processDueJobs(ctx context.Context, now time.Time) {
	maxJobs := s.cfg.MaxConcurrentJobs
	if maxJobs <= 0 {
		maxJobs = 1
	}

	for {
		s.heapMu.Lock()
		if s.h.Len() == 0 {
			s.heapMu.Unlock()
			return
		}
		top := (*s.h)[0]
		if top.nextRun.After(now) {
			s.heapMu.Unlock()
			return
		}
		heap.Pop(s.h)
		s.heapMu.Unlock()

		s.jobsMu.Lock()
		job, ok := s.jobs[top.jobID]
		if !ok || !job.Enabled || job.NextRun == nil || !job.NextRun.Equal(top.nextRun) {
			// Stale entry: the job was deleted, disabled or rescheduled.
			s.jobsMu.Unlock()
			continue
		}
		if _, alreadyRunning := s.running[top.jobID]; alreadyRunning {
			s.jobsMu.Unlock()
			continue
		}
		if len(s.running) >= maxJobs {
			s.jobsMu.Unlock()
			// Put the entry back; capacity may free up by the next tick.
			s.heapMu.Lock()
			heap.Push(s.h, top)
			s.heapMu.Unlock()
			return
		}
		s.running[top.jobID] = struct{}{}
		s.jobsMu.Unlock()

		s.execWG.Add(1)
		go s.execute(ctx, top.jobID)
	}
}

// execute runs one scheduled occurrence: create the sync job, poll it to a
// terminal state (cancelling it if the scheduler is stopping), then fold the
// outcome back into the definition and reschedule.
func (s *SchedulerImpl) execute(ctx context.Context, jobID string) {
	defer s.execWG.Done()

	startedAt := time.Now()

	s.jobsMu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		delete(s.running, jobID)
		s.jobsMu.Unlock()
		return
	}
	req := syncjob.CreateJobRequest{
		EntityType:       job.EntityType,
		Direction:        job.Direction,
		FilterCriteria:   job.FilterCriteria,
		SyncAll:          job.SyncAll,
		ConflictStrategy: job.ConflictStrategy,
		Priority:         int(job.Priority),
	}
	if !job.SyncAll {
		// last_run is the incremental watermark.
		req.SinceTimestamp = job.LastRun
	}
	name := job.Name
	s.jobsMu.Unlock()

	s.logger.Info("dispatching scheduled job",
		zap.String("job_id", jobID),
		zap.String("name", name))

	result := ExecutionResult{
		RunID:     uuid.NewString(),
		StartedAt: startedAt,
	}

	syncID, err := s.runner.CreateSyncJob(ctx, req)
	if err != nil {
		result.Status = syncjob.StatusFailed
		result.Error = err.Error()
	} else {
		result.SyncJobID = syncID
		s.pollToCompletion(ctx, syncID, &result)
	}
	result.FinishedAt = time.Now()

	s.finishExecution(jobID, startedAt, result)
}

func (s *SchedulerImpl) pollToCompletion(ctx context.Context, syncID string, result *ExecutionResult) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		snapshot, ok := s.runner.GetSyncJob(syncID)
		if !ok {
			result.Status = syncjob.StatusFailed
			result.Error = "sync job disappeared"
			return
		}

		if snapshot.Status.Terminal() {
			result.Status = snapshot.Status
			result.Total = snapshot.TotalEntities
			result.Successful = snapshot.SuccessfulEntities
			result.Failed = snapshot.FailedEntities
			result.Conflicts = snapshot.Conflicts
			if len(snapshot.ErrorDetails) > 0 {
				result.Error = snapshot.ErrorDetails[0].Message
			}
			return
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			// Scheduler is stopping: cancel the sync job we were polling.
			s.runner.CancelSyncJob(syncID)
			result.Status = syncjob.StatusCancelled
			result.Error = "scheduler stopping"
			return
		}
	}
}

// finishExecution records the bounded run history, updates the counters and
// reschedules the job if a future run exists.
func (s *SchedulerImpl) finishExecution(jobID string, startedAt time.Time, result ExecutionResult) {
	s.jobsMu.Lock()
	delete(s.running, jobID)

	job, ok := s.jobs[jobID]
	if !ok {
		s.jobsMu.Unlock()
		return
	}

	job.ExecutionCount++
	if result.Error != "" || result.Status == syncjob.StatusFailed {
		job.ErrorCount++
		job.LastError = result.Error
		if job.LastError == "" {
			job.LastError = "sync job failed"
		}
	}
	job.LastRun = &startedAt

	history := append(s.results[jobID], result)
	if len(history) > resultHistoryLimit {
		history = history[len(history)-resultHistoryLimit:]
	}
	s.results[jobID] = history

	next, err := ComputeNextRun(job, time.Now())
	if err != nil {
		s.logger.Error("failed to compute next run",
			zap.String("job_id", jobID), zap.Error(err))
		next = nil
	}
	job.NextRun = next
	job.UpdatedAt = time.Now()

	enabled := job.Enabled
	priority := job.Priority
	s.jobsMu.Unlock()

	if next != nil && enabled {
		s.pushEntry(jobID, *next, priority)
	}

	s.saveState()
	s.logger.Info("scheduled job run finished",
		zap.String("job_id", jobID),
		zap.String("status", string(result.Status)))
}

func (s *SchedulerImpl) pushEntry(jobID string, nextRun time.Time, priority Priority) {
	s.heapMu.Lock()
	heap.Push(s.h, scheduleEntry{jobID: jobID, nextRun: nextRun, priority: priority})
	s.heapMu.Unlock()
}

// rebuildHeap reconstructs the heap from the job table, e.g. after loading
// persisted state.
func (s *SchedulerImpl) rebuildHeap() {
	s.jobsMu.Lock()
	entries := scheduleHeap{}
	for _, job := range s.jobs {
		if job.Enabled && job.NextRun != nil {
			entries = append(entries, scheduleEntry{
				jobID:    job.JobID,
				nextRun:  *job.NextRun,
				priority: job.Priority,
			})
		}
	}
	s.jobsMu.Unlock()

	s.heapMu.Lock()
	*s.h = entries
	heap.Init(s.h)
	s.heapMu.Unlock()
}

// saveState serializes the job table and histories. Failures are logged and
// non-fatal; the scheduler keeps operating in memory.
func (s *SchedulerImpl) saveState() {
	s.jobsMu.Lock()
	state := persistedState{
		SchemaVersion: stateSchemaVersion,
		SavedAt:       time.Now(),
		Jobs:          make([]*ScheduledJob, 0, len(s.jobs)),
		Results:       make(map[string][]ExecutionResult, len(s.results)),
	}
	for _, job := range s.jobs {
		state.Jobs = append(state.Jobs, job.Clone())
	}
	for id, history := range s.results {
		state.Results[id] = append([]ExecutionResult(nil), history...)
	}
	s.jobsMu.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		s.logger.Warn("failed to serialize scheduler state", zap.Error(err))
		return
	}
	if err := s.store.Save(data); err != nil {
		s.logger.Warn("failed to persist scheduler state", zap.Error(err))
	}
}

// loadState restores the persisted snapshot, if any.
func (s *SchedulerImpl) loadState() {
	data, err := s.store.Load()
	if err != nil {
		s.logger.Warn("failed to load scheduler state", zap.Error(err))
		return
	}
	if data == nil {
		return
	}

	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn("failed to decode scheduler state", zap.Error(err))
		return
	}
	if state.SchemaVersion != stateSchemaVersion {
		s.logger.Warn("unsupported scheduler state version",
			zap.Int("version", state.SchemaVersion))
		return
	}

	s.jobsMu.Lock()
	for _, job := range state.Jobs {
		s.jobs[job.JobID] = job
	}
	for id, history := range state.Results {
		s.results[id] = history
	}
	count := len(s.jobs)
	s.jobsMu.Unlock()

	s.logger.Info("scheduler state restored", zap.Int("jobs", count))
}
