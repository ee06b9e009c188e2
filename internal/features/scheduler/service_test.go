package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go-syncbridge/internal/config"
	"go-syncbridge/internal/features/syncjob"

	"go.uber.org/zap"
)

// fakeRunner hands back immediately-terminal sync jobs. A non-nil gate makes
// CreateSyncJob block until the gate closes, holding the concurrency slot.
type fakeRunner struct {
	mu      sync.Mutex
	created []syncjob.CreateJobRequest
	jobs    map[string]*syncjob.SyncJob
	seq     int
	err     error
	status  syncjob.JobStatus
	gate    chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		jobs:   make(map[string]*syncjob.SyncJob),
		status: syncjob.StatusCompleted,
	}
}

func (f *fakeRunner) CreateSyncJob(ctx context.Context, req syncjob.CreateJobRequest) (string, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.created = append(f.created, req)
	f.seq++
	id := fmt.Sprintf("sync-%d", f.seq)
	f.jobs[id] = &syncjob.SyncJob{
		ID:                 id,
		EntityType:         req.EntityType,
		Status:             f.status,
		TotalEntities:      5,
		SuccessfulEntities: 5,
	}
	return id, nil
}

func (f *fakeRunner) GetSyncJob(id string) (*syncjob.SyncJob, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, false
	}
	return job.Clone(), true
}

func (f *fakeRunner) CancelSyncJob(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return false
	}
	job.Status = syncjob.StatusCancelled
	return true
}

func (f *fakeRunner) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

// memStore keeps the persisted snapshot in memory.
type memStore struct {
	mu   sync.Mutex
	data []byte
}

func (s *memStore) Save(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), data...)
	return nil
}

func (s *memStore) Load() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data, nil
}

func schedulerConfig() *config.Config {
	return &config.Config{
		SchedulerInterval: time.Minute,
		MaxConcurrentJobs: 2,
	}
}

func newTestScheduler(cfg *config.Config, store StateStore) (*SchedulerImpl, *fakeRunner) {
	runner := newFakeRunner()
	if store == nil {
		store = &memStore{}
	}
	svc := NewSchedulerService(cfg, runner, store, zap.NewNop()).(*SchedulerImpl)
	return svc, runner
}

func waitForResults(t *testing.T, s *SchedulerImpl, jobID string, want int) []ExecutionResult {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		results, ok := s.GetJobResults(jobID)
		if ok && len(results) >= want {
			return results
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never recorded %d results", jobID, want)
	return nil
}

func TestScheduleJobSetsNextRun(t *testing.T) {
	s, _ := newTestScheduler(schedulerConfig(), nil)

	id, err := s.ScheduleJob(ScheduleRequest{
		Name:       "hourly products",
		EntityType: "products",
		Frequency:  FrequencyHourly,
	})
	if err != nil {
		t.Fatalf("ScheduleJob() error = %v", err)
	}

	job, ok := s.GetJob(id)
	if !ok {
		t.Fatal("scheduled job not found")
	}
	if !job.Enabled {
		t.Error("job should be enabled by default")
	}
	if job.NextRun == nil || !job.NextRun.After(time.Now()) {
		t.Errorf("next_run = %v, want a future time", job.NextRun)
	}
	if job.Direction != syncjob.DirectionBidirectional {
		t.Errorf("direction = %s, want default bidirectional", job.Direction)
	}
	if job.ConflictStrategy != syncjob.StrategyNewestWins {
		t.Errorf("conflict_strategy = %s, want default newest_wins", job.ConflictStrategy)
	}
}

func TestScheduleJobValidation(t *testing.T) {
	s, _ := newTestScheduler(schedulerConfig(), nil)

	if _, err := s.ScheduleJob(ScheduleRequest{Frequency: FrequencyDaily}); err == nil {
		t.Error("missing entity_type accepted")
	}
	if _, err := s.ScheduleJob(ScheduleRequest{EntityType: "products"}); err == nil {
		t.Error("missing frequency accepted")
	}
	if _, err := s.ScheduleJob(ScheduleRequest{
		EntityType: "products",
		Frequency:  FrequencyCustom,
		CronExpr:   "bogus",
	}); err == nil {
		t.Error("invalid cron expression accepted")
	}
}

func TestRunJobNowDispatchesAndReschedules(t *testing.T) {
	s, runner := newTestScheduler(schedulerConfig(), nil)

	id, err := s.ScheduleJob(ScheduleRequest{
		Name:       "on demand",
		EntityType: "products",
		Frequency:  FrequencyHourly,
	})
	if err != nil {
		t.Fatalf("ScheduleJob() error = %v", err)
	}

	if err := s.RunJobNow(id); err != nil {
		t.Fatalf("RunJobNow() error = %v", err)
	}
	s.processDueJobs(context.Background(), time.Now().Add(time.Second))

	results := waitForResults(t, s, id, 1)
	if results[0].Status != syncjob.StatusCompleted {
		t.Errorf("result status = %s, want completed", results[0].Status)
	}
	if results[0].Successful != 5 {
		t.Errorf("result successful = %d, want 5", results[0].Successful)
	}

	if runner.createdCount() != 1 {
		t.Errorf("runner created %d sync jobs, want 1", runner.createdCount())
	}

	job, _ := s.GetJob(id)
	if job.ExecutionCount != 1 {
		t.Errorf("execution_count = %d, want 1", job.ExecutionCount)
	}
	if job.LastRun == nil {
		t.Error("last_run not recorded")
	}
	if job.NextRun == nil || !job.NextRun.After(time.Now()) {
		t.Errorf("next_run = %v, want a future time after rescheduling", job.NextRun)
	}
}

func TestExecuteFailureRecorded(t *testing.T) {
	s, runner := newTestScheduler(schedulerConfig(), nil)
	runner.err = errors.New("adapter down")

	id, err := s.ScheduleJob(ScheduleRequest{
		EntityType: "products",
		Frequency:  FrequencyHourly,
	})
	if err != nil {
		t.Fatalf("ScheduleJob() error = %v", err)
	}

	if err := s.RunJobNow(id); err != nil {
		t.Fatalf("RunJobNow() error = %v", err)
	}
	s.processDueJobs(context.Background(), time.Now().Add(time.Second))

	results := waitForResults(t, s, id, 1)
	if results[0].Status != syncjob.StatusFailed {
		t.Errorf("result status = %s, want failed", results[0].Status)
	}

	job, _ := s.GetJob(id)
	if job.ErrorCount != 1 {
		t.Errorf("error_count = %d, want 1", job.ErrorCount)
	}
	if job.LastError == "" {
		t.Error("last_error not recorded")
	}
}

func TestDisabledJobNotDispatched(t *testing.T) {
	s, runner := newTestScheduler(schedulerConfig(), nil)

	id, err := s.ScheduleJob(ScheduleRequest{
		EntityType: "products",
		Frequency:  FrequencyOneTime,
	})
	if err != nil {
		t.Fatalf("ScheduleJob() error = %v", err)
	}
	if err := s.DisableJob(id); err != nil {
		t.Fatalf("DisableJob() error = %v", err)
	}

	s.processDueJobs(context.Background(), time.Now().Add(time.Second))
	time.Sleep(20 * time.Millisecond)

	if runner.createdCount() != 0 {
		t.Errorf("disabled job was dispatched %d times", runner.createdCount())
	}
}

func TestConcurrencyLimitPrefersPriority(t *testing.T) {
	cfg := schedulerConfig()
	cfg.MaxConcurrentJobs = 1
	s, runner := newTestScheduler(cfg, nil)
	runner.gate = make(chan struct{})

	at := time.Now().Add(-time.Second)
	low := &ScheduledJob{
		JobID: "low", EntityType: "orders", Direction: syncjob.DirectionAToB,
		Frequency: FrequencyOneTime, Priority: PriorityLow,
		NextRun: &at, Enabled: true,
	}
	critical := &ScheduledJob{
		JobID: "critical", EntityType: "products", Direction: syncjob.DirectionAToB,
		Frequency: FrequencyOneTime, Priority: PriorityCritical,
		NextRun: &at, Enabled: true,
	}

	s.jobsMu.Lock()
	s.jobs[low.JobID] = low
	s.jobs[critical.JobID] = critical
	s.jobsMu.Unlock()
	s.rebuildHeap()

	// The critical job occupies the only slot while its execution is gated,
	// so the low priority entry is pushed back instead of dispatched.
	s.processDueJobs(context.Background(), time.Now())
	close(runner.gate)

	results := waitForResults(t, s, "critical", 1)
	if results[0].Status != syncjob.StatusCompleted {
		t.Errorf("result status = %s, want completed", results[0].Status)
	}
	if got := runner.createdCount(); got != 1 {
		t.Errorf("runner created %d sync jobs, want only the critical one", got)
	}
	if runner.created[0].EntityType != "products" {
		t.Errorf("dispatched entity type = %s, want products (higher priority)",
			runner.created[0].EntityType)
	}
}

func TestExecutionHistoryBounded(t *testing.T) {
	s, _ := newTestScheduler(schedulerConfig(), nil)

	id, err := s.ScheduleJob(ScheduleRequest{
		EntityType: "products",
		Frequency:  FrequencyHourly,
	})
	if err != nil {
		t.Fatalf("ScheduleJob() error = %v", err)
	}

	for i := 0; i < 15; i++ {
		s.finishExecution(id, time.Now(), ExecutionResult{
			RunID:  fmt.Sprintf("run-%d", i),
			Status: syncjob.StatusCompleted,
		})
	}

	results, _ := s.GetJobResults(id)
	if len(results) != resultHistoryLimit {
		t.Fatalf("history length = %d, want %d", len(results), resultHistoryLimit)
	}
	if results[len(results)-1].RunID != "run-14" {
		t.Errorf("newest run = %s, want run-14", results[len(results)-1].RunID)
	}
	if results[0].RunID != "run-5" {
		t.Errorf("oldest kept run = %s, want run-5", results[0].RunID)
	}

	job, _ := s.GetJob(id)
	if job.ExecutionCount != 15 {
		t.Errorf("execution_count = %d, want 15", job.ExecutionCount)
	}
}

func TestUpdateJob(t *testing.T) {
	s, _ := newTestScheduler(schedulerConfig(), nil)

	id, err := s.ScheduleJob(ScheduleRequest{
		Name:       "before",
		EntityType: "products",
		Frequency:  FrequencyDaily,
	})
	if err != nil {
		t.Fatalf("ScheduleJob() error = %v", err)
	}

	err = s.UpdateJob(id, map[string]interface{}{
		"name":      "after",
		"frequency": "hourly",
		"priority":  float64(PriorityHigh),
	})
	if err != nil {
		t.Fatalf("UpdateJob() error = %v", err)
	}

	job, _ := s.GetJob(id)
	if job.Name != "after" {
		t.Errorf("name = %s, want after", job.Name)
	}
	if job.Frequency != FrequencyHourly {
		t.Errorf("frequency = %s, want hourly", job.Frequency)
	}
	if job.Priority != PriorityHigh {
		t.Errorf("priority = %d, want %d", job.Priority, PriorityHigh)
	}
	if job.NextRun == nil || !job.NextRun.After(time.Now()) {
		t.Error("frequency change did not recompute next_run")
	}

	if err := s.UpdateJob("missing", map[string]interface{}{"name": "x"}); err == nil {
		t.Error("UpdateJob() on unknown id did not fail")
	}
}

func TestDeleteJob(t *testing.T) {
	s, runner := newTestScheduler(schedulerConfig(), nil)

	id, err := s.ScheduleJob(ScheduleRequest{
		EntityType: "products",
		Frequency:  FrequencyOneTime,
	})
	if err != nil {
		t.Fatalf("ScheduleJob() error = %v", err)
	}

	if err := s.DeleteJob(id); err != nil {
		t.Fatalf("DeleteJob() error = %v", err)
	}
	if _, ok := s.GetJob(id); ok {
		t.Error("deleted job still visible")
	}

	// The stale heap entry must not dispatch anything.
	s.processDueJobs(context.Background(), time.Now().Add(time.Second))
	time.Sleep(20 * time.Millisecond)
	if runner.createdCount() != 0 {
		t.Errorf("deleted job was dispatched %d times", runner.createdCount())
	}

	if err := s.DeleteJob(id); err == nil {
		t.Error("deleting a missing job did not fail")
	}
}

func TestStateRestoredAcrossRestart(t *testing.T) {
	store := &memStore{}
	first, _ := newTestScheduler(schedulerConfig(), store)

	id, err := first.ScheduleJob(ScheduleRequest{
		Name:       "survivor",
		EntityType: "products",
		Frequency:  FrequencyDaily,
	})
	if err != nil {
		t.Fatalf("ScheduleJob() error = %v", err)
	}
	first.finishExecution(id, time.Now(), ExecutionResult{
		RunID:  "run-1",
		Status: syncjob.StatusCompleted,
	})

	second, _ := newTestScheduler(schedulerConfig(), store)
	second.loadState()
	second.rebuildHeap()

	job, ok := second.GetJob(id)
	if !ok {
		t.Fatal("job did not survive the restart")
	}
	if job.Name != "survivor" {
		t.Errorf("name = %s, want survivor", job.Name)
	}
	if job.ExecutionCount != 1 {
		t.Errorf("execution_count = %d, want 1", job.ExecutionCount)
	}

	results, ok := second.GetJobResults(id)
	if !ok || len(results) != 1 || results[0].RunID != "run-1" {
		t.Errorf("results = %v, want the persisted run-1", results)
	}
}

func TestStopCancelsInFlightExecution(t *testing.T) {
	cfg := schedulerConfig()
	cfg.SchedulerInterval = 10 * time.Millisecond
	s, runner := newTestScheduler(cfg, nil)
	// The sync job never reaches a terminal state on its own, so the
	// execution is still polling when the scheduler shuts down.
	runner.status = syncjob.StatusInProgress

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	id, err := s.ScheduleJob(ScheduleRequest{
		Name:       "long haul",
		EntityType: "products",
		Frequency:  FrequencyOneTime,
	})
	if err != nil {
		t.Fatalf("ScheduleJob() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for runner.createdCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("loop never dispatched the due job")
		}
		time.Sleep(2 * time.Millisecond)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	syncJob, ok := runner.GetSyncJob("sync-1")
	if !ok {
		t.Fatal("sync job disappeared from the runner")
	}
	if syncJob.Status != syncjob.StatusCancelled {
		t.Errorf("sync job status = %s, want %s after shutdown", syncJob.Status, syncjob.StatusCancelled)
	}

	results, ok := s.GetJobResults(id)
	if !ok || len(results) != 1 {
		t.Fatalf("results = %v, want exactly one recorded run", results)
	}
	if results[0].Status != syncjob.StatusCancelled {
		t.Errorf("result status = %s, want %s", results[0].Status, syncjob.StatusCancelled)
	}
	if results[0].Error == "" {
		t.Error("cancelled run did not record a reason")
	}
}

func TestPauseBlocksDispatch(t *testing.T) {
	cfg := schedulerConfig()
	cfg.SchedulerInterval = 10 * time.Millisecond
	s, runner := newTestScheduler(cfg, nil)

	s.Pause()
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	id, err := s.ScheduleJob(ScheduleRequest{
		EntityType: "products",
		Frequency:  FrequencyOneTime,
	})
	if err != nil {
		t.Fatalf("ScheduleJob() error = %v", err)
	}

	// Several ticks pass; the paused loop must not dispatch the due job.
	time.Sleep(100 * time.Millisecond)
	if got := runner.createdCount(); got != 0 {
		t.Fatalf("paused loop dispatched %d sync jobs", got)
	}

	s.Resume()
	results := waitForResults(t, s, id, 1)
	if results[0].Status != syncjob.StatusCompleted {
		t.Errorf("result status = %s, want completed", results[0].Status)
	}
	if runner.createdCount() != 1 {
		t.Errorf("runner created %d sync jobs, want 1 after resume", runner.createdCount())
	}
}

func TestZeroConcurrencyLimitStillDispatches(t *testing.T) {
	cfg := schedulerConfig()
	cfg.MaxConcurrentJobs = 0
	s, runner := newTestScheduler(cfg, nil)

	id, err := s.ScheduleJob(ScheduleRequest{
		EntityType: "products",
		Frequency:  FrequencyOneTime,
	})
	if err != nil {
		t.Fatalf("ScheduleJob() error = %v", err)
	}

	s.processDueJobs(context.Background(), time.Now().Add(time.Second))

	results := waitForResults(t, s, id, 1)
	if results[0].Status != syncjob.StatusCompleted {
		t.Errorf("result status = %s, want completed", results[0].Status)
	}
	if runner.createdCount() != 1 {
		t.Errorf("runner created %d sync jobs, want 1", runner.createdCount())
	}
}
