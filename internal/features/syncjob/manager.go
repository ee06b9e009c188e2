package syncjob

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go-syncbridge/internal/cache"
	"go-syncbridge/internal/config"
	"go-syncbridge/internal/connectors"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager owns the sync job lifecycle: it accepts job requests, fetches
// candidates from both platforms, batches them onto a bounded worker pool,
// resolves conflicts, retries transient failures and aggregates job status.
type Manager interface {
	CreateSyncJob(ctx context.Context, req CreateJobRequest) (string, error)
	GetSyncJob(id string) (*SyncJob, bool)
	GetSyncJobs(ctx context.Context, status *JobStatus, entityType string, limit, offset int) ([]SyncJob, error)
	CancelSyncJob(id string) bool
	GetSyncStatus(ctx context.Context, entityType, entityID string) *EntitySyncStatus
	MarkEntitySynced(ctx context.Context, entityType, entityID string, aData, bData connectors.Entity) (*EntitySyncStatus, error)
	CleanupOldSyncHistory(ctx context.Context, retention time.Duration) (int64, error)
	Shutdown(ctx context.Context) error
}

// ManualConflictHook is invoked whenever the manual strategy auto-resolves a
// conflict, so a review pipeline can pick it up.
type ManualConflictHook func(entityType, entityID string, a, b connectors.Entity)

// mergedEntity is one candidate produced by the two-side merge.
type mergedEntity struct {
	id              string
	a, b            connectors.Entity
	direction       Direction
	needsResolution bool
}

type batchTask struct {
	jobID string
	items []mergedEntity
}

type ManagerImpl struct {
	cfg        *config.Config
	adapters   *connectors.Pair
	transforms *TransformRegistry
	repo       Repository
	cache      cache.Cache
	logger     *zap.Logger
	onManual   ManualConflictHook

	// mu guards the job table. Counter updates happen under it; adapter
	// calls and backoff sleeps never do.
	mu   sync.Mutex
	jobs map[string]*SyncJob

	tasks chan batchTask
	quit  chan struct{}
	wg    sync.WaitGroup
}

func NewManager(cfg *config.Config, adapters *connectors.Pair, transforms *TransformRegistry, repo Repository, c cache.Cache, logger *zap.Logger) Manager {
	m := &ManagerImpl{
		cfg:        cfg,
		adapters:   adapters,
		transforms: transforms,
		repo:       repo,
		cache:      c,
		logger:     logger,
		jobs:       make(map[string]*SyncJob),
		tasks:      make(chan batchTask, 256),
		quit:       make(chan struct{}),
	}

	workers := cfg.WorkerCount
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}

	return m
}

// SetManualConflictHook installs the hook called on manual-strategy
// resolutions. Must be set before jobs are created.
func (m *ManagerImpl) SetManualConflictHook(hook ManualConflictHook) {
	m.onManual = hook
}

func (m *ManagerImpl) worker() {
	defer m.wg.Done()
	for {
		select {
		case t := <-m.tasks:
			m.runBatch(t.jobID, t.items)
		case <-m.quit:
			return
		}
	}
}

// Shutdown stops accepting work and waits for in-flight batches.
func (m *ManagerImpl) Shutdown(ctx context.Context) error {
	close(m.quit)

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateSyncJob registers a pending job and kicks off asynchronous execution.
// It always succeeds synchronously.
func (m *ManagerImpl) CreateSyncJob(ctx context.Context, req CreateJobRequest) (string, error) {
	if req.EntityType == "" {
		return "", fmt.Errorf("entity_type is required")
	}
	if req.Direction == "" {
		req.Direction = DirectionBidirectional
	}
	if req.ConflictStrategy == "" {
		req.ConflictStrategy = StrategyNewestWins
	}

	job := &SyncJob{
		ID:               uuid.NewString(),
		EntityType:       req.EntityType,
		Direction:        req.Direction,
		FilterCriteria:   req.FilterCriteria,
		SyncAll:          req.SyncAll,
		SinceTimestamp:   req.SinceTimestamp,
		ConflictStrategy: req.ConflictStrategy,
		Status:           StatusPending,
		Priority:         req.Priority,
		CreatedAt:        time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.persistJob(context.Background(), job.ID)
	m.logger.Info("sync job created",
		zap.String("job_id", job.ID),
		zap.String("entity_type", job.EntityType),
		zap.String("direction", string(job.Direction)))

	go m.runJob(job.ID)

	return job.ID, nil
}

// GetSyncJob returns a snapshot of the job, preferring the in-memory copy.
func (m *ManagerImpl) GetSyncJob(id string) (*SyncJob, bool) {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if ok {
		snapshot := job.Clone()
		m.mu.Unlock()
		return snapshot, true
	}
	m.mu.Unlock()

	stored, err := m.repo.GetJob(context.Background(), id)
	if err != nil || stored == nil {
		return nil, false
	}
	return stored, true
}

// GetSyncJobs merges in-memory jobs with durable history, de-duplicated by
// id and sorted by created_at descending.
func (m *ManagerImpl) GetSyncJobs(ctx context.Context, status *JobStatus, entityType string, limit, offset int) ([]SyncJob, error) {
	if limit <= 0 {
		limit = 50
	}

	seen := map[string]SyncJob{}

	m.mu.Lock()
	for id, job := range m.jobs {
		if status != nil && job.Status != *status {
			continue
		}
		if entityType != "" && job.EntityType != entityType {
			continue
		}
		seen[id] = *job.Clone()
	}
	m.mu.Unlock()

	stored, err := m.repo.ListJobs(ctx, status, entityType, int64(limit+offset), 0)
	if err != nil {
		m.logger.Warn("failed to list jobs from store", zap.Error(err))
	}
	for _, job := range stored {
		if _, ok := seen[job.ID]; !ok {
			seen[job.ID] = job
		}
	}

	merged := make([]SyncJob, 0, len(seen))
	for _, job := range seen {
		merged = append(merged, job)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})

	if offset >= len(merged) {
		return []SyncJob{}, nil
	}
	merged = merged[offset:]
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// CancelSyncJob flips a pending or running job to cancelled. Cancellation is
// cooperative: in-flight batches finish, further batches stop being enqueued.
func (m *ManagerImpl) CancelSyncJob(id string) bool {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok || (job.Status != StatusPending && job.Status != StatusInProgress) {
		m.mu.Unlock()
		return false
	}
	job.Status = StatusCancelled
	now := time.Now()
	job.CompletedAt = &now
	m.mu.Unlock()

	m.persistJob(context.Background(), id)
	m.logger.Info("sync job cancelled", zap.String("job_id", id))
	return true
}

// GetSyncStatus looks up the entity's sync status: cache first, then the
// store, falling back to a synthetic "unknown" record. Store errors are
// non-fatal; the synthetic record is returned.
func (m *ManagerImpl) GetSyncStatus(ctx context.Context, entityType, entityID string) *EntitySyncStatus {
	key := statusKey(entityType, entityID)

	if cached, ok := m.cache.Get(key); ok {
		if status, ok := cached.(EntitySyncStatus); ok {
			return &status
		}
		// Unexpected type under this key: evict it and fall through to
		// the store.
		m.cache.Remove(key)
	}

	stored, err := m.repo.GetEntityStatus(ctx, entityType, entityID)
	if err != nil {
		m.logger.Warn("failed to read entity sync status",
			zap.String("entity_type", entityType), zap.Error(err))
	}
	if stored != nil {
		m.cache.Set(key, *stored)
		return stored
	}

	return &EntitySyncStatus{
		EntityType: entityType,
		EntityID:   entityID,
		SyncStatus: "unknown",
	}
}

// MarkEntitySynced computes content hashes for the provided snapshots,
// upserts the status row and refreshes the cache. A nil snapshot leaves that
// side's fingerprint untouched.
func (m *ManagerImpl) MarkEntitySynced(ctx context.Context, entityType, entityID string, aData, bData connectors.Entity) (*EntitySyncStatus, error) {
	status, err := m.repo.GetEntityStatus(ctx, entityType, entityID)
	if err != nil {
		m.logger.Warn("failed to read entity sync status before update",
			zap.String("entity_type", entityType), zap.Error(err))
	}
	if status == nil {
		status = &EntitySyncStatus{EntityType: entityType, EntityID: entityID}
	}

	status.LastSync = time.Now()
	status.SyncStatus = "synced"

	if aData != nil {
		status.AHash = HashEntity(aData)
		if t, ok := aData.UpdatedAt(); ok {
			status.AUpdatedAt = &t
		}
	}
	if bData != nil {
		status.BHash = HashEntity(bData)
		if t, ok := bData.UpdatedAt(); ok {
			status.BUpdatedAt = &t
		}
	}

	if err := m.repo.SaveEntityStatus(ctx, status); err != nil {
		// The store is eventually consistent; the cached copy keeps the
		// idempotent-skip working for this process.
		m.logger.Warn("failed to persist entity sync status",
			zap.String("entity_type", entityType), zap.Error(err))
	}
	m.cache.Set(statusKey(entityType, entityID), *status)

	return status, nil
}

// CleanupOldSyncHistory removes terminal jobs older than the retention window
// from both memory and the store, returning the number of store rows removed.
func (m *ManagerImpl) CleanupOldSyncHistory(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)

	m.mu.Lock()
	for id, job := range m.jobs {
		if job.Status.Terminal() && job.CreatedAt.Before(cutoff) {
			delete(m.jobs, id)
		}
	}
	m.mu.Unlock()

	return m.repo.DeleteOldJobs(ctx, cutoff)
}

// runJob orchestrates one job: watermark resolution, two-side fetch, merge,
// and batch dispatch. It runs on its own goroutine so CreateSyncJob never
// blocks; only batches occupy pool workers.
func (m *ManagerImpl) runJob(jobID string) {
	ctx := context.Background()

	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok || job.Status != StatusPending {
		m.mu.Unlock()
		return
	}
	job.Status = StatusInProgress
	now := time.Now()
	job.StartedAt = &now

	entityType := job.EntityType
	direction := job.Direction
	filter := job.FilterCriteria
	syncAll := job.SyncAll
	since := job.SinceTimestamp
	m.mu.Unlock()

	m.persistJob(ctx, jobID)

	if !syncAll && since == nil {
		last, err := m.repo.GetLastSuccessfulSync(ctx, entityType)
		if err != nil {
			m.logger.Warn("failed to resolve incremental watermark, running full sync",
				zap.String("job_id", jobID), zap.Error(err))
		}
		since = last
	}
	if syncAll {
		since = nil
	}

	var aEntities, bEntities []connectors.Entity
	var err error

	if direction != DirectionBToA {
		aEntities, err = m.adapters.A.Fetch(ctx, entityType, filter, since)
		if err != nil {
			m.failJob(jobID, fmt.Sprintf("fetch from %s failed: %v", m.adapters.A.Name(), err))
			return
		}
	}
	if direction != DirectionAToB {
		bEntities, err = m.adapters.B.Fetch(ctx, entityType, filter, since)
		if err != nil {
			m.failJob(jobID, fmt.Sprintf("fetch from %s failed: %v", m.adapters.B.Name(), err))
			return
		}
	}

	items := mergeEntities(direction, aEntities, bEntities)

	m.mu.Lock()
	if job.Status.Terminal() {
		m.mu.Unlock()
		return
	}
	job.TotalEntities = len(items)
	if len(items) == 0 {
		m.finalizeLocked(job)
		m.mu.Unlock()
		m.persistJob(ctx, jobID)
		return
	}
	m.mu.Unlock()
	m.persistJob(ctx, jobID)

	batchSize := m.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	for start := 0; start < len(items); start += batchSize {
		// Cooperative cancellation between batch dispatches.
		m.mu.Lock()
		cancelled := job.Status == StatusCancelled
		m.mu.Unlock()
		if cancelled {
			return
		}

		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}

		select {
		case m.tasks <- batchTask{jobID: jobID, items: items[start:end]}:
		case <-m.quit:
			return
		}
	}
}

// mergeEntities combines the two fetches. For bidirectional jobs entities are
// merged by id: one-sided entities sync without a conflict check, two-sided
// ones are flagged for resolution. Unidirectional jobs pass straight through.
// Duplicate ids within one side collapse to the last snapshot fetched, so a
// repeated row never inflates the job's entity count.
func mergeEntities(direction Direction, aEntities, bEntities []connectors.Entity) []mergedEntity {
	switch direction {
	case DirectionAToB:
		return dedupeOneSide(aEntities, DirectionAToB)

	case DirectionBToA:
		return dedupeOneSide(bEntities, DirectionBToA)

	default:
		byID := make(map[string]*mergedEntity, len(aEntities))
		order := make([]string, 0, len(aEntities)+len(bEntities))

		for _, e := range aEntities {
			id := e.ID()
			if existing, ok := byID[id]; ok {
				existing.a = e
				continue
			}
			byID[id] = &mergedEntity{id: id, a: e, direction: DirectionAToB}
			order = append(order, id)
		}
		for _, e := range bEntities {
			id := e.ID()
			if existing, ok := byID[id]; ok {
				existing.b = e
				existing.needsResolution = existing.a != nil
				continue
			}
			byID[id] = &mergedEntity{id: id, b: e, direction: DirectionBToA}
			order = append(order, id)
		}

		items := make([]mergedEntity, 0, len(order))
		for _, id := range order {
			items = append(items, *byID[id])
		}
		return items
	}
}

func dedupeOneSide(entities []connectors.Entity, direction Direction) []mergedEntity {
	items := make([]mergedEntity, 0, len(entities))
	index := make(map[string]int, len(entities))

	for _, e := range entities {
		id := e.ID()
		item := mergedEntity{id: id, direction: direction}
		if direction == DirectionAToB {
			item.a = e
		} else {
			item.b = e
		}
		if at, ok := index[id]; ok {
			items[at] = item
			continue
		}
		index[id] = len(items)
		items = append(items, item)
	}
	return items
}

// runBatch processes one batch of entities and folds the results into the
// job's counters. The last batch to complete computes the final status.
func (m *ManagerImpl) runBatch(jobID string, items []mergedEntity) {
	ctx := context.Background()

	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok || job.Status == StatusCancelled {
		m.mu.Unlock()
		return
	}
	entityType := job.EntityType
	strategy := job.ConflictStrategy
	m.mu.Unlock()

	finalized := false
	for _, item := range items {
		resolved, err := m.syncEntity(ctx, entityType, strategy, item)

		m.mu.Lock()
		job.ProcessedEntities++
		if err != nil {
			job.FailedEntities++
			job.ErrorDetails = append(job.ErrorDetails, SyncError{EntityID: item.id, Message: err.Error()})
		} else {
			job.SuccessfulEntities++
		}
		if resolved {
			job.Conflicts++
		}
		if !job.Status.Terminal() && job.ProcessedEntities == job.TotalEntities {
			m.finalizeLocked(job)
			finalized = true
		}
		m.mu.Unlock()
	}

	m.persistJob(ctx, jobID)
	if finalized {
		m.mu.Lock()
		status := job.Status
		m.mu.Unlock()
		m.logger.Info("sync job finished",
			zap.String("job_id", jobID),
			zap.String("entity_type", entityType),
			zap.String("status", string(status)))
	}
}

// syncEntity pushes one entity to its target side, short-circuiting when the
// fingerprint says nothing changed since the last sync. Returns whether a
// conflict was resolved and the terminal error, if any.
func (m *ManagerImpl) syncEntity(ctx context.Context, entityType string, strategy ConflictStrategy, item mergedEntity) (bool, error) {
	source := item.a
	direction := item.direction
	resolved := false

	if item.needsResolution {
		resolution := ResolveConflict(strategy, item.a, item.b)
		if strategy == StrategyManual {
			m.logger.Warn("manual conflict auto-resolved to side A",
				zap.String("entity_type", entityType),
				zap.String("entity_id", item.id))
			if m.onManual != nil {
				m.onManual(entityType, item.id, item.a, item.b)
			}
		}
		source = resolution.Winner
		direction = resolution.Direction
		resolved = true
	} else if direction == DirectionBToA {
		source = item.b
	}

	var target connectors.Adapter
	var targetSide Side
	if direction == DirectionAToB {
		target = m.adapters.B
		targetSide = SideB
	} else {
		target = m.adapters.A
		targetSide = SideA
	}

	payload, err := m.transforms.Apply(entityType, targetSide, source)
	if err != nil {
		return resolved, fmt.Errorf("transform for side %s failed: %w", targetSide, err)
	}

	hash := HashEntity(payload)
	status := m.GetSyncStatus(ctx, entityType, item.id)
	if status.SyncStatus == "synced" && storedHash(status, targetSide) == hash {
		// Unchanged since the last push: no-op success.
		return resolved, nil
	}

	if _, err := m.updateWithRetry(ctx, target, entityType, payload); err != nil {
		return resolved, err
	}

	var aData, bData connectors.Entity
	if direction == DirectionAToB {
		aData, bData = source, payload
	} else {
		aData, bData = payload, source
	}
	if _, err := m.MarkEntitySynced(ctx, entityType, item.id, aData, bData); err != nil {
		m.logger.Warn("failed to mark entity synced",
			zap.String("entity_type", entityType),
			zap.String("entity_id", item.id),
			zap.Error(err))
	}

	return resolved, nil
}

func storedHash(status *EntitySyncStatus, side Side) string {
	if side == SideA {
		return status.AHash
	}
	return status.BHash
}

// updateWithRetry calls the adapter's update with exponential backoff and
// jitter. Permanent errors fail immediately; transient ones retry up to
// MaxRetries attempts. The sleep happens on the calling worker only.
func (m *ManagerImpl) updateWithRetry(ctx context.Context, adapter connectors.Adapter, entityType string, payload connectors.Entity) (connectors.Entity, error) {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = m.cfg.RetryDelay
	expo.Multiplier = 2

	operation := func() (connectors.Entity, error) {
		updated, err := adapter.Update(ctx, entityType, payload)
		if err != nil {
			if connectors.IsTransient(err) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return updated, nil
	}

	maxTries := m.cfg.MaxRetries
	if maxTries <= 0 {
		maxTries = 1
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(maxTries)))
}

// failJob aborts the whole job, e.g. when a required fetch fails.
func (m *ManagerImpl) failJob(jobID, message string) {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok || job.Status.Terminal() {
		m.mu.Unlock()
		return
	}
	job.Status = StatusFailed
	now := time.Now()
	job.CompletedAt = &now
	job.ErrorDetails = append(job.ErrorDetails, SyncError{Message: message})
	m.mu.Unlock()

	m.persistJob(context.Background(), jobID)
	m.logger.Error("sync job failed", zap.String("job_id", jobID), zap.String("reason", message))
}

// finalizeLocked computes the terminal status once every entity is processed.
// Callers must hold m.mu.
func (m *ManagerImpl) finalizeLocked(job *SyncJob) {
	now := time.Now()
	job.CompletedAt = &now

	switch {
	case job.FailedEntities == 0:
		job.Status = StatusCompleted
	case job.SuccessfulEntities == 0:
		job.Status = StatusFailed
	default:
		job.Status = StatusPartial
	}
}

// persistJob mirrors the in-memory job to the store. Failures are logged and
// non-fatal: the in-memory copy stays authoritative.
func (m *ManagerImpl) persistJob(ctx context.Context, jobID string) {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return
	}
	snapshot := job.Clone()
	m.mu.Unlock()

	if err := m.repo.SaveJob(ctx, snapshot); err != nil {
		m.logger.Warn("failed to persist sync job", zap.String("job_id", jobID), zap.Error(err))
	}
}
