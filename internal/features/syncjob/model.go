package syncjob

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"go-syncbridge/internal/connectors"
)

// Direction tells which way entities flow during a job.
type Direction string

const (
	DirectionAToB          Direction = "a_to_b"
	DirectionBToA          Direction = "b_to_a"
	DirectionBidirectional Direction = "bidirectional"
)

// ConflictStrategy picks the winner when an entity changed on both sides.
type ConflictStrategy string

const (
	StrategySourceAWins ConflictStrategy = "source_a_wins"
	StrategySourceBWins ConflictStrategy = "source_b_wins"
	StrategyNewestWins  ConflictStrategy = "newest_wins"
	StrategyManual      ConflictStrategy = "manual"
)

// JobStatus is the sync job state machine:
// pending -> in_progress -> {completed | failed | partial | cancelled}.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusInProgress JobStatus = "in_progress"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusPartial    JobStatus = "partial"
	StatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether a job can no longer transition.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusPartial, StatusCancelled:
		return true
	}
	return false
}

// SyncError records one failed entity within a job.
type SyncError struct {
	EntityID string `json:"entity_id" bson:"entity_id"`
	Message  string `json:"message" bson:"message"`
}

// SyncJob is one unit of reconciliation work. The in-memory copy owned by the
// manager is authoritative while the job is active; Mongo mirrors it for
// history queries.
type SyncJob struct {
	ID               string            `json:"id" bson:"_id"`
	EntityType       string            `json:"entity_type" bson:"entity_type"`
	Direction        Direction         `json:"direction" bson:"direction"`
	FilterCriteria   connectors.Filter `json:"filter_criteria,omitempty" bson:"filter_criteria,omitempty"`
	SyncAll          bool              `json:"sync_all" bson:"sync_all"`
	SinceTimestamp   *time.Time        `json:"since_timestamp,omitempty" bson:"since_timestamp,omitempty"`
	ConflictStrategy ConflictStrategy  `json:"conflict_strategy" bson:"conflict_strategy"`
	Status           JobStatus         `json:"status" bson:"status"`

	TotalEntities      int `json:"total_entities" bson:"total_entities"`
	ProcessedEntities  int `json:"processed_entities" bson:"processed_entities"`
	SuccessfulEntities int `json:"successful_entities" bson:"successful_entities"`
	FailedEntities     int `json:"failed_entities" bson:"failed_entities"`
	Conflicts          int `json:"conflicts" bson:"conflicts"`

	ErrorDetails []SyncError `json:"error_details,omitempty" bson:"error_details,omitempty"`
	Priority     int         `json:"priority" bson:"priority"`

	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" bson:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
}

// Clone returns a deep copy safe to hand out while workers mutate the original.
func (j *SyncJob) Clone() *SyncJob {
	c := *j
	if j.FilterCriteria != nil {
		c.FilterCriteria = connectors.Filter{}
		for k, v := range j.FilterCriteria {
			c.FilterCriteria[k] = v
		}
	}
	if j.ErrorDetails != nil {
		c.ErrorDetails = append([]SyncError(nil), j.ErrorDetails...)
	}
	return &c
}

// EntitySyncStatus is the last-known-synced fingerprint of one entity,
// keyed by entity type + id.
type EntitySyncStatus struct {
	EntityType string     `json:"entity_type" bson:"entity_type"`
	EntityID   string     `json:"entity_id" bson:"entity_id"`
	LastSync   time.Time  `json:"last_sync" bson:"last_sync"`
	AUpdatedAt *time.Time `json:"a_updated_at,omitempty" bson:"a_updated_at,omitempty"`
	BUpdatedAt *time.Time `json:"b_updated_at,omitempty" bson:"b_updated_at,omitempty"`
	AHash      string     `json:"a_hash,omitempty" bson:"a_hash,omitempty"`
	BHash      string     `json:"b_hash,omitempty" bson:"b_hash,omitempty"`
	SyncStatus string     `json:"sync_status" bson:"sync_status"` // "synced", "unknown"
}

func statusKey(entityType, entityID string) string {
	return entityType + ":" + entityID
}

// HashEntity computes the content fingerprint of an entity snapshot.
// encoding/json serializes map keys in sorted order, so the digest is stable
// across identical snapshots.
func HashEntity(e connectors.Entity) string {
	data, err := json.Marshal(e)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CreateJobRequest carries the parameters of create_sync_job.
type CreateJobRequest struct {
	EntityType       string            `json:"entity_type"`
	Direction        Direction         `json:"direction"`
	FilterCriteria   connectors.Filter `json:"filter_criteria"`
	SyncAll          bool              `json:"sync_all"`
	SinceTimestamp   *time.Time        `json:"since_timestamp"`
	ConflictStrategy ConflictStrategy  `json:"conflict_strategy"`
	Priority         int               `json:"priority"`
}
