package syncjob

import (
	"testing"
	"time"

	"go-syncbridge/internal/connectors"
)

func TestHashEntity(t *testing.T) {
	a := connectors.Entity{"id": "1", "name": "Widget", "qty": 3}
	same := connectors.Entity{"qty": 3, "name": "Widget", "id": "1"}
	different := connectors.Entity{"id": "1", "name": "Widget", "qty": 4}

	if HashEntity(a) != HashEntity(a) {
		t.Error("hash of the same snapshot is not stable")
	}
	if HashEntity(a) != HashEntity(same) {
		t.Error("hash depends on map insertion order")
	}
	if HashEntity(a) == HashEntity(different) {
		t.Error("different snapshots produced the same hash")
	}
	if HashEntity(a) == "" {
		t.Error("hash is empty for a valid snapshot")
	}
}

func TestJobStatusTerminal(t *testing.T) {
	tests := []struct {
		status JobStatus
		want   bool
	}{
		{StatusPending, false},
		{StatusInProgress, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusPartial, true},
		{StatusCancelled, true},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("Terminal(%s) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestSyncJobClone(t *testing.T) {
	now := time.Now()
	job := &SyncJob{
		ID:             "job-1",
		EntityType:     "products",
		FilterCriteria: connectors.Filter{"category": "tools"},
		ErrorDetails:   []SyncError{{EntityID: "7", Message: "boom"}},
		CreatedAt:      now,
	}

	clone := job.Clone()
	clone.FilterCriteria["category"] = "other"
	clone.ErrorDetails[0].Message = "changed"

	if job.FilterCriteria["category"] != "tools" {
		t.Error("clone shares filter criteria with the original")
	}
	if job.ErrorDetails[0].Message != "boom" {
		t.Error("clone shares error details with the original")
	}
}
