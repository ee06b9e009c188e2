package scheduler

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStateStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "scheduler_state.json")
	store := &FileStateStore{path: path}

	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	state := persistedState{
		SchemaVersion: stateSchemaVersion,
		SavedAt:       now,
		Jobs: []*ScheduledJob{
			{
				JobID:      "job-1",
				Name:       "nightly products",
				EntityType: "products",
				Frequency:  FrequencyDaily,
				NextRun:    timePtr(now.Add(14 * time.Hour)),
				Enabled:    true,
				CreatedAt:  now,
				UpdatedAt:  now,
			},
		},
		Results: map[string][]ExecutionResult{
			"job-1": {{RunID: "run-1", StartedAt: now, FinishedAt: now.Add(time.Minute)}},
		},
	}

	data, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := store.Save(data); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	var got persistedState
	if err := json.Unmarshal(loaded, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.SchemaVersion != stateSchemaVersion {
		t.Errorf("schema_version = %d, want %d", got.SchemaVersion, stateSchemaVersion)
	}
	if len(got.Jobs) != 1 || got.Jobs[0].JobID != "job-1" {
		t.Errorf("jobs = %v, want one entry job-1", got.Jobs)
	}
	if got.Jobs[0].NextRun == nil || !got.Jobs[0].NextRun.Equal(now.Add(14*time.Hour)) {
		t.Errorf("next_run did not survive the round trip: %v", got.Jobs[0].NextRun)
	}
	if len(got.Results["job-1"]) != 1 {
		t.Errorf("results = %v, want one entry", got.Results)
	}
}

func TestFileStateStoreLoadMissing(t *testing.T) {
	store := &FileStateStore{path: filepath.Join(t.TempDir(), "missing.json")}

	data, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if data != nil {
		t.Errorf("Load() = %v, want nil for a missing file", data)
	}
}

func TestFileStateStoreLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	store := &FileStateStore{path: path}

	if err := store.Save([]byte(`{"schema_version":1}`)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after Save()")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("state file missing after Save(): %v", err)
	}
}
