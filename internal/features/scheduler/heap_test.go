package scheduler

import (
	"container/heap"
	"testing"
	"time"
)

func TestScheduleHeapOrdering(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	h := &scheduleHeap{}
	heap.Init(h)

	heap.Push(h, scheduleEntry{jobID: "late", nextRun: base.Add(2 * time.Hour), priority: PriorityCritical})
	heap.Push(h, scheduleEntry{jobID: "early", nextRun: base, priority: PriorityBackground})
	heap.Push(h, scheduleEntry{jobID: "mid-low", nextRun: base.Add(time.Hour), priority: PriorityLow})
	heap.Push(h, scheduleEntry{jobID: "mid-high", nextRun: base.Add(time.Hour), priority: PriorityHigh})

	want := []string{"early", "mid-high", "mid-low", "late"}
	for i, expected := range want {
		entry := heap.Pop(h).(scheduleEntry)
		if entry.jobID != expected {
			t.Errorf("pop %d = %s, want %s", i, entry.jobID, expected)
		}
	}
	if h.Len() != 0 {
		t.Errorf("heap not empty after draining: %d", h.Len())
	}
}

func TestScheduleHeapTieBreaksOnPriority(t *testing.T) {
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	h := &scheduleHeap{}
	heap.Init(h)
	heap.Push(h, scheduleEntry{jobID: "background", nextRun: at, priority: PriorityBackground})
	heap.Push(h, scheduleEntry{jobID: "critical", nextRun: at, priority: PriorityCritical})
	heap.Push(h, scheduleEntry{jobID: "normal", nextRun: at, priority: PriorityNormal})

	first := heap.Pop(h).(scheduleEntry)
	if first.jobID != "critical" {
		t.Errorf("first pop = %s, want critical", first.jobID)
	}
}
