package scheduler

import "time"

// scheduleEntry is one heap element. Entries are immutable once pushed;
// a job whose next_run changed leaves a stale entry behind, which the loop
// detects and drops when popped.
type scheduleEntry struct {
	jobID    string
	nextRun  time.Time
	priority Priority
}

// scheduleHeap is a min-heap ordered by (next_run, priority).
type scheduleHeap []scheduleEntry

func (h scheduleHeap) Len() int { return len(h) }

func (h scheduleHeap) Less(i, j int) bool {
	if !h[i].nextRun.Equal(h[j].nextRun) {
		return h[i].nextRun.Before(h[j].nextRun)
	}
	return h[i].priority < h[j].priority
}

func (h scheduleHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scheduleHeap) Push(x any) {
	*h = append(*h, x.(scheduleEntry))
}

func (h *scheduleHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}
