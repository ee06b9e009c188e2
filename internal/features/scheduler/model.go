package scheduler

import (
	"fmt"
	"time"

	"go-syncbridge/internal/connectors"
	"go-syncbridge/internal/features/syncjob"

	"github.com/robfig/cron/v3"
)

// Frequency is the recurrence of a scheduled job.
type Frequency string

const (
	FrequencyOneTime Frequency = "one_time"
	FrequencyHourly  Frequency = "hourly"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	// FrequencyCustom runs on a standard 5-field cron expression.
	FrequencyCustom Frequency = "custom"
)

// Priority orders due jobs; lower is more urgent.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
	PriorityBackground
)

// ScheduledJob is a recurring definition that periodically spawns a concrete
// sync job. Only the scheduler's own loop mutates it after creation.
type ScheduledJob struct {
	JobID            string                   `json:"job_id"`
	Name             string                   `json:"name"`
	EntityType       string                   `json:"entity_type"`
	Direction        syncjob.Direction        `json:"direction"`
	Frequency        Frequency                `json:"frequency"`
	CronExpr         string                   `json:"cron_expr,omitempty"`
	Priority         Priority                 `json:"priority"`
	NextRun          *time.Time               `json:"next_run,omitempty"`
	LastRun          *time.Time               `json:"last_run,omitempty"`
	FilterCriteria   connectors.Filter        `json:"filter_criteria,omitempty"`
	SyncAll          bool                     `json:"sync_all"`
	ConflictStrategy syncjob.ConflictStrategy `json:"conflict_strategy"`
	Enabled          bool                     `json:"enabled"`
	ExecutionCount   int                      `json:"execution_count"`
	ErrorCount       int                      `json:"error_count"`
	LastError        string                   `json:"last_error,omitempty"`
	CreatedAt        time.Time                `json:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at"`
}

// Clone returns a copy safe to hand out.
func (j *ScheduledJob) Clone() *ScheduledJob {
	c := *j
	if j.FilterCriteria != nil {
		c.FilterCriteria = connectors.Filter{}
		for k, v := range j.FilterCriteria {
			c.FilterCriteria[k] = v
		}
	}
	return &c
}

// ExecutionResult is one entry of a scheduled job's bounded run history.
type ExecutionResult struct {
	RunID      string            `json:"run_id"`
	SyncJobID  string            `json:"sync_job_id,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Status     syncjob.JobStatus `json:"status"`
	Total      int               `json:"total"`
	Successful int               `json:"successful"`
	Failed     int               `json:"failed"`
	Conflicts  int               `json:"conflicts"`
	Error      string            `json:"error,omitempty"`
}

// maxNextRunIterations caps the catch-up loop for schedulers that were
// offline for many periods.
const maxNextRunIterations = 1000

// ComputeNextRun derives the job's next run strictly after now. It advances
// from last_run by whole periods until the candidate is in the future rather
// than recomputing from a stale last_run, so a scheduler that was offline for
// several periods cannot under-advance or loop forever.
func ComputeNextRun(job *ScheduledJob, now time.Time) (*time.Time, error) {
	switch job.Frequency {
	case FrequencyOneTime:
		return nil, nil

	case FrequencyCustom:
		schedule, err := cron.ParseStandard(job.CronExpr)
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", job.CronExpr, err)
		}
		next := schedule.Next(now)
		return &next, nil

	case FrequencyHourly, FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		base := now
		if job.LastRun != nil {
			base = *job.LastRun
		}

		candidate := advancePeriod(job.Frequency, base)
		for i := 0; i < maxNextRunIterations && !candidate.After(now); i++ {
			candidate = advancePeriod(job.Frequency, candidate)
		}
		if !candidate.After(now) {
			// Safety valve: jump straight past now.
			candidate = advancePeriod(job.Frequency, now)
		}
		return &candidate, nil

	default:
		return nil, fmt.Errorf("unknown frequency: %s", job.Frequency)
	}
}

// advancePeriod moves one whole period forward from base.
func advancePeriod(frequency Frequency, base time.Time) time.Time {
	switch frequency {
	case FrequencyHourly:
		// Top of the next hour.
		return base.Truncate(time.Hour).Add(time.Hour)

	case FrequencyDaily:
		// Midnight of the next day.
		midnight := time.Date(base.Year(), base.Month(), base.Day(), 0, 0, 0, 0, base.Location())
		return midnight.AddDate(0, 0, 1)

	case FrequencyWeekly:
		midnight := time.Date(base.Year(), base.Month(), base.Day(), 0, 0, 0, 0, base.Location())
		return midnight.AddDate(0, 0, 7)

	case FrequencyMonthly:
		// Same day-of-month next month, clamped to 28 so every month works.
		day := base.Day()
		if day > 28 {
			day = 28
		}
		next := time.Date(base.Year(), base.Month(), day, base.Hour(), base.Minute(), 0, 0, base.Location())
		return next.AddDate(0, 1, 0)

	default:
		return base
	}
}
