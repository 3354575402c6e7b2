package domain

import "time"

// Built-in scheduled tasks.
const (
	TaskIDTargetSync   = "target-sync"
	TaskIDGapReconcile = "gap-reconcile"
)

// BuiltinTasks lists every task the scheduler knows how to run, in the
// order they are initialised.
var BuiltinTasks = []struct {
	ID   string
	Name string
}{
	{TaskIDTargetSync, "Target Sync"},
	{TaskIDGapReconcile, "Gap Reconcile"},
}

// ScheduledTask is the persisted state of a recurring task.
type ScheduledTask struct {
	ID       string
	Name     string
	Interval time.Duration
	Enabled  bool

	LastRun     time.Time
	NextRun     time.Time
	LastSuccess time.Time

	// LastError is empty after a successful run.
	LastError string
}

// Due reports whether an enabled task should fire at now. A task that has
// never been scheduled is due immediately.
func (t *ScheduledTask) Due(now time.Time) bool {
	return t.Enabled && !t.NextRun.After(now)
}

// Complete folds a finished run into the task and schedules the next one
// an Interval after the run ended.
func (t *ScheduledTask) Complete(r TaskResult) {
	t.LastRun = r.StartedAt
	t.NextRun = r.EndedAt.Add(t.Interval)
	t.LastError = r.Error
	if r.Success {
		t.LastSuccess = r.EndedAt
	}
}

// TaskResult records one execution of a task.
type TaskResult struct {
	TaskID    string
	StartedAt time.Time
	EndedAt   time.Time
	Success   bool
	Error     string

	// ItemsProcessed counts units synced or gaps enqueued.
	ItemsProcessed int
}

// Duration is how long the run took.
func (r TaskResult) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// TaskConfig enables a task and sets its period.
type TaskConfig struct {
	Enabled  bool
	Interval time.Duration
}

// SchedulerConfig is the [scheduler] section of the settings.
type SchedulerConfig struct {
	// Enabled is the master switch.
	Enabled bool

	// Targets restricts the tasks to these target names. Empty means every
	// registered target.
	Targets []string

	TaskConfigs map[string]TaskConfig
}

// GetTaskConfig returns the zero TaskConfig for unknown tasks.
func (c SchedulerConfig) GetTaskConfig(taskID string) TaskConfig {
	return c.TaskConfigs[taskID]
}

// DefaultSchedulerConfig syncs hourly and reconciles gaps daily, with the
// scheduler itself switched off.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		TaskConfigs: map[string]TaskConfig{
			TaskIDTargetSync:   {Enabled: true, Interval: time.Hour},
			TaskIDGapReconcile: {Enabled: true, Interval: 24 * time.Hour},
		},
	}
}
