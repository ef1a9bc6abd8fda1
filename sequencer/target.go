package sequencer

import (
	"context"
	"sync"
	"time"

	"github.com/lithium-go/astroseq/core"
)

// TargetStatus is a Target's lifecycle status.
type TargetStatus string

const (
	TargetPending    TargetStatus = "pending"
	TargetInProgress TargetStatus = "in_progress"
	TargetCompleted  TargetStatus = "completed"
	TargetFailed     TargetStatus = "failed"
	TargetSkipped    TargetStatus = "skipped"
	TargetCancelled  TargetStatus = "cancelled"
)

func (s TargetStatus) IsTerminal() bool {
	return s == TargetCompleted || s == TargetFailed || s == TargetSkipped || s == TargetCancelled
}

// Target is a named, ordered collection of Tasks executed as one unit.
// Tasks are exclusively owned by their Target; params set on the
// Target are merged into every contained Task at execute time
// (task-specific values override target-level ones).
type Target struct {
	mu sync.Mutex

	Name     string
	Priority int

	enabled    bool
	cooldown   time.Duration
	maxRetries int
	tasks      []*Task
	params     map[string]interface{}
	attempts   int
	status     TargetStatus
	lastErr    error

	metrics *MetricsCollector
	logger  core.Logger
}

// NewTarget creates an enabled, Pending Target with no tasks.
func NewTarget(name string, priority int, logger core.Logger) *Target {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Target{
		Name:       name,
		Priority:   priority,
		enabled:    true,
		maxRetries: 1,
		status:     TargetPending,
		params:     make(map[string]interface{}),
		logger:     componentLogger(logger, "sequencer/target"),
	}
}

// AddTask appends task to the Target's task list, in execution order.
// If a MetricsCollector was already attached via SetMetrics, it is
// propagated to the task immediately.
func (tg *Target) AddTask(t *Task) {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	if tg.metrics != nil {
		t.SetMetrics(tg.metrics)
	}
	tg.tasks = append(tg.tasks, t)
}

// SetMetrics attaches the collector this Target's tasks report their
// per-task counters to, propagating it to every task already added.
func (tg *Target) SetMetrics(m *MetricsCollector) {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	tg.metrics = m
	for _, t := range tg.tasks {
		t.SetMetrics(m)
	}
}

// SetParams replaces the Target-level parameter map merged into every
// contained Task.
func (tg *Target) SetParams(params map[string]interface{}) {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	tg.params = params
}

// SetCooldown sets the delay applied between whole-target restart
// attempts (never between a Task's own internal retry attempts, per
// the design's resolution of the cooldown-vs-backoff ambiguity).
func (tg *Target) SetCooldown(d time.Duration) {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	tg.cooldown = d
}

// SetMaxRetries sets the total number of whole-target attempts Execute
// makes, the first run included, before the Target is reported Failed.
func (tg *Target) SetMaxRetries(n int) {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	tg.maxRetries = n
}

// SetEnabled toggles whether this Target runs at all. A disabled
// Target transitions directly to Skipped when Execute is called.
func (tg *Target) SetEnabled(enabled bool) {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	tg.enabled = enabled
}

// SetPriority sets the Target's scheduling priority (higher = earlier).
func (tg *Target) SetPriority(p int) {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	tg.Priority = p
}

// Status returns the Target's current lifecycle status.
func (tg *Target) Status() TargetStatus {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	return tg.status
}

// LastError returns the error recorded by the most recent failed
// attempt, if any.
func (tg *Target) LastError() error {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	return tg.lastErr
}

// ForceSkipped overrides a Failed target's reported status to Skipped
// while retaining the original error, used by Skip recovery: the
// target's terminal status is Skipped with the underlying error
// preserved, and for dependency purposes Skipped counts as satisfied.
func (tg *Target) ForceSkipped(err error) {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	tg.status = TargetSkipped
	tg.lastErr = err
}

// ForceCancelled transitions a not-yet-started or in-flight target
// directly to Cancelled, used by Stop recovery to mark targets that
// will never run because a predecessor failed.
func (tg *Target) ForceCancelled() {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	if tg.status.IsTerminal() {
		return
	}
	tg.status = TargetCancelled
}

// ResetForSchedulerRetry returns a Failed target to Pending with a
// fresh attempt counter, used by Retry recovery to re-run a target's
// whole Execute cycle again after it has already exhausted its
// internal whole-target restart attempts.
func (tg *Target) ResetForSchedulerRetry() {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	tg.status = TargetPending
	tg.attempts = 0
	tg.lastErr = nil
	for _, t := range tg.tasks {
		t.Reset()
	}
}

// Progress is the mean of its tasks' progress: Completed/Skipped count
// as 1, Pending as 0, Running as the task's own progress, and
// Failed/Cancelled as the task's last recorded value.
func (tg *Target) Progress() float64 {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	return tg.progressLocked()
}

func (tg *Target) progressLocked() float64 {
	if len(tg.tasks) == 0 {
		return 1
	}
	var sum float64
	for _, t := range tg.tasks {
		switch t.Status() {
		case TaskCompleted, TaskSkipped:
			sum += 1
		case TaskPending:
			sum += 0
		default:
			sum += t.Progress()
		}
	}
	return sum / float64(len(tg.tasks))
}

// Execute runs every contained Task in insertion order. On a task
// failure it restarts the whole target from the first task (the
// source's observed behavior, preserved per design note) after
// sleeping cooldown, up to maxRetries whole-target attempts. Cancelling
// ctx propagates to the currently running task and to the cooldown
// sleep between attempts.
func (tg *Target) Execute(ctx context.Context) error {
	tg.mu.Lock()
	if !tg.enabled {
		tg.status = TargetSkipped
		for _, t := range tg.tasks {
			t.MarkSkipped()
		}
		tg.mu.Unlock()
		return nil
	}
	tg.status = TargetInProgress
	maxRetries := tg.maxRetries
	cooldown := tg.cooldown
	params := tg.params
	tg.mu.Unlock()

	for {
		tg.mu.Lock()
		tg.attempts++
		attempt := tg.attempts
		tg.mu.Unlock()

		err := tg.runOnce(ctx, params)
		if err == nil {
			tg.mu.Lock()
			tg.status = TargetCompleted
			tg.mu.Unlock()
			return nil
		}

		if core.Kind(err) == core.KindCancelled {
			tg.mu.Lock()
			tg.status = TargetCancelled
			tg.lastErr = err
			tg.mu.Unlock()
			return err
		}

		tg.mu.Lock()
		tg.lastErr = err
		if attempt >= maxRetries {
			tg.status = TargetFailed
			tg.mu.Unlock()
			tg.logger.ErrorWithContext(ctx, "target failed", map[string]interface{}{"target": tg.Name, "attempts": attempt, "error": err.Error()})
			return err
		}
		tg.mu.Unlock()

		tg.logger.WarnWithContext(ctx, "target attempt failed, restarting", map[string]interface{}{"target": tg.Name, "attempt": attempt, "error": err.Error()})

		for _, t := range tg.tasks {
			t.Reset()
		}

		if sleepErr := sleepOrCancel(ctx, cooldown); sleepErr != nil {
			tg.mu.Lock()
			tg.status = TargetCancelled
			tg.lastErr = sleepErr
			tg.mu.Unlock()
			return sleepErr
		}
	}
}

// runOnce drives every task once, stopping at the first failure.
func (tg *Target) runOnce(ctx context.Context, targetParams map[string]interface{}) error {
	tg.mu.Lock()
	tasks := make([]*Task, len(tg.tasks))
	copy(tasks, tg.tasks)
	tg.mu.Unlock()

	for _, t := range tasks {
		merged := mergeParams(targetParams, t.InstanceParams)
		if err := t.Execute(ctx, merged); err != nil {
			return err
		}
	}
	return nil
}

// mergeParams produces the parameter map passed to a task's execute:
// target-level params provide the base, overridden by the task's own
// instance params (the values baked into it at construction time by its
// factory, e.g. camera.take_exposure's duration_seconds), per the
// task-specific-overrides-target-level merge rule.
func mergeParams(targetParams, instanceParams map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(targetParams)+len(instanceParams))
	for k, v := range targetParams {
		merged[k] = v
	}
	for k, v := range instanceParams {
		merged[k] = v
	}
	return merged
}
