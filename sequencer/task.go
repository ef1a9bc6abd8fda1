package sequencer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lithium-go/astroseq/core"
)

// TaskStatus is a Task's lifecycle state.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
	TaskSkipped   TaskStatus = "skipped"
)

// IsTerminal reports whether status admits no further transitions
// without an explicit reset().
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled || s == TaskSkipped
}

// HistoryEntry is one append-only record of a Task's lifecycle.
type HistoryEntry struct {
	Timestamp time.Time
	Event     string
	Message   string
}

// ProgressFunc lets an action report incremental progress in [0,1].
type ProgressFunc func(progress float64)

// ActionFunc is the opaque callable a Task drives. ctx carries
// cancellation; params are the validated, defaulted parameter map.
type ActionFunc func(ctx context.Context, params map[string]interface{}, report ProgressFunc) error

// Task is the atomic unit of execution: it validates parameters, runs
// an action under a retry policy and optional timeout, and records its
// own outcome. There is no Task-level Cancel method: cancellation is
// purely a property of the ctx passed to Execute, which a Target or
// Sequencer cancels to stop every task and backoff sleep cooperatively
// observing it.
type Task struct {
	mu sync.Mutex

	Name        string
	TypeTag     string
	ParamSchema []ParamSpec
	Action      ActionFunc
	RetryPolicy RetryPolicy
	Timeout     time.Duration

	// InstanceParams carries the values a task's factory parsed out of
	// its own config (e.g. camera.take_exposure's duration_seconds):
	// they override Target-level params of the same name at merge time,
	// so a task never depends on its caller redundantly re-supplying
	// what it was already built with.
	InstanceParams map[string]interface{}

	status    TaskStatus
	errorKind core.ErrorKind
	progress  float64
	attempts  int
	history   []HistoryEntry

	metrics *MetricsCollector
	logger  core.Logger
}

// NewTask constructs a Pending Task. A nil logger is replaced with a
// no-op logger.
func NewTask(name, typeTag string, schema []ParamSpec, action ActionFunc, retry RetryPolicy, timeout time.Duration, logger core.Logger) *Task {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &Task{
		Name:        name,
		TypeTag:     typeTag,
		ParamSchema: schema,
		Action:      action,
		RetryPolicy: retry,
		Timeout:     timeout,
		status:      TaskPending,
		logger:      logger,
	}
}

// Status returns the Task's current lifecycle status.
func (t *Task) Status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Progress returns the Task's current progress, in [0,1].
func (t *Task) Progress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// ErrorKind returns the classification of the Task's last failure, or
// core.KindNone if it has never failed.
func (t *Task) ErrorKind() core.ErrorKind {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.errorKind
}

// History returns a copy of the Task's append-only event log.
func (t *Task) History() []HistoryEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]HistoryEntry, len(t.history))
	copy(out, t.history)
	return out
}

func (t *Task) record(event, msg string) {
	t.history = append(t.history, HistoryEntry{Timestamp: time.Now(), Event: event, Message: msg})
}

// SetMetrics attaches the collector this Task reports its per-task
// counters to. A Task with no collector attached (the zero value)
// records nothing; NewTask leaves it unset so standalone Tasks built
// outside a Sequencer stay metrics-free.
func (t *Task) SetMetrics(m *MetricsCollector) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics = m
}

// Execute validates params against the Task's schema, then runs Action
// under the Task's retry policy and timeout, per the state machine in
// the Task lifecycle design. It returns the terminal error, if any.
//
//	Pending --execute--> Running --ok--> Completed
//	                        |--err, attempts<max--> Pending (after backoff)
//	                        |--err, attempts=max--> Failed
//	                        |--timeout--> Failed (errorKind=Timeout)
//	                        `--cancel--> Cancelled
func (t *Task) Execute(ctx context.Context, rawParams map[string]interface{}) error {
	if t.metrics != nil {
		t.metrics.TaskStarted()
	}
	start := time.Now()

	params, verrs := ValidateParams(t.ParamSchema, rawParams)
	if len(verrs) > 0 {
		t.mu.Lock()
		t.status = TaskFailed
		t.errorKind = core.KindInvalidParameter
		t.record("failed", fmt.Sprintf("parameter validation failed: %v", verrs))
		t.mu.Unlock()
		if t.metrics != nil {
			t.metrics.TaskFailed(time.Since(start))
		}
		return &core.SequencerError{Op: "Task.Execute", Kind: core.KindInvalidParameter, ID: t.Name, Err: fmt.Errorf("%w: %v", core.ErrInvalidParameter, verrs)}
	}

	for {
		t.mu.Lock()
		t.status = TaskRunning
		t.progress = 0
		t.attempts++
		attempt := t.attempts
		t.record("running", fmt.Sprintf("attempt %d", attempt))
		t.mu.Unlock()

		err := t.runOnce(ctx, params)

		t.mu.Lock()
		if err == nil {
			t.status = TaskCompleted
			t.progress = 1
			t.errorKind = core.KindNone
			t.record("completed", "")
			t.mu.Unlock()
			if t.metrics != nil {
				t.metrics.TaskCompleted(time.Since(start))
			}
			return nil
		}

		kind := classify(err)
		t.errorKind = kind

		if kind == core.KindCancelled {
			t.status = TaskCancelled
			t.record("cancelled", err.Error())
			t.mu.Unlock()
			if t.metrics != nil {
				t.metrics.TaskCancelled()
			}
			return err
		}
		if kind == core.KindInvalidParameter {
			t.status = TaskFailed
			t.record("failed", err.Error())
			t.mu.Unlock()
			if t.metrics != nil {
				t.metrics.TaskFailed(time.Since(start))
			}
			return err
		}
		if kind == core.KindTimeout {
			t.status = TaskFailed
			t.record("failed", "timeout: "+err.Error())
			t.mu.Unlock()
			if t.metrics != nil {
				t.metrics.TaskFailed(time.Since(start))
			}
			return err
		}

		if attempt >= t.RetryPolicy.MaxAttempts {
			t.status = TaskFailed
			t.record("failed", err.Error())
			t.mu.Unlock()
			if t.metrics != nil {
				t.metrics.TaskFailed(time.Since(start))
			}
			return err
		}

		delay := t.RetryPolicy.delayFor(attempt)
		t.status = TaskPending
		t.record("retry_scheduled", fmt.Sprintf("attempt %d failed: %v, retrying after %s", attempt, err, delay))
		t.mu.Unlock()

		if sleepErr := sleepOrCancel(ctx, delay); sleepErr != nil {
			t.mu.Lock()
			t.status = TaskCancelled
			t.errorKind = core.KindCancelled
			t.record("cancelled", "cancelled during backoff")
			t.mu.Unlock()
			if t.metrics != nil {
				t.metrics.TaskCancelled()
			}
			return &core.SequencerError{Op: "Task.Execute", Kind: core.KindCancelled, ID: t.Name, Err: core.ErrCancelled}
		}
	}
}

// runOnce invokes Action once, honoring Timeout and ctx cancellation,
// and converts a panic in Action to an Internal error so the
// controller thread never observes a worker panic.
func (t *Task) runOnce(ctx context.Context, params map[string]interface{}) (err error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if t.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = &core.SequencerError{Op: "Task.runOnce", Kind: core.KindInternal, ID: t.Name, Err: fmt.Errorf("%w: panic: %v", core.ErrInternal, r)}
		}
	}()

	report := func(p float64) {
		t.mu.Lock()
		if p > t.progress {
			t.progress = p
		}
		t.mu.Unlock()
	}

	actionErr := t.Action(runCtx, params, report)
	if actionErr == nil {
		return nil
	}
	if runCtx.Err() == context.DeadlineExceeded {
		return &core.SequencerError{Op: "Task.runOnce", Kind: core.KindTimeout, ID: t.Name, Err: core.ErrTimeout}
	}
	if ctx.Err() == context.Canceled {
		return &core.SequencerError{Op: "Task.runOnce", Kind: core.KindCancelled, ID: t.Name, Err: core.ErrCancelled}
	}
	return classifyActionError(t.Name, actionErr)
}

// classifyActionError wraps an action's raw error into a
// SequencerError, preserving an existing classification if the action
// already returned one.
func classifyActionError(taskName string, err error) error {
	if se, ok := err.(*core.SequencerError); ok {
		return se
	}
	return &core.SequencerError{Op: "Task.Action", Kind: core.KindDevice, ID: taskName, Err: fmt.Errorf("%w: %v", core.ErrDevice, err)}
}

func classify(err error) core.ErrorKind {
	return core.Kind(err)
}

// Reset returns the Task to Pending, clearing errorKind, progress, and
// attempts, but preserving history. It is only legal from a terminal
// status; calling it otherwise is a no-op.
func (t *Task) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.status.IsTerminal() {
		return
	}
	t.status = TaskPending
	t.errorKind = core.KindNone
	t.progress = 0
	t.attempts = 0
	t.record("reset", "")
}

// MarkSkipped externally sets the Task to Skipped, used when its
// owning Target is disabled at entry.
func (t *Task) MarkSkipped() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = TaskSkipped
	t.progress = 1
	t.record("skipped", "")
}
