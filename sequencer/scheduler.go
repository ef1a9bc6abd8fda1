package sequencer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lithium-go/astroseq/core"
)

// Strategy selects how many targets the Sequencer runs concurrently.
type Strategy string

const (
	StrategySequential Strategy = "sequential"
	StrategyParallel   Strategy = "parallel"
	StrategyAdaptive   Strategy = "adaptive"
	StrategyPriority   Strategy = "priority"
)

// SchedulingStrategy selects how the ready pool is ordered at each
// dispatch tick.
type SchedulingStrategy string

const (
	SchedulingFIFO         SchedulingStrategy = "fifo"
	SchedulingPriority     SchedulingStrategy = "priority"
	SchedulingDependencies SchedulingStrategy = "dependencies"
)

// RecoveryPolicy selects what happens to the rest of the run when a
// target fails.
type RecoveryPolicy string

const (
	RecoveryStop        RecoveryPolicy = "stop"
	RecoverySkip        RecoveryPolicy = "skip"
	RecoveryRetry       RecoveryPolicy = "retry"
	RecoveryAlternative RecoveryPolicy = "alternative"
)

// adaptiveDoubleAfter is the number of consecutive dispatch ticks with
// no resource denial before the Adaptive strategy doubles its current
// concurrency ceiling. Chosen to ramp up within a few seconds of
// dispatch-poll intervals without reacting to a single lucky sample.
const adaptiveDoubleAfter = 3

// dispatchResult is what a worker goroutine reports back to the
// controller when a target finishes running.
type dispatchResult struct {
	target   *Target
	err      error
	duration time.Duration
}

// Sequencer runs a set of Targets under a DependencyGraph, applying a
// concurrency strategy, a ready-pool ordering strategy, and a recovery
// policy for target failures. All target-set and dependency-graph
// mutations are serialized by mu; each Target guards its own execution
// state independently, and host callbacks are only ever invoked from
// the goroutine running ExecuteAll.
type Sequencer struct {
	mu sync.RWMutex

	targets     []*Target
	targetIndex map[string]int // name -> insertion order
	deps        *DependencyGraph
	alternates  map[string]*Target

	strategy    Strategy
	scheduling  SchedulingStrategy
	recovery    RecoveryPolicy
	maxConcurrent int
	globalTimeout time.Duration
	dispatchPoll  time.Duration

	guard     *ResourceGuard
	metrics   *MetricsCollector
	callbacks Callbacks
	logger    core.Logger
	telemetry core.Telemetry

	running   bool
	cancelled bool
	cancelFn  context.CancelFunc

	adaptiveCurrent int
	adaptiveStreak  int

	schedulerRetries map[string]int
}

// NewSequencer constructs a Sequencer. A nil guard or metrics collector
// is replaced with a permissive/no-op default so the zero value of
// either is always safe to omit. The dispatch poll interval defaults
// to core.DefaultConfig's DispatchPoll (250ms); override it with
// SetDispatchPoll, or use BuildSequencerFromConfig to source it from a
// core.Config directly.
func NewSequencer(strategy Strategy, scheduling SchedulingStrategy, recovery RecoveryPolicy, maxConcurrent int, globalTimeout time.Duration, guard *ResourceGuard, metrics *MetricsCollector, callbacks Callbacks, logger core.Logger) *Sequencer {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if guard == nil {
		guard = NewResourceGuard(100, 0, 0, nil)
	}
	if metrics == nil {
		metrics = NewMetricsCollector()
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Sequencer{
		telemetry:        &core.NoOpTelemetry{},
		targetIndex:      make(map[string]int),
		deps:             NewDependencyGraph(),
		alternates:       make(map[string]*Target),
		strategy:         strategy,
		scheduling:       scheduling,
		recovery:         recovery,
		maxConcurrent:    maxConcurrent,
		globalTimeout:    globalTimeout,
		dispatchPoll:     250 * time.Millisecond,
		guard:            guard,
		metrics:          metrics,
		callbacks:        callbacks,
		logger:           componentLogger(logger, "sequencer/scheduler"),
		adaptiveCurrent:  1,
		schedulerRetries: make(map[string]int),
	}
}

// SetTelemetry installs the tracer used around ExecuteAll and each
// dispatched target. A nil telemetry is rejected in favor of keeping
// the existing (possibly no-op) one.
func (s *Sequencer) SetTelemetry(t core.Telemetry) {
	if t == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.telemetry = t
}

// SetDispatchPoll overrides the idle-wait interval used while waiting
// for a worker result or the next ready-pool recomputation.
func (s *Sequencer) SetDispatchPoll(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d > 0 {
		s.dispatchPoll = d
	}
}

// AddTarget registers target, in insertion order. Must be called
// before ExecuteAll starts; calling it on a running Sequencer returns
// core.ErrAlreadyRunning.
func (s *Sequencer) AddTarget(target *Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return &core.SequencerError{Op: "Sequencer.AddTarget", Kind: core.KindInvalidParameter, ID: target.Name, Err: core.ErrAlreadyRunning}
	}
	target.SetMetrics(s.metrics)
	s.targetIndex[target.Name] = len(s.targets)
	s.targets = append(s.targets, target)
	s.deps.AddNode(target.Name)
	return nil
}

// AddDependency records that from must complete before to may start.
func (s *Sequencer) AddDependency(from, to string) error {
	return s.deps.AddEdge(from, to)
}

// SetAlternative registers backup as the Alternative-recovery stand-in
// for primary: if primary fails and the recovery policy is
// Alternative, backup is spliced into primary's place in the
// dependency graph and scheduled in its stead.
func (s *Sequencer) SetAlternative(primary string, backup *Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	backup.SetMetrics(s.metrics)
	s.alternates[primary] = backup
}

// Stop requests the running sequence cancel as soon as possible.
// Idempotent: calling it more than once, or before/after a run, is a
// no-op.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return
	}
	s.cancelled = true
	if s.cancelFn != nil {
		s.cancelFn()
	}
}

// Metrics returns a point-in-time snapshot of the run's metrics.
func (s *Sequencer) Metrics() MetricsSnapshot {
	return s.metrics.Snapshot()
}

// GetFailedTargets returns the names of every target whose final
// reported status is Failed.
func (s *Sequencer) GetFailedTargets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var failed []string
	for _, t := range s.targets {
		if t.Status() == TargetFailed {
			failed = append(failed, t.Name)
		}
	}
	return failed
}

// ExecuteAll runs every registered target to completion, honoring
// dependencies, the concurrency strategy, the resource guard, and the
// recovery policy. It returns an error only when another ExecuteAll
// call is already running; otherwise it returns nil, and target
// failures are surfaced only through target status, the OnError
// callback, and Metrics/GetFailedTargets.
func (s *Sequencer) ExecuteAll(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return &core.SequencerError{Op: "Sequencer.ExecuteAll", Kind: core.KindInvalidParameter, Err: core.ErrAlreadyRunning}
	}
	s.running = true
	s.cancelled = false
	runCtx, cancel := context.WithCancel(ctx)
	if s.globalTimeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, s.globalTimeout)
	}
	s.cancelFn = cancel
	targets := append([]*Target(nil), s.targets...)
	poll := s.dispatchPoll
	tel := s.telemetry
	s.mu.Unlock()

	runCtx, span := tel.StartSpan(runCtx, "sequencer.executeAll")
	defer span.End()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.cancelFn = nil
		s.mu.Unlock()
		cancel()
	}()

	s.callbacks.fireSequenceStart()
	defer s.callbacks.fireSequenceEnd()
	defer func() {
		snap := s.metrics.Snapshot()
		tel.RecordMetric("sequencer.targets_completed", float64(snap.TargetsCompleted), nil)
		tel.RecordMetric("sequencer.targets_failed", float64(snap.TargetsFailed), nil)
	}()

	targetByName := make(map[string]*Target, len(targets))
	for _, t := range targets {
		targetByName[t.Name] = t
	}

	done := make(map[string]bool)
	running := make(map[string]bool)
	resultsCh := make(chan dispatchResult, len(targets)+4)

	isDone := func() bool {
		for _, t := range targetByName {
			if !t.Status().IsTerminal() {
				return false
			}
		}
		return true
	}

	for !isDone() {
		if s.runCancelled() || runCtx.Err() != nil {
			s.applyStop(targetByName, running)
			break
		}

		readyPool := s.orderedReadyPool(targetByName, done, running)
		denied := false
		runningCount := len(running)
		for _, t := range readyPool {
			if runningCount >= s.effectiveConcurrency() {
				break
			}
			if !s.guard.Admit() {
				denied = true
				break
			}
			running[t.Name] = true
			runningCount++
			s.metrics.TargetStarted()
			s.callbacks.fireTargetStart(t.Name, TargetInProgress)
			s.dispatch(runCtx, t, resultsCh)
			s.fireProgress(targetByName)
		}
		s.adjustAdaptive(denied)

		if runningCount == 0 && len(readyPool) == 0 && !isDone() {
			// Nothing ready and nothing running: either blocked on a
			// failed (non-satisfying) predecessor under a non-Skip
			// recovery policy, or waiting for a scheduler-retry
			// cooldown. Poll rather than spin.
			select {
			case <-runCtx.Done():
				s.applyStop(targetByName, running)
			case <-time.After(poll):
			}
			continue
		}

		select {
		case res := <-resultsCh:
			delete(running, res.target.Name)
			s.handleResult(targetByName, done, running, res)
			s.fireProgress(targetByName)
		case <-runCtx.Done():
			s.applyStop(targetByName, running)
		case <-time.After(poll):
		}
	}

	// Drain any in-flight results after the loop exits so goroutines
	// never block forever writing to resultsCh.
	for len(running) > 0 {
		res := <-resultsCh
		delete(running, res.target.Name)
		s.handleResult(targetByName, done, running, res)
	}

	return nil
}

func (s *Sequencer) runCancelled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cancelled
}

// dispatch runs target.Execute in its own goroutine and reports the
// outcome on resultsCh.
func (s *Sequencer) dispatch(ctx context.Context, target *Target, resultsCh chan<- dispatchResult) {
	s.mu.RLock()
	tel := s.telemetry
	s.mu.RUnlock()

	go func() {
		spanCtx, span := tel.StartSpan(ctx, "sequencer.target:"+target.Name)
		defer span.End()

		start := time.Now()
		err := target.Execute(spanCtx)
		if err != nil {
			span.RecordError(err)
		}
		resultsCh <- dispatchResult{target: target, err: err, duration: time.Since(start)}
	}()
}

// handleResult applies metrics, callbacks, done-set bookkeeping, and
// the recovery policy for one finished target. running must already
// have res.target's own name removed by the caller, so it reflects
// only the OTHER targets still in flight.
func (s *Sequencer) handleResult(byName map[string]*Target, done map[string]bool, running map[string]bool, res dispatchResult) {
	t := res.target
	status := t.Status()

	switch status {
	case TargetCompleted:
		s.metrics.TargetCompleted(res.duration)
		done[t.Name] = true
	case TargetCancelled:
		s.metrics.TargetFailed(res.duration)
	case TargetSkipped:
		s.metrics.TargetSkipped()
		done[t.Name] = true
	case TargetFailed:
		s.callbacks.fireError(t.Name, errString(res.err))
		s.applyRecovery(byName, done, running, t)
		if t.Status() == TargetSkipped {
			s.metrics.TargetSkipped()
		} else {
			s.metrics.TargetFailed(res.duration)
		}
	}

	s.callbacks.fireTargetEnd(t.Name, t.Status())
}

// applyRecovery applies the configured RecoveryPolicy to a target that
// just transitioned to Failed.
func (s *Sequencer) applyRecovery(byName map[string]*Target, done map[string]bool, running map[string]bool, failed *Target) {
	switch s.recovery {
	case RecoverySkip:
		failed.ForceSkipped(failed.LastError())
		done[failed.Name] = true

	case RecoveryRetry:
		s.mu.Lock()
		used := s.schedulerRetries[failed.Name]
		s.mu.Unlock()
		// The ceiling is the target's own maxRetries.
		if used < schedulerRetryCeiling(failed) {
			s.mu.Lock()
			s.schedulerRetries[failed.Name]++
			s.mu.Unlock()
			failed.ResetForSchedulerRetry()
		}
		// else: leave Failed as terminal; the target stays Failed and
		// is reported as such.

	case RecoveryAlternative:
		s.mu.RLock()
		backup, ok := s.alternates[failed.Name]
		s.mu.RUnlock()
		if !ok {
			s.applyStopSingle(byName, running, failed)
			return
		}
		s.spliceAlternate(byName, failed, backup)

	default: // RecoveryStop
		s.applyStopSingle(byName, running, failed)
	}
}

// schedulerRetryCeiling bounds scheduler-level Retry recovery at the
// same attempt count a Target allows for its own internal whole-target
// restarts, since both counters guard against the same runaway-retry
// risk.
func schedulerRetryCeiling(t *Target) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxRetries
}

// applyStop cancels the run and force-cancels every target that has
// not yet reached a terminal status, used both for the Stop recovery
// policy and for Sequencer.Stop()/global-timeout handling.
func (s *Sequencer) applyStop(byName map[string]*Target, running map[string]bool) {
	s.Stop()
	for _, t := range byName {
		if !running[t.Name] {
			t.ForceCancelled()
		}
	}
}

// applyStopSingle stops the whole run: it cancels the run context and
// force-cancels every target other than failed, not only failed's
// descendants. Like applyStop, it never force-overwrites
// a target whose worker is still running concurrently: that target's
// own goroutine owns its terminal transition, and Stop()'s ctx
// cancellation is what gets a cooperative exit from it instead.
func (s *Sequencer) applyStopSingle(byName map[string]*Target, running map[string]bool, failed *Target) {
	s.Stop()
	for _, t := range byName {
		if t.Name == failed.Name || running[t.Name] {
			continue
		}
		t.ForceCancelled()
	}
}

// spliceAlternate removes failed from the dependency graph and
// installs backup in its place, rewiring failed's predecessors and
// successors onto backup, then enqueues backup as a fresh Pending
// target.
func (s *Sequencer) spliceAlternate(byName map[string]*Target, failed, backup *Target) {
	s.mu.Lock()
	preds := s.deps.Predecessors(failed.Name)
	succs := s.deps.Successors(failed.Name)
	s.deps.RemoveNode(failed.Name)
	s.deps.AddNode(backup.Name)
	for _, p := range preds {
		s.deps.AddEdge(p, backup.Name)
	}
	for _, suc := range succs {
		s.deps.AddEdge(backup.Name, suc)
	}
	s.targetIndex[backup.Name] = len(s.targets)
	s.targets = append(s.targets, backup)
	s.mu.Unlock()

	byName[backup.Name] = backup
}

// orderedReadyPool computes the targets eligible to start right now —
// Pending, not already running, with every predecessor in done — and
// orders them per the configured SchedulingStrategy.
func (s *Sequencer) orderedReadyPool(byName map[string]*Target, done map[string]bool, running map[string]bool) []*Target {
	s.mu.RLock()
	names := s.deps.ReadyNodes(done)
	scheduling := s.scheduling
	index := s.targetIndex
	var topoIndex map[string]int
	if scheduling == SchedulingDependencies {
		order := s.deps.TopologicalOrder()
		topoIndex = make(map[string]int, len(order))
		for i, n := range order {
			topoIndex[n] = i
		}
	}
	s.mu.RUnlock()

	var pool []*Target
	for _, n := range names {
		if running[n] {
			continue
		}
		t, ok := byName[n]
		if !ok || t.Status() != TargetPending {
			continue
		}
		pool = append(pool, t)
	}

	switch scheduling {
	case SchedulingPriority:
		sort.SliceStable(pool, func(i, j int) bool {
			if pool[i].Priority != pool[j].Priority {
				return pool[i].Priority > pool[j].Priority
			}
			return index[pool[i].Name] < index[pool[j].Name]
		})
	case SchedulingDependencies:
		sort.SliceStable(pool, func(i, j int) bool {
			if pool[i].Priority != pool[j].Priority {
				return pool[i].Priority > pool[j].Priority
			}
			ti, tj := topoIndex[pool[i].Name], topoIndex[pool[j].Name]
			if ti != tj {
				return ti < tj
			}
			return index[pool[i].Name] < index[pool[j].Name]
		})
	default: // FIFO
		sort.SliceStable(pool, func(i, j int) bool {
			return index[pool[i].Name] < index[pool[j].Name]
		})
	}
	return pool
}

// effectiveConcurrency returns how many targets may run at once right
// now, per the Strategy.
func (s *Sequencer) effectiveConcurrency() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch s.strategy {
	case StrategySequential:
		return 1
	case StrategyAdaptive:
		if s.adaptiveCurrent < 1 {
			return 1
		}
		return s.adaptiveCurrent
	default: // Parallel, Priority
		return s.maxConcurrent
	}
}

// adjustAdaptive updates the Adaptive strategy's current concurrency
// ceiling: it halves (floor 1) immediately on any resource denial, and
// doubles (capped at maxConcurrent) after adaptiveDoubleAfter
// consecutive clean dispatch ticks.
func (s *Sequencer) adjustAdaptive(denied bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.strategy != StrategyAdaptive {
		return
	}
	if denied {
		s.adaptiveStreak = 0
		s.adaptiveCurrent = s.adaptiveCurrent / 2
		if s.adaptiveCurrent < 1 {
			s.adaptiveCurrent = 1
		}
		return
	}
	s.adaptiveStreak++
	if s.adaptiveStreak >= adaptiveDoubleAfter {
		s.adaptiveStreak = 0
		s.adaptiveCurrent *= 2
		if s.adaptiveCurrent > s.maxConcurrent {
			s.adaptiveCurrent = s.maxConcurrent
		}
	}
}

// fireProgress computes and emits a ProgressSnapshot across every
// registered target.
func (s *Sequencer) fireProgress(byName map[string]*Target) {
	if s.callbacks.OnProgress == nil {
		return
	}
	var sum float64
	var completed, failed int
	var runningNames []string
	for name, t := range byName {
		sum += t.Progress()
		switch t.Status() {
		case TargetCompleted, TargetSkipped:
			completed++
		case TargetFailed:
			failed++
		case TargetInProgress:
			runningNames = append(runningNames, name)
		}
	}
	sort.Strings(runningNames)
	var progress float64
	if len(byName) > 0 {
		progress = sum / float64(len(byName))
	} else {
		progress = 1
	}
	s.callbacks.fireProgress(ProgressSnapshot{
		Progress:       progress,
		RunningTargets: runningNames,
		Completed:      completed,
		Failed:         failed,
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
