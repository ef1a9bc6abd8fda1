package sequencer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lithium-go/astroseq/core"
	"gopkg.in/yaml.v3"
)

// PlanRetryDef is the wire form of a Task's retry policy.
type PlanRetryDef struct {
	MaxAttempts int    `yaml:"max_attempts" json:"max_attempts"`
	Backoff     string `yaml:"backoff" json:"backoff"`
	BaseDelayMs int64  `yaml:"base_delay_ms" json:"base_delay_ms"`
}

// PlanTaskDef is the wire form of one Task within a Target.
type PlanTaskDef struct {
	Name      string                 `yaml:"name" json:"name"`
	Type      string                 `yaml:"type" json:"type"`
	Params    map[string]interface{} `yaml:"params,omitempty" json:"params,omitempty"`
	TimeoutMs int64                  `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty"`
	Retry     *PlanRetryDef          `yaml:"retry,omitempty" json:"retry,omitempty"`
}

// PlanTargetDef is the wire form of one Target.
type PlanTargetDef struct {
	Name       string                 `yaml:"name" json:"name"`
	Enabled    *bool                  `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Priority   int                    `yaml:"priority,omitempty" json:"priority,omitempty"`
	CooldownMs int64                  `yaml:"cooldown_ms,omitempty" json:"cooldown_ms,omitempty"`
	MaxRetries int                    `yaml:"maxRetries,omitempty" json:"maxRetries,omitempty"`
	Params     map[string]interface{} `yaml:"params,omitempty" json:"params,omitempty"`
	Tasks      []PlanTaskDef          `yaml:"tasks" json:"tasks"`
}

// PlanDocument is the full on-disk/wire form of a Sequencer plan, per
// the export/import shape: targets, their dependency edges, and the
// scheduler's strategy fields. Extra carries any top-level JSON keys
// this version does not recognize, so round-tripping a plan written by
// a newer version does not silently drop them.
type PlanDocument struct {
	Targets         []PlanTargetDef        `yaml:"targets" json:"targets"`
	Dependencies    [][2]string            `yaml:"dependencies" json:"dependencies"`
	Strategy        string                 `yaml:"strategy" json:"strategy"`
	Scheduling      string                 `yaml:"scheduling" json:"scheduling"`
	Recovery        string                 `yaml:"recovery" json:"recovery"`
	MaxConcurrent   int                    `yaml:"maxConcurrent" json:"maxConcurrent"`
	GlobalTimeoutMs *int64                 `yaml:"globalTimeout_ms,omitempty" json:"globalTimeout_ms,omitempty"`
	Extra           map[string]interface{} `yaml:"-" json:"-"`
}

// knownTopLevelKeys mirrors PlanDocument's JSON field names, used to
// separate recognized keys from Extra during decode.
var knownTopLevelKeys = map[string]bool{
	"targets": true, "dependencies": true, "strategy": true,
	"scheduling": true, "recovery": true, "maxConcurrent": true,
	"globalTimeout_ms": true,
}

// ParsePlanJSON decodes a plan document from JSON, preserving unknown
// top-level fields in Extra and rejecting unknown enum values with
// core.KindInvalidParameter.
func ParsePlanJSON(data []byte) (*PlanDocument, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &core.SequencerError{Op: "ParsePlanJSON", Kind: core.KindInvalidParameter, Err: fmt.Errorf("%w: %v", core.ErrInvalidParameter, err)}
	}

	var doc PlanDocument
	if err := json.Unmarshal(data, (*planDocAlias)(&doc)); err != nil {
		return nil, &core.SequencerError{Op: "ParsePlanJSON", Kind: core.KindInvalidParameter, Err: fmt.Errorf("%w: %v", core.ErrInvalidParameter, err)}
	}

	doc.Extra = make(map[string]interface{})
	for k, v := range raw {
		if knownTopLevelKeys[k] {
			continue
		}
		var val interface{}
		if err := json.Unmarshal(v, &val); err == nil {
			doc.Extra[k] = val
		}
	}

	if err := doc.validateEnums(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// planDocAlias avoids infinite recursion when json.Unmarshal is called
// against PlanDocument's own fields from within ParsePlanJSON.
type planDocAlias PlanDocument

// ToJSON serializes the plan back to JSON, re-merging Extra's keys
// alongside the known fields so a round trip preserves them.
func (d *PlanDocument) ToJSON() ([]byte, error) {
	out, err := json.Marshal((*planDocAlias)(d))
	if err != nil {
		return nil, err
	}
	if len(d.Extra) == 0 {
		return out, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(out, &merged); err != nil {
		return nil, err
	}
	for k, v := range d.Extra {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		merged[k] = raw
	}
	return json.Marshal(merged)
}

// ParsePlanYAML decodes a plan document from YAML. Unknown top-level
// keys are not individually tracked in Extra for the YAML path (yaml.v3
// does not expose the same raw-message two-pass technique as cleanly);
// callers needing guaranteed unknown-field round-trip should use the
// JSON form.
func ParsePlanYAML(data []byte) (*PlanDocument, error) {
	var doc PlanDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &core.SequencerError{Op: "ParsePlanYAML", Kind: core.KindInvalidParameter, Err: fmt.Errorf("%w: %v", core.ErrInvalidParameter, err)}
	}
	if err := doc.validateEnums(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ToYAML serializes the plan to YAML.
func (d *PlanDocument) ToYAML() ([]byte, error) {
	return yaml.Marshal(d)
}

func (d *PlanDocument) validateEnums() error {
	switch Strategy(d.Strategy) {
	case StrategySequential, StrategyParallel, StrategyAdaptive, StrategyPriority:
	default:
		return &core.SequencerError{Op: "PlanDocument.validate", Kind: core.KindInvalidParameter, ID: d.Strategy, Err: fmt.Errorf("%w: unknown strategy %q", core.ErrInvalidParameter, d.Strategy)}
	}
	switch SchedulingStrategy(d.Scheduling) {
	case SchedulingFIFO, SchedulingPriority, SchedulingDependencies:
	default:
		return &core.SequencerError{Op: "PlanDocument.validate", Kind: core.KindInvalidParameter, ID: d.Scheduling, Err: fmt.Errorf("%w: unknown scheduling %q", core.ErrInvalidParameter, d.Scheduling)}
	}
	switch RecoveryPolicy(d.Recovery) {
	case RecoveryStop, RecoverySkip, RecoveryRetry, RecoveryAlternative:
	default:
		return &core.SequencerError{Op: "PlanDocument.validate", Kind: core.KindInvalidParameter, ID: d.Recovery, Err: fmt.Errorf("%w: unknown recovery %q", core.ErrInvalidParameter, d.Recovery)}
	}
	return nil
}

// BuildSequencer materializes a Sequencer (and its Targets/Tasks) from
// a parsed plan, using factory to construct each task by its type tag
// and guard/metrics/callbacks/logger supplied by the caller. Per-task
// retry policy comes from the plan's own retry block, or else whatever
// the task's factory constructor set; use BuildSequencerFromConfig to
// source scheduler tuning and retry fallbacks from a core.Config
// instead.
func BuildSequencer(doc *PlanDocument, factory *TaskFactory, guard *ResourceGuard, metrics *MetricsCollector, callbacks Callbacks, logger core.Logger) (*Sequencer, error) {
	strategy := Strategy(doc.Strategy)
	scheduling := SchedulingStrategy(doc.Scheduling)
	recovery := RecoveryPolicy(doc.Recovery)

	var globalTimeout time.Duration
	if doc.GlobalTimeoutMs != nil {
		globalTimeout = time.Duration(*doc.GlobalTimeoutMs) * time.Millisecond
	}

	seq := NewSequencer(strategy, scheduling, recovery, doc.MaxConcurrent, globalTimeout, guard, metrics, callbacks, logger)

	if err := populateTargets(seq, doc, factory, nil, logger); err != nil {
		return nil, err
	}
	return seq, nil
}

// BuildSequencerFromConfig materializes a Sequencer the way
// BuildSequencer does, but sources the scheduler's concurrency
// ceiling, global timeout, dispatch poll interval, resource guard
// ceilings, and per-task retry fallback from cfg rather than from
// ad hoc caller-supplied arguments. cfg.MaxConcurrent is used when the
// plan's maxConcurrent is zero; cfg.GlobalTimeout is used when the plan
// has no globalTimeout_ms field, and a globalTimeout_ms present in the
// plan, zero included, wins. A nil cfg uses core.DefaultConfig.
func BuildSequencerFromConfig(doc *PlanDocument, factory *TaskFactory, cfg *core.Config, callbacks Callbacks, logger core.Logger) (*Sequencer, error) {
	if cfg == nil {
		cfg = core.DefaultConfig()
	}

	strategy := Strategy(doc.Strategy)
	scheduling := SchedulingStrategy(doc.Scheduling)
	recovery := RecoveryPolicy(doc.Recovery)

	maxConcurrent := cfg.MaxConcurrent
	if doc.MaxConcurrent > 0 {
		maxConcurrent = doc.MaxConcurrent
	}
	globalTimeout := cfg.GlobalTimeout
	if doc.GlobalTimeoutMs != nil {
		globalTimeout = time.Duration(*doc.GlobalTimeoutMs) * time.Millisecond
	}

	guard := NewResourceGuard(cfg.CPUCeiling, cfg.RSSCeiling, cfg.SampleTTL, nil)
	metrics := NewMetricsCollector()

	seq := NewSequencer(strategy, scheduling, recovery, maxConcurrent, globalTimeout, guard, metrics, callbacks, logger)
	seq.SetDispatchPoll(cfg.DispatchPoll)

	defaultRetry := RetryPolicy{MaxAttempts: cfg.RetryMaxAttempts, Backoff: BackoffExponential, BaseDelay: cfg.RetryBaseDelay}
	if err := populateTargets(seq, doc, factory, &defaultRetry, logger); err != nil {
		return nil, err
	}
	return seq, nil
}

// populateTargets adds every target/task/dependency from doc onto seq.
// defaultRetry, when non-nil, becomes the retry policy of every task
// whose plan entry has no retry block, replacing the policy the task's
// factory constructor set.
func populateTargets(seq *Sequencer, doc *PlanDocument, factory *TaskFactory, defaultRetry *RetryPolicy, logger core.Logger) error {
	for _, td := range doc.Targets {
		priority := td.Priority
		target := NewTarget(td.Name, priority, logger)
		if td.Enabled != nil {
			target.SetEnabled(*td.Enabled)
		}
		target.SetCooldown(time.Duration(td.CooldownMs) * time.Millisecond)
		if td.MaxRetries > 0 {
			target.SetMaxRetries(td.MaxRetries)
		}
		if td.Params != nil {
			target.SetParams(td.Params)
		}

		for _, taskDef := range td.Tasks {
			config, err := json.Marshal(taskDef.Params)
			if err != nil {
				return &core.SequencerError{Op: "BuildSequencer", Kind: core.KindInvalidParameter, ID: taskDef.Name, Err: err}
			}
			task, err := factory.Create(taskDef.Type, taskDef.Name, config)
			if err != nil {
				return &core.SequencerError{Op: "BuildSequencer", Kind: core.KindInvalidParameter, ID: taskDef.Name, Err: err}
			}
			switch {
			case taskDef.Retry != nil:
				task.RetryPolicy = RetryPolicy{
					MaxAttempts: taskDef.Retry.MaxAttempts,
					Backoff:     BackoffStrategy(taskDef.Retry.Backoff),
					BaseDelay:   time.Duration(taskDef.Retry.BaseDelayMs) * time.Millisecond,
				}
			case defaultRetry != nil:
				task.RetryPolicy = *defaultRetry
			}
			if taskDef.TimeoutMs > 0 {
				task.Timeout = time.Duration(taskDef.TimeoutMs) * time.Millisecond
			}
			target.AddTask(task)
		}

		if err := seq.AddTarget(target); err != nil {
			return err
		}
	}

	for _, edge := range doc.Dependencies {
		if err := seq.AddDependency(edge[0], edge[1]); err != nil {
			return err
		}
	}

	return nil
}
