package sequencer

// ProgressSnapshot is the value passed to OnProgress: a plain
// immutable snapshot of sequence-wide progress, never a live reference
// into Sequencer state. All callbacks run on the controller thread,
// serialized, and never from a worker goroutine — per the design's
// resolution of thread-capture-via-callback.
type ProgressSnapshot struct {
	Progress       float64
	RunningTargets []string
	Completed      int
	Failed         int
}

// Callbacks is the set of hooks a host registers to observe sequence
// execution. Every hook is optional; a nil hook is simply not called.
// All hooks are invoked synchronously on the controller goroutine that
// runs executeAll, in the order events occur, and never concurrently
// with one another.
type Callbacks struct {
	OnSequenceStart func()
	OnSequenceEnd   func()
	OnTargetStart   func(targetName string, status TargetStatus)
	OnTargetEnd     func(targetName string, status TargetStatus)
	OnError         func(targetName string, errDescription string)
	OnProgress      func(snapshot ProgressSnapshot)
}

func (c Callbacks) fireSequenceStart() {
	if c.OnSequenceStart != nil {
		c.OnSequenceStart()
	}
}

func (c Callbacks) fireSequenceEnd() {
	if c.OnSequenceEnd != nil {
		c.OnSequenceEnd()
	}
}

func (c Callbacks) fireTargetStart(name string, status TargetStatus) {
	if c.OnTargetStart != nil {
		c.OnTargetStart(name, status)
	}
}

func (c Callbacks) fireTargetEnd(name string, status TargetStatus) {
	if c.OnTargetEnd != nil {
		c.OnTargetEnd(name, status)
	}
}

func (c Callbacks) fireError(name string, desc string) {
	if c.OnError != nil {
		c.OnError(name, desc)
	}
}

func (c Callbacks) fireProgress(snap ProgressSnapshot) {
	if c.OnProgress != nil {
		c.OnProgress(snap)
	}
}
