package sequencer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallbacksNilHooksAreNoOps(t *testing.T) {
	var c Callbacks
	assert.NotPanics(t, func() {
		c.fireSequenceStart()
		c.fireSequenceEnd()
		c.fireTargetStart("t1", TargetPending)
		c.fireTargetEnd("t1", TargetCompleted)
		c.fireError("t1", "boom")
		c.fireProgress(ProgressSnapshot{})
	})
}

func TestCallbacksFireInvokesRegisteredHooks(t *testing.T) {
	var startCalled, endCalled bool
	var gotTarget string
	var gotStatus TargetStatus
	var gotErr string
	var gotSnap ProgressSnapshot

	c := Callbacks{
		OnSequenceStart: func() { startCalled = true },
		OnSequenceEnd:   func() { endCalled = true },
		OnTargetEnd: func(name string, status TargetStatus) {
			gotTarget = name
			gotStatus = status
		},
		OnError: func(name, desc string) { gotErr = desc },
		OnProgress: func(snap ProgressSnapshot) {
			gotSnap = snap
		},
	}

	c.fireSequenceStart()
	c.fireSequenceEnd()
	c.fireTargetEnd("mosaic-1", TargetFailed)
	c.fireError("mosaic-1", "device error")
	c.fireProgress(ProgressSnapshot{Progress: 0.5, Completed: 1})

	assert.True(t, startCalled)
	assert.True(t, endCalled)
	assert.Equal(t, "mosaic-1", gotTarget)
	assert.Equal(t, TargetFailed, gotStatus)
	assert.Equal(t, "device error", gotErr)
	assert.Equal(t, 0.5, gotSnap.Progress)
	assert.Equal(t, 1, gotSnap.Completed)
}
