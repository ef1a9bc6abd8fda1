package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequencerErrorUnwrapAndIs(t *testing.T) {
	err := &SequencerError{Op: "Task.Execute", Kind: KindDevice, ID: "ccd-1", Err: ErrDevice}

	assert.True(t, errors.Is(err, ErrDevice))
	assert.Equal(t, "Task.Execute [ccd-1]: device error", err.Error())
}

func TestSequencerErrorStringWithoutID(t *testing.T) {
	err := &SequencerError{Op: "Config.Validate", Kind: KindInvalidParameter, Err: ErrInvalidParameter}
	assert.Equal(t, "Config.Validate: invalid parameter", err.Error())
}

func TestNewSequencerErrorFillsSentinelWhenErrNil(t *testing.T) {
	err := NewSequencerError("DependencyGraph.AddEdge", KindDependency, "m31", nil)

	assert.ErrorIs(t, err, ErrDependency)
	assert.Equal(t, KindDependency, err.Kind)
}

func TestIsRetryableClassifiesTransientKinds(t *testing.T) {
	assert.True(t, IsRetryable(ErrTimeout))
	assert.True(t, IsRetryable(ErrDevice))
	assert.False(t, IsRetryable(ErrCancelled))
	assert.False(t, IsRetryable(ErrInvalidParameter))
}

func TestIsTerminalClassifiesNonRestartableKinds(t *testing.T) {
	assert.True(t, IsTerminal(ErrCancelled))
	assert.True(t, IsTerminal(ErrInvalidParameter))
	assert.False(t, IsTerminal(ErrTimeout))
	assert.False(t, IsTerminal(ErrDevice))
}

func TestKindExtractsFromSequencerError(t *testing.T) {
	err := &SequencerError{Op: "Task.Execute", Kind: KindTimeout, Err: ErrTimeout}
	assert.Equal(t, KindTimeout, Kind(err))
}

func TestKindDefaultsToInternalForPlainError(t *testing.T) {
	assert.Equal(t, KindInternal, Kind(errors.New("boom")))
}
