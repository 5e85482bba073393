package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinearInterpolatesAndHolds(t *testing.T) {
	// 10 total steps with fraction 0.5: the value reaches the end after 5
	// steps and holds there.
	s := NewLinear(1, 0, 10, 0.5)

	assert.Equal(t, 1.0, s.Value())

	s.Step()
	assert.InDelta(t, 0.8, s.Value(), 1e-9)

	for i := 0; i < 4; i++ {
		s.Step()
	}
	assert.Equal(t, 0.0, s.Value())

	for i := 0; i < 100; i++ {
		s.Step()
	}
	assert.Equal(t, 0.0, s.Value())
}

func TestLinearMonotonic(t *testing.T) {
	s := NewLinear(1, 0, 100, 1)

	prev := s.Value()
	for i := 0; i < 150; i++ {
		s.Step()
		v := s.Value()
		assert.LessOrEqual(t, v, prev)
		prev = v
	}
}

func TestLinearMinimumHorizon(t *testing.T) {
	// A zero-step horizon would divide by zero; it is clamped to one.
	s := NewLinear(1, 0, 0, 0.5)
	s.Step()
	assert.Equal(t, 0.0, s.Value())
}

func TestConstant(t *testing.T) {
	s := NewConstant(0.7)
	for i := 0; i < 5; i++ {
		s.Step()
	}
	assert.Equal(t, 0.7, s.Value())
	assert.Equal(t, 5, s.Steps())
}

func TestSchedulerStateRoundTrip(t *testing.T) {
	s := NewLinear(1, 0, 10, 1)
	for i := 0; i < 3; i++ {
		s.Step()
	}

	restored := NewLinear(1, 0, 10, 1)
	restored.SetSteps(s.Steps())
	assert.Equal(t, s.Value(), restored.Value())
}

func TestNewTeacherForce(t *testing.T) {
	s, err := NewTeacherForce("none", 1, 0, 10, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.Value())

	s, err = NewTeacherForce("", 1, 0, 10, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.Value())

	s, err = NewTeacherForce("linear", 1, 0.5, 10, 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, s.Value())

	_, err = NewTeacherForce("exponential", 1, 0, 10, 1)
	require.Error(t, err)
}
