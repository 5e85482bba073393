package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstantLR(t *testing.T) {
	s, err := NewLR("none", 1e-3, 100, 0.1)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		s.Step()
	}
	assert.Equal(t, 1e-3, s.LastLR())
}

func TestWarmupDecayLinear(t *testing.T) {
	s, err := NewLR("linear", 1.0, 100, 0.1)
	require.NoError(t, err)

	// Warmup ramps from zero.
	assert.Equal(t, 0.0, s.LastLR())
	for i := 0; i < 5; i++ {
		s.Step()
	}
	assert.InDelta(t, 0.5, s.LastLR(), 1e-9)

	// Peak at the end of warmup.
	for i := 0; i < 5; i++ {
		s.Step()
	}
	assert.InDelta(t, 1.0, s.LastLR(), 1e-9)

	// Midpoint of the decay segment.
	for i := 0; i < 45; i++ {
		s.Step()
	}
	assert.InDelta(t, 0.5, s.LastLR(), 1e-9)

	// Zero at and beyond the end.
	for i := 0; i < 45; i++ {
		s.Step()
	}
	assert.Equal(t, 0.0, s.LastLR())
	s.Step()
	assert.Equal(t, 0.0, s.LastLR())
}

func TestWarmupDecayCosine(t *testing.T) {
	s, err := NewLR("cosine", 1.0, 100, 0)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, s.LastLR(), 1e-9)

	for i := 0; i < 50; i++ {
		s.Step()
	}
	assert.InDelta(t, 0.5, s.LastLR(), 1e-9)

	for i := 0; i < 50; i++ {
		s.Step()
	}
	assert.Equal(t, 0.0, s.LastLR())
}

func TestNewLRInvalid(t *testing.T) {
	_, err := NewLR("step", 1e-3, 100, 0.1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid scheduler")
}

func TestLRStateRoundTrip(t *testing.T) {
	s, err := NewLR("cosine", 1.0, 100, 0.1)
	require.NoError(t, err)
	for i := 0; i < 37; i++ {
		s.Step()
	}

	restored, err := NewLR("cosine", 1.0, 100, 0.1)
	require.NoError(t, err)
	restored.SetSteps(s.Steps())
	assert.Equal(t, s.LastLR(), restored.LastLR())
}
