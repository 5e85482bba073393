package format

import (
	"testing"
	"time"
)

func assertEqual(t *testing.T, a interface{}, b interface{}) {
	if a != b {
		t.Errorf("Assert failed, expected %v, got %v", b, a)
	}
}

func TestHumanDuration(t *testing.T) {
	t.Run("sub-second", func(t *testing.T) {
		assertEqual(t, HumanDuration(800*time.Millisecond), "Less than a second")
	})

	t.Run("seconds", func(t *testing.T) {
		assertEqual(t, HumanDuration(1*time.Second), "1 second")
		assertEqual(t, HumanDuration(45*time.Second), "45 seconds")
	})

	t.Run("minutes", func(t *testing.T) {
		assertEqual(t, HumanDuration(90*time.Second), "About a minute")
		assertEqual(t, HumanDuration(12*time.Minute), "12 minutes")
	})

	t.Run("hours", func(t *testing.T) {
		assertEqual(t, HumanDuration(1*time.Hour), "About an hour")
		assertEqual(t, HumanDuration(5*time.Hour), "5 hours")
	})

	t.Run("days", func(t *testing.T) {
		assertEqual(t, HumanDuration(48*time.Hour), "2 days")
	})
}

func TestExactDuration(t *testing.T) {
	t.Run("milliseconds", func(t *testing.T) {
		assertEqual(t, ExactDuration(time.Millisecond), "1 millisecond")
		assertEqual(t, ExactDuration(250*time.Millisecond), "250 milliseconds")
	})

	t.Run("seconds", func(t *testing.T) {
		assertEqual(t, ExactDuration(1*time.Second), "1 second")
		assertEqual(t, ExactDuration(30*time.Second), "30 seconds")
	})

	t.Run("minutes and seconds", func(t *testing.T) {
		assertEqual(t, ExactDuration(90*time.Second), "1 minute 30 seconds")
	})

	t.Run("hours", func(t *testing.T) {
		assertEqual(t, ExactDuration(1*time.Hour+2*time.Minute+3*time.Second), "1 hour 2 minutes 3 seconds")
		assertEqual(t, ExactDuration(2*time.Hour), "2 hours")
	})
}
