package progress

import (
	"strings"
	"testing"
	"time"
)

func TestBarSetClamps(t *testing.T) {
	b := NewBar("training", 100, 0)

	b.Set(42)
	if b.currentValue != 42 {
		t.Errorf("currentValue = %d, want 42", b.currentValue)
	}

	b.Set(150)
	if b.currentValue != 100 {
		t.Errorf("currentValue = %d, want clamp to 100", b.currentValue)
	}
}

func TestBarPercent(t *testing.T) {
	b := NewBar("training", 200, 0)
	b.Set(50)
	if got := b.percent(); got != 25 {
		t.Errorf("percent = %f, want 25", got)
	}

	empty := NewBar("training", 0, 0)
	if got := empty.percent(); got != 0 {
		t.Errorf("percent with zero max = %f, want 0", got)
	}
}

func TestBarString(t *testing.T) {
	b := NewBar("training", 100, 0)
	b.Set(25)

	s := b.String()
	for _, want := range []string{"training", "25%", "steps"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{90 * time.Minute, "1h30m"},
		{200 * time.Hour, "99h+"},
	}

	for _, tt := range cases {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
