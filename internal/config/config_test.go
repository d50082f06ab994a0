package config

import (
	"testing"
	"time"
)

func TestPipelineBackoff(t *testing.T) {
	p := PipelineConfig{
		BackoffTable: []time.Duration{0, 30 * time.Second, 2 * time.Minute, 10 * time.Minute, 30 * time.Minute},
	}

	tests := []struct {
		name    string
		attempt int
		want    time.Duration
	}{
		{"first attempt retries immediately", 1, 0},
		{"second attempt", 2, 30 * time.Second},
		{"third attempt", 3, 2 * time.Minute},
		{"fifth attempt", 5, 30 * time.Minute},
		{"beyond table reuses last entry", 6, 30 * time.Minute},
		{"far beyond table reuses last entry", 100, 30 * time.Minute},
		{"zero clamps to first entry", 0, 0},
		{"negative clamps to first entry", -3, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := p.Backoff(tc.attempt); got != tc.want {
				t.Errorf("Backoff(%d) = %v, want %v", tc.attempt, got, tc.want)
			}
		})
	}
}

func TestPipelineBackoff_EmptyTable(t *testing.T) {
	p := PipelineConfig{}
	if got := p.Backoff(3); got != 0 {
		t.Errorf("Backoff on empty table = %v, want 0", got)
	}
}
