package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompute(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name     string
		elapsed  int
		attempts int
		want     int
	}{
		{"fast clean run", 120, 1, 1000 + 1680},
		{"no time bonus at deadline", 1800, 1, 1000},
		{"overrun yields no negative bonus", 2400, 1, 1000},
		{"attempts within free allowance", 600, 3, 1000 + 1200},
		{"fourth attempt penalized", 600, 4, 1000 + 1200 - 50},
		{"heavy penalty still floored", 1800, 100, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compute(cfg, tt.elapsed, tt.attempts))
		})
	}
}

func TestComputeFloor(t *testing.T) {
	cfg := DefaultConfig()
	for elapsed := 0; elapsed <= 3600; elapsed += 300 {
		for attempts := 0; attempts <= 60; attempts += 5 {
			got := Compute(cfg, elapsed, attempts)
			assert.GreaterOrEqual(t, got, 100, "elapsed=%d attempts=%d", elapsed, attempts)
		}
	}
}

func TestComputeCollaboration(t *testing.T) {
	assert.Equal(t, 75, ComputeCollaboration(2, 5, 15), "fast run gets the bonus")
	assert.Equal(t, 50, ComputeCollaboration(2, 10, 25), "exactly ten attempts, no bonus")
	assert.Equal(t, 40, ComputeCollaboration(2, 15, 25), "five extra attempts cost ten points")
	assert.Equal(t, 0, ComputeCollaboration(2, 60, 40), "floored at zero")
	assert.Equal(t, 0, ComputeCollaboration(0, 0, 0), "no participants, no score")
}
