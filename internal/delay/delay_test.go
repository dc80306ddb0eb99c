package delay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextDelay_Bounds(t *testing.T) {
	tests := []struct {
		name     string
		min, max int
	}{
		{name: "regular window", min: 100, max: 250},
		{name: "single value", min: 42, max: 42},
		{name: "zero window", min: 0, max: 0},
		{name: "swapped bounds", min: 500, max: 200},
		{name: "tight window", min: 7, max: 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi := tt.min, tt.max
			if hi < lo {
				lo, hi = hi, lo
			}
			for i := 0; i < 1000; i++ {
				got := NextDelay(tt.min, tt.max)
				require.GreaterOrEqual(t, got, lo)
				require.LessOrEqual(t, got, hi)
			}
		})
	}
}

func TestNextDelay_Inclusive(t *testing.T) {
	// A fake source that always returns its largest and smallest value.
	assert.Equal(t, 10, nextDelay(func(n int) int { return 0 }, 10, 20))
	assert.Equal(t, 20, nextDelay(func(n int) int { return n - 1 }, 10, 20))
}

func TestNextDelay_CoversWindow(t *testing.T) {
	seen := make(map[int]bool)
	for i := 0; i < 2000; i++ {
		seen[NextDelay(1, 4)] = true
	}
	for v := 1; v <= 4; v++ {
		assert.True(t, seen[v], "value %d never produced", v)
	}
}

func TestNextDelay_NegativeClamped(t *testing.T) {
	assert.Equal(t, 0, NextDelay(-5, -1))
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.WithDefaults()
	assert.Equal(t, DefaultMinMs, cfg.MinMs)
	assert.Equal(t, DefaultMaxMs, cfg.MaxMs)

	custom := Config{MinMs: 5, MaxMs: 10}.WithDefaults()
	assert.Equal(t, 5, custom.MinMs)
	assert.Equal(t, 10, custom.MaxMs)
}

func TestPacer_Pause(t *testing.T) {
	p := NewPacer(Config{MinMs: 100, MaxMs: 200})
	var slept []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	for i := 0; i < 5; i++ {
		d, err := p.Pause(context.Background())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 200*time.Millisecond)
	}

	assert.Equal(t, 5, p.Calls())
	assert.Len(t, slept, 5)
}

func TestPacer_PauseCancelled(t *testing.T) {
	p := NewPacer(Config{MinMs: 60000, MaxMs: 60000})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Pause(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPacer_HourlyCap(t *testing.T) {
	p := NewPacer(Config{MinMs: 1, MaxMs: 1, MaxPerHour: 1})
	require.NotNil(t, p.limiter)

	// The first token is available immediately.
	_, err := p.Pause(context.Background())
	require.NoError(t, err)

	// The second would wait an hour; a short deadline must cut it off.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Pause(ctx)
	assert.Error(t, err)
}
