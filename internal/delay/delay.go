// Package delay produces the randomized pauses inserted between delivery items.
package delay

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultMinMs is the lower delay bound when none is configured.
	DefaultMinMs = 30000
	// DefaultMaxMs is the upper delay bound when none is configured.
	DefaultMaxMs = 90000
)

// NextDelay returns a delay in milliseconds uniformly distributed over
// [minMs, maxMs] inclusive. Swapped bounds are normalised; negative bounds
// are clamped to zero.
func NextDelay(minMs, maxMs int) int {
	return nextDelay(rand.IntN, minMs, maxMs)
}

func nextDelay(intN func(int) int, minMs, maxMs int) int {
	if minMs < 0 {
		minMs = 0
	}
	if maxMs < 0 {
		maxMs = 0
	}
	if maxMs < minMs {
		minMs, maxMs = maxMs, minMs
	}
	if minMs == maxMs {
		return minMs
	}
	return minMs + intN(maxMs-minMs+1)
}

// Config bounds the pause between items.
type Config struct {
	MinMs int
	MaxMs int
	// MaxPerHour caps item throughput over long runs. Zero disables the cap.
	MaxPerHour int
}

// WithDefaults fills unset bounds.
func (c Config) WithDefaults() Config {
	if c.MinMs == 0 && c.MaxMs == 0 {
		c.MinMs = DefaultMinMs
		c.MaxMs = DefaultMaxMs
	}
	return c
}

// Pacer sleeps a fresh random delay on every Pause.
type Pacer struct {
	cfg     Config
	limiter *rate.Limiter
	intN    func(int) int
	sleep   func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	calls int
}

// NewPacer creates a pacer for cfg.
func NewPacer(cfg Config) *Pacer {
	cfg = cfg.WithDefaults()
	p := &Pacer{
		cfg:   cfg,
		intN:  rand.IntN,
		sleep: sleepCtx,
	}
	if cfg.MaxPerHour > 0 {
		p.limiter = rate.NewLimiter(rate.Every(time.Hour/time.Duration(cfg.MaxPerHour)), 1)
	}
	return p
}

// Pause blocks for the next random delay and, when an hourly cap is set, until
// the cap admits another item. It returns the random delay that was slept.
func (p *Pacer) Pause(ctx context.Context) (time.Duration, error) {
	p.mu.Lock()
	p.calls++
	ms := nextDelay(p.intN, p.cfg.MinMs, p.cfg.MaxMs)
	p.mu.Unlock()

	d := time.Duration(ms) * time.Millisecond
	if err := p.sleep(ctx, d); err != nil {
		return d, err
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return d, err
		}
	}
	return d, nil
}

// Calls returns how many times Pause was invoked.
func (p *Pacer) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Config returns the effective configuration.
func (p *Pacer) Config() Config {
	return p.cfg
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
