// Package sensitivity scores videos for content moderation. The only
// implementation is a placeholder heuristic; a real classifier plugs in
// behind the Scorer interface.
package sensitivity

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"vidsafe/media"
)

type Result struct {
	Score  float64
	Status media.SensitivityStatus
}

type Scorer interface {
	Score(ctx context.Context, video *media.Video) (Result, error)
}

// Source yields uniform values in [0, 1). *rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real-time SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NoSleep returns immediately unless ctx is already done.
func NoSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// Heuristic draws a uniform random score after a simulated analysis delay.
type Heuristic struct {
	mu     sync.Mutex
	source Source
	sleep  SleepFunc
	delay  time.Duration
}

type Option func(*Heuristic)

func WithSource(src Source) Option {
	return func(h *Heuristic) { h.source = src }
}

func WithSleep(sleep SleepFunc, delay time.Duration) Option {
	return func(h *Heuristic) {
		h.sleep = sleep
		h.delay = delay
	}
}

func NewHeuristic(opts ...Option) *Heuristic {
	h := &Heuristic{
		source: rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  Sleep,
		delay:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Heuristic) Score(ctx context.Context, video *media.Video) (Result, error) {
	if err := h.sleep(ctx, h.delay); err != nil {
		return Result{}, err
	}

	// Source implementations such as *rand.Rand are not safe for concurrent use.
	h.mu.Lock()
	v := h.source.Float64()
	h.mu.Unlock()

	if v < 0 || v >= 1 {
		return Result{}, media.Failuref(media.ScoringFailure, "source value %v outside [0, 1)", v)
	}

	score := v * 100
	return Result{Score: score, Status: media.Classify(score)}, nil
}
