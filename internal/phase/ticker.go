package phase

import (
	"context"
	"sync"
	"time"
)

// Poster hands a closure over to the goroutine that owns the timer.
type Poster interface {
	Post(fn func()) error
}

// Ticker calls tick on the poster's goroutine at a fixed real-time interval.
type Ticker struct {
	interval time.Duration
	poster   Poster
	tick     func()
	stopOnce sync.Once
	stopped  chan struct{}
}

func NewTicker(interval time.Duration, poster Poster, tick func()) *Ticker {
	return &Ticker{
		interval: interval,
		poster:   poster,
		tick:     tick,
		stopOnce: sync.Once{},
		stopped:  make(chan struct{}),
	}
}

// Run blocks posting ticks until ctx is done, Stop is called or the poster rejects a tick.
func (tk *Ticker) Run(ctx context.Context) {
	ticker := time.NewTicker(tk.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.stopped:
			return
		case <-ticker.C:
			if err := tk.poster.Post(tk.tick); err != nil {
				return
			}
		}
	}
}

func (tk *Ticker) Stop() {
	tk.stopOnce.Do(func() {
		close(tk.stopped)
	})
}
