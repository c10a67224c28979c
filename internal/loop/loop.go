// Package loop implements the coordinating goroutine of the game.
//
// All state shared between components (cached views, the shared transcript, progress and the phase timer) is
// owned by a single Loop. Background workers never touch that state directly: they compute a result and hand a
// closure over to the loop, which applies closures one at a time in arrival order. This gives single-writer
// semantics without locks.
package loop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/myrjola/turingtrial/internal/errors"
)

var ErrStopped = errors.NewSentinel("event loop stopped")

// DefaultCapacity bounds the event queue. Posting to a full queue blocks the poster, never the loop.
const DefaultCapacity = 64

type Loop struct {
	events      chan func()
	stopChannel chan struct{}
	stopOnce    sync.Once
	logger      *slog.Logger
}

// New creates a Loop with a queue of the given capacity. Use Run to start draining it.
func New(capacity int, logger *slog.Logger) *Loop {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Loop{
		events:      make(chan func(), capacity),
		stopChannel: make(chan struct{}),
		logger:      logger.With("source", "Loop"),
	}
}

// Run drains the event queue until ctx is done or Stop is called. It blocks, so it should be called in its own
// goroutine. Events that panic are logged and the loop keeps going.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			l.Stop()
			return
		case <-l.stopChannel:
			return
		case fn := <-l.events:
			l.dispatch(ctx, fn)
		}
	}
}

func (l *Loop) dispatch(ctx context.Context, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.New("event panicked", slog.String("panic", fmt.Sprint(r)))
			l.logger.LogAttrs(ctx, slog.LevelError, "recovered from panic in event", errors.SlogError(err))
		}
	}()
	fn()
}

// Stop the loop. Pending events are discarded. Safe to call more than once.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopChannel)
	})
}

// Post enqueues fn for execution on the loop. It may be called from any goroutine, including the loop itself as
// long as the queue has room.
func (l *Loop) Post(fn func()) error {
	select {
	case <-l.stopChannel:
		return ErrStopped
	default:
	}
	select {
	case l.events <- fn:
		return nil
	case <-l.stopChannel:
		return ErrStopped
	}
}

// Call runs fn on the loop and waits until it has finished. It must not be called from the loop goroutine, which
// would deadlock.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := l.Post(func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "wait for event")
	case <-l.stopChannel:
		return ErrStopped
	}
}

// Go runs work on a new goroutine and applies the closure it returns on the loop. A nil closure is ignored.
func (l *Loop) Go(ctx context.Context, work func() func()) {
	go func() {
		apply := work()
		if apply == nil {
			return
		}
		if err := l.Post(apply); err != nil {
			l.logger.LogAttrs(ctx, slog.LevelDebug, "dropped worker result", errors.SlogError(err))
		}
	}()
}
