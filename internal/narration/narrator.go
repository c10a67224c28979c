// Package narration triggers narration clips. Playback is fire-and-forget and failures are only logged.
package narration

import (
	"context"
	"log/slog"
	"sync"

	"github.com/myrjola/turingtrial/internal/errors"
)

var ErrUnknownClip = errors.NewSentinel("unknown narration clip")

// Narrator plays narration clips. Play never blocks the caller.
type Narrator interface {
	Play(clipID string)
}

// Bell is the terminal bell rung when a clip plays.
type Bell interface {
	Write(p []byte) (int, error)
}

// LogNarrator records clips in the log and optionally rings a bell since the terminal cannot play audio.
type LogNarrator struct {
	logger *slog.Logger
	bell   Bell
	clips  map[string]string
	mu     sync.Mutex
	wg     sync.WaitGroup
}

// NewLogNarrator creates a narrator for the given clip texts. bell may be nil.
func NewLogNarrator(logger *slog.Logger, bell Bell, clips map[string]string) *LogNarrator {
	return &LogNarrator{
		logger: logger.With("source", "Narrator"),
		bell:   bell,
		clips:  clips,
		mu:     sync.Mutex{},
		wg:     sync.WaitGroup{},
	}
}

func (n *LogNarrator) Play(clipID string) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx := context.Background()
		text, ok := n.clips[clipID]
		if !ok {
			err := errors.Wrap(ErrUnknownClip, "play narration", slog.String("clip", clipID))
			n.logger.LogAttrs(ctx, slog.LevelWarn, "narration failed", errors.SlogError(err))
			return
		}
		n.logger.LogAttrs(ctx, slog.LevelInfo, "narration", slog.String("clip", clipID), slog.String("text", text))
		if n.bell == nil {
			return
		}
		n.mu.Lock()
		defer n.mu.Unlock()
		if _, err := n.bell.Write([]byte("\a")); err != nil {
			err = errors.Wrap(err, "ring bell")
			n.logger.LogAttrs(ctx, slog.LevelWarn, "narration failed", errors.SlogError(err))
		}
	}()
}

// Wait blocks until every clip started so far has played.
func (n *LogNarrator) Wait() {
	n.wg.Wait()
}

// DefaultClips are the narration lines of the courthouse case.
func DefaultClips() map[string]string {
	return map[string]string{
		"opening":              "All rise. The court is in session. You have until the recess to question the witnesses.",
		"end-of-investigation": "Time is up, detective. The court demands your verdict.",
		"verdict":              "The court will now hear your verdict.",
		"resolution":           "The court is adjourned.",
	}
}
