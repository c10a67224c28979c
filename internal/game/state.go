package game

import (
	"context"

	"github.com/myrjola/turingtrial/internal/errors"
	"github.com/myrjola/turingtrial/internal/models"
)

type SessionState struct {
	InFlight bool          `json:"in_flight"`
	Failed   bool          `json:"failed"`
	Log      []models.Turn `json:"log"`
}

// State is a consistent copy of the game state.
type State struct {
	Ready        bool                                `json:"ready"`
	Scene        string                              `json:"scene"`
	Active       models.CharacterID                  `json:"active"`
	Phase        models.PhaseState                   `json:"phase"`
	Engaged      map[models.CharacterID]bool         `json:"engaged"`
	VerdictGiven bool                                `json:"verdict_given"`
	Transcript   []models.Turn                       `json:"transcript"`
	Sessions     map[models.CharacterID]SessionState `json:"sessions"`
	FailedViews  []string                            `json:"failed_views"`
}

// Snapshot reads the game state on the event loop. It works before the game is ready.
func (g *Game) Snapshot(ctx context.Context) (State, error) {
	var state State
	if err := g.loop.Call(ctx, func() {
		state = g.state()
	}); err != nil {
		return State{}, errors.Wrap(err, "snapshot")
	}
	return state, nil
}

func (g *Game) state() State {
	sessions := make(map[models.CharacterID]SessionState, len(g.sessions))
	for id, s := range g.sessions {
		sessions[id] = SessionState{InFlight: s.InFlight(), Failed: s.Failed(), Log: s.Log()}
	}
	return State{
		Ready:        g.ready,
		Scene:        g.scene,
		Active:       g.active,
		Phase:        g.timer.State(),
		Engaged:      g.tracker.EngagedSet(),
		VerdictGiven: g.tracker.Flag(flagVerdictGiven),
		Transcript:   g.shared.Snapshot(),
		Sessions:     sessions,
		FailedViews:  g.cache.Failed(),
	}
}

// Active returns the character whose conversation is on screen, or an empty id outside conversations.
func (g *Game) Active(ctx context.Context) (models.CharacterID, error) {
	var active models.CharacterID
	if err := g.loop.Call(ctx, func() {
		active = g.active
	}); err != nil {
		return "", errors.Wrap(err, "active character")
	}
	return active, nil
}
