package game

import (
	"context"
	"log/slog"
	"strings"

	"github.com/myrjola/turingtrial/internal/conversation"
	"github.com/myrjola/turingtrial/internal/errors"
	"github.com/myrjola/turingtrial/internal/logging"
	"github.com/myrjola/turingtrial/internal/models"
	"github.com/myrjola/turingtrial/internal/phase"
	"github.com/myrjola/turingtrial/internal/transcript"
)

// do runs action on the event loop and returns its error.
func (g *Game) do(ctx context.Context, action func() error) error {
	var err error
	if callErr := g.loop.Call(ctx, func() {
		if !g.ready {
			err = ErrNotReady
			return
		}
		err = action()
	}); callErr != nil {
		return errors.Wrap(callErr, "dispatch action")
	}
	return err
}

// RequestScene switches to the view with the given id. Views that failed to preload return
// views.ErrNotPreloaded and leave the current scene in place. The verdict and resolution scenes follow the phase
// timer and are rejected with phase.ErrWrongPhase outside their phase.
func (g *Game) RequestScene(ctx context.Context, id string) error {
	return g.do(ctx, func() error {
		if err := g.sceneAllowed(id); err != nil {
			return err
		}
		return g.switchScene(g.runCtx, id)
	})
}

// sceneAllowed opens the verdict scene while awaiting the verdict, or earlier once every character has been
// questioned. The resolution scene only opens once the case is resolved.
func (g *Game) sceneAllowed(id string) error {
	handle, err := g.cache.Get(id)
	if err != nil {
		return errors.Wrap(err, "request scene")
	}
	controller, _ := handle.SceneController()
	current := g.timer.State().Phase
	attrs := []slog.Attr{slog.String("scene", id), slog.String("phase", string(current))}
	switch controller.Kind {
	case models.SceneKindVerdict:
		switch current {
		case models.PhaseAwaitingVerdict:
		case models.PhaseInvestigating:
			if !g.tracker.AllEngaged() {
				return errors.Wrap(errors.Join(phase.ErrWrongPhase, ErrNotAllEngaged), "request scene", attrs...)
			}
		case models.PhaseResolved:
			return errors.Wrap(phase.ErrWrongPhase, "request scene", attrs...)
		}
	case models.SceneKindResolution:
		if current != models.PhaseResolved {
			return errors.Wrap(phase.ErrWrongPhase, "request scene", attrs...)
		}
	case models.SceneKindMenu, models.SceneKindCharacter:
	}
	return nil
}

func (g *Game) session(id models.CharacterID) (*conversation.Session, error) {
	if _, ok := g.characters[id]; !ok {
		return nil, errors.Wrap(ErrUnknownCharacter, "find session", slog.String("character", string(id)))
	}
	if g.active != id {
		return nil, errors.Wrap(ErrNotActive, "find session",
			slog.String("character", string(id)), slog.String("active", string(g.active)))
	}
	return g.sessions[id], nil
}

// SendMessage asks the active character a question. The reply arrives later as an EventTurn.
func (g *Game) SendMessage(ctx context.Context, id models.CharacterID, text string) error {
	return g.do(ctx, func() error {
		if g.timer.State().Phase == models.PhaseResolved {
			return errors.Wrap(phase.ErrWrongPhase, "send message")
		}
		s, err := g.session(id)
		if err != nil {
			return err
		}
		requestCtx := logging.WithAttrs(g.runCtx, slog.String("character", string(id)))
		if err = s.Send(requestCtx, text); err != nil {
			return errors.Wrap(err, "send message")
		}
		return nil
	})
}

// Retry resends the active character's last failed request.
func (g *Game) Retry(ctx context.Context, id models.CharacterID) error {
	return g.do(ctx, func() error {
		s, err := g.session(id)
		if err != nil {
			return err
		}
		requestCtx := logging.WithAttrs(g.runCtx, slog.String("character", string(id)))
		if err = s.Retry(requestCtx); err != nil {
			return errors.Wrap(err, "retry")
		}
		return nil
	})
}

// SubmitVerdict resolves the case. During the investigation an early verdict is only accepted once every
// character has been questioned.
func (g *Game) SubmitVerdict(ctx context.Context, choice string) (models.Outcome, error) {
	var outcome models.Outcome
	err := g.do(ctx, func() error {
		// Checked before an early verdict advances the timer.
		if strings.TrimSpace(choice) == "" {
			return errors.Wrap(phase.ErrEmptyVerdict, "submit verdict")
		}
		if g.timer.State().Phase == models.PhaseInvestigating {
			if !g.tracker.AllEngaged() {
				return errors.Wrap(ErrNotAllEngaged, "submit verdict",
					slog.Any("engaged", g.tracker.EngagedSet()))
			}
			if err := g.timer.Advance(); err != nil {
				return errors.Wrap(err, "submit verdict")
			}
		}
		var err error
		if outcome, err = g.timer.VerdictSubmitted(choice); err != nil {
			return errors.Wrap(err, "submit verdict")
		}
		g.tracker.SetFlag(flagVerdictGiven, true)
		return nil
	})
	return outcome, err
}

const flagVerdictGiven = "verdict-given"

// Restart begins a new run: no conversations, nothing engaged and a full investigation countdown.
func (g *Game) Restart(ctx context.Context) error {
	return g.do(ctx, func() error {
		g.logger.LogAttrs(g.runCtx, slog.LevelInfo, "game restarted", slog.Int("discarded_turns", g.shared.Len()))
		g.sessions = make(map[models.CharacterID]*conversation.Session)
		g.shared = transcript.New()
		g.tracker.Reset()
		g.active = ""
		g.timer.Reset()
		return g.switchScene(g.runCtx, g.cfg.InitialScene)
	})
}
