// Package phase implements the countdown state machine that decides when the player must give a verdict.
//
// The game starts Investigating with the investigation budget. When that runs out the timer moves to
// AwaitingVerdict with its own, independent verdict budget. Running out of the verdict budget resolves the game
// with a timeout, while a submitted verdict resolves it immediately.
package phase

import (
	"log/slog"
	"strings"

	"github.com/myrjola/turingtrial/internal/errors"
	"github.com/myrjola/turingtrial/internal/models"
)

var (
	ErrWrongPhase    = errors.NewSentinel("action not allowed in current phase")
	ErrInvalidBudget = errors.NewSentinel("countdown budget must be positive")
	ErrEmptyVerdict  = errors.NewSentinel("verdict must not be empty")
)

const (
	// ClipEndOfInvestigation is narrated when the investigation countdown runs out.
	ClipEndOfInvestigation = "end-of-investigation"
	// DefaultCorrectChoice is used when Config.CorrectChoice is blank.
	DefaultCorrectChoice = "no"
)

// Narrator plays narration clips. Play must not block.
type Narrator interface {
	Play(clipID string)
}

type Config struct {
	// InvestigationBudget is the number of ticks before the verdict is forced.
	InvestigationBudget int
	// VerdictBudget is the number of ticks the player has to give the forced verdict.
	VerdictBudget int
	// CorrectChoice is the verdict that resolves the case correctly. Compared case-insensitively. Defaults to
	// DefaultCorrectChoice.
	CorrectChoice string
}

type EventKind string

const (
	EventTick         EventKind = "tick"
	EventPhaseChanged EventKind = "phase-changed"
	EventStopped      EventKind = "stopped"
)

type Event struct {
	Kind  EventKind
	State models.PhaseState
}

// Timer is owned by the event loop. It does not keep time itself; something has to call Tick at a fixed
// interval, see Ticker.
type Timer struct {
	cfg       Config
	narrator  Narrator
	state     models.PhaseState
	observers []func(Event)
}

func New(cfg Config, narrator Narrator) (*Timer, error) {
	if cfg.InvestigationBudget <= 0 || cfg.VerdictBudget <= 0 {
		return nil, errors.Wrap(ErrInvalidBudget, "new phase timer",
			slog.Int("investigation_budget", cfg.InvestigationBudget),
			slog.Int("verdict_budget", cfg.VerdictBudget))
	}
	cfg.CorrectChoice = strings.TrimSpace(cfg.CorrectChoice)
	if cfg.CorrectChoice == "" {
		cfg.CorrectChoice = DefaultCorrectChoice
	}
	t := &Timer{
		cfg:       cfg,
		narrator:  narrator,
		state:     models.PhaseState{}, //nolint:exhaustruct // initialised below
		observers: nil,
	}
	t.state = t.initialState()
	return t, nil
}

func (t *Timer) initialState() models.PhaseState {
	return models.PhaseState{
		Phase:                  models.PhaseInvestigating,
		Outcome:                models.OutcomeNone,
		InvestigationRemaining: t.cfg.InvestigationBudget,
		VerdictRemaining:       t.cfg.VerdictBudget,
		Ticking:                true,
	}
}

// Subscribe registers fn to be called after every tick and every phase change.
func (t *Timer) Subscribe(fn func(Event)) {
	t.observers = append(t.observers, fn)
}

func (t *Timer) emit(kind EventKind) {
	event := Event{Kind: kind, State: t.state}
	for _, fn := range t.observers {
		fn(event)
	}
}

func (t *Timer) State() models.PhaseState {
	return t.state
}

// Tick advances the live countdown by one. It does nothing once the timer is resolved or stopped.
func (t *Timer) Tick() {
	if !t.state.Ticking {
		return
	}
	switch t.state.Phase {
	case models.PhaseInvestigating:
		t.state.InvestigationRemaining--
		if t.state.InvestigationRemaining > 0 {
			t.emit(EventTick)
			return
		}
		t.enterVerdictPhase()
	case models.PhaseAwaitingVerdict:
		t.state.VerdictRemaining--
		if t.state.VerdictRemaining > 0 {
			t.emit(EventTick)
			return
		}
		t.resolve(models.OutcomeTimeout)
	case models.PhaseResolved:
	}
}

func (t *Timer) enterVerdictPhase() {
	t.state.InvestigationRemaining = 0
	t.state.Phase = models.PhaseAwaitingVerdict
	t.state.VerdictRemaining = t.cfg.VerdictBudget
	if t.narrator != nil {
		t.narrator.Play(ClipEndOfInvestigation)
	}
	t.emit(EventPhaseChanged)
}

func (t *Timer) resolve(outcome models.Outcome) {
	t.state.Phase = models.PhaseResolved
	t.state.Outcome = outcome
	t.state.Ticking = false
	t.state.VerdictRemaining = 0
	t.emit(EventPhaseChanged)
}

// Advance ends the investigation early and moves to the verdict phase as if the investigation countdown had
// run out.
func (t *Timer) Advance() error {
	if t.state.Phase != models.PhaseInvestigating {
		return errors.Wrap(ErrWrongPhase, "advance", slog.String("phase", string(t.state.Phase)))
	}
	t.enterVerdictPhase()
	return nil
}

// VerdictSubmitted resolves the game with an outcome derived from choice. Only allowed while awaiting the
// verdict. A blank choice is rejected and leaves the timer as it was.
func (t *Timer) VerdictSubmitted(choice string) (models.Outcome, error) {
	if t.state.Phase != models.PhaseAwaitingVerdict {
		return models.OutcomeNone, errors.Wrap(ErrWrongPhase, "submit verdict",
			slog.String("phase", string(t.state.Phase)))
	}
	choice = strings.TrimSpace(choice)
	if choice == "" {
		return models.OutcomeNone, errors.Wrap(ErrEmptyVerdict, "submit verdict")
	}
	outcome := models.OutcomeIncorrect
	if strings.EqualFold(choice, t.cfg.CorrectChoice) {
		outcome = models.OutcomeCorrect
	}
	t.resolve(outcome)
	return outcome, nil
}

// Reset starts over from the investigation phase with a full investigation budget.
func (t *Timer) Reset() {
	t.state = t.initialState()
	t.emit(EventPhaseChanged)
}

// Stop pauses ticking and zeroes both countdowns without changing the phase.
func (t *Timer) Stop() {
	t.state.Ticking = false
	t.state.InvestigationRemaining = 0
	t.state.VerdictRemaining = 0
	t.emit(EventStopped)
}
