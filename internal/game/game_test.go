package game_test

import (
	"context"
	"io"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/myrjola/turingtrial/internal/ai"
	"github.com/myrjola/turingtrial/internal/character"
	"github.com/myrjola/turingtrial/internal/conversation"
	"github.com/myrjola/turingtrial/internal/game"
	"github.com/myrjola/turingtrial/internal/models"
	"github.com/myrjola/turingtrial/internal/phase"
	"github.com/myrjola/turingtrial/internal/testhelpers"
	"github.com/myrjola/turingtrial/internal/views"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	gate    chan struct{}
	missing map[string]bool
}

func (l *fakeLoader) Load(ctx context.Context, id string) (models.ViewHandle, error) {
	if l.gate != nil {
		select {
		case <-l.gate:
		case <-ctx.Done():
			return models.ViewHandle{}, ctx.Err()
		}
	}
	if l.missing[id] {
		return models.ViewHandle{}, views.ErrNotFound
	}
	controller := models.SceneController{Kind: models.SceneKindCharacter, Character: models.CharacterID(id)}
	switch id {
	case game.SceneMenu:
		controller = models.SceneController{Kind: models.SceneKindMenu, Character: ""}
	case game.SceneVerdict:
		controller = models.SceneController{Kind: models.SceneKindVerdict, Character: ""}
	case game.SceneResolution:
		controller = models.SceneController{Kind: models.SceneKindResolution, Character: ""}
	}
	return models.ViewHandle{
		ID:           id,
		Presentation: models.Scene{ID: id, Title: id, Description: "", BackdropPath: "", NarrationClip: ""},
		Controller:   controller,
	}, nil
}

type request struct {
	systemPrompt string
	messages     []ai.Message
}

// scriptedCompleter answers immediately and fails the first failures calls.
type scriptedCompleter struct {
	mu       sync.Mutex
	failures int
	requests []request
}

func (c *scriptedCompleter) Complete(_ context.Context, systemPrompt string, messages []ai.Message) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, request{systemPrompt: systemPrompt, messages: messages})
	if c.failures > 0 {
		c.failures--
		return "", &ai.BackendError{Kind: ai.KindNetwork, Err: io.ErrUnexpectedEOF}
	}
	last := messages[len(messages)-1].Content
	return "answer to " + last[strings.Index(last, "]: ")+3:], nil
}

func (c *scriptedCompleter) lastRequest() request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[len(c.requests)-1]
}

type recordingNarrator struct {
	mu    sync.Mutex
	clips []string
}

func (n *recordingNarrator) Play(clipID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.clips = append(n.clips, clipID)
}

func (n *recordingNarrator) played(clipID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Contains(n.clips, clipID)
}

type fixture struct {
	game      *game.Game
	completer *scriptedCompleter
	narrator  *recordingNarrator
	loader    *fakeLoader

	mu     sync.Mutex
	events []game.Event
}

type option func(*fixture, *game.Config)

func withBudgets(investigation, verdict int, tick time.Duration) option {
	return func(_ *fixture, cfg *game.Config) {
		cfg.InvestigationBudget = investigation
		cfg.VerdictBudget = verdict
		cfg.TickInterval = tick
	}
}

func withMissing(ids ...string) option {
	return func(f *fixture, _ *game.Config) {
		for _, id := range ids {
			f.loader.missing[id] = true
		}
	}
}

func withGate(gate chan struct{}) option {
	return func(f *fixture, _ *game.Config) {
		f.loader.gate = gate
	}
}

func withFailures(n int) option {
	return func(f *fixture, _ *game.Config) {
		f.completer.failures = n
	}
}

func startGame(t *testing.T, opts ...option) *fixture {
	t.Helper()
	f := &fixture{
		completer: &scriptedCompleter{},
		narrator:  &recordingNarrator{},
		loader:    &fakeLoader{gate: nil, missing: map[string]bool{}},
	}
	cfg := game.Config{
		InvestigationBudget: 300,
		VerdictBudget:       60,
		CorrectChoice:       "no",
		TickInterval:        time.Hour,
		CompletionTimeout:   time.Second,
	}
	for _, opt := range opts {
		opt(f, &cfg)
	}
	g, err := game.New(game.Deps{
		Loader:     f.loader,
		Completer:  f.completer,
		Narrator:   f.narrator,
		Characters: character.Cast(),
		Config:     cfg,
		Logger:     testhelpers.NewLogger(io.Discard),
	})
	require.NoError(t, err)
	g.Subscribe(func(e game.Event) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.events = append(f.events, e)
	})
	f.game = g

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, g.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return f
}

func (f *fixture) waitEvent(t *testing.T, match func(game.Event) bool) game.Event {
	t.Helper()
	var found game.Event
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		for _, e := range f.events {
			if match(e) {
				found = e
				return true
			}
		}
		return false
	}, testhelpers.WaitTimeout, testhelpers.PollInterval)
	return found
}

func (f *fixture) waitReady(t *testing.T) game.Event {
	t.Helper()
	return f.waitEvent(t, func(e game.Event) bool { return e.Kind == game.EventReady })
}

func (f *fixture) waitState(t *testing.T, cond func(game.State) bool) game.State {
	t.Helper()
	var state game.State
	require.Eventually(t, func() bool {
		var err error
		if state, err = f.game.Snapshot(context.Background()); err != nil {
			return false
		}
		return cond(state)
	}, testhelpers.WaitTimeout, testhelpers.PollInterval)
	return state
}

func (f *fixture) ask(t *testing.T, id models.CharacterID, text string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.game.RequestScene(ctx, string(id)))
	require.NoError(t, f.game.SendMessage(ctx, id, text))
	f.waitState(t, func(s game.State) bool {
		log := s.Sessions[id].Log
		return len(log) > 0 && log[len(log)-1].Role != models.RoleUser
	})
}

func TestNew_invalidCast(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cast []character.Character
	}{
		{name: "missing character", cast: []character.Character{character.Defendant(), character.AIWitness()}},
		{
			name: "unknown character",
			cast: append(character.Cast(), character.NewPersona("judge", "Judge", "You are the judge.")),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := game.New(game.Deps{
				Loader:     &fakeLoader{},
				Completer:  &scriptedCompleter{},
				Narrator:   &recordingNarrator{},
				Characters: tt.cast,
				Config:     game.Config{InvestigationBudget: 1, VerdictBudget: 1},
				Logger:     testhelpers.NewLogger(io.Discard),
			})
			require.ErrorIs(t, err, game.ErrInvalidCast)
		})
	}
}

func TestGame_startupBarrier(t *testing.T) {
	t.Parallel()
	gate := make(chan struct{})
	f := startGame(t, withGate(gate))
	ctx := context.Background()

	state, err := f.game.Snapshot(ctx)
	require.NoError(t, err)
	require.False(t, state.Ready)
	require.Empty(t, state.Scene)
	require.ErrorIs(t, f.game.RequestScene(ctx, game.SceneMenu), game.ErrNotReady)
	require.ErrorIs(t, f.game.SendMessage(ctx, models.CharacterDefendant, "hi"), game.ErrNotReady)

	close(gate)
	ready := f.waitReady(t)
	require.ElementsMatch(t, game.ViewIDs(), ready.Report.Succeeded)
	require.Empty(t, ready.Report.Failed)

	state, err = f.game.Snapshot(ctx)
	require.NoError(t, err)
	require.True(t, state.Ready)
	require.Equal(t, game.SceneMenu, state.Scene)
	require.Equal(t, models.PhaseInvestigating, state.Phase.Phase)
	require.Equal(t, 300, state.Phase.InvestigationRemaining)
}

func TestGame_preloadFailure(t *testing.T) {
	t.Parallel()
	f := startGame(t, withMissing(game.SceneVerdict))
	ready := f.waitReady(t)
	require.Equal(t, []string{game.SceneVerdict}, ready.Report.Failed)
	f.waitEvent(t, func(e game.Event) bool {
		return e.Kind == game.EventPreloadFailed && e.ViewID == game.SceneVerdict
	})

	ctx := context.Background()
	require.ErrorIs(t, f.game.RequestScene(ctx, game.SceneVerdict), views.ErrNotPreloaded)
	state, err := f.game.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, game.SceneMenu, state.Scene, "a failed switch keeps the current scene")
	require.Equal(t, []string{game.SceneVerdict}, state.FailedViews)
}

func TestGame_conversations(t *testing.T) {
	t.Parallel()
	f := startGame(t)
	f.waitReady(t)
	ctx := context.Background()

	require.ErrorIs(t, f.game.SendMessage(ctx, models.CharacterDefendant, "hi"), game.ErrNotActive)
	require.ErrorIs(t, f.game.SendMessage(ctx, "judge", "hi"), game.ErrUnknownCharacter)

	f.ask(t, models.CharacterHumanWitness, "who did you see?")
	f.ask(t, models.CharacterDefendant, "were you there?")

	require.ErrorIs(t, f.game.SendMessage(ctx, models.CharacterHumanWitness, "hello"), game.ErrNotActive)
	require.ErrorIs(t, f.game.SendMessage(ctx, models.CharacterDefendant, "  "), conversation.ErrEmptyInput)

	// Returning to the witness replays what the defendant said in the meantime.
	f.ask(t, models.CharacterHumanWitness, "are you sure?")
	req := f.completer.lastRequest()
	require.Equal(t, character.HumanWitness().SystemPrompt(), req.systemPrompt)
	contents := make([]string, 0, len(req.messages))
	for _, m := range req.messages {
		contents = append(contents, m.Content)
	}
	require.Equal(t, []string{
		"[Detective → Maria Okafor]: who did you see?",
		"answer to who did you see?",
		"[Detective → Daniel Harrow]: were you there?",
		"[Daniel Harrow]: answer to were you there?",
		"[Detective → Maria Okafor]: are you sure?",
	}, contents)

	state, err := f.game.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, models.CharacterHumanWitness, state.Active)
	active, err := f.game.Active(ctx)
	require.NoError(t, err)
	require.Equal(t, models.CharacterHumanWitness, active)
	require.Len(t, state.Transcript, 6)
	for i, turn := range state.Transcript {
		require.Equal(t, int64(i+1), turn.Sequence)
	}
	require.Equal(t, map[models.CharacterID]bool{
		models.CharacterDefendant:    true,
		models.CharacterHumanWitness: true,
		models.CharacterAIWitness:    false,
	}, state.Engaged)
}

func TestGame_failureAndRetry(t *testing.T) {
	t.Parallel()
	f := startGame(t, withFailures(1))
	f.waitReady(t)
	ctx := context.Background()

	require.NoError(t, f.game.RequestScene(ctx, string(models.CharacterAIWitness)))
	require.NoError(t, f.game.SendMessage(ctx, models.CharacterAIWitness, "show the logs"))
	failure := f.waitEvent(t, func(e game.Event) bool { return e.Kind == game.EventTurn && e.Err != nil })
	require.Equal(t, models.RoleFailure, failure.Turn.Role)
	require.Equal(t, ai.KindNetwork, ai.KindOf(failure.Err))

	state := f.waitState(t, func(s game.State) bool { return s.Sessions[models.CharacterAIWitness].Failed })
	require.False(t, state.Sessions[models.CharacterAIWitness].InFlight)
	require.Len(t, state.Transcript, 1)

	require.NoError(t, f.game.Retry(ctx, models.CharacterAIWitness))
	state = f.waitState(t, func(s game.State) bool { return len(s.Transcript) == 2 })
	require.False(t, state.Sessions[models.CharacterAIWitness].Failed)
	require.Equal(t, "answer to show the logs", state.Transcript[1].Content)
	require.ErrorIs(t, f.game.Retry(ctx, models.CharacterAIWitness), conversation.ErrNothingToRetry)
}

func TestGame_SubmitVerdict(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		choice  string
		outcome models.Outcome
	}{
		{name: "correct", choice: "No", outcome: models.OutcomeCorrect},
		{name: "incorrect", choice: "yes", outcome: models.OutcomeIncorrect},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := startGame(t)
			f.waitReady(t)
			ctx := context.Background()

			_, err := f.game.SubmitVerdict(ctx, tt.choice)
			require.ErrorIs(t, err, game.ErrNotAllEngaged)

			for _, id := range models.AllCharacters() {
				f.ask(t, id, "what happened?")
			}
			outcome, err := f.game.SubmitVerdict(ctx, tt.choice)
			require.NoError(t, err)
			require.Equal(t, tt.outcome, outcome)

			state, err := f.game.Snapshot(ctx)
			require.NoError(t, err)
			require.Equal(t, models.PhaseResolved, state.Phase.Phase)
			require.Equal(t, tt.outcome, state.Phase.Outcome)
			require.Equal(t, game.SceneResolution, state.Scene)
			require.True(t, state.VerdictGiven)
			require.True(t, f.narrator.played(phase.ClipEndOfInvestigation))

			_, err = f.game.SubmitVerdict(ctx, tt.choice)
			require.ErrorIs(t, err, phase.ErrWrongPhase)
			require.ErrorIs(t, f.game.SendMessage(ctx, models.CharacterAIWitness, "hi"), phase.ErrWrongPhase)
		})
	}
}

func TestGame_RequestScene(t *testing.T) {
	t.Parallel()
	f := startGame(t)
	f.waitReady(t)
	ctx := context.Background()

	sceneIs := func(want string) {
		t.Helper()
		state, err := f.game.Snapshot(ctx)
		require.NoError(t, err)
		require.Equal(t, want, state.Scene)
	}

	err := f.game.RequestScene(ctx, game.SceneResolution)
	require.ErrorIs(t, err, phase.ErrWrongPhase)
	err = f.game.RequestScene(ctx, game.SceneVerdict)
	require.ErrorIs(t, err, phase.ErrWrongPhase)
	require.ErrorIs(t, err, game.ErrNotAllEngaged)
	sceneIs(game.SceneMenu)

	for _, id := range models.AllCharacters() {
		f.ask(t, id, "what happened?")
	}
	require.ErrorIs(t, f.game.RequestScene(ctx, game.SceneResolution), phase.ErrWrongPhase)
	require.NoError(t, f.game.RequestScene(ctx, game.SceneVerdict), "an early verdict is open once all are engaged")
	sceneIs(game.SceneVerdict)

	_, err = f.game.SubmitVerdict(ctx, "yes")
	require.NoError(t, err)
	sceneIs(game.SceneResolution)

	require.NoError(t, f.game.RequestScene(ctx, game.SceneMenu))
	require.ErrorIs(t, f.game.RequestScene(ctx, game.SceneVerdict), phase.ErrWrongPhase)
	require.NoError(t, f.game.RequestScene(ctx, game.SceneResolution))
	sceneIs(game.SceneResolution)
}

func TestGame_SubmitVerdictDefaults(t *testing.T) {
	t.Parallel()
	f := startGame(t, func(_ *fixture, cfg *game.Config) { cfg.CorrectChoice = "" })
	f.waitReady(t)
	ctx := context.Background()
	for _, id := range models.AllCharacters() {
		f.ask(t, id, "what happened?")
	}

	_, err := f.game.SubmitVerdict(ctx, " ")
	require.ErrorIs(t, err, phase.ErrEmptyVerdict)
	state, err := f.game.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, models.PhaseInvestigating, state.Phase.Phase, "a blank verdict must not end the investigation")

	outcome, err := f.game.SubmitVerdict(ctx, "no")
	require.NoError(t, err)
	require.Equal(t, models.OutcomeCorrect, outcome)
}

func TestGame_StopStopsTimer(t *testing.T) {
	t.Parallel()
	f := startGame(t)
	f.waitReady(t)

	f.game.Stop()
	stopped := f.waitEvent(t, func(e game.Event) bool {
		return e.Kind == game.EventPhase && !e.Phase.Ticking
	})
	require.Equal(t, models.PhaseInvestigating, stopped.Phase.Phase)
	require.Zero(t, stopped.Phase.InvestigationRemaining)
	require.Zero(t, stopped.Phase.VerdictRemaining)
}

func TestGame_timeout(t *testing.T) {
	t.Parallel()
	f := startGame(t, withBudgets(2, 2, time.Millisecond))
	f.waitReady(t)

	verdict := f.waitEvent(t, func(e game.Event) bool {
		return e.Kind == game.EventScene && e.ViewID == game.SceneVerdict
	})
	require.Equal(t, game.SceneVerdict, verdict.View.ID)

	state := f.waitState(t, func(s game.State) bool { return s.Phase.Phase == models.PhaseResolved })
	require.Equal(t, models.OutcomeTimeout, state.Phase.Outcome)
	require.False(t, state.Phase.Ticking)
	require.Equal(t, game.SceneResolution, state.Scene)
	require.False(t, state.VerdictGiven)
	require.True(t, f.narrator.played(phase.ClipEndOfInvestigation))
	f.waitEvent(t, func(e game.Event) bool { return e.Kind == game.EventTick })
}

func TestGame_Restart(t *testing.T) {
	t.Parallel()
	f := startGame(t)
	f.waitReady(t)
	ctx := context.Background()

	for _, id := range models.AllCharacters() {
		f.ask(t, id, "what happened?")
	}
	_, err := f.game.SubmitVerdict(ctx, "no")
	require.NoError(t, err)

	require.NoError(t, f.game.Restart(ctx))
	state, err := f.game.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, models.PhaseInvestigating, state.Phase.Phase)
	require.Equal(t, 300, state.Phase.InvestigationRemaining)
	require.True(t, state.Phase.Ticking)
	require.Equal(t, game.SceneMenu, state.Scene)
	require.Empty(t, state.Transcript)
	require.Empty(t, state.Sessions)
	require.False(t, state.VerdictGiven)
	for _, engaged := range state.Engaged {
		require.False(t, engaged)
	}

	f.ask(t, models.CharacterDefendant, "again?")
	state, err = f.game.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, state.Transcript, 2)
	require.Equal(t, int64(1), state.Transcript[0].Sequence)
}
