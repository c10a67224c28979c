// Package game composes the view cache, the conversation sessions, the progress tracker and the phase timer into
// one running game.
//
// Every piece of game state is owned by a single event loop. Player actions, worker results and timer ticks are
// all posted to that loop, so they are applied one at a time in arrival order.
package game

import (
	"context"
	"log/slog"
	"time"

	"github.com/myrjola/turingtrial/internal/character"
	"github.com/myrjola/turingtrial/internal/conversation"
	"github.com/myrjola/turingtrial/internal/errors"
	"github.com/myrjola/turingtrial/internal/loop"
	"github.com/myrjola/turingtrial/internal/models"
	"github.com/myrjola/turingtrial/internal/phase"
	"github.com/myrjola/turingtrial/internal/progress"
	"github.com/myrjola/turingtrial/internal/transcript"
	"github.com/myrjola/turingtrial/internal/views"
)

var (
	ErrNotReady         = errors.NewSentinel("game is still loading")
	ErrNotAllEngaged    = errors.NewSentinel("question every character before giving an early verdict")
	ErrUnknownCharacter = errors.NewSentinel("unknown character")
	ErrNotActive        = errors.NewSentinel("character is not in the current scene")
	ErrInvalidCast      = errors.NewSentinel("invalid cast")
)

const (
	SceneMenu       = "menu"
	SceneVerdict    = "verdict"
	SceneResolution = "resolution"
)

// ViewIDs is the fixed set of views preloaded at startup.
func ViewIDs() []string {
	ids := []string{SceneMenu}
	for _, id := range models.AllCharacters() {
		ids = append(ids, string(id))
	}
	return append(ids, SceneVerdict, SceneResolution)
}

type Config struct {
	InvestigationBudget int
	VerdictBudget       int
	CorrectChoice       string
	TickInterval        time.Duration
	CompletionTimeout   time.Duration
	// InitialScene is shown once preloading has finished. Defaults to SceneMenu.
	InitialScene string
	// ViewIDs overrides the preloaded view set. Defaults to ViewIDs().
	ViewIDs       []string
	QueueCapacity int
}

type Deps struct {
	Loader     views.Loader
	Completer  conversation.Completer
	Narrator   phase.Narrator
	Characters []character.Character
	Config     Config
	Logger     *slog.Logger
}

type EventKind string

const (
	EventReady         EventKind = "ready"
	EventScene         EventKind = "scene"
	EventSceneFailed   EventKind = "scene-failed"
	EventPreloadFailed EventKind = "preload-failed"
	EventTurn          EventKind = "turn"
	EventBusy          EventKind = "busy"
	EventTick          EventKind = "tick"
	EventPhase         EventKind = "phase"
)

// Event is delivered to subscribers on the event loop. Subscribers must not block.
type Event struct {
	Kind      EventKind
	View      models.ViewHandle
	ViewID    string
	Character models.CharacterID
	Turn      models.Turn
	InFlight  bool
	Phase     models.PhaseState
	Report    views.Report
	Err       error
}

type Game struct {
	cfg        Config
	logger     *slog.Logger
	rootLogger *slog.Logger
	loop       *loop.Loop
	cache      *views.Cache
	tracker    *progress.Tracker
	timer      *phase.Timer
	narrator   phase.Narrator

	completer  conversation.Completer
	characters map[models.CharacterID]character.Character
	names      map[models.CharacterID]string

	// Everything below is owned by the loop.
	runCtx    context.Context
	ticker    *phase.Ticker
	shared    *transcript.Shared
	sessions  map[models.CharacterID]*conversation.Session
	active    models.CharacterID
	scene     string
	ready     bool
	observers []func(Event)
}

func New(deps Deps) (*Game, error) {
	cfg := deps.Config
	if cfg.InitialScene == "" {
		cfg.InitialScene = SceneMenu
	}
	if cfg.ViewIDs == nil {
		cfg.ViewIDs = ViewIDs()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	cast := deps.Characters
	if cast == nil {
		cast = character.Cast()
	}
	characters := make(map[models.CharacterID]character.Character, len(cast))
	names := make(map[models.CharacterID]string, len(cast))
	for _, c := range cast {
		if !c.ID().Valid() {
			return nil, errors.Wrap(ErrInvalidCast, "unknown character", slog.String("character", string(c.ID())))
		}
		characters[c.ID()] = c
		names[c.ID()] = c.DisplayName()
	}
	for _, id := range models.AllCharacters() {
		if _, ok := characters[id]; !ok {
			return nil, errors.Wrap(ErrInvalidCast, "missing character", slog.String("character", string(id)))
		}
	}

	timer, err := phase.New(phase.Config{
		InvestigationBudget: cfg.InvestigationBudget,
		VerdictBudget:       cfg.VerdictBudget,
		CorrectChoice:       cfg.CorrectChoice,
	}, deps.Narrator)
	if err != nil {
		return nil, errors.Wrap(err, "new phase timer")
	}

	logger := deps.Logger.With("source", "Game")
	l := loop.New(cfg.QueueCapacity, deps.Logger)
	g := &Game{
		cfg:        cfg,
		logger:     logger,
		rootLogger: deps.Logger,
		loop:       l,
		cache:      views.New(deps.Loader, l, deps.Logger),
		tracker:    progress.NewTracker(),
		timer:      timer,
		narrator:   deps.Narrator,
		completer:  deps.Completer,
		characters: characters,
		names:      names,
		runCtx:     context.Background(),
		ticker:     nil,
		shared:     transcript.New(),
		sessions:   make(map[models.CharacterID]*conversation.Session),
		active:     "",
		scene:      "",
		ready:      false,
		observers:  nil,
	}
	g.timer.Subscribe(g.onPhaseEvent)
	g.cache.OnError(func(id string, err error) {
		g.emit(Event{Kind: EventPreloadFailed, ViewID: id, Err: err})
	})
	return g, nil
}

// Subscribe registers fn for every game event. Call it before Run.
func (g *Game) Subscribe(fn func(Event)) {
	g.observers = append(g.observers, fn)
}

func (g *Game) emit(event Event) {
	for _, fn := range g.observers {
		fn(event)
	}
}

// Run preloads the views and then drives the game until ctx is done or Stop is called. Nothing is playable
// before the EventReady event.
func (g *Game) Run(ctx context.Context) error {
	g.runCtx = ctx
	start := time.Now()
	g.cache.PreloadAll(ctx, g.cfg.ViewIDs, func(report views.Report) {
		g.logger.LogAttrs(ctx, slog.LevelInfo, "views preloaded",
			slog.Int("succeeded", len(report.Succeeded)),
			slog.Int("failed", len(report.Failed)),
			slog.Duration("elapsed", time.Since(start)))
		g.activate(ctx, report)
	})
	g.loop.Run(ctx)
	// The loop has exited on this goroutine, so the timer has no other owner left.
	if g.ticker != nil {
		g.ticker.Stop()
	}
	g.timer.Stop()
	g.logger.LogAttrs(ctx, slog.LevelInfo, "game stopped")
	return nil
}

// Stop ends Run. Pending events are discarded and the phase timer is stopped.
func (g *Game) Stop() {
	g.loop.Stop()
}

func (g *Game) activate(ctx context.Context, report views.Report) {
	g.ready = true
	g.timer.Reset()
	g.ticker = phase.NewTicker(g.cfg.TickInterval, g.loop, g.timer.Tick)
	go g.ticker.Run(ctx)
	g.emit(Event{Kind: EventReady, Report: report, Phase: g.timer.State()})
	g.showScene(ctx, g.cfg.InitialScene)
}

func (g *Game) onPhaseEvent(e phase.Event) {
	switch e.Kind {
	case phase.EventTick:
		g.emit(Event{Kind: EventTick, Phase: e.State})
	case phase.EventPhaseChanged, phase.EventStopped:
		g.emit(Event{Kind: EventPhase, Phase: e.State})
	}
	if e.Kind != phase.EventPhaseChanged || !g.ready {
		return
	}
	switch e.State.Phase {
	case models.PhaseAwaitingVerdict:
		g.showScene(g.runCtx, SceneVerdict)
	case models.PhaseResolved:
		g.logger.LogAttrs(g.runCtx, slog.LevelInfo, "case resolved", slog.String("outcome", string(e.State.Outcome)))
		g.showScene(g.runCtx, SceneResolution)
	case models.PhaseInvestigating:
	}
}

// showScene switches to a preloaded view. A failure leaves the current scene in place and is reported with
// EventSceneFailed so that the presentation can offer a way back.
func (g *Game) showScene(ctx context.Context, id string) {
	if err := g.switchScene(ctx, id); err != nil {
		g.logger.LogAttrs(ctx, slog.LevelError, "scene switch failed", errors.SlogError(err))
		g.emit(Event{Kind: EventSceneFailed, ViewID: id, Err: err})
	}
}

func (g *Game) switchScene(ctx context.Context, id string) error {
	handle, err := g.cache.Get(id)
	if err != nil {
		return errors.Wrap(err, "switch scene")
	}
	controller, _ := handle.SceneController()
	g.active = ""
	if controller.Kind == models.SceneKindCharacter {
		if err = g.enterConversation(controller.Character); err != nil {
			return errors.Wrap(err, "switch scene")
		}
	}
	g.scene = id
	if scene, ok := handle.Scene(); ok && scene.NarrationClip != "" && g.narrator != nil {
		g.narrator.Play(scene.NarrationClip)
	}
	g.logger.LogAttrs(ctx, slog.LevelDebug, "scene switched", slog.String("scene", id))
	g.emit(Event{Kind: EventScene, View: handle, ViewID: id, Character: g.active})
	return nil
}

// enterConversation makes id the active conversation. The first visit starts a fresh session and later visits
// resync it with whatever the other characters said in the meantime.
func (g *Game) enterConversation(id models.CharacterID) error {
	c, ok := g.characters[id]
	if !ok {
		return errors.Wrap(ErrUnknownCharacter, "enter conversation", slog.String("character", string(id)))
	}
	if s, ok := g.sessions[id]; ok {
		s.Resync()
	} else {
		s = g.newSession(c)
		g.sessions[id] = s
		s.Start()
	}
	g.active = id
	return nil
}

func (g *Game) newSession(c character.Character) *conversation.Session {
	s := conversation.New(conversation.Options{
		Character:  c,
		Completer:  g.completer,
		Transcript: g.shared,
		Progress:   g.tracker,
		Dispatcher: g.loop,
		Logger:     g.rootLogger,
		Timeout:    g.cfg.CompletionTimeout,
		Names:      g.names,
	})
	s.Subscribe(func(e conversation.Event) {
		// Sessions of a previous run may still finish requests after Restart.
		if g.sessions[e.Character] != s {
			return
		}
		switch e.Kind {
		case conversation.EventTurn:
			g.emit(Event{Kind: EventTurn, Character: e.Character, Turn: e.Turn, InFlight: e.InFlight, Err: e.Err})
		case conversation.EventBusy:
			g.emit(Event{Kind: EventBusy, Character: e.Character, InFlight: e.InFlight})
		case conversation.EventResynced:
		}
	})
	return s
}
