package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/myrjola/turingtrial/internal/ai"
	"github.com/myrjola/turingtrial/internal/character"
	"github.com/myrjola/turingtrial/internal/config"
	"github.com/myrjola/turingtrial/internal/conversation"
	"github.com/myrjola/turingtrial/internal/debugserver"
	"github.com/myrjola/turingtrial/internal/errors"
	"github.com/myrjola/turingtrial/internal/game"
	"github.com/myrjola/turingtrial/internal/models"
	"github.com/myrjola/turingtrial/internal/narration"
	"github.com/myrjola/turingtrial/internal/repositories"
	"github.com/myrjola/turingtrial/internal/sqlite"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// eventBuffer absorbs bursts of game events while the TUI is busy rendering.
const eventBuffer = 256

func newPlayCmd(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "play",
		GroupID: "game",
		Short:   "Start a new trial",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if flags.Changed("debug-addr") {
				app.cfg.DebugAddr, _ = flags.GetString("debug-addr")
			}
			if flags.Changed("investigation-budget") {
				app.cfg.InvestigationBudget, _ = flags.GetInt("investigation-budget")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.play(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().String("debug-addr", "", "serve pprof and the game state on this loopback address, e.g. [::1]:6060")
	cmd.Flags().Int("investigation-budget", 0, "seconds to question the characters before the verdict is forced")
	return cmd
}

func newCompleter(ctx context.Context, cfg config.Config) (conversation.Completer, func() error, error) {
	if cfg.Backend == config.BackendGemini {
		client, err := ai.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.Model)
		if err != nil {
			return nil, nil, errors.Wrap(err, "new Gemini client")
		}
		return client, client.Close, nil
	}
	client, err := ai.NewOpenAIClient(ai.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.Model,
		BaseURL: cfg.OpenAIBaseURL,
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "new OpenAI client")
	}
	return client, func() error { return nil }, nil
}

func (app *application) play(ctx context.Context, stdin io.Reader, stdout io.Writer) (err error) {
	cfg := app.cfg
	logger, closeLog, err := app.logger()
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, closeLog())
	}()

	db, err := sqlite.NewDatabase(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return errors.Wrap(err, "open scene store")
	}
	defer func() {
		err = errors.Join(err, db.Close(context.Background()))
	}()

	completer, closeCompleter, err := newCompleter(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, closeCompleter())
	}()

	cast, err := character.LoadCast(cfg.PromptDir)
	if err != nil {
		return errors.Wrap(err, "load cast")
	}
	names := make(map[models.CharacterID]string, len(cast))
	for _, c := range cast {
		names[c.ID()] = c.DisplayName()
	}

	var bell narration.Bell
	if cfg.Bell {
		bell = os.Stderr
	}
	narrator := narration.NewLogNarrator(logger, bell, narration.DefaultClips())
	defer narrator.Wait()

	g, err := game.New(game.Deps{
		Loader:     repositories.NewViewRepository(db, logger),
		Completer:  completer,
		Narrator:   narrator,
		Characters: cast,
		Config: game.Config{
			InvestigationBudget: cfg.InvestigationBudget,
			VerdictBudget:       cfg.VerdictBudget,
			CorrectChoice:       cfg.CorrectChoice,
			TickInterval:        cfg.TickInterval,
			CompletionTimeout:   cfg.CompletionTimeout,
			InitialScene:        game.SceneMenu,
			ViewIDs:             game.ViewIDs(),
			QueueCapacity:       0,
		},
		Logger: logger,
	})
	if err != nil {
		return errors.Wrap(err, "new game")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := make(chan game.Event, eventBuffer)
	g.Subscribe(func(e game.Event) {
		select {
		case events <- e:
		case <-ctx.Done():
		}
	})

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return g.Run(ctx)
	})
	if cfg.DebugAddr != "" {
		var srv *debugserver.Server
		if srv, err = debugserver.Listen(cfg.DebugAddr, debugserver.Routes(g, logger), logger); err != nil {
			cancel()
			return errors.Join(errors.Wrap(err, "start debug server"), group.Wait())
		}
		group.Go(func() error {
			return srv.Serve(ctx)
		})
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "trial started",
		slog.String("backend", cfg.Backend), slog.Int("investigation_budget", cfg.InvestigationBudget))
	program := tea.NewProgram(newModel(ctx, g, events, names),
		tea.WithAltScreen(), tea.WithInput(stdin), tea.WithOutput(stdout), tea.WithContext(ctx))
	_, runErr := program.Run()
	if errors.Is(runErr, tea.ErrProgramKilled) {
		runErr = nil
	}
	cancel()
	g.Stop()
	return errors.Join(errors.Wrap(runErr, "run TUI"), group.Wait())
}
