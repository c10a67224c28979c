package main

import (
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/myrjola/turingtrial/internal/ai"
	"github.com/myrjola/turingtrial/internal/errors"
	"github.com/myrjola/turingtrial/internal/logging"
	"github.com/myrjola/turingtrial/internal/repositories"
	"github.com/myrjola/turingtrial/internal/sqlite"
	"github.com/spf13/cobra"
)

// openRepository opens the scene store and logs to stderr.
func (app *application) openRepository(ctx context.Context, cmd *cobra.Command) (*repositories.ViewRepository, func() error, error) {
	logger := logging.NewLogger(cmd.ErrOrStderr(), app.cfg.LogLevel)
	db, err := sqlite.NewDatabase(ctx, app.cfg.DatabaseURL, logger)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open scene store")
	}
	return repositories.NewViewRepository(db, logger), func() error { return db.Close(ctx) }, nil
}

func newViewsCmd(app *application) *cobra.Command {
	return &cobra.Command{
		Use:     "views",
		GroupID: "content",
		Short:   "List the scenes preloaded at startup",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx := cmd.Context()
			repo, closeRepo, err := app.openRepository(ctx, cmd)
			if err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, closeRepo())
			}()

			handles, err := repo.List(ctx)
			if err != nil {
				return errors.Wrap(err, "list scenes")
			}
			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("ID", "KIND", "TITLE", "BACKDROP", "NARRATION")
			for _, h := range handles {
				scene, _ := h.Scene()
				controller, _ := h.SceneController()
				t.Row(h.ID, string(controller.Kind), scene.Title, scene.BackdropPath, scene.NarrationClip)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return errors.Wrap(err, "write table")
		},
	}
}

func newArtCmd(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "art <scene> [prompt]",
		GroupID: "content",
		Short:   "Generate a scene backdrop",
		Long: `Generates a backdrop image for a scene with DALL-E and points the scene at it. Without a prompt the
scene description is used.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			outDir, err := cmd.Flags().GetString("out-dir")
			if err != nil {
				return errors.Wrap(err, "invalid out-dir flag")
			}
			repo, closeRepo, err := app.openRepository(ctx, cmd)
			if err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, closeRepo())
			}()

			id := args[0]
			handle, err := repo.Load(ctx, id)
			if err != nil {
				return errors.Wrap(err, "load scene")
			}
			scene, _ := handle.Scene()
			prompt := strings.Join(args[1:], " ")
			if prompt == "" {
				prompt = "Moody courtroom drama illustration. " + scene.Title + ". " + scene.Description
			}

			client, err := ai.NewOpenAIClient(ai.OpenAIConfig{
				APIKey:  app.cfg.OpenAIAPIKey,
				Model:   app.cfg.Model,
				BaseURL: app.cfg.OpenAIBaseURL,
			})
			if err != nil {
				return errors.Wrap(err, "new OpenAI client")
			}
			img, err := client.GenerateImage(ctx, prompt)
			if err != nil {
				return errors.Wrap(err, "generate image", slog.String("scene", id))
			}

			if err = os.MkdirAll(outDir, 0o750); err != nil { //nolint:mnd // rwxr-x---
				return errors.Wrap(err, "create out dir")
			}
			outPath := filepath.Join(outDir, id+".png")
			file, err := os.Create(outPath)
			if err != nil {
				return errors.Wrap(err, "create image file")
			}
			if err = png.Encode(file, img); err != nil {
				return errors.Join(errors.Wrap(err, "encode PNG"), file.Close())
			}
			if err = file.Close(); err != nil {
				return errors.Wrap(err, "close image file")
			}
			if err = repo.SetBackdrop(ctx, id, outPath); err != nil {
				return errors.Wrap(err, "set backdrop")
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "The backdrop of %s was saved as %s\n", id, outPath)
			return errors.Wrap(err, "write result")
		},
	}
	cmd.Flags().String("out-dir", "art", "directory for generated images")
	return cmd
}
