package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/myrjola/turingtrial/internal/config"
	"github.com/myrjola/turingtrial/internal/errors"
	"github.com/myrjola/turingtrial/internal/logging"
	"github.com/spf13/cobra"
)

type application struct {
	cfg     config.Config
	environ []string
}

// logger writes to the configured log file so that the output doesn't fight with the TUI. The returned function
// closes the file.
func (app *application) logger() (*slog.Logger, func() error, error) {
	f, err := os.OpenFile(app.cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:mnd // owner only
	if err != nil {
		return nil, nil, errors.Wrap(err, "open log file", slog.String("path", app.cfg.LogFile))
	}
	return logging.NewLogger(f, app.cfg.LogLevel), f.Close, nil
}

func newRootCmd(stdout io.Writer, environ []string) *cobra.Command {
	app := &application{cfg: config.Config{}, environ: environ}
	root := &cobra.Command{
		Use:   "turingtrial",
		Short: "Question the witnesses and decide the case before time runs out",
		Long: `Turing Trial is a courtroom game in the terminal. Three characters backed by a language model
wait to be questioned: the defendant, a human witness and an AI witness. Find out what happened
before the investigation countdown runs out, then give your verdict.`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			environ, err := config.Environ(app.environ, ".env")
			if err != nil {
				return errors.Wrap(err, "read environment")
			}
			if app.cfg, err = config.Load(environ); err != nil {
				return errors.Wrap(err, "load config")
			}
			return nil
		},
	}
	root.SetOut(stdout)
	root.AddGroup(
		&cobra.Group{ID: "game", Title: "Game"},
		&cobra.Group{ID: "content", Title: "Scene content"},
	)
	root.AddCommand(newPlayCmd(app), newViewsCmd(app), newArtCmd(app))
	return root
}

func main() {
	if err := newRootCmd(os.Stdout, os.Environ()).Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
