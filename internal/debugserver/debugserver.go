// Package debugserver serves pprof and a JSON dump of the running game on a loopback address.
package debugserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/myrjola/turingtrial/internal/errors"
	"github.com/myrjola/turingtrial/internal/game"
)

var ErrNotLoopback = errors.NewSentinel("debug server must listen on a loopback address")

type Snapshotter interface {
	Snapshot(ctx context.Context) (game.State, error)
}

// Routes registers the pprof handlers and /debug/game.
func Routes(g Snapshotter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("GET /debug/game", func(w http.ResponseWriter, r *http.Request) {
		state, err := g.Snapshot(r.Context())
		if err != nil {
			err = errors.Wrap(err, "snapshot game")
			logger.LogAttrs(r.Context(), slog.LevelError, "debug snapshot failed", errors.SlogError(err))
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err = enc.Encode(state); err != nil {
			err = errors.Wrap(err, "encode game state")
			logger.LogAttrs(r.Context(), slog.LevelError, "debug snapshot failed", errors.SlogError(err))
		}
	})
	return mux
}

type Server struct {
	srv      *http.Server
	listener net.Listener
	logger   *slog.Logger
}

// Listen binds addr, e.g. "[::1]:6060" or "localhost:0". Non-loopback addresses are refused.
func Listen(addr string, handler http.Handler, logger *slog.Logger) (*Server, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, errors.Wrap(err, "split debug address", slog.String("addr", addr))
	}
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return nil, errors.Wrap(ErrNotLoopback, "listen", slog.String("addr", addr))
	}
	var listener net.Listener
	if listener, err = net.Listen("tcp", addr); err != nil {
		return nil, errors.Wrap(err, "TCP listen", slog.String("addr", addr))
	}
	logger = logger.With("source", "DebugServer")
	return &Server{
		srv: &http.Server{
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
			Handler:           handler,
			ReadHeaderTimeout: time.Second,
			IdleTimeout:       time.Minute,
		},
		listener: listener,
		logger:   logger,
	}, nil
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks until ctx is done and then shuts the server down.
func (s *Server) Serve(ctx context.Context) error {
	shutdownComplete := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:mnd // plenty
		defer cancel()
		shutdownComplete <- errors.Wrap(s.srv.Shutdown(shutdownCtx), "shutdown debug server")
	}()

	s.logger.LogAttrs(ctx, slog.LevelInfo, "starting debug server", slog.String("addr", s.Addr()))
	if err := s.srv.Serve(s.listener); !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serve debug server")
	}
	return <-shutdownComplete
}
