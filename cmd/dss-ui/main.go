package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/seantiz/dss/internal/api"
	"github.com/seantiz/dss/internal/config"
	"github.com/seantiz/dss/internal/dssclient"
	"github.com/seantiz/dss/internal/engine"
	"github.com/seantiz/dss/internal/monitor"
	"github.com/seantiz/dss/internal/render"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("dss-ui: starting",
		"listen_addr", cfg.ListenAddr,
		"backend_url", cfg.BackendURL,
		"poll_interval", cfg.PollInterval.String(),
	)

	srv := newServer(cfg, logger)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// newServer wires the backend client, monitor, renderer and engine into the
// HTTP server. The request timeout bounds status polls only; the shared
// client stays unbounded so best run archives can stream for as long as
// they need.
func newServer(cfg config.Config, logger *slog.Logger) *api.Server {
	client := dssclient.New(cfg.BackendURL, dssclient.Options{
		LogOutput: os.Stdout,
		Debug:     cfg.LogLevel <= slog.LevelDebug,
		Logger:    logger,
	})

	mon := monitor.New(client, logger,
		monitor.WithInterval(cfg.PollInterval),
		monitor.WithRequestTimeout(cfg.RequestTimeout),
	)
	eng := engine.NewEngine(client, mon, render.NewRenderer(), logger)

	return api.NewServer(cfg.ListenAddr, client, eng, logger)
}
