package main

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/seantiz/dss/internal/config"
	"github.com/seantiz/dss/internal/dssclient"
	"github.com/seantiz/dss/internal/monitor"
)

// globalOptions are the flags shared by every subcommand.
type globalOptions struct {
	backend  string
	interval time.Duration
	timeout  time.Duration
	logLevel string
}

func (o *globalOptions) logger() *slog.Logger {
	return config.NewLogger(os.Stderr, config.ParseLogLevel(o.logLevel))
}

// client returns a backend client whose requests are bounded by timeout.
// Zero leaves them unbounded.
func (o *globalOptions) client(logger *slog.Logger, timeout time.Duration) *dssclient.Client {
	return dssclient.New(o.backend, dssclient.Options{
		Timeout:   timeout,
		LogOutput: os.Stderr,
		Debug:     config.ParseLogLevel(o.logLevel) <= slog.LevelDebug,
		Logger:    logger,
	})
}

func (o *globalOptions) monitor(client *dssclient.Client, logger *slog.Logger) *monitor.Monitor {
	return monitor.New(client, logger,
		monitor.WithInterval(o.interval),
		monitor.WithRequestTimeout(o.timeout),
	)
}

func newRootCommand(out io.Writer) *cobra.Command {
	cfg := config.Load()
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "dssctl",
		Short:         "Submit and monitor DSS executions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.backend, "backend", cfg.BackendURL, "DSS backend base URL")
	flags.DurationVar(&opts.interval, "interval", cfg.PollInterval, "Delay between status polls")
	flags.DurationVar(&opts.timeout, "timeout", cfg.RequestTimeout, "Timeout for a single backend request (0 disables)")
	flags.StringVar(&opts.logLevel, "log-level", cfg.LogLevel.String(), "Log level (debug, info, warn, error)")

	cmd.AddCommand(newModelsCommand(opts))
	cmd.AddCommand(newUploadCommand(opts))
	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newExecutionsCommand(opts))
	cmd.AddCommand(newBestRunCommand(opts))
	return cmd
}
