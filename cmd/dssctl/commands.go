package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/seantiz/dss/internal/dssclient"
	"github.com/seantiz/dss/internal/model"
	"github.com/seantiz/dss/internal/monitor"
	"github.com/seantiz/dss/internal/render"
)

func newModelsCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models known to the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := opts.client(opts.logger(), opts.timeout)
			models, err := client.ListModels(cmd.Context())
			if err != nil {
				return err
			}
			for _, m := range models {
				fmt.Fprintln(cmd.OutOrStdout(), m)
			}
			return nil
		},
	}
}

func newUploadCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <model-file>",
		Short: "Upload a model file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open model: %w", err)
			}
			defer f.Close()

			client := opts.client(opts.logger(), opts.timeout)
			reply, err := client.UploadModel(cmd.Context(), filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(reply))
			return nil
		},
	}
}

func newRunCommand(opts *globalOptions) *cobra.Command {
	var (
		modelName string
		noWatch   bool
	)
	cmd := &cobra.Command{
		Use:   "run <input.json>",
		Short: "Submit an execution and follow it until it completes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			if !json.Valid(input) {
				return fmt.Errorf("input %s is not a JSON document", args[0])
			}

			logger := opts.logger()
			client := opts.client(logger, opts.timeout)
			id, err := client.SubmitExecution(cmd.Context(), dssclient.ExecutionRequest{
				Input:     input,
				InputName: filepath.Base(args[0]),
				ModelName: modelName,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)

			if noWatch {
				return nil
			}
			return watch(cmd.Context(), cmd.OutOrStdout(), opts.monitor(client, logger), id, client.BaseURL())
		},
	}
	cmd.Flags().StringVar(&modelName, "model", "", "Model to run (backend default when empty)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Print the execution id and exit")
	return cmd
}

func newWatchCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <execution-id>",
		Short: "Poll an execution until it completes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := opts.logger()
			client := opts.client(logger, opts.timeout)
			return watch(cmd.Context(), cmd.OutOrStdout(), opts.monitor(client, logger), args[0], client.BaseURL())
		},
	}
}

// watch prints every observed status until the execution completes or ctx
// is canceled.
func watch(ctx context.Context, out io.Writer, mon *monitor.Monitor, id, baseURL string) error {
	var last model.ExecutionStatus
	for status := range mon.Watch(ctx, id) {
		last = status
		fmt.Fprint(out, render.Terminal(status, baseURL))
	}
	if last.Terminal() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("stopped watching %s: %w", id, err)
	}
	return fmt.Errorf("stopped watching %s", id)
}

func newExecutionsCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "executions",
		Short: "List executions known to the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := opts.client(opts.logger(), opts.timeout)
			items, err := client.ListExecutions(cmd.Context())
			if err != nil {
				return err
			}
			for _, item := range items {
				fmt.Fprintln(cmd.OutOrStdout(), string(item))
			}
			return nil
		},
	}
}

func newBestRunCommand(opts *globalOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "best-run <execution-id>",
		Short: "Download the best run archive of a completed execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if output == "" {
				output = id + ".zip"
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}

			// Archives stream for as long as they need; --timeout bounds
			// the other calls only.
			client := opts.client(opts.logger(), 0)
			n, err := client.DownloadBestRun(cmd.Context(), id, f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				os.Remove(output)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", output, n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Archive path (default <execution-id>.zip)")
	return cmd
}
