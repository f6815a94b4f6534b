package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/five82/tracksync/internal/app"
)

const shutdownTimeout = 10 * time.Second

func newRunCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the sync daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger := opts.textLogger(os.Stderr)

			rt, err := app.New(app.Options{
				Config: cfg,
				Prefs:  opts.loadPrefs(),
				Logger: logger,
			})
			if err != nil {
				return err
			}
			return runUntilDone(cmd.Context(), rt)
		},
	}
}

// runUntilDone starts rt, waits for ctx or a loop failure, then shuts down.
func runUntilDone(ctx context.Context, rt *app.Runtime) error {
	if err := rt.Start(ctx); err != nil {
		return err
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- rt.Wait() }()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-waitErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := rt.Shutdown(shutdownCtx); err != nil {
		return errors.Join(runErr, err)
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}
