package main

import (
	"context"
	"errors"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/five82/tracksync/internal/app"
	"github.com/five82/tracksync/internal/ui"
)

func newConsoleCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Run the daemon with the interactive operator console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !isTerminal(os.Stdout) {
				return errors.New("console needs a terminal; use `tracksync run` for headless operation")
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger, closer, err := opts.fileLogger(cfg.LogFile)
			if err != nil {
				return err
			}
			defer closer.Close()

			p := opts.loadPrefs()
			rt, err := app.New(app.Options{Config: cfg, Prefs: p, Logger: logger})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if err := rt.Start(ctx); err != nil {
				return err
			}

			uiErr := ui.Run(ui.Options{
				Context:    ctx,
				Stream:     rt.Stream,
				Queue:      rt.Queue,
				Cache:      rt.Cache,
				Network:    rt.Watcher,
				Live:       rt.Live,
				Subscriber: rt.Stream,
				Prefs:      p,
				PrefsPath:  opts.resolvedPrefsPath(),
				LogPath:    cfg.LogFile,
			})
			cancel()

			shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stop()
			if err := rt.Shutdown(shutdownCtx); err != nil && uiErr == nil {
				return err
			}
			return uiErr
		},
	}
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
