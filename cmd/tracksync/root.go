package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/five82/tracksync/internal/config"
	"github.com/five82/tracksync/internal/prefs"
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	prefsPath  string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "tracksync",
		Short: "Field client for the wildlife tracking backend",
		Long: `tracksync keeps a field station in sync with the wildlife tracking
backend: it holds the realtime tracking stream open, queues writes while
offline and flushes them by priority when connectivity returns, and keeps
reference collections cached.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.config/tracksync/config.toml)")
	root.PersistentFlags().StringVar(&opts.prefsPath, "prefs", "", "preferences file (default ~/.config/tracksync/prefs.toml)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newRunCmd(opts),
		newConsoleCmd(opts),
		newQueueCmd(opts),
		newFollowCmd(opts),
		newUnfollowCmd(opts),
	)
	return root
}

func (o *globalOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func (o *globalOptions) resolvedPrefsPath() string {
	if o.prefsPath != "" {
		return o.prefsPath
	}
	return prefs.DefaultPath()
}

func (o *globalOptions) loadPrefs() prefs.Prefs {
	p, _ := prefs.Load(o.resolvedPrefsPath())
	return p
}

func (o *globalOptions) level() slog.Level {
	if o.verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func (o *globalOptions) textLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: o.level()}))
}

// fileLogger writes JSON records to path so the console can tail them. The
// returned closer must be called on exit.
func (o *globalOptions) fileLogger(path string) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: o.level()}))
	return logger, f, nil
}
