package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/five82/tracksync/internal/config"
	"github.com/five82/tracksync/internal/kvstore"
	"github.com/five82/tracksync/internal/outbox"
	"github.com/five82/tracksync/internal/restapi"
)

// offline keeps queue edits from triggering a flush.
type offline struct{}

func (offline) Online() bool { return false }

// queueHandle is a queue opened directly on the configured store. Badger
// locks its directory, so these commands fail while a daemon is running.
type queueHandle struct {
	*outbox.Queue
	store  kvstore.Store
	client *restapi.Client
}

func (h *queueHandle) Close() error { return h.store.Close() }

func openQueue(ctx context.Context, opts *globalOptions, cfg config.Config, online bool) (*queueHandle, error) {
	logger := opts.textLogger(os.Stderr)
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	store, err := kvstore.Open(cfg.QueueBackend, cfg.DataDir, logger.With("component", "kvstore"))
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}
	client, err := restapi.NewClient(cfg.APIBaseURL, restapi.Options{
		Tokens:            restapi.StaticToken(cfg.APIToken),
		RequestsPerSecond: cfg.APIRateLimit,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	qopts := outbox.Options{Store: store, Transport: client, Logger: logger.With("component", "outbox")}
	if !online {
		qopts.Connectivity = offline{}
	}
	q, err := outbox.New(qopts)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	q.EnsureLoaded(ctx)
	return &queueHandle{Queue: q, store: store, client: client}, nil
}

func newQueueCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and edit the outbound queue",
		Long: `Inspect and edit the outbound queue without starting the daemon.

The queue store is opened directly, so stop a running daemon first when the
badger backend is in use.`,
	}
	cmd.AddCommand(
		newQueueListCmd(opts),
		newQueueAddCmd(opts),
		newQueueRequeueCmd(opts),
		newQueuePurgeCmd(opts),
		newQueueSyncCmd(opts),
	)
	return cmd
}

func withQueue(opts *globalOptions, online bool, fn func(*cobra.Command, []string, *queueHandle) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := opts.loadConfig()
		if err != nil {
			return err
		}
		h, err := openQueue(cmd.Context(), opts, cfg, online)
		if err != nil {
			return err
		}
		defer h.Close()
		return fn(cmd, args, h)
	}
}

func newQueueListCmd(opts *globalOptions) *cobra.Command {
	var failedOnly, asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued items",
		Args:  cobra.NoArgs,
		RunE: withQueue(opts, false, func(cmd *cobra.Command, _ []string, h *queueHandle) error {
			items := h.Items(cmd.Context())
			if failedOnly {
				filtered := items[:0]
				for _, it := range items {
					if it.Status == outbox.StatusFailed {
						filtered = append(filtered, it)
					}
				}
				items = filtered
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(items)
			}
			writeItems(cmd.OutOrStdout(), items, time.Now())
			return nil
		}),
	}
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "only show failed items")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print items as JSON")
	return cmd
}

func writeItems(w io.Writer, items []outbox.Item, now time.Time) {
	if len(items) == 0 {
		fmt.Fprintln(w, "queue is empty")
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "PRIORITY", "STATUS", "ENDPOINT", "RETRIES", "AGE", "LAST ERROR")
	for _, it := range items {
		t.Row(
			shortID(it.ID),
			string(it.Priority),
			string(it.Status),
			it.Endpoint,
			fmt.Sprintf("%d/%d", it.Retries, it.MaxRetries),
			now.Sub(it.CreatedAt).Truncate(time.Second).String(),
			it.LastError,
		)
	}
	fmt.Fprintln(w, t.String())
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func newQueueAddCmd(opts *globalOptions) *cobra.Command {
	var priority, data string
	var maxRetries uint
	cmd := &cobra.Command{
		Use:   "add ENDPOINT",
		Short: "Queue a write for the next flush",
		Example: `  tracksync queue add /api/sightings/ --priority high \
    --data '{"animal_id":"e1","lat":-1.29,"lon":36.82}'`,
		Args: cobra.ExactArgs(1),
		RunE: withQueue(opts, false, func(cmd *cobra.Command, args []string, h *queueHandle) error {
			p, err := outbox.ParsePriority(priority)
			if err != nil {
				return err
			}
			var payload json.RawMessage
			if data != "" {
				payload = json.RawMessage(data)
			}
			id, err := h.Add(cmd.Context(), outbox.Request{
				Endpoint:   args[0],
				Data:       payload,
				Priority:   p,
				MaxRetries: maxRetries,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&priority, "priority", "p", "medium", "high, medium or low")
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")
	cmd.Flags().UintVar(&maxRetries, "max-retries", 0, "override the priority's attempt budget")
	return cmd
}

func newQueueRequeueCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue [ID...]",
		Short: "Put failed items back in their lane (all failed items when no ID is given)",
		RunE: withQueue(opts, false, func(cmd *cobra.Command, args []string, h *queueHandle) error {
			ctx := cmd.Context()
			if len(args) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "requeued %d item(s)\n", h.RequeueFailed(ctx))
				return nil
			}
			var errs []error
			for _, id := range args {
				if err := h.Requeue(ctx, resolveID(h.Items(ctx), id)); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", id, err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "requeued %s\n", id)
			}
			return errors.Join(errs...)
		}),
	}
}

// resolveID expands a unique id prefix as printed by list.
func resolveID(items []outbox.Item, prefix string) string {
	match := ""
	for _, it := range items {
		if it.ID == prefix {
			return prefix
		}
		if len(prefix) >= 4 && len(it.ID) >= len(prefix) && it.ID[:len(prefix)] == prefix {
			if match != "" {
				return prefix
			}
			match = it.ID
		}
	}
	if match == "" {
		return prefix
	}
	return match
}

func newQueuePurgeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Drop every failed item",
		Args:  cobra.NoArgs,
		RunE: withQueue(opts, false, func(cmd *cobra.Command, _ []string, h *queueHandle) error {
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d item(s)\n", h.PurgeFailed(cmd.Context()))
			return nil
		}),
	}
}

func newQueueSyncCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Flush every lane once if the backend is reachable",
		Args:  cobra.NoArgs,
		RunE: withQueue(opts, true, func(cmd *cobra.Command, _ []string, h *queueHandle) error {
			ctx := cmd.Context()
			if err := h.client.Health(ctx); err != nil {
				return fmt.Errorf("backend unreachable: %w", err)
			}
			res := h.SyncAll(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "delivered %d of %d, %d exhausted\n", res.Delivered, res.Attempted, res.Exhausted)
			return nil
		}),
	}
}
