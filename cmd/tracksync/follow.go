package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/five82/tracksync/internal/prefs"
)

func newFollowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "follow ANIMAL_ID...",
		Short: "Follow animals on the tracking stream",
		Long: `Add animals to the followed set in the preferences file. The daemon
subscribes to followed animals each time the stream opens, so a running
daemon picks the change up on its next start. Use the console's f key to
follow on a live stream.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateFollowing(cmd, opts, args, (*prefs.Prefs).Follow, "following")
		},
	}
}

func newUnfollowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unfollow ANIMAL_ID...",
		Short: "Stop following animals on the tracking stream",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateFollowing(cmd, opts, args, (*prefs.Prefs).Unfollow, "unfollowed")
		},
	}
}

func updateFollowing(cmd *cobra.Command, opts *globalOptions, ids []string, apply func(*prefs.Prefs, string) bool, verb string) error {
	p := opts.loadPrefs()
	var changed []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return fmt.Errorf("animal id is required")
		}
		if apply(&p, id) {
			changed = append(changed, id)
		}
	}

	out := cmd.OutOrStdout()
	if len(changed) == 0 {
		fmt.Fprintln(out, "no change")
		return nil
	}
	if err := prefs.Save(opts.resolvedPrefsPath(), p); err != nil {
		return fmt.Errorf("save prefs: %w", err)
	}
	fmt.Fprintf(out, "%s %s\n", verb, strings.Join(changed, ", "))
	fmt.Fprintf(out, "followed: %s\n", orNone(p.Following))
	return nil
}

func orNone(ids []string) string {
	if len(ids) == 0 {
		return "(none)"
	}
	return strings.Join(ids, ", ")
}
