package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/hszk-dev/avatarrelay/internal/app"
)

func newCacheCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the response cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			rc, closeStore, err := app.NewResponseCache(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			st, err := rc.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printf(out, "Backend:  %s\n", cfg.Cache.Backend)
			printf(out, "TTL:      %s\n", rc.TTL())
			printf(out, "Chat:     %d\n", st.ChatEntries)
			printf(out, "Video:    %d\n", st.VideoEntries)
			printf(out, "Expired:  %d\n", st.ExpiredEntries)
			printf(out, "Usage:    %d\n", st.TotalUsage)
			if !st.Oldest.IsZero() {
				printf(out, "Oldest:   %s\n", st.Oldest.Format(time.RFC3339))
				printf(out, "Newest:   %s\n", st.Newest.Format(time.RFC3339))
			}
			return nil
		},
	}

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			rc, closeStore, err := app.NewResponseCache(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			removed, remaining, err := rc.Expire(cmd.Context())
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Removed %d expired entries, %d remain.\n", removed, remaining)
			return nil
		},
	}

	var yes bool
	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every cache entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				printf(cmd.OutOrStdout(), "Refusing to purge without --yes.\n")
				return nil
			}
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			rc, closeStore, err := app.NewResponseCache(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			n, err := rc.Purge(cmd.Context())
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Purged %d entries.\n", n)
			return nil
		},
	}
	purgeCmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion of all entries")

	cmd.AddCommand(statsCmd, cleanupCmd, purgeCmd)
	return cmd
}
