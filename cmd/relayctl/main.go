package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hszk-dev/avatarrelay/internal/app"
	"github.com/hszk-dev/avatarrelay/internal/config"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "relayctl",
		Short:         "Operate the avatar relay's cache and provider accounts",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env", ".env", "path to an optional .env file")

	load := func(cmd *cobra.Command) (*config.Config, error) {
		cfg, err := config.Load(envFile)
		if err != nil {
			return nil, err
		}
		// Keep stdout for command output.
		app.NewLogger(cmd.ErrOrStderr(), cfg.Log)
		return cfg, nil
	}

	root.AddCommand(
		newCacheCmd(load),
		newAvatarCmd(load),
	)
	return root
}

type configLoader func(cmd *cobra.Command) (*config.Config, error)

func printf(w io.Writer, format string, args ...any) {
	if _, err := fmt.Fprintf(w, format, args...); err != nil {
		slog.Warn("failed to write output", "error", err)
	}
}
