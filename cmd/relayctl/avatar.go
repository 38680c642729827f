package main

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/hszk-dev/avatarrelay/internal/app"
	"github.com/hszk-dev/avatarrelay/internal/domain/repository"
	"github.com/hszk-dev/avatarrelay/internal/usecase"
)

func newAvatarCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "avatar",
		Short: "Check the avatar provider account",
	}

	creditsCmd := &cobra.Command{
		Use:   "credits",
		Short: "Show remaining D-ID credits",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}

			raw, err := app.NewAvatarService(cfg).Credits(cmd.Context())
			switch {
			case errors.Is(err, usecase.ErrAvatarNotConfigured):
				return errors.New("D_ID_API_KEY is not set")
			case errors.Is(err, repository.ErrProviderUnauthorized):
				return errors.New("D-ID rejected the API key")
			case err != nil:
				return err
			}

			var pretty bytes.Buffer
			if err := json.Indent(&pretty, raw, "", "  "); err != nil {
				pretty.Reset()
				pretty.Write(raw)
			}
			printf(cmd.OutOrStdout(), "%s\n", pretty.String())
			return nil
		},
	}

	cmd.AddCommand(creditsCmd)
	return cmd
}
