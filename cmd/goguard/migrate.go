package main

import (
	"github.com/spf13/cobra"
)

func newMigrateCommand(env *runtimeEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the users and sessions tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), env.server, env.log)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.migrate(cmd.Context()); err != nil {
				return err
			}
			env.log.Info().Str("driver", env.server.Database.Driver).Msg("schema up to date")
			return nil
		},
	}
}
