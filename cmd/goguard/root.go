package main

import (
	"io"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// runtimeEnv is what every subcommand receives once config and logging
// are set up.
type runtimeEnv struct {
	server ServerConfig
	engine goGuard.Config
	log    zerolog.Logger
	logOut io.Closer
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		env        runtimeEnv
	)

	root := &cobra.Command{
		Use:          "goguard",
		Short:        "Session lifecycle and adaptive-risk authentication service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			srv, cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			log, closer, err := newLogger(srv.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			env = runtimeEnv{server: srv, engine: cfg, log: log, logOut: closer}
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if env.logOut != nil {
				return env.logOut.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "goguard.yaml", "path to the configuration file")

	root.AddCommand(
		newServeCommand(&env),
		newMigrateCommand(&env),
		newPurgeCommand(&env),
	)
	return root
}
