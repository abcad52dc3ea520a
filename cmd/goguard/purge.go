package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newPurgeCommand(env *runtimeEnv) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete session rows whose retention deadline has passed",
		Long: "Deletes expired session rows once. With --interval the purge " +
			"repeats until the process is interrupted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, env.server, env.log)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.buildEngine(env.server, env.engine); err != nil {
				return err
			}

			if interval <= 0 {
				_, err := purgeOnce(ctx, a.engine, env.log)
				return err
			}
			return purgeEvery(ctx, a.engine, interval, env.log)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "repeat the purge at this interval")
	return cmd
}

func purgeOnce(ctx context.Context, engine *goGuard.Engine, log zerolog.Logger) (int64, error) {
	n, err := engine.PurgeExpiredSessions(ctx)
	if err != nil {
		return 0, err
	}
	log.Info().Int64("deleted", n).Msg("purged expired sessions")
	return n, nil
}

// purgeEvery keeps going after a failed run; only ctx ends it.
func purgeEvery(ctx context.Context, engine *goGuard.Engine, interval time.Duration, log zerolog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := purgeOnce(ctx, engine, log); err != nil {
			log.Warn().Err(err).Msg("purge failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
