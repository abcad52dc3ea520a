package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/goGuard/metrics/export/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCommand(env *runtimeEnv) *cobra.Command {
	var autoMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the metrics endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, env.server, env.log)
			if err != nil {
				return err
			}
			defer a.Close()

			if autoMigrate {
				if err := a.migrate(ctx); err != nil {
					return err
				}
			}
			if err := a.buildEngine(env.server, env.engine); err != nil {
				return err
			}
			return serve(ctx, a, env.server)
		},
	}
	cmd.Flags().BoolVar(&autoMigrate, "migrate", false, "migrate the schema before serving")
	return cmd
}

func serve(ctx context.Context, a *app, srv ServerConfig) error {
	servers := []*http.Server{{
		Addr:              srv.HTTPAddr,
		Handler:           newRouter(a.engine, a.log),
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if srv.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", prometheus.Handler(prometheus.NewCollector(a.engine)))
		servers = append(servers, &http.Server{
			Addr:              srv.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range servers {
		g.Go(func() error {
			a.log.Info().Str("addr", s.Addr).Msg("listening")
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), srv.ShutdownTimeout)
		defer cancel()
		var errs []error
		for _, s := range servers {
			if err := s.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		a.log.Info().Msg("servers stopped")
		return errors.Join(errs...)
	})
	return g.Wait()
}
