package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	apphttp "saman/internal/http"
	"saman/internal/log"
)

const shutdownTimeout = 30 * time.Second

func serveCmd(a *app) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API",
		Long: `Serve the ledger over HTTP until interrupted. The port defaults to PORT
(8081).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if port == "" {
				port = a.cfg.Port
			}
			return a.serve(cmd.Context(), ":"+port)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "listen port (default PORT)")
	return cmd
}

func (a *app) serve(ctx context.Context, addr string) error {
	l, err := a.openLedger(ctx)
	if err != nil {
		return err
	}
	srv := apphttp.NewServer(addr, l, a.logger, apphttp.WithClock(a.now))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("Starting HTTP server", "addr", addr, log.FieldOperation, log.OpStartup)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("Shutting down HTTP server", log.FieldOperation, log.OpShutdown)
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
