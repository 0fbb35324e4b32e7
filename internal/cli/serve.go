package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ttc-bus-delays/busdelay/internal/api"
	"github.com/ttc-bus-delays/busdelay/internal/logging"
	"github.com/ttc-bus-delays/busdelay/internal/pipeline"
)

func serveCmd(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve summary, diagnostics and descriptives as JSON",
		Long: `Starts the read API over the cached model and the delay data.

Endpoints:
  GET /health
  GET /api/summary
  GET /api/diagnostics
  GET /api/descriptives
  GET /api/trace/{param}`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ds, err := pipeline.LoadData(a.cfg)
			if err != nil {
				return err
			}
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			h := api.NewHandler(store, ds, a.cfg.Histogram, a.cfg.Diagnostics)
			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", a.cfg.Port),
				Handler:           api.NewRouter(h, a.cfg.AllowedOrigins),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errc := make(chan error, 1)
			go func() {
				logging.L().Infof("API: listening on %s", srv.Addr)
				errc <- srv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			logging.L().Infof("API: shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 8081, "listen port (overrides config)")
	return cmd
}
