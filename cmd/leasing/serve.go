package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/example/leasing-assistant/internal/http"
	"github.com/example/leasing-assistant/internal/notify"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and the reconciliation loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()

	logger := a.logger
	loc := a.cfg.DisplayZone

	routes := httptransport.RouterConfig{
		Bookings:   httptransport.NewBookingHandler(a.bookings, loc, nil, logger),
		Properties: httptransport.NewPropertyHandler(a.properties, a.availability, loc, nil, logger),
		Settings:   httptransport.NewSettingsHandler(a.settings, loc, nil, logger),
		Reconcile:  httptransport.NewReconcileHandler(a.reconcile, logger),
		Events:     httptransport.NewEventsHandler(a.topic, logger),
		Logger:     logger,
	}
	if a.connector != nil {
		routes.OAuth = httptransport.NewOAuthHandler(a.connector, nil, a.reconcile.Trigger, logger)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.HTTPPort),
		Handler:           httptransport.NewRouter(routes),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("leasing API listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
		return nil
	})

	if a.connector != nil {
		group.Go(func() error {
			return a.reconcile.Run(ctx)
		})
	}

	if a.cfg.RedisURL != "" {
		client, err := notify.NewRedisClient(ctx, a.cfg.RedisURL)
		if err != nil {
			// The dashboard on this process still gets events through SSE.
			logger.Error("redis relay disabled", "error", err)
		} else {
			relay := notify.NewRedisRelay(client, a.cfg.RedisChannel, logger)
			group.Go(func() error {
				defer client.Close()
				relay.Run(ctx, a.topic)
				return nil
			})
		}
	}

	err = group.Wait()
	if err != nil {
		logger.Error("server stopped", "error", err)
		return err
	}
	logger.Info("server stopped")
	return nil
}
