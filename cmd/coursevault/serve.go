package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/mantonx/coursevault/internal/database"
	"github.com/mantonx/coursevault/internal/logger"
	"github.com/mantonx/coursevault/internal/server"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, scan workers and file monitor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := server.New(cfg, db)
			if err := srv.Init(ctx); err != nil {
				return fmt.Errorf("failed to start server: %w", err)
			}

			serveErr := make(chan error, 1)
			go func() {
				serveErr <- srv.ListenAndServe()
			}()

			select {
			case err := <-serveErr:
				if err != nil {
					return err
				}
			case <-ctx.Done():
				logger.Info("Shutting down gracefully")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			logger.Info("Server shutdown complete")
			return nil
		},
	}
}
