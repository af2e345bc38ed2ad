package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	httpapi "github.com/tbourn/go-service-shell/internal/http"
	"github.com/tbourn/go-service-shell/internal/observability"
	"github.com/tbourn/go-service-shell/internal/repo"
)

const shutdownTimeout = 10 * time.Second

var autoMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, closer, err := setup()
		if err != nil {
			printError("configuration", err)
			return err
		}
		defer closer.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		shutdownTracing, err := observability.Setup(ctx, cfg)
		if err != nil {
			log.Error().Err(err).Msg("tracing setup")
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdownTracing(sctx); err != nil {
				log.Warn().Err(err).Msg("tracing shutdown")
			}
		}()

		db, err := repo.Open(cfg)
		if err != nil {
			log.Error().Err(err).Str("driver", cfg.Database.Driver).Msg("open database")
			return err
		}
		if autoMigrate {
			if err := repo.AutoMigrate(db); err != nil {
				log.Error().Err(err).Msg("migrate")
				return err
			}
		}

		engine, err := httpapi.New(cfg, db)
		if err != nil {
			return err
		}
		srv := &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           engine,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			MaxHeaderBytes:    cfg.MaxHeaderBytes,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("addr", srv.Addr).Str("api", cfg.APIBasePath).Msg("server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				log.Error().Err(err).Msg("server failed")
				return err
			}
			return nil
		case <-ctx.Done():
		}

		log.Info().Msg("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown")
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		log.Info().Msg("server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&autoMigrate, "auto-migrate", true, "apply the schema before serving")
	rootCmd.AddCommand(serveCmd)
}
