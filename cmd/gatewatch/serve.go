package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	httpapi "gatewatch/internal/http"
	"gatewatch/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and, when enabled, the live pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(configPath, nil)
		if err != nil {
			return err
		}
		defer func() {
			if err := a.close(); err != nil {
				a.log.Error().Err(err).Msg("error releasing resources")
			}
		}()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var sched *scheduler.Scheduler
		if a.cfg.Pipeline.Live {
			sched = a.newScheduler()
			if err := sched.Start(ctx); err != nil {
				return err
			}
		} else {
			a.log.Info().Msg("live pipeline disabled")
		}

		gin.SetMode(gin.ReleaseMode)
		handler := httpapi.NewHandler(a.service, a.log)
		router := httpapi.NewRouter(handler, a.cfg.HTTP.JWTSecret, a.cfg.HTTP.CORSOrigins, a.log)
		srv := httpapi.NewServer(a.cfg.HTTP.Addr, router)

		serveErr := make(chan error, 1)
		go func() {
			a.log.Info().Str("addr", a.cfg.HTTP.Addr).Msg("HTTP server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
			close(serveErr)
		}()

		select {
		case <-ctx.Done():
			a.log.Info().Msg("received signal, shutting down")
		case err = <-serveErr:
			if err != nil {
				a.log.Error().Err(err).Msg("HTTP server error")
			}
		}

		if sched != nil {
			_ = a.stopScheduler(sched)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error().Err(err).Msg("HTTP server shutdown error")
		}
		a.log.Info().Msg("shutdown complete")
		return err
	},
}
