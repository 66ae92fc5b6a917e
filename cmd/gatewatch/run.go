package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the live pipeline without the HTTP API",
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

		sched := a.newScheduler()
		if err := sched.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		a.log.Info().Msg("received signal, shutting down")
		return a.stopScheduler(sched)
	},
}
