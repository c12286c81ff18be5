package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"missionctl/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and the operator HTTP API",
	RunE:  runServe,
}

var serveStopTimeout time.Duration

func init() {
	serveCmd.Flags().DurationVar(&serveStopTimeout, "stop-timeout", 10*time.Second, "upper bound for graceful shutdown")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := app.New(cfgPath)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := a.Start(context.Background()); err != nil {
		return err
	}

	var reason app.StopReason
	select {
	case sig := <-sigCh:
		if sig == syscall.SIGTERM {
			reason = app.StopSIGTERM
		} else {
			reason = app.StopSIGINT
		}
		pterm.Info.Println("Shutting down gracefully (press Ctrl+C again to force)...")
	case <-a.Done():
		reason = app.StopFatalError
	}

	go func() {
		<-sigCh
		pterm.Warning.Println("Force shutdown - exiting immediately")
		os.Exit(1)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), serveStopTimeout)
	defer cancel()
	_ = a.Stop(ctx, reason)

	if reason == app.StopFatalError {
		return a.Err()
	}
	return nil
}
