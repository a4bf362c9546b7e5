package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/martinemde/devassist/pipeline"
	"github.com/martinemde/devassist/server"
	"github.com/martinemde/devassist/tasks"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve tasks over HTTP",
	Long: `Serves POST /tasks/{task} with body {"data": {...}, "model": "P:M"}
and GET /healthz until interrupted.`,
	Args: cobra.NoArgs,
	RunE: serve,
}

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", ":8000", "listen address")
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	warmCtx, cancelWarm := context.WithTimeout(ctx, 10*time.Second)
	if err := pipeline.Warm(warmCtx, pipeline.DefaultTokenCounter); err != nil {
		logger.Warn("tokenizer unavailable, using approximate token counts", zap.Error(err))
	}
	cancelWarm()

	svc := tasks.New(cfg, tasks.WithLogger(logger))
	srv := server.New(serveAddr, svc, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
		return err
	}
	return <-errCh
}
