package handlers

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"starlinks/internal/config"
	"starlinks/internal/server"
)

// NewServeCmd creates the serve command for the read-only HTTP API
func NewServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve puzzles, celebrities and portraits over HTTP",
		Long: `Start the read-only HTTP API.

Endpoints:
  GET /health
  GET /api/puzzles              recent puzzles up to today
  GET /api/puzzles/today        today's puzzle, answer hidden
  GET /api/puzzles/{date}       a past puzzle with its answer
  GET /api/celebrities/{id}
  GET /api/copy                 the ui.copy setting
  GET <portraits.public_prefix>/*  generated portrait files

Example:
  starlinks serve --port 8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (default server.port)")

	return cmd
}

func runServe(ctx context.Context, port int) error {
	cfg := config.Get()
	serverCfg := cfg.Server
	if port > 0 {
		serverCfg.Port = port
	}

	db, err := getDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	srv := server.New(db, serverCfg, cfg.Portraits)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-sigCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	return nil
}
