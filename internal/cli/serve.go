package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/misiones-arrienda/arrienda/internal/app"
	"github.com/misiones-arrienda/arrienda/internal/cleanup"
	"github.com/misiones-arrienda/arrienda/internal/logging"
	"github.com/misiones-arrienda/arrienda/internal/web"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		Long:  "Start the HTTP server for the web UI and the REST API. Configuration is read from the environment and an optional .env file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "port to listen on (default: $ARRIENDA_PORT or 8080)")

	return cmd
}

func runServe(ctx context.Context, port int) error {
	cfg, err := loadServerConfig()
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.Port = port
	}
	logging.Setup(cfg.DevMode)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path, err := dbPath(cfg)
	if err != nil {
		return err
	}
	cfg.DBPath = path

	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer closeDB(database)

	a, err := app.New(ctx, cfg, database)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := cleanup.NewScheduler(cfg.CleanupSchedule, a.Cleanup)
	if err != nil {
		return err
	}
	sched.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		sched.Stop(stopCtx)
	}()

	srv, err := web.NewServer(a)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	slog.Info("starting arrienda",
		"port", cfg.Port,
		"db", cfg.DBPath,
		"dev_mode", cfg.DevMode,
		"storage", cfg.Storage.Backend,
		"payments", cfg.MercadoPago.Enabled(),
		"cleanup_schedule", cfg.CleanupSchedule,
	)
	return srv.ListenAndServe(ctx, cfg.Port)
}
