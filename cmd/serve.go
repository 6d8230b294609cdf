package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/callmetrics/callmetrics-api/api"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	serverHost string
	serverPort int
	noWorkers  bool
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the CallMetrics API server with the configured settings.

The server accepts recording submissions, runs the processing pipeline
and receives transcription webhooks. Background workers and the stale
record sweeper run in the same process unless --no-workers is set.

Example:
  callmetrics-api serve
  callmetrics-api serve --port 9090
  callmetrics-api serve --host 0.0.0.0 --port 8080 --no-workers`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host (overrides config)")
	serveCmd.Flags().IntVar(&serverPort, "port", 0, "server port (overrides config)")
	serveCmd.Flags().BoolVar(&noWorkers, "no-workers", false, "do not start background workers")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}
	if noWorkers {
		cfg.Processing.Workers = 0
	}

	log := newLogger(cmd, cfg)
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	application, err := buildApp(cfg, log)
	if err != nil {
		return err
	}
	defer application.close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	stopBackground, err := application.startBackground(ctx)
	if err != nil {
		return err
	}
	defer stopBackground()

	server := api.NewServer(cfg, application.dependencies())
	if err := server.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize routes: %w", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("server error: %w", err)
		}
	}()

	log.WithFields(logrus.Fields{
		"addr":    server.Addr(),
		"storage": cfg.Database.Driver,
		"mode":    cfg.Transcription.Mode,
	}).Info("server is ready to handle requests")

	var runErr error
	select {
	case sig := <-stop:
		log.WithField("signal", sig.String()).Info("shutting down server")
	case runErr = <-serverErr:
		log.WithError(runErr).Error("shutting down server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
		return err
	}

	log.Info("server gracefully stopped")
	return runErr
}
