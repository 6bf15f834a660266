package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/payapp/internal/paymentgateway"
	"github.com/frahmantamala/payapp/internal/paymentrequest"
	prPostgres "github.com/frahmantamala/payapp/internal/paymentrequest/postgres"
	"github.com/frahmantamala/payapp/pkg/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start background workers: the payment request expiry sweeper and the gateway simulator.`,
}

var expiryWorkerCmd = &cobra.Command{
	Use:   "expiry",
	Short: "Start the payment request expiry sweeper",
	Long:  `Periodically mark overdue PENDING payment requests EXPIRED`,
	Run: func(cmd *cobra.Command, args []string) {
		startExpiryWorker()
	},
}

var gatewayWorkerCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the checkout gateway simulator",
	Long:  `Serve the hosted checkout API locally and post signed completion webhooks from a worker pool`,
	Run: func(cmd *cobra.Command, args []string) {
		startGatewayWorker()
	},
}

var (
	sweepInterval     time.Duration
	sweepBatchSize    int
	maxWorkers        int
	jobQueueSize      int
	gatewayPort       int
	autoCompleteAfter time.Duration
	webhookURL        string
)

func startExpiryWorker() {
	config, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logger.LoggerWrapper()

	db, err := initDB(config.Database, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}

	sweeper := paymentrequest.NewExpirySweeper(
		prPostgres.NewRepository(db),
		getDurationFlag(sweepInterval, config.PaymentRequests.SweepInterval),
		getIntFlag(sweepBatchSize, config.PaymentRequests.SweepBatchSize),
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("expiry worker is running. Press Ctrl+C to stop.")
	if err := sweeper.Run(ctx); err != nil {
		logger.Error("expiry worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("expiry worker shutdown complete")
}

func startGatewayWorker() {
	config, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logger.LoggerWrapper()

	port := gatewayPort
	if port <= 0 {
		port = 8090
	}

	// Use command line flags if provided, otherwise use config values
	simConfig := paymentgateway.SimulatorConfig{
		PublicURL:         fmt.Sprintf("http://localhost:%d", port),
		WebhookURL:        getStringFlag(webhookURL, config.Gateway.WebhookURL),
		WebhookSecret:     config.Gateway.WebhookSecret,
		AutoCompleteAfter: autoCompleteAfter,
		MaxWorkers:        getIntFlag(maxWorkers, config.Gateway.MaxWorkers),
		JobQueueSize:      getIntFlag(jobQueueSize, config.Gateway.JobQueueSize),
	}

	logger.Info("starting gateway simulator",
		"port", port,
		"max_workers", simConfig.MaxWorkers,
		"job_queue_size", simConfig.JobQueueSize,
		"webhook_url", simConfig.WebhookURL,
		"auto_complete_after", simConfig.AutoCompleteAfter.String())

	simulator := paymentgateway.NewSimulator(simConfig, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           simulator.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("gateway simulator is running. Press Ctrl+C to stop.")

	select {
	case sig := <-sigChan:
		logger.Info("received signal, shutting down gateway simulator", "signal", sig)
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("gateway simulator failed", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("gateway simulator shutdown error", "error", err)
	}

	shutdownDone := make(chan struct{})
	go func() {
		simulator.Shutdown()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		logger.Info("gateway simulator worker pool shutdown complete")
	case <-ctx.Done():
		logger.Warn("shutdown timeout reached, forcing exit")
	}
}

func getStringFlag(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func getDurationFlag(flagValue, configValue time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	expiryWorkerCmd.Flags().DurationVar(&sweepInterval, "interval", 0, "Sweep interval (overrides config)")
	expiryWorkerCmd.Flags().IntVar(&sweepBatchSize, "batch-size", 0, "Rows expired per batch (overrides config)")

	gatewayWorkerCmd.Flags().IntVar(&gatewayPort, "port", 8090, "Port the simulator listens on")
	gatewayWorkerCmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "Maximum number of webhook workers (overrides config)")
	gatewayWorkerCmd.Flags().IntVar(&jobQueueSize, "job-queue-size", 0, "Completion job queue size (overrides config)")
	gatewayWorkerCmd.Flags().DurationVar(&autoCompleteAfter, "auto-complete", 0, "Complete every session after this delay; zero waits for POST /checkout/{id}/complete")
	gatewayWorkerCmd.Flags().StringVar(&webhookURL, "webhook-url", "", "Webhook callback URL (overrides config)")

	workerCmd.AddCommand(expiryWorkerCmd)
	workerCmd.AddCommand(gatewayWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
