package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/frahmantamala/payapp/api"
	"github.com/frahmantamala/payapp/internal"
	"github.com/frahmantamala/payapp/internal/account"
	accountPostgres "github.com/frahmantamala/payapp/internal/account/postgres"
	"github.com/frahmantamala/payapp/internal/analytics"
	analyticsPostgres "github.com/frahmantamala/payapp/internal/analytics/postgres"
	"github.com/frahmantamala/payapp/internal/auth"
	authPostgres "github.com/frahmantamala/payapp/internal/auth/postgres"
	"github.com/frahmantamala/payapp/internal/conversion"
	"github.com/frahmantamala/payapp/internal/core/common/validation"
	"github.com/frahmantamala/payapp/internal/core/database"
	"github.com/frahmantamala/payapp/internal/core/events"
	"github.com/frahmantamala/payapp/internal/notification"
	"github.com/frahmantamala/payapp/internal/paymentgateway"
	"github.com/frahmantamala/payapp/internal/paymentrequest"
	prPostgres "github.com/frahmantamala/payapp/internal/paymentrequest/postgres"
	"github.com/frahmantamala/payapp/internal/settlement"
	settlementPostgres "github.com/frahmantamala/payapp/internal/settlement/postgres"
	"github.com/frahmantamala/payapp/internal/transfer"
	transferPostgres "github.com/frahmantamala/payapp/internal/transfer/postgres"
	"github.com/frahmantamala/payapp/internal/transport/middleware"
	"github.com/frahmantamala/payapp/internal/transport/rest"
	"github.com/frahmantamala/payapp/internal/user"
	userPostgres "github.com/frahmantamala/payapp/internal/user/postgres"
	"github.com/frahmantamala/payapp/pkg/logger"
)

const webhookTolerance = 5 * time.Minute

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config    *internal.Config
	DB        *gorm.DB
	ReadDB    *sqlx.DB
	Redis     *redis.Client
	EventBus  *events.EventBus
	Router    *chi.Mux
	Logger    *slog.Logger
	Recorder  *paymentrequest.Recorder
	Notifier  *notification.Dispatcher
	closeFunc []func() error
}

func (d *Dependencies) Close() {
	for i := len(d.closeFunc) - 1; i >= 0; i-- {
		if err := d.closeFunc[i](); err != nil {
			d.Logger.Error("failed to release resource", "error", err)
		}
	}
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps.Recorder.Start(ctx)
	deps.Notifier.Start(ctx)

	if err := setupRoutes(deps); err != nil {
		deps.Logger.Error("failed to register routes", "error", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("Server failed to start", "error", err)
			deps.Close()
			os.Exit(1)
		}
	}

	// drain in-flight side effects before the pools close
	deps.EventBus.Wait()
	deps.Recorder.Stop()
	deps.Notifier.Stop()
	deps.Logger.Info("Server stopped")
}

func setupRoutes(deps *Dependencies) error {
	cfg := deps.Config
	lg := deps.Logger

	conversionSvc, err := newConversionService(cfg, deps.Redis, lg)
	if err != nil {
		return err
	}
	supported := validation.CurrencySet(cfg.Ledger.SupportedCurrencies)

	accountSvc := account.NewService(accountPostgres.NewRepository(deps.DB), cfg.Ledger.OpeningBalanceDecimal(), lg)
	userSvc := user.NewService(userPostgres.NewRepository(deps.DB), accountSvc, user.Options{
		SupportedCurrencies: supported,
		DefaultCurrency:     cfg.Ledger.DefaultCurrency,
		BCryptCost:          cfg.Security.BCryptCost,
	}, lg)

	tokens := auth.NewJWTTokenGenerator(
		cfg.Security.AccessTokenSecret,
		cfg.Security.RefreshTokenSecret,
		cfg.Security.AccessTokenDuration,
		cfg.Security.RefreshTokenDuration,
	)
	authSvc := auth.NewService(authPostgres.NewRepository(deps.DB), tokens, lg)

	transferSvc := transfer.NewService(
		transferPostgres.NewRepository(deps.DB),
		transferPostgres.NewDirectory(deps.DB),
		conversionSvc,
		deps.EventBus,
		transfer.Options{
			OpeningBalance: cfg.Ledger.OpeningBalanceDecimal(),
			Attempts:       cfg.Ledger.TransferAttempts,
		},
		lg,
	)

	gateway := paymentgateway.NewClient(paymentgateway.Config{
		BaseURL: cfg.Gateway.BaseURL,
		APIKey:  cfg.Gateway.APIKey,
		Timeout: cfg.Gateway.Timeout,
	}, lg)

	requestSvc := paymentrequest.NewService(
		prPostgres.NewRepository(deps.DB),
		gateway,
		deps.Recorder,
		deps.EventBus,
		paymentrequest.Options{
			DefaultExpiryDays:   cfg.PaymentRequests.DefaultExpiryDays,
			SupportedCurrencies: supported,
			GatewayTimeout:      cfg.Gateway.Timeout,
			PublicBaseURL:       cfg.Gateway.PublicBaseURL,
			ShortCodes:          paymentrequest.RandomShortCode(cfg.PaymentRequests.ShortCodeBytes),
		},
		lg,
	)

	reconciler := settlement.NewReconciler(settlementPostgres.NewRepository(deps.DB), gateway, deps.EventBus, cfg.Gateway.Timeout, lg)
	analyticsSvc := analytics.NewService(analyticsPostgres.NewRepository(deps.ReadDB), lg)

	notification.NewEventHandler(deps.Notifier, userSvc, cfg.Notification.DashboardURL, lg).
		RegisterEventHandlers(deps.EventBus)

	opts := rest.Options{
		Logger:         lg,
		IdempotencyTTL: cfg.Redis.IdempotencyTTL,
	}
	if sqlDB, err := deps.DB.DB(); err == nil {
		opts.DB = sqlDB
	}
	if deps.Redis != nil {
		opts.Idempotency = middleware.NewRedisIdempotencyStore(deps.Redis)
	}
	if cfg.Server.ValidateRequests {
		doc, err := middleware.LoadOpenAPI(api.Spec)
		if err != nil {
			return fmt.Errorf("load openapi document: %w", err)
		}
		validator, err := middleware.NewOpenAPIValidator(doc, rest.APIPrefix, lg)
		if err != nil {
			return fmt.Errorf("build openapi validator: %w", err)
		}
		opts.Validator = validator
	}

	rest.RegisterAllRoutes(deps.Router, rest.Handlers{
		Auth:           auth.NewHandler(authSvc),
		User:           user.NewHandler(userSvc),
		Account:        account.NewHandler(accountSvc),
		Conversion:     conversion.NewHandler(conversionSvc),
		Transfer:       transfer.NewHandler(transferSvc),
		PaymentRequest: paymentrequest.NewHandler(requestSvc),
		Settlement:     settlement.NewHandler(reconciler, settlement.NewHMACVerifier(cfg.Gateway.WebhookSecret, webhookTolerance)),
		Analytics:      analytics.NewHandler(analyticsSvc),
	}, opts)
	return nil
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	lg := logger.LoggerWrapper()

	deps := &Dependencies{
		Config:   config,
		Logger:   lg,
		Router:   chi.NewRouter(),
		EventBus: events.NewEventBus(lg),
	}

	db, err := initDB(config.Database, lg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	deps.DB = db
	deps.closeFunc = append(deps.closeFunc, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	deps.ReadDB, err = database.SQLX(db, config.Database)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to open read database: %w", err)
	}

	if config.Redis.Enabled {
		client, err := initRedis(config.Redis)
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.Redis = client
		deps.closeFunc = append(deps.closeFunc, client.Close)
	}

	deps.Recorder = paymentrequest.NewRecorder(prPostgres.NewRepository(db), config.PaymentRequests.TelemetryBuffer, lg)

	sender, closeSender, err := newNotificationSender(config, lg)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.closeFunc = append(deps.closeFunc, closeSender)
	deps.Notifier = notification.NewDispatcher(sender, notification.DispatcherConfig{
		Workers:     config.Notification.Workers,
		QueueSize:   config.Notification.QueueSize,
		SendTimeout: config.Notification.SendTimeout,
		Retry: notification.RetryPolicy{
			MaxRetries:  config.Notification.MaxRetries,
			BaseBackoff: config.Notification.BaseBackoff,
			MaxBackoff:  config.Notification.MaxBackoff,
		},
	}, lg)

	return deps, nil
}

// initDB opens gorm for the configured driver. sqlite databases are migrated
// from the datamodels; other drivers are migrated with `payapp migrate`.
func initDB(cfg internal.DatabaseConfig, lg *slog.Logger) (*gorm.DB, error) {
	db, err := database.Open(cfg, lg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.DriverName() == "sqlite" {
		if err := database.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("failed to migrate sqlite database: %w", err)
		}
	}
	return db, nil
}

func initRedis(cfg internal.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func newConversionService(cfg *internal.Config, client *redis.Client, lg *slog.Logger) (*conversion.Service, error) {
	var provider conversion.Provider
	switch cfg.Conversion.Provider {
	case "http":
		provider = conversion.NewHTTPProvider(cfg.Conversion.BaseURL, cfg.Conversion.Timeout)
	default:
		table := conversion.DefaultRates()
		if cfg.Conversion.RatesFile != "" {
			loaded, err := conversion.LoadRateTable(cfg.Conversion.RatesFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load rate table: %w", err)
			}
			table = loaded
		}
		provider = conversion.NewStaticProvider(table)
	}

	if client != nil && cfg.Conversion.CacheTTL > 0 {
		provider = conversion.NewCachedProvider(provider, conversion.NewRedisRateCache(client), cfg.Conversion.CacheTTL, lg)
	}
	return conversion.NewService(provider, cfg.Conversion.Timeout, lg), nil
}

func newNotificationSender(cfg *internal.Config, lg *slog.Logger) (notification.Sender, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Notification.Transport {
	case "kafka":
		producer, err := notification.NewKafkaProducer(cfg.Kafka.Brokers)
		if err != nil {
			return nil, noop, err
		}
		return notification.NewKafkaSender(producer, cfg.Kafka.Topic), producer.Close, nil
	case "rabbitmq":
		conn, channel, err := notification.DialRabbitMQ(cfg.RabbitMQ.URL)
		if err != nil {
			return nil, noop, err
		}
		closeAll := func() error {
			_ = channel.Close()
			return conn.Close()
		}
		return notification.NewRabbitMQSender(channel, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.RoutingKey), closeAll, nil
	default:
		return notification.NewLogSender(lg), noop, nil
	}
}
