package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Server          ServerConfig         `mapstructure:"http_server"`
	Database        DatabaseConfig       `mapstructure:"database"`
	Security        SecurityConfig       `mapstructure:"security"`
	Ledger          LedgerConfig         `mapstructure:"ledger"`
	Conversion      ConversionConfig     `mapstructure:"conversion"`
	PaymentRequests PaymentRequestConfig `mapstructure:"payment_requests"`
	Gateway         GatewayConfig        `mapstructure:"gateway"`
	Notification    NotificationConfig   `mapstructure:"notification"`
	Kafka           KafkaConfig          `mapstructure:"kafka"`
	RabbitMQ        RabbitMQConfig       `mapstructure:"rabbitmq"`
	Redis           RedisConfig          `mapstructure:"redis"`
	Observability   ObservabilityConfig  `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	ValidateRequests  bool          `mapstructure:"validate_requests"`
	OpenAPIPath       string        `mapstructure:"openapi_path"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	AccessTokenSecret    string        `mapstructure:"access_token_secret"`
	RefreshTokenSecret   string        `mapstructure:"refresh_token_secret"`
	AccessTokenDuration  time.Duration `mapstructure:"access_token_duration"`
	RefreshTokenDuration time.Duration `mapstructure:"refresh_token_duration"`
	BCryptCost           int           `mapstructure:"bcrypt_cost"`
}

type LedgerConfig struct {
	OpeningBalance      string   `mapstructure:"opening_balance"`
	SupportedCurrencies []string `mapstructure:"supported_currencies"`
	DefaultCurrency     string   `mapstructure:"default_currency"`
	TransferAttempts    int      `mapstructure:"transfer_attempts"`
}

type ConversionConfig struct {
	Provider  string        `mapstructure:"provider"`
	RatesFile string        `mapstructure:"rates_file"`
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

type PaymentRequestConfig struct {
	DefaultExpiryDays int           `mapstructure:"default_expiry_days"`
	ShortCodeBytes    int           `mapstructure:"short_code_bytes"`
	TelemetryBuffer   int           `mapstructure:"telemetry_buffer"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	SweepBatchSize    int           `mapstructure:"sweep_batch_size"`
}

type GatewayConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	PublicBaseURL string        `mapstructure:"public_base_url"`
	WebhookURL    string        `mapstructure:"webhook_url"`
	MaxWorkers    int           `mapstructure:"max_workers"`
	JobQueueSize  int           `mapstructure:"job_queue_size"`
}

type NotificationConfig struct {
	Transport    string        `mapstructure:"transport"`
	Workers      int           `mapstructure:"workers"`
	QueueSize    int           `mapstructure:"queue_size"`
	MaxRetries   int           `mapstructure:"max_retries"`
	BaseBackoff  time.Duration `mapstructure:"base_backoff"`
	MaxBackoff   time.Duration `mapstructure:"max_backoff"`
	SendTimeout  time.Duration `mapstructure:"send_timeout"`
	DashboardURL string        `mapstructure:"dashboard_url"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type RabbitMQConfig struct {
	URL        string `mapstructure:"url"`
	Exchange   string `mapstructure:"exchange"`
	RoutingKey string `mapstructure:"routing_key"`
}

type RedisConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Addr           string        `mapstructure:"addr"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfigFromEnv builds the configuration for container deployments.
// A .env file in the working directory is loaded first when present.
func LoadConfigFromEnv() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 8080),
			BaseURL:           getEnv("HTTP_BASE_URL", "http://localhost:8080"),
			AllowedOrigins:    getEnv("HTTP_ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
			ValidateRequests:  getEnvAsBool("HTTP_VALIDATE_REQUESTS", false),
			OpenAPIPath:       getEnv("HTTP_OPENAPI_PATH", "./api/openapi.yml"),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "postgres"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DB_SOURCE", ""),
		},
		Security: SecurityConfig{
			AccessTokenSecret:    getEnv("JWT_ACCESS_SECRET", ""),
			RefreshTokenSecret:   getEnv("JWT_REFRESH_SECRET", ""),
			AccessTokenDuration:  getEnvAsDuration("JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTokenDuration: getEnvAsDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
			BCryptCost:           getEnvAsInt("BCRYPT_COST", 12),
		},
		Ledger: LedgerConfig{
			OpeningBalance:      getEnv("LEDGER_OPENING_BALANCE", "750.00"),
			SupportedCurrencies: getEnvAsList("LEDGER_SUPPORTED_CURRENCIES", []string{"GBP", "USD", "EUR"}),
			DefaultCurrency:     getEnv("LEDGER_DEFAULT_CURRENCY", "GBP"),
			TransferAttempts:    getEnvAsInt("LEDGER_TRANSFER_ATTEMPTS", 3),
		},
		Conversion: ConversionConfig{
			Provider:  getEnv("CONVERSION_PROVIDER", "static"),
			RatesFile: getEnv("CONVERSION_RATES_FILE", ""),
			BaseURL:   getEnv("CONVERSION_BASE_URL", ""),
			Timeout:   getEnvAsDuration("CONVERSION_TIMEOUT", 10*time.Second),
			CacheTTL:  getEnvAsDuration("CONVERSION_CACHE_TTL", 10*time.Minute),
		},
		PaymentRequests: PaymentRequestConfig{
			DefaultExpiryDays: getEnvAsInt("PAYMENT_REQUEST_DEFAULT_EXPIRY_DAYS", 7),
			ShortCodeBytes:    getEnvAsInt("PAYMENT_REQUEST_SHORT_CODE_BYTES", 9),
			TelemetryBuffer:   getEnvAsInt("PAYMENT_REQUEST_TELEMETRY_BUFFER", 256),
			SweepInterval:     getEnvAsDuration("PAYMENT_REQUEST_SWEEP_INTERVAL", time.Minute),
			SweepBatchSize:    getEnvAsInt("PAYMENT_REQUEST_SWEEP_BATCH_SIZE", 100),
		},
		Gateway: GatewayConfig{
			BaseURL:       getEnv("GATEWAY_BASE_URL", "http://localhost:8090"),
			APIKey:        getEnv("GATEWAY_API_KEY", ""),
			Timeout:       getEnvAsDuration("GATEWAY_TIMEOUT", 10*time.Second),
			WebhookSecret: getEnv("GATEWAY_WEBHOOK_SECRET", ""),
			PublicBaseURL: getEnv("GATEWAY_PUBLIC_BASE_URL", "http://localhost:8080"),
			WebhookURL:    getEnv("GATEWAY_WEBHOOK_URL", "http://localhost:8080/api/v1/webhooks/gateway"),
			MaxWorkers:    getEnvAsInt("GATEWAY_MAX_WORKERS", 10),
			JobQueueSize:  getEnvAsInt("GATEWAY_JOB_QUEUE_SIZE", 100),
		},
		Notification: NotificationConfig{
			Transport:    getEnv("NOTIFICATION_TRANSPORT", "log"),
			Workers:      getEnvAsInt("NOTIFICATION_WORKERS", 4),
			QueueSize:    getEnvAsInt("NOTIFICATION_QUEUE_SIZE", 512),
			MaxRetries:   getEnvAsInt("NOTIFICATION_MAX_RETRIES", 5),
			BaseBackoff:  getEnvAsDuration("NOTIFICATION_BASE_BACKOFF", time.Second),
			MaxBackoff:   getEnvAsDuration("NOTIFICATION_MAX_BACKOFF", time.Minute),
			SendTimeout:  getEnvAsDuration("NOTIFICATION_SEND_TIMEOUT", 5*time.Second),
			DashboardURL: getEnv("NOTIFICATION_DASHBOARD_URL", "http://localhost:8080/dashboard"),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_TOPIC", "payapp.notifications"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:        getEnv("RABBITMQ_URL", ""),
			Exchange:   getEnv("RABBITMQ_EXCHANGE", "payapp"),
			RoutingKey: getEnv("RABBITMQ_ROUTING_KEY", "notifications"),
		},
		Redis: RedisConfig{
			Enabled:        getEnvAsBool("REDIS_ENABLED", false),
			Addr:           getEnv("REDIS_ADDR", "localhost:6379"),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             getEnvAsInt("REDIS_DB", 0),
			IdempotencyTTL: getEnvAsDuration("REDIS_IDEMPOTENCY_TTL", 24*time.Hour),
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: getEnvAsBool("METRICS_ENABLED", true),
				Path:    getEnv("METRICS_PATH", "/metrics"),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvAsList(key string, defaultVal []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Ledger.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("ledger config: %v", err))
	}

	if err := c.Conversion.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("conversion config: %v", err))
	}

	if err := c.Gateway.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("gateway config: %v", err))
	}

	if err := c.Notification.Validate(c); err != nil {
		errs = append(errs, fmt.Sprintf("notification config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case "", "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported driver %q", c.Driver)
	}
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

// DriverName defaults to postgres when the driver is not configured.
func (c *DatabaseConfig) DriverName() string {
	if c.Driver == "" {
		return "postgres"
	}
	return c.Driver
}

func (c *SecurityConfig) Validate() error {
	if len(c.AccessTokenSecret) < 32 {
		return errors.New("access_token_secret must be at least 32 characters")
	}
	if len(c.RefreshTokenSecret) < 32 {
		return errors.New("refresh_token_secret must be at least 32 characters")
	}
	if c.BCryptCost != 0 && (c.BCryptCost < 10 || c.BCryptCost > 15) {
		return errors.New("bcrypt_cost must be between 10 and 15")
	}
	return nil
}

func (c *LedgerConfig) Validate() error {
	if c.OpeningBalance != "" {
		d, err := decimal.NewFromString(c.OpeningBalance)
		if err != nil {
			return fmt.Errorf("invalid opening_balance: %w", err)
		}
		if d.IsNegative() {
			return errors.New("opening_balance cannot be negative")
		}
	}
	return nil
}

// OpeningBalanceDecimal returns the balance credited to accounts opened on first use.
func (c *LedgerConfig) OpeningBalanceDecimal() decimal.Decimal {
	d, err := decimal.NewFromString(c.OpeningBalance)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (c *ConversionConfig) Validate() error {
	switch c.Provider {
	case "", "static":
	case "http":
		if c.BaseURL == "" {
			return errors.New("base_url is required for the http provider")
		}
	default:
		return fmt.Errorf("unsupported provider %q", c.Provider)
	}
	return nil
}

func (c *GatewayConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	if c.PublicBaseURL == "" {
		return errors.New("public_base_url is required")
	}
	return nil
}

func (c *NotificationConfig) Validate(cfg *Config) error {
	switch c.Transport {
	case "", "log":
	case "kafka":
		if len(cfg.Kafka.Brokers) == 0 {
			return errors.New("kafka.brokers is required for the kafka transport")
		}
	case "rabbitmq":
		if cfg.RabbitMQ.URL == "" {
			return errors.New("rabbitmq.url is required for the rabbitmq transport")
		}
	default:
		return fmt.Errorf("unsupported transport %q", c.Transport)
	}
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return errors.New("max_retries must be between 0 and 10")
	}
	return nil
}
