package database

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/payapp/internal"
	accountDatamodel "github.com/frahmantamala/payapp/internal/core/datamodel/account"
	paymentRequestDatamodel "github.com/frahmantamala/payapp/internal/core/datamodel/paymentrequest"
	settlementDatamodel "github.com/frahmantamala/payapp/internal/core/datamodel/settlement"
	transferDatamodel "github.com/frahmantamala/payapp/internal/core/datamodel/transfer"
	userDatamodel "github.com/frahmantamala/payapp/internal/core/datamodel/user"
)

// Models lists every table owned by the ledger, in dependency order.
func Models() []interface{} {
	return []interface{}{
		&userDatamodel.User{},
		&accountDatamodel.Account{},
		&transferDatamodel.Transaction{},
		&paymentRequestDatamodel.PaymentRequest{},
		&paymentRequestDatamodel.PaymentView{},
		&paymentRequestDatamodel.PaymentConversion{},
		&settlementDatamodel.Transaction{},
	}
}

func dialector(cfg internal.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.DriverName() {
	case "postgres":
		return postgres.Open(cfg.Source), nil
	case "mysql":
		return mysql.Open(cfg.Source), nil
	case "sqlite":
		return sqlite.Open(cfg.Source), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Open connects gorm with the configured dialector and pool limits. Duplicate-key
// violations surface as gorm.ErrDuplicatedKey on every driver.
func Open(cfg internal.DatabaseConfig, logger *slog.Logger) (*gorm.DB, error) {
	d, err := dialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(d, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.DriverName(), err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying sql.DB: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if cfg.DriverName() == "sqlite" {
		// sqlite serialises writers; one connection keeps row-lock emulation honest.
		maxOpen = 1
	}
	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if logger != nil {
		logger.Info("database connected", "driver", cfg.DriverName(), "max_open_conns", maxOpen)
	}

	return db, nil
}

// SQLX wraps the gorm pool for the read side, sharing its connections.
func SQLX(db *gorm.DB, cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	return sqlx.NewDb(sqlDB, DriverNameForSQLX(cfg.DriverName())), nil
}

// DriverNameForSQLX maps a configured driver onto the database/sql driver name
// sqlx uses to pick its bind variable style.
func DriverNameForSQLX(driver string) string {
	switch driver {
	case "postgres":
		return "pgx"
	case "sqlite":
		return "sqlite3"
	default:
		return driver
	}
}

// AutoMigrate creates the schema from the datamodels. Production databases are
// migrated with goose; this path serves sqlite and tests.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

// OpenInMemory returns a migrated, private sqlite database.
func OpenInMemory() (*gorm.DB, error) {
	db, err := Open(internal.DatabaseConfig{
		Driver: "sqlite",
		Source: fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString()),
	}, nil)
	if err != nil {
		return nil, err
	}
	db.Logger = gormlogger.Default.LogMode(gormlogger.Silent)

	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate in-memory database: %w", err)
	}
	return db, nil
}
