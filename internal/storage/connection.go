package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joshu-sajeev/queuectl/migrations"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-envconfig"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver         string        `env:"QUEUECTL_DB_DRIVER,default=sqlite"`
	Path           string        `env:"QUEUECTL_DB_PATH,default=queuectl.db"`
	DSN            string        `env:"QUEUECTL_DB_DSN"`
	MaxRetries     int           `env:"QUEUECTL_DB_CONNECT_RETRIES,default=5"`
	RetryDelay     time.Duration `env:"QUEUECTL_DB_CONNECT_DELAY,default=1s"`
	LogLevelString string        `env:"QUEUECTL_DB_LOG_LEVEL,default=silent"`
	LogLevel       logger.LogLevel
}

// to help with testing
var envProcess = envconfig.Process

func LoadConfigFromEnv(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envProcess(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg.LogLevel = ParseLogLevel(cfg.LogLevelString)
	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	var errors []string

	switch cfg.Driver {
	case DriverSQLite:
		if strings.TrimSpace(cfg.Path) == "" {
			errors = append(errors, "QUEUECTL_DB_PATH is required for sqlite")
		}
	case DriverPostgres:
		if strings.TrimSpace(cfg.DSN) == "" {
			errors = append(errors, "QUEUECTL_DB_DSN is required for postgres")
		}
	default:
		errors = append(errors, "QUEUECTL_DB_DRIVER must be sqlite or postgres")
	}

	if cfg.MaxRetries < 1 {
		errors = append(errors, "QUEUECTL_DB_CONNECT_RETRIES must be at least 1")
	}

	if cfg.RetryDelay <= 0 {
		errors = append(errors, "QUEUECTL_DB_CONNECT_DELAY must be positive")
	}

	if cfg.RetryDelay > 10*time.Minute {
		errors = append(errors, "QUEUECTL_DB_CONNECT_DELAY must not exceed 10 minutes")
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}
	return nil
}

// SQLiteDSN enables WAL, a busy timeout and immediate write transactions so
// that concurrent claimers queue on the write lock instead of failing on
// lock upgrade.
func SQLiteDSN(path string) string {
	return path + "?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"
}

func dialector(cfg *Config) (gorm.Dialector, error) {
	switch cfg.Driver {
	case DriverSQLite:
		return sqlite.Open(SQLiteDSN(cfg.Path)), nil
	case DriverPostgres:
		return postgres.Open(cfg.DSN), nil
	}
	return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
}

// ConnectDB opens the configured database, retrying until it answers a ping
// or MaxRetries is exhausted.
func ConnectDB(ctx context.Context, cfg *Config) (*gorm.DB, error) {
	if cfg == nil {
		loadedCfg, err := LoadConfigFromEnv(ctx)
		if err != nil {
			return nil, err
		}
		cfg = loadedCfg
	}

	dial, err := dialector(cfg)
	if err != nil {
		return nil, err
	}

	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(cfg.LogLevel),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}

	for i := 0; i < cfg.MaxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
		}
		logrus.WithFields(logrus.Fields{
			"driver":  cfg.Driver,
			"attempt": i + 1,
			"max":     cfg.MaxRetries,
		}).Debug("connecting to database")

		gdb, err := gorm.Open(dial, gormConfig)
		if err == nil {
			sqlDB, dbErr := gdb.DB()
			if dbErr == nil {
				pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
				pingErr := sqlDB.PingContext(pingCtx)
				cancel()

				if pingErr == nil {
					if cfg.Driver == DriverPostgres {
						sqlDB.SetMaxIdleConns(10)
						sqlDB.SetMaxOpenConns(50)
						sqlDB.SetConnMaxLifetime(time.Hour)
					}
					return gdb, nil
				}
				err = pingErr
			} else {
				err = dbErr
			}
		}

		logrus.WithField("retry_in", cfg.RetryDelay).
			Warnf("database: %s", simplifyDBError(err))

		select {
		case <-time.After(cfg.RetryDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("connect %s: %w", cfg.Driver, ctx.Err())
		}
	}

	return nil, fmt.Errorf("database connection failed after %d attempts", cfg.MaxRetries)
}

// simplifyDBError returns a user-friendly error message
func simplifyDBError(err error) string {
	msg := err.Error()

	switch {
	case strings.Contains(msg, "password authentication failed"):
		return "invalid database credentials"
	case strings.Contains(msg, "unable to open database file"):
		return "cannot open database file"
	case strings.Contains(msg, "connect"):
		return "cannot reach database server"
	case strings.Contains(msg, "timeout"):
		return "database connection timed out"
	case strings.Contains(msg, "SASL"):
		return "authentication error"
	}

	return "database error"
}

// Convert string to logger.LogLevel
func ParseLogLevel(levelStr string) logger.LogLevel {
	switch strings.ToLower(levelStr) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return logger.Silent
	}
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	dialect := "postgres"
	if db.Dialector.Name() == DriverSQLite {
		dialect = "sqlite3"
	}

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("migrate: set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
