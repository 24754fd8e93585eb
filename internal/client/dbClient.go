package client

import (
	"fmt"
	"strings"
	"summit-webhook/internal/model"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDBClient opens the database behind databaseURL and migrates the
// schema. "sqlite:<path>" and bare "*.db" paths use sqlite, anything else
// is treated as a MySQL DSN. gorm's own logging goes through log.
func InitDBClient(databaseURL string, log *zap.Logger) (*gorm.DB, error) {
	dialector, isSQLite := dialectorFor(databaseURL)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(log),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}

	if isSQLite {
		// sqlite allows one writer; a single connection turns lock contention
		// into pool waits instead of SQLITE_BUSY errors.
		sqlDB.SetMaxOpenConns(1)
	} else {
		// Connection pool (important for webhooks)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := db.AutoMigrate(
		&model.Account{},
		&model.AccountTransaction{},
		&model.WebhookEvent{},
		&model.FulfillmentFailure{},
	); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

func dialectorFor(databaseURL string) (gorm.Dialector, bool) {
	dsn := strings.TrimSpace(databaseURL)
	if path, ok := strings.CutPrefix(dsn, "sqlite:"); ok {
		return sqlite.Open(path), true
	}
	if strings.HasSuffix(dsn, ".db") || dsn == ":memory:" {
		return sqlite.Open(dsn), true
	}
	return mysql.Open(dsn), false
}

// newGormLogger writes slow queries and errors through zap. Misses are
// expected on unknown-account deliveries and are reported by the caller.
func newGormLogger(log *zap.Logger) logger.Interface {
	if log == nil {
		log = zap.NewNop()
	}
	writer, _ := zap.NewStdLogAt(log.Named("gorm"), zap.WarnLevel)

	return logger.New(writer, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}
