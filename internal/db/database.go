package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/metrics"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/models"
)

// Open connects to Postgres, migrates the dispatcher schema and runs pending
// data migrations.
func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	logrus.Infof("Connecting to database")
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		PrepareStmt:                              true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		metrics.DBConnectionStatus.Set(0)
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	metrics.DBConnectionStatus.Set(1)
	logrus.Infof("✅ Database connected successfully")

	if err := Migrate(gdb); err != nil {
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := RunDataMigrations(sqlDB); err != nil {
		return nil, fmt.Errorf("data migrations: %w", err)
	}
	return gdb, nil
}

// Migrate creates or updates every dispatcher table.
func Migrate(gdb *gorm.DB) error {
	logrus.Infof("🚀 Starting database schema migration with GORM AutoMigrate...")
	if err := gdb.AutoMigrate(
		&models.FeeRule{},
		&models.RoleAssignment{},
		&models.FastTransferToken{},
		&models.Settlement{},
		&models.FeeWithdrawal{},
	); err != nil {
		return fmt.Errorf("AutoMigrate failed: %w", err)
	}
	logrus.Infof("✅ Database schema migrated successfully")
	return nil
}

// WatchPool samples connection pool stats into the db gauges until ctx ends.
func WatchPool(ctx context.Context, gdb *gorm.DB, every time.Duration) {
	sqlDB, err := gdb.DB()
	if err != nil {
		logrus.Warnf("⚠️ Pool metrics disabled: %v", err)
		return
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		recordPoolStats(ctx, sqlDB)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func recordPoolStats(ctx context.Context, sqlDB *sql.DB) {
	stats := sqlDB.Stats()
	metrics.DBConnectionPoolSize.Set(float64(stats.OpenConnections))
	metrics.DBConnectionActive.Set(float64(stats.InUse))
	metrics.DBConnectionIdle.Set(float64(stats.Idle))

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		metrics.DBConnectionStatus.Set(0)
		return
	}
	metrics.DBConnectionStatus.Set(1)
}
