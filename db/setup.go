package db

import (
	"context"
	"fmt"

	"github.com/flanksource/commons/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	gormDriver "gorm.io/gorm"
)

// SetupDB creates database connections (gorm.DB and pgxpool.Pool)
// Note: This does NOT run migrations - consumers should handle migrations separately
func SetupDB(connectionString string) (gormDB *gormDriver.DB, pgxPool *pgxpool.Pool, err error) {
	logger.Infof("Connecting to database")

	pgxPool, err = NewPgxPool(connectionString)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	conn, err := pgxPool.Acquire(context.TODO())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	if err := conn.Ping(context.Background()); err != nil {
		return nil, nil, fmt.Errorf("error pinging database: %w", err)
	}

	gormDB, err = NewGorm(connectionString, DefaultGormConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create gorm connection: %w", err)
	}

	return gormDB, pgxPool, nil
}
