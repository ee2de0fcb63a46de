package db

import (
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewGorm creates a new Gorm DB connection using the provided connection string
func NewGorm(connection string, config *gorm.Config) (*gorm.DB, error) {
	db, err := NewDB(connection)
	if err != nil {
		return nil, err
	}

	return gorm.Open(
		gormpostgres.New(gormpostgres.Config{Conn: db}),
		config,
	)
}

// NewDB creates a new sql.DB connection
func NewDB(connection string) (*sql.DB, error) {
	return sql.Open("pgx", connection)
}

// DefaultGormConfig returns the default GORM configuration
func DefaultGormConfig() *gorm.Config {
	return &gorm.Config{
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}
