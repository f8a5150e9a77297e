// Package database opens and holds the SQL connection used by the
// cache's SQL-backed store tier and its cmd/gqlcachectl administration
// tool.
package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var db *gorm.DB

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	ConnectTimeout time.Duration
}

// DatabaseService wraps the open *gorm.DB connection.
type DatabaseService struct {
	db *gorm.DB
}

// Connect opens the database connection described by config.
func Connect(config *DatabaseConfig) (*DatabaseService, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=Asia/Jakarta",
		config.Host, config.User, config.Password, config.DBName, config.Port, config.SSLMode)

	var err error
	db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Info),
		DisableForeignKeyConstraintWhenMigrating: false,
		PrepareStmt:                              false,
		CreateBatchSize:                          1000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetMaxIdleConns(10)
	}

	log.Println("Database connected successfully")
	return &DatabaseService{db: db}, nil
}

// Close closes the database connection.
func (ds *DatabaseService) Close() error {
	sqlDB, err := ds.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetDB returns the package-level database instance.
func GetDB() *gorm.DB {
	return db
}
