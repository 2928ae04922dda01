// Package database provides persistence for the churnguard customer risk engine.
//
// This package includes:
//   - Database connection management using GORM and PostgreSQL
//   - A raw database/sql pool for heavy aggregation queries (see analytics)
//   - Typed error handling shared by the repositories
//
// Data Models:
//
//	All data models (Customer, Transaction, RetentionRecord, etc.) are defined
//	in the models_pkg package to avoid circular import dependencies.
package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	models "churnguard/database/models_pkg"
)

// Database holds the GORM database connection and provides access to the
// underlying DB instance. It is the central connection point for all
// repository operations.
type Database struct {
	db *gorm.DB
}

// DB returns the underlying GORM database instance for direct access when needed.
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Connect establishes database connection using GORM
func Connect(host string, port int, dbname, user, password string) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		host, port, dbname, user, password)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // Silent logging for production
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Database{db: db}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ============================================================================
// Type Aliases
// ============================================================================

// Core data models re-exported so callers can use database.Customer etc.
// without importing models_pkg directly.

type Customer = models.Customer
type Transaction = models.Transaction
type RetentionRecord = models.RetentionRecord
type ABTest = models.ABTest
type ModelPerformance = models.ModelPerformance
