package database

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/innerchild2401/qr-menu-sub004/models"
	"github.com/innerchild2401/qr-menu-sub004/utils"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Open connects to the configured store. TranslateError is enabled so that
// unique violations surface as gorm.ErrDuplicatedKey on both drivers.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverMySQL:
		dialector = mysql.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	switch {
	case driver == DriverSQLite && strings.Contains(dsn, "_journal_mode=WAL"):
		// WAL readers run beside the single writer. A writer working from a
		// stale snapshot gets "database is locked", which callers retry.
		sqlDB.SetMaxOpenConns(4)
	case driver == DriverSQLite:
		// sqlite has a single writer; one connection keeps transactions
		// queued in the pool instead of failing with "database is locked".
		sqlDB.SetMaxOpenConns(1)
	default:
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	utils.InfoLogger.Printf("Connected to %s database", driver)
	return db, nil
}

// Migrate creates or updates the schema owned by this service.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Table{},
		&models.TableStatusLog{},
		&models.Order{},
		&models.OrderItem{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	utils.InfoLogger.Println("AutoMigrate completed.")
	return nil
}
