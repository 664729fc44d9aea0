package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/customers"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/orders"
	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/templates"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(schemaModels()...); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

func schemaModels() []any {
	return []any{
		&templates.Category{},
		&templates.Template{},
		&catalog.Product{},
		&catalog.ProductTier{},
		&orders.CartLine{},
		&orders.Order{},
		&orders.OrderLine{},
		&customers.Profile{},
		&migrationRecord{},
	}
}
