package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/templates"
)

const migrationUpgradeLegacyTemplateElements = "2026-10-01_upgrade_legacy_template_elements"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB, *zap.Logger) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationUpgradeLegacyTemplateElements, apply: upgradeLegacyTemplateElements},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db, logger); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// upgradeLegacyTemplateElements rewrites string-encoded element lists into the
// versioned structured form. Rows that fail to decode are left untouched and
// keep surfacing as corrupt documents on read.
func upgradeLegacyTemplateElements(db *gorm.DB, logger *zap.Logger) error {
	var rows []templates.Template
	if err := db.Where("format_version < ?", templates.CurrentFormatVersion).Find(&rows).Error; err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			elements, err := templates.DecodeElements(row.Elements)
			if err != nil {
				if logger != nil {
					logger.Warn("legacy template left as is",
						zap.String("template_id", row.TemplateID),
						zap.Error(err))
				}
				continue
			}
			encoded, err := templates.EncodeElements(elements)
			if err != nil {
				return err
			}
			if err := tx.Model(&templates.Template{}).
				Where("template_id = ?", row.TemplateID).
				Updates(map[string]any{
					"elements":       datatypes.JSON(encoded),
					"format_version": templates.CurrentFormatVersion,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
