package database

import (
	"errors"
	"time"

	"github.com/rlee0/assistant-sub002/internal/chats"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationCanonicalMessageIDs = "2024-06-01_canonical_message_ids"

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
		{name: migrationCanonicalMessageIDs, apply: canonicalizeMessageIDs},
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
		if err := db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx, logger); err != nil {
				return err
			}
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: time.Now().UTC().Unix()}).Error
		}); err != nil {
			return err
		}
		logger.Info("database migration applied", zap.String("migration", migration.name))
	}
	return nil
}

// canonicalizeMessageIDs re-keys rows written before message ids were normalized.
// A legacy row whose normalized id already exists is a duplicate and is dropped.
func canonicalizeMessageIDs(db *gorm.DB, logger *zap.Logger) error {
	var ids []string
	if err := db.Model(&chats.Message{}).Pluck("id", &ids).Error; err != nil {
		return err
	}

	rekeyed, dropped := 0, 0
	for _, legacyID := range ids {
		if chats.IsCanonicalID(legacyID) {
			continue
		}
		canonicalID := chats.NormalizeMessageID(legacyID)

		var existing int64
		if err := db.Model(&chats.Message{}).Where("id = ?", canonicalID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			if err := db.Where("id = ?", legacyID).Delete(&chats.Message{}).Error; err != nil {
				return err
			}
			dropped++
			continue
		}
		if err := db.Model(&chats.Message{}).Where("id = ?", legacyID).Update("id", canonicalID).Error; err != nil {
			return err
		}
		rekeyed++
	}

	if rekeyed > 0 || dropped > 0 {
		logger.Info("legacy message ids canonicalized",
			zap.Int("rekeyed", rekeyed),
			zap.Int("dropped", dropped),
		)
	}
	return nil
}
