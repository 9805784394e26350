package repository

import (
	"context"
	"errors"
	"fmt"

	"diary-sync-server/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const versionCounterName = "diary:version"

type entryRecord struct {
	Day       int64  `gorm:"primaryKey;autoIncrement:false"`
	Text      string `gorm:"not null"`
	Timestamp int64  `gorm:"not null"`
}

func (entryRecord) TableName() string { return "diary_entries" }

type counterRecord struct {
	Name  string `gorm:"primaryKey"`
	Value int64  `gorm:"not null;default:0"`
}

func (counterRecord) TableName() string { return "diary_counters" }

// OpenSQLite opens (or creates) the database file at path and migrates the
// diary tables. SQLite serialises writers, so the pool is pinned to a single
// connection; this also keeps ":memory:" databases shared.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sqlite pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&entryRecord{}, &counterRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate sqlite schema: %w", err)
	}

	return db, nil
}

type sqlEntryRepository struct {
	db *gorm.DB
}

func NewSQLEntryRepository(db *gorm.DB) EntryRepository {
	return &sqlEntryRepository{db: db}
}

func (r *sqlEntryRepository) List(ctx context.Context) ([]*domain.DiaryEntry, error) {
	var records []entryRecord
	if err := r.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list diary entries: %w", err)
	}

	entries := make([]*domain.DiaryEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, &domain.DiaryEntry{
			Day:       rec.Day,
			Text:      rec.Text,
			Timestamp: rec.Timestamp,
		})
	}

	return entries, nil
}

func (r *sqlEntryRepository) Upsert(ctx context.Context, entry *domain.DiaryEntry) error {
	rec := entryRecord{
		Day:       entry.Day,
		Text:      entry.Text,
		Timestamp: entry.Timestamp,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "day"}},
			UpdateAll: true,
		}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to upsert diary entry: %w", err)
	}

	return nil
}

type sqlVersionRepository struct {
	db *gorm.DB
}

func NewSQLVersionRepository(db *gorm.DB) VersionRepository {
	return &sqlVersionRepository{db: db}
}

func (r *sqlVersionRepository) Get(ctx context.Context) (int64, error) {
	var rec counterRecord
	err := r.db.WithContext(ctx).Where("name = ?", versionCounterName).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read diary version: %w", err)
	}
	return rec.Value, nil
}

func (r *sqlVersionRepository) Increment(ctx context.Context) (int64, error) {
	var rec counterRecord

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := counterRecord{Name: versionCounterName, Value: 0}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return err
		}

		err := tx.Model(&counterRecord{}).
			Where("name = ?", versionCounterName).
			UpdateColumn("value", gorm.Expr("value + ?", 1)).Error
		if err != nil {
			return err
		}

		return tx.Where("name = ?", versionCounterName).First(&rec).Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment diary version: %w", err)
	}

	return rec.Value, nil
}
