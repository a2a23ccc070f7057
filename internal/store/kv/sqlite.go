package kv

import (
	"context"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ops-dashboard/internal/models"
)

// SQLiteStore keeps snapshots in the dashboard database.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore migrates the snapshot table on db.
func NewSQLiteStore(db *gorm.DB) (*SQLiteStore, error) {
	if err := db.AutoMigrate(&models.Snapshot{}); err != nil {
		return nil, errors.Wrap(err, "migrate snapshots")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Name() string { return "sqlite" }

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	var snap models.Snapshot
	err := s.db.WithContext(ctx).Where(&models.Snapshot{Key: key}).First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load snapshot %s", key)
	}
	return []byte(snap.Value), nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	snap := models.Snapshot{Key: key, Value: string(value)}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&snap).Error
	if err != nil {
		return errors.Wrapf(err, "save snapshot %s", key)
	}
	return nil
}
