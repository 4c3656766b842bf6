package storage

import (
	"context"
	"fmt"

	"github.com/joshu-sajeev/queuectl/internal/models"
	"gorm.io/gorm/clause"
)

// SaveSetting upserts a configuration override.
func (r *JobRepository) SaveSetting(ctx context.Context, key, value string) error {
	s := models.Setting{Key: key, Value: value, UpdatedAt: r.now()}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&s).Error; err != nil {
		return fmt.Errorf("save setting %s: %w", key, err)
	}
	return nil
}

// LoadSettings returns all persisted configuration overrides.
func (r *JobRepository) LoadSettings(ctx context.Context) (map[string]string, error) {
	var rows []models.Setting
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}
