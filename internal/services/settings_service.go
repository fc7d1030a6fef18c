package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fleetfix/internal/models"

	"gorm.io/gorm"
)

// Setting keys.
const (
	SettingSLAMonitoringEnabled = "sla_monitoring_enabled"
)

// SettingsService 全局设置读写
// Passed explicitly into consumers (the sweeper in particular) instead of
// living behind a package-level global, so tests can inject values freely.
type SettingsService struct {
	db *gorm.DB
}

func NewSettingsService(db *gorm.DB) *SettingsService {
	return &SettingsService{db: db}
}

// GetBool returns the boolean setting, or the fallback when unset.
// A store failure is returned as an error; callers decide whether that is
// fatal (the sweeper treats it so).
func (s *SettingsService) GetBool(ctx context.Context, key string, fallback bool) (bool, error) {
	var setting models.AppSetting
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error
	if err == gorm.ErrRecordNotFound {
		return fallback, nil
	}
	if err != nil {
		return fallback, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	switch strings.ToLower(strings.TrimSpace(setting.Value)) {
	case "true", "1", "yes", "on":
		return true, nil
	default:
		return false, nil
	}
}

// Set upserts a setting value.
func (s *SettingsService) Set(ctx context.Context, key, value string) error {
	var setting models.AppSetting
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error
	if err == gorm.ErrRecordNotFound {
		return s.db.WithContext(ctx).Create(&models.AppSetting{
			Key:       key,
			Value:     value,
			UpdatedAt: time.Now(),
		}).Error
	}
	if err != nil {
		return fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return s.db.WithContext(ctx).Model(&setting).Updates(map[string]interface{}{
		"value":      value,
		"updated_at": time.Now(),
	}).Error
}

// Get returns the raw string value, empty when unset.
func (s *SettingsService) Get(ctx context.Context, key string) (string, error) {
	var setting models.AppSetting
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error
	if err == gorm.ErrRecordNotFound {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return setting.Value, nil
}
