package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"voiceroom-manager/internal/domain"
	"voiceroom-manager/internal/repository"
)

// GormSettingsRepository 是 SettingsRepository 接口的 GORM 实现
type GormSettingsRepository struct {
	db *gorm.DB
}

// NewGormSettingsRepository 创建 GormSettingsRepository 实例
func NewGormSettingsRepository(db *gorm.DB) *GormSettingsRepository {
	if db == nil {
		panic("database connection cannot be nil for GormSettingsRepository")
	}
	return &GormSettingsRepository{db: db}
}

// Get 实现按社区 ID 读取配置
func (r *GormSettingsRepository) Get(ctx context.Context, communityID string) (*domain.CommunitySettings, error) {
	var settings domain.CommunitySettings
	err := r.db.WithContext(ctx).First(&settings, "community_id = ?", communityID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrSettingsNotFound
		}
		return nil, fmt.Errorf("gorm: find settings for community %s: %w", communityID, err)
	}
	return &settings, nil
}

// Save 实现保存社区配置（创建或更新）
func (r *GormSettingsRepository) Save(ctx context.Context, settings *domain.CommunitySettings) error {
	if err := r.db.WithContext(ctx).Save(settings).Error; err != nil {
		return fmt.Errorf("gorm: save settings for community %s: %w", settings.CommunityID, err)
	}
	return nil
}

// ListEnabled 实现列出所有已启用的社区配置
func (r *GormSettingsRepository) ListEnabled(ctx context.Context) ([]domain.CommunitySettings, error) {
	var list []domain.CommunitySettings
	if err := r.db.WithContext(ctx).Where("enabled = ?", true).Find(&list).Error; err != nil {
		return nil, fmt.Errorf("gorm: list enabled settings: %w", err)
	}
	return list, nil
}
