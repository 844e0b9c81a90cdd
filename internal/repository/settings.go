package repository

import (
	"context"

	"voiceroom-manager/internal/domain"
)

// SettingsRepository 定义了社区供给配置的存取操作。
type SettingsRepository interface {
	// Get 读取某社区的配置。
	// 社区未配置时返回 ErrSettingsNotFound。
	Get(ctx context.Context, communityID string) (*domain.CommunitySettings, error)

	// Save 保存社区配置（存在则更新，不存在则创建）。
	Save(ctx context.Context, settings *domain.CommunitySettings) error

	// ListEnabled 返回所有已启用子系统的社区配置，用于启动时的状态重建。
	ListEnabled(ctx context.Context) ([]domain.CommunitySettings, error)
}
