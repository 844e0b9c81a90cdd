package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"voiceroom-manager/internal/domain"
	"voiceroom-manager/internal/repository"
)

// GormBlacklistRepository 是 BlacklistRepository 接口的 GORM 实现
type GormBlacklistRepository struct {
	db *gorm.DB
}

// NewGormBlacklistRepository 创建 GormBlacklistRepository 实例
func NewGormBlacklistRepository(db *gorm.DB) *GormBlacklistRepository {
	if db == nil {
		panic("database connection cannot be nil for GormBlacklistRepository")
	}
	return &GormBlacklistRepository{db: db}
}

// List 实现读取某社区的全部黑名单参与者 ID
func (r *GormBlacklistRepository) List(ctx context.Context, communityID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&domain.BlacklistEntry{}).
		Where("community_id = ?", communityID).
		Pluck("participant_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list blacklist for community %s: %w", communityID, err)
	}
	return ids, nil
}

// Add 实现添加一条黑名单记录
func (r *GormBlacklistRepository) Add(ctx context.Context, communityID, participantID string) error {
	entry := domain.BlacklistEntry{
		CommunityID:   communityID,
		ParticipantID: participantID,
	}
	if err := r.db.WithContext(ctx).Create(&entry).Error; err != nil {
		// --- 健壮的唯一约束检查 (以 MySQL 为例) ---
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: add blacklist entry (%s, %s): %w", communityID, participantID, err)
	}
	return nil
}

// Remove 实现删除一条黑名单记录（记录不存在时为 no-op）
func (r *GormBlacklistRepository) Remove(ctx context.Context, communityID, participantID string) error {
	err := r.db.WithContext(ctx).
		Where("community_id = ? AND participant_id = ?", communityID, participantID).
		Delete(&domain.BlacklistEntry{}).Error
	if err != nil {
		return fmt.Errorf("gorm: remove blacklist entry (%s, %s): %w", communityID, participantID, err)
	}
	return nil
}
