package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"voiceroom-manager/internal/domain"
	"voiceroom-manager/internal/repository"
)

// GormRoomRecordRepository 是 RoomRecordRepository 接口的 GORM 实现
type GormRoomRecordRepository struct {
	db *gorm.DB
}

// NewGormRoomRecordRepository 创建 GormRoomRecordRepository 实例
func NewGormRoomRecordRepository(db *gorm.DB) *GormRoomRecordRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomRecordRepository")
	}
	return &GormRoomRecordRepository{db: db}
}

// Find 实现按房间 ID 查找持久化记录
func (r *GormRoomRecordRepository) Find(ctx context.Context, roomID string) (*domain.RoomRecord, error) {
	var record domain.RoomRecord
	err := r.db.WithContext(ctx).First(&record, "room_id = ?", roomID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRecordNotFound
		}
		return nil, fmt.Errorf("gorm: find room record %s: %w", roomID, err)
	}
	return &record, nil
}

// Save 实现写入一条持久化记录（创建或更新）
func (r *GormRoomRecordRepository) Save(ctx context.Context, record *domain.RoomRecord) error {
	if err := r.db.WithContext(ctx).Save(record).Error; err != nil {
		return fmt.Errorf("gorm: save room record %s: %w", record.RoomID, err)
	}
	return nil
}

// Delete 实现删除一条持久化记录（记录不存在时为 no-op）
func (r *GormRoomRecordRepository) Delete(ctx context.Context, roomID string) error {
	err := r.db.WithContext(ctx).Delete(&domain.RoomRecord{}, "room_id = ?", roomID).Error
	if err != nil {
		return fmt.Errorf("gorm: delete room record %s: %w", roomID, err)
	}
	return nil
}
