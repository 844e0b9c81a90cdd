package repository

import (
	"context"

	"voiceroom-manager/internal/domain"
)

// RoomRecordRepository 定义了临时房间持久化记录的存取操作。
// 记录在创建房间时写入、回收时删除，用于进程重启后恢复 owner 信息。
type RoomRecordRepository interface {
	// Find 按房间 ID 查找记录。不存在时返回 ErrRecordNotFound。
	Find(ctx context.Context, roomID string) (*domain.RoomRecord, error)

	// Save 写入一条记录（存在则更新）。
	Save(ctx context.Context, record *domain.RoomRecord) error

	// Delete 删除一条记录。记录不存在时为 no-op。
	Delete(ctx context.Context, roomID string) error
}
