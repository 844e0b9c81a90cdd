package repository

import (
	"context"
	"time"
)

// StateRepository 定义了与运行时状态相关的操作，由 Redis 实现。
type StateRepository interface {
	// AcquireProvisionGuard 尝试获取 (社区, 参与者) 的供给互斥标记。
	// 平台在重连窗口内可能对同一次加入重复投递事件，标记保证同一参与者
	// 在 ttl 内只会触发一次供给。返回 true 表示获取成功。
	AcquireProvisionGuard(ctx context.Context, communityID, participantID string, ttl time.Duration) (bool, error)

	// ReleaseProvisionGuard 提前释放供给互斥标记（供给失败后调用，允许立即重试）。
	ReleaseProvisionGuard(ctx context.Context, communityID, participantID string) error
}
