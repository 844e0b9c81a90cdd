package repository

import "context"

// BlacklistRepository 定义了供给黑名单的存取操作。
// 黑名单在服务层按社区做进程级缓存，这里只负责持久化。
type BlacklistRepository interface {
	// List 返回某社区全部被拉黑的参与者 ID。
	List(ctx context.Context, communityID string) ([]string, error)

	// Add 添加一条黑名单记录。记录已存在时返回 ErrDuplicateEntry。
	Add(ctx context.Context, communityID, participantID string) error

	// Remove 删除一条黑名单记录。记录不存在时为 no-op。
	Remove(ctx context.Context, communityID, participantID string) error
}
