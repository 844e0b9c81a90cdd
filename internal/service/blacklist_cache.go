package service

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"voiceroom-manager/internal/repository"
)

// BlacklistCache 是供给黑名单的进程级缓存。
// 每个社区首次检查时惰性加载一次，之后的读全部命中内存；
// 写操作先落库再同步缓存。
type BlacklistCache struct {
	repo repository.BlacklistRepository

	mu          sync.RWMutex
	communities map[string]map[string]struct{}
}

// NewBlacklistCache 创建 BlacklistCache 实例。
func NewBlacklistCache(repo repository.BlacklistRepository) *BlacklistCache {
	if repo == nil {
		panic("BlacklistRepository cannot be nil for BlacklistCache")
	}
	return &BlacklistCache{
		repo:        repo,
		communities: make(map[string]map[string]struct{}),
	}
}

// Load 从存储加载（或重新加载）某社区的黑名单到缓存。
func (c *BlacklistCache) Load(ctx context.Context, communityID string) error {
	ids, err := c.repo.List(ctx, communityID)
	if err != nil {
		return err
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	c.mu.Lock()
	c.communities[communityID] = set
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"community_id": communityID,
		"entries":      len(set),
	}).Debug("Blacklist loaded into cache")
	return nil
}

// IsBlacklisted 检查参与者是否在某社区的黑名单上。
// 该社区尚未加载时会先触发一次加载。
func (c *BlacklistCache) IsBlacklisted(ctx context.Context, communityID, participantID string) (bool, error) {
	c.mu.RLock()
	set, loaded := c.communities[communityID]
	if loaded {
		_, found := set[participantID]
		c.mu.RUnlock()
		return found, nil
	}
	c.mu.RUnlock()

	if err := c.Load(ctx, communityID); err != nil {
		return false, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	_, found := c.communities[communityID][participantID]
	return found, nil
}

// Add 添加黑名单记录并同步缓存。记录已存在时静默成功。
func (c *BlacklistCache) Add(ctx context.Context, communityID, participantID string) error {
	if err := c.repo.Add(ctx, communityID, participantID); err != nil {
		if !errors.Is(err, repository.ErrDuplicateEntry) {
			return err
		}
	}

	c.mu.Lock()
	if set, loaded := c.communities[communityID]; loaded {
		set[participantID] = struct{}{}
	}
	c.mu.Unlock()
	return nil
}

// Remove 删除黑名单记录并同步缓存。
func (c *BlacklistCache) Remove(ctx context.Context, communityID, participantID string) error {
	if err := c.repo.Remove(ctx, communityID, participantID); err != nil {
		return err
	}

	c.mu.Lock()
	if set, loaded := c.communities[communityID]; loaded {
		delete(set, participantID)
	}
	c.mu.Unlock()
	return nil
}
