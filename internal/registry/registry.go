// Package registry 维护全部存活临时房间的内存权威索引。
package registry

import (
	"hash/fnv"
	"sync"

	"voiceroom-manager/internal/domain"
)

// keyLockCount 是条目锁的分段数。
const keyLockCount = 64

// Registry 是按房间 ID 索引的临时房间表。
//
// 并发约定：mu 只保护 rooms map 本身，持有时间必须很短，绝不跨越
// 任何网络调用。对同一个房间的 检查-外部调用-提交 序列由 KeyLock
// 返回的分段锁串行化；不同房间（大概率）落在不同分段上，互不阻塞。
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]domain.EphemeralRoom

	keyLocks [keyLockCount]sync.Mutex
}

// New 创建空的 Registry。
func New() *Registry {
	return &Registry{
		rooms: make(map[string]domain.EphemeralRoom),
	}
}

// KeyLock 返回串行化某房间操作的分段锁。
// 调用方先锁定它，再做 Get / 外部调用 / SetLocked / Remove 的序列。
func (r *Registry) KeyLock(roomID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(roomID))
	return &r.keyLocks[h.Sum32()%keyLockCount]
}

// Register 登记一个房间。同一 ID 重复登记会覆盖旧条目。
func (r *Registry) Register(room domain.EphemeralRoom) {
	r.mu.Lock()
	r.rooms[room.RoomID] = room
	r.mu.Unlock()
}

// Get 按房间 ID 查找条目。
func (r *Registry) Get(roomID string) (domain.EphemeralRoom, bool) {
	r.mu.RLock()
	room, ok := r.rooms[roomID]
	r.mu.RUnlock()
	return room, ok
}

// Remove 删除条目并返回是否存在。重复删除是 no-op。
func (r *Registry) Remove(roomID string) bool {
	r.mu.Lock()
	_, ok := r.rooms[roomID]
	delete(r.rooms, roomID)
	r.mu.Unlock()
	return ok
}

// SetLocked 更新条目的锁定标记。条目不存在时返回 false。
func (r *Registry) SetLocked(roomID string, locked bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	room.Locked = locked
	r.rooms[roomID] = room
	return true
}

// List 返回全部条目的快照。
func (r *Registry) List() []domain.EphemeralRoom {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.EphemeralRoom, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room)
	}
	return out
}

// ListByCommunity 返回某社区全部条目的快照。
func (r *Registry) ListByCommunity(communityID string) []domain.EphemeralRoom {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.EphemeralRoom
	for _, room := range r.rooms {
		if room.CommunityID == communityID {
			out = append(out, room)
		}
	}
	return out
}

// CountByCommunity 返回某社区当前存活的房间数。
func (r *Registry) CountByCommunity(communityID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, room := range r.rooms {
		if room.CommunityID == communityID {
			count++
		}
	}
	return count
}
