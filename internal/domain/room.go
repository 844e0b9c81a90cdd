package domain

import "time"

// EphemeralRoom 表示注册表中一个存活的临时语音房间。
// 注册表是运行时的权威索引：表中每一项都必须对应平台上真实存在的房间。
type EphemeralRoom struct {
	RoomID      string    // 平台资源 ID（唯一，创建后不变）
	OwnerID     string    // 触发创建的参与者 ID（房间生命周期内不变）
	CommunityID string    // 所属社区 ID
	CompanionID string    // 可选的伴生文字房间 ID，与语音房间同生同灭；为空表示没有
	CreatedAt   time.Time // 创建时间，供 TTL 清扫使用
	Locked      bool      // true 表示已拒绝新参与者加入
}

// HasCompanion 返回该房间是否带有伴生文字房间。
func (r EphemeralRoom) HasCompanion() bool {
	return r.CompanionID != ""
}

// RoomRecord 是临时房间的持久化记录。
// 创建房间时同步写入，回收时删除；进程重启后 Reconcile 优先用它恢复
// 真实的 owner 与创建时间（纯内存注册表做不到这一点）。
type RoomRecord struct {
	RoomID      string    `gorm:"primaryKey;size:32"`
	OwnerID     string    `gorm:"size:32;not null"`
	CommunityID string    `gorm:"index;size:32;not null"`
	CompanionID string    `gorm:"size:32"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

// TableName 指定 GORM 表名。
func (RoomRecord) TableName() string {
	return "room_records"
}
