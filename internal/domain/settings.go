package domain

import "time"

// 默认配置值。
const (
	DefaultNameTemplate = "{user}'s Channel"
	DefaultBitrate      = 64000 // 平台默认音质 (bps)
	DefaultMaxAgeMin    = 720   // 房间最长存活 12 小时，超龄由清扫强制回收
)

// CommunitySettings 是每个社区的供给策略配置。
// 每次供给事件都会读取；由管理配置命令写入。
type CommunitySettings struct {
	CommunityID    string `gorm:"primaryKey;size:32"`
	Enabled        bool   // 子系统总开关
	TriggerRoomID  string `gorm:"size:32"` // 触发房间 ID：加入即触发供给
	ParentID       string `gorm:"size:32"` // 父容器 ID：触发房间与临时房间都建在其下
	NameTemplate   string `gorm:"size:191"`
	DefaultLimit   int    // 新房间的默认人数上限，0 表示不限
	DefaultBitrate int    // 新房间的默认音质 (bps)
	CompanionText  bool   // 是否同时创建伴生文字房间
	LockOnEmpty    bool   // true: 房间变空时仅锁定，留给清扫回收；false: 立即删除
	MaxAgeMinutes  int    // TTL，分钟；超过后清扫会强制回收

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定 GORM 表名。
func (CommunitySettings) TableName() string {
	return "community_settings"
}

// MaxAge 返回房间最长存活时长。未配置时使用默认值。
func (s CommunitySettings) MaxAge() time.Duration {
	minutes := s.MaxAgeMinutes
	if minutes <= 0 {
		minutes = DefaultMaxAgeMin
	}
	return time.Duration(minutes) * time.Minute
}

// Template 返回房间名模板。未配置时使用默认模板。
func (s CommunitySettings) Template() string {
	if s.NameTemplate == "" {
		return DefaultNameTemplate
	}
	return s.NameTemplate
}

// Bitrate 返回新房间的音质。未配置时使用平台默认值。
func (s CommunitySettings) Bitrate() int {
	if s.DefaultBitrate <= 0 {
		return DefaultBitrate
	}
	return s.DefaultBitrate
}
