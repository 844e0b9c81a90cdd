package domain

import "time"

// BlacklistEntry 表示一条 (社区, 参与者) 黑名单记录。
// 记录存在即拒绝该参与者的供给权限。
type BlacklistEntry struct {
	ID            uint      `gorm:"primaryKey"`
	CommunityID   string    `gorm:"uniqueIndex:idx_community_participant,size:32;not null"`
	ParticipantID string    `gorm:"uniqueIndex:idx_community_participant,size:32;not null"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

// TableName 指定 GORM 表名。
func (BlacklistEntry) TableName() string {
	return "blacklist_entries"
}
