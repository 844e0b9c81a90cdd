package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"voiceroom-manager/internal/domain"
)

// MigrateDB handles all database migrations using the provided GORM DB instance.
// 返回错误以便调用者知道迁移是否成功。
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}

	// 先用自定义 SQL 创建带复合唯一索引的黑名单表，
	// 避免 AutoMigrate 在部分 MySQL 版本上索引长度推断出错
	if err := migrateBlacklistTable(db); err != nil {
		return fmt.Errorf("failed to migrate blacklist table: %w", err)
	}

	err := db.AutoMigrate(
		&domain.CommunitySettings{},
		&domain.RoomRecord{},
	)
	if err != nil {
		logrus.Errorf("Failed to auto-migrate tables: %v", err)
		return fmt.Errorf("failed to auto-migrate tables: %w", err)
	}

	logrus.Info("Database migration completed successfully")
	return nil
}

// migrateBlacklistTable 处理黑名单表迁移。
func migrateBlacklistTable(db *gorm.DB) error {
	var count int64
	db.Raw("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = 'blacklist_entries'").Count(&count)

	if count == 0 {
		return createBlacklistTable(db)
	}
	// 表已存在时让 AutoMigrate 补齐缺失的列和索引
	if err := db.AutoMigrate(&domain.BlacklistEntry{}); err != nil {
		logrus.Errorf("Failed to auto-migrate blacklist table: %v", err)
		return fmt.Errorf("failed to migrate blacklist indexes: %w", err)
	}
	return nil
}

// createBlacklistTable 创建 blacklist_entries 表。
func createBlacklistTable(db *gorm.DB) error {
	sql := `
	CREATE TABLE blacklist_entries (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		community_id VARCHAR(32) NOT NULL,
		participant_id VARCHAR(32) NOT NULL,
		created_at DATETIME(3),
		UNIQUE INDEX idx_community_participant (community_id, participant_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_general_ci;
	`
	if err := db.Exec(sql).Error; err != nil {
		logrus.Errorf("Failed to create blacklist_entries table: %v", err)
		return fmt.Errorf("failed to create blacklist_entries table: %w", err)
	}
	logrus.Info("Blacklist table created successfully")
	return nil
}
