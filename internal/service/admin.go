package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"voiceroom-manager/internal/domain"
	"voiceroom-manager/internal/registry"
	"voiceroom-manager/internal/repository"
)

// SetupParams 是管理端配置子系统时的参数。
type SetupParams struct {
	ParentID       string
	TriggerRoomID  string
	NameTemplate   string
	DefaultLimit   int
	DefaultBitrate int
	CompanionText  bool
	LockOnEmpty    bool
	MaxAgeMinutes  int
}

// AdminService 实现被外部命令层消费的管理入口。
type AdminService struct {
	reg          *registry.Registry
	settingsRepo repository.SettingsRepository
	blacklist    *BlacklistCache
	reclaim      *ReclaimService
}

// NewAdminService 创建 AdminService 实例。
func NewAdminService(
	reg *registry.Registry,
	settingsRepo repository.SettingsRepository,
	blacklist *BlacklistCache,
	reclaim *ReclaimService,
) *AdminService {
	if reg == nil || settingsRepo == nil || blacklist == nil || reclaim == nil {
		panic("AdminService dependencies cannot be nil")
	}
	return &AdminService{
		reg:          reg,
		settingsRepo: settingsRepo,
		blacklist:    blacklist,
		reclaim:      reclaim,
	}
}

// Setup 启用并配置某社区的子系统。
func (s *AdminService) Setup(ctx context.Context, communityID string, params SetupParams) error {
	logCtx := logrus.WithField("community_id", communityID)

	settings := &domain.CommunitySettings{
		CommunityID:    communityID,
		Enabled:        true,
		ParentID:       params.ParentID,
		TriggerRoomID:  params.TriggerRoomID,
		NameTemplate:   params.NameTemplate,
		DefaultLimit:   params.DefaultLimit,
		DefaultBitrate: params.DefaultBitrate,
		CompanionText:  params.CompanionText,
		LockOnEmpty:    params.LockOnEmpty,
		MaxAgeMinutes:  params.MaxAgeMinutes,
	}
	if err := s.settingsRepo.Save(ctx, settings); err != nil {
		logCtx.WithError(err).Error("Admin: failed to save settings")
		return ErrInternalServer
	}
	logCtx.Info("Admin: subsystem configured")
	return nil
}

// Disable 关闭某社区的子系统并回收其全部存活房间。
func (s *AdminService) Disable(ctx context.Context, communityID string) error {
	logCtx := logrus.WithField("community_id", communityID)

	settings, err := s.settingsRepo.Get(ctx, communityID)
	if err != nil {
		if errors.Is(err, repository.ErrSettingsNotFound) {
			return ErrCommunityNotConfigured
		}
		logCtx.WithError(err).Error("Admin: failed to load settings")
		return ErrInternalServer
	}

	settings.Enabled = false
	if err := s.settingsRepo.Save(ctx, settings); err != nil {
		logCtx.WithError(err).Error("Admin: failed to save settings")
		return ErrInternalServer
	}

	reclaimed, _ := s.CleanupAll(ctx, communityID)
	logCtx.WithField("reclaimed", reclaimed).Info("Admin: subsystem disabled")
	return nil
}

// CleanupAll 强制回收某社区全部已登记的房间，返回成功回收的数量。
func (s *AdminService) CleanupAll(ctx context.Context, communityID string) (int, error) {
	logCtx := logrus.WithField("community_id", communityID)

	reclaimed := 0
	for _, room := range s.reg.ListByCommunity(communityID) {
		if err := s.reclaim.ForceDelete(ctx, room.RoomID); err != nil {
			// 单个房间失败不中止清理，留给清扫重试
			logCtx.WithError(err).WithField("room_id", room.RoomID).Warn("Admin: failed to reclaim room during cleanup")
			continue
		}
		reclaimed++
	}
	return reclaimed, nil
}

// BlacklistAdd 把参与者加入某社区的供给黑名单。
func (s *AdminService) BlacklistAdd(ctx context.Context, communityID, participantID string) error {
	if err := s.blacklist.Add(ctx, communityID, participantID); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"community_id":   communityID,
			"participant_id": participantID,
		}).Error("Admin: failed to add blacklist entry")
		return ErrInternalServer
	}
	return nil
}

// BlacklistRemove 把参与者移出某社区的供给黑名单。
func (s *AdminService) BlacklistRemove(ctx context.Context, communityID, participantID string) error {
	if err := s.blacklist.Remove(ctx, communityID, participantID); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"community_id":   communityID,
			"participant_id": participantID,
		}).Error("Admin: failed to remove blacklist entry")
		return ErrInternalServer
	}
	return nil
}

// ListActiveRooms 返回某社区当前存活的全部临时房间。
func (s *AdminService) ListActiveRooms(communityID string) []domain.EphemeralRoom {
	return s.reg.ListByCommunity(communityID)
}
