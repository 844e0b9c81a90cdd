package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"voiceroom-manager/internal/domain"
	"voiceroom-manager/internal/platform"
	"voiceroom-manager/internal/registry"
	"voiceroom-manager/internal/repository"
)

// 供给互斥标记的存活时间。标记只覆盖进行中的供给：成功或失败后
// 都会主动释放，TTL 只兜底中途崩溃的进程。
const provisionGuardTTL = 10 * time.Second

// ProvisionService 负责按需创建临时语音房间。
type ProvisionService struct {
	reg          *registry.Registry
	settingsRepo repository.SettingsRepository
	recordRepo   repository.RoomRecordRepository
	stateRepo    repository.StateRepository
	blacklist    *BlacklistCache
	api          platform.API
}

// NewProvisionService 创建 ProvisionService 实例。
func NewProvisionService(
	reg *registry.Registry,
	settingsRepo repository.SettingsRepository,
	recordRepo repository.RoomRecordRepository,
	stateRepo repository.StateRepository,
	blacklist *BlacklistCache,
	api platform.API,
) *ProvisionService {
	if reg == nil || settingsRepo == nil || recordRepo == nil || stateRepo == nil || blacklist == nil || api == nil {
		panic("ProvisionService dependencies cannot be nil")
	}
	return &ProvisionService{
		reg:          reg,
		settingsRepo: settingsRepo,
		recordRepo:   recordRepo,
		stateRepo:    stateRepo,
		blacklist:    blacklist,
		api:          api,
	}
}

// Provision 为进入触发房间的参与者创建一个临时语音房间。
//
// 策略性拒绝（子系统未启用、父容器不存在、参与者被拉黑）不返回错误，
// 只记录日志；外部资源创建失败返回错误且保证注册表无半成品条目。
func (s *ProvisionService) Provision(ctx context.Context, communityID, participantID string) error {
	logCtx := logrus.WithFields(logrus.Fields{
		"community_id":   communityID,
		"participant_id": participantID,
	})

	// 1. 供给互斥：同一参与者同一时刻只有一次供给在进行。
	// 标记在所有出口都会释放——离开又快速回来的参与者必须照常供给
	acquired, err := s.stateRepo.AcquireProvisionGuard(ctx, communityID, participantID, provisionGuardTTL)
	if err != nil {
		// Redis 故障不阻断供给，只是失去去重保护
		logCtx.WithError(err).Warn("Provision: failed to acquire guard, continuing without dedup")
	} else if !acquired {
		logCtx.Debug("Provision: concurrent provisioning in flight, ignoring")
		return nil
	}

	// 2. 读取社区配置；未配置或未启用时静默放弃
	settings, err := s.settingsRepo.Get(ctx, communityID)
	if err != nil {
		if errors.Is(err, repository.ErrSettingsNotFound) {
			logCtx.Debug("Provision: community not configured, ignoring")
			return nil
		}
		logCtx.WithError(err).Error("Provision: failed to load settings")
		return ErrInternalServer
	}
	if !settings.Enabled || settings.ParentID == "" || settings.TriggerRoomID == "" {
		logCtx.Debug("Provision: subsystem disabled for community, ignoring")
		return nil
	}

	// 3. 黑名单检查：断开参与者并私信告知，然后放弃
	denied, err := s.blacklist.IsBlacklisted(ctx, communityID, participantID)
	if err != nil {
		logCtx.WithError(err).Error("Provision: blacklist check failed")
		return ErrInternalServer
	}
	if denied {
		logCtx.Info("Provision: participant is blacklisted, disconnecting")
		if err := s.api.DisconnectParticipant(ctx, communityID, participantID); err != nil {
			logCtx.WithError(err).Warn("Provision: failed to disconnect blacklisted participant")
		}
		if err := s.api.Notify(ctx, participantID, "You are not allowed to create voice rooms in this community."); err != nil {
			logCtx.WithError(err).Debug("Provision: failed to notify blacklisted participant")
		}
		return nil
	}

	// 4. 确认父容器仍然存在；不存在时静默放弃
	if _, err := s.api.ListRoomsUnder(ctx, communityID, settings.ParentID); err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			logCtx.Warn("Provision: parent container no longer exists, ignoring")
			s.releaseGuard(ctx, communityID, participantID)
			return nil
		}
		logCtx.WithError(err).Error("Provision: failed to check parent container")
		s.releaseGuard(ctx, communityID, participantID)
		return fmt.Errorf("%w: list rooms: %v", ErrPlatformFailure, err)
	}

	// 5. 渲染房间名
	info, err := s.api.Participant(ctx, communityID, participantID)
	if err != nil {
		// 展示信息拿不到时退化为用 ID 渲染，不阻断供给
		logCtx.WithError(err).Warn("Provision: failed to fetch participant info, using id")
		info = platform.ParticipantInfo{ID: participantID}
	}
	name := renderRoomName(settings.Template(), info, s.reg.CountByCommunity(communityID)+1)
	logCtx = logCtx.WithField("room_name", name)

	// 6. 创建语音房间并授予房主权限（权限只存在于这个房间上）
	ownerGrant := platform.AccessGrant{
		SubjectID: participantID,
		Allow:     platform.OwnerVoicePermissions,
	}
	voiceID, err := s.api.CreateVoiceRoom(ctx, communityID, settings.ParentID, name,
		settings.DefaultLimit, settings.Bitrate(), []platform.AccessGrant{ownerGrant})
	if err != nil {
		logCtx.WithError(err).Error("Provision: failed to create voice room")
		s.releaseGuard(ctx, communityID, participantID)
		return fmt.Errorf("%w: create voice room: %v", ErrPlatformFailure, err)
	}
	logCtx = logCtx.WithField("room_id", voiceID)

	// 7. 按策略创建伴生文字房间：默认对所有人不可见，只有房主能用
	companionID := ""
	if settings.CompanionText {
		textGrants := []platform.AccessGrant{
			{SubjectID: communityID, Deny: platform.PermView},
			{SubjectID: participantID, Allow: platform.OwnerTextPermissions},
		}
		companionID, err = s.api.CreateTextRoom(ctx, communityID, settings.ParentID, name, textGrants)
		if err != nil {
			// 整个操作必须原子：回收刚建的语音房间，注册表不留半成品
			logCtx.WithError(err).Error("Provision: failed to create companion text room, rolling back voice room")
			if delErr := s.api.DeleteRoom(ctx, voiceID); delErr != nil {
				logCtx.WithError(delErr).Warn("Provision: rollback delete of voice room failed, sweep will reclaim it")
			}
			s.releaseGuard(ctx, communityID, participantID)
			return fmt.Errorf("%w: create text room: %v", ErrPlatformFailure, err)
		}
		logCtx = logCtx.WithField("companion_id", companionID)
	}

	// 8. 把参与者从触发房间移进新房间。
	// 移动失败（参与者已经离开）不回滚：空的新房间和其它空房间
	// 没有区别，交给回收引擎的正常路径处理。
	if err := s.api.MoveParticipant(ctx, communityID, participantID, voiceID); err != nil {
		logCtx.WithError(err).Warn("Provision: failed to move participant into new room, keeping room")
	}

	// 9. 同步登记到注册表——在返回之前完成，外部可见的房间
	// 绝不允许长时间游离于注册表之外
	room := domain.EphemeralRoom{
		RoomID:      voiceID,
		OwnerID:     participantID,
		CommunityID: communityID,
		CompanionID: companionID,
		CreatedAt:   time.Now(),
	}
	s.reg.Register(room)

	// 持久化记录供重启后的 Reconcile 恢复 owner；写失败只降级不中止
	record := domain.RoomRecord{
		RoomID:      voiceID,
		OwnerID:     participantID,
		CommunityID: communityID,
		CompanionID: companionID,
		CreatedAt:   room.CreatedAt,
	}
	if err := s.recordRepo.Save(ctx, &record); err != nil {
		logCtx.WithError(err).Warn("Provision: failed to persist room record")
	}

	// 10. 供给已完成，释放互斥标记。不释放的话，拿到房间后马上
	// 离开又回到触发房间的参与者会在 TTL 内被误判为重复事件
	s.releaseGuard(ctx, communityID, participantID)

	// 11. 通知房主，尽力而为
	if err := s.api.Notify(ctx, participantID, fmt.Sprintf("Your voice room %q is ready.", name)); err != nil {
		logCtx.WithError(err).Debug("Provision: failed to notify owner")
	}

	logCtx.Info("Provision: ephemeral room created")
	return nil
}

// releaseGuard 释放供给互斥标记，成功和失败的出口都要调用。
func (s *ProvisionService) releaseGuard(ctx context.Context, communityID, participantID string) {
	if err := s.stateRepo.ReleaseProvisionGuard(ctx, communityID, participantID); err != nil {
		logrus.WithError(err).Debug("Provision: failed to release guard")
	}
}
