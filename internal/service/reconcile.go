package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"voiceroom-manager/internal/domain"
	"voiceroom-manager/internal/platform"
	"voiceroom-manager/internal/registry"
	"voiceroom-manager/internal/repository"
)

// ReconcileService 在进程启动时重建注册表。
// 没有它，重启前已被供给出去、还在使用中的房间会变成孤儿。
type ReconcileService struct {
	reg          *registry.Registry
	settingsRepo repository.SettingsRepository
	recordRepo   repository.RoomRecordRepository
	blacklist    *BlacklistCache
	api          platform.API
}

// NewReconcileService 创建 ReconcileService 实例。
func NewReconcileService(
	reg *registry.Registry,
	settingsRepo repository.SettingsRepository,
	recordRepo repository.RoomRecordRepository,
	blacklist *BlacklistCache,
	api platform.API,
) *ReconcileService {
	if reg == nil || settingsRepo == nil || recordRepo == nil || blacklist == nil || api == nil {
		panic("ReconcileService dependencies cannot be nil")
	}
	return &ReconcileService{
		reg:          reg,
		settingsRepo: settingsRepo,
		recordRepo:   recordRepo,
		blacklist:    blacklist,
		api:          api,
	}
}

// Initialize 为单个社区重建状态，进程开始服务该社区前调用一次。
//
// 父容器下除触发房间外的每个语音房间：
//   - 有持久化记录的，按记录恢复（真实 owner、真实创建时间）；
//   - 没有记录但有人在用的，登记第一个观察到的占用者为 owner，
//     创建时间记为当前时刻——owner 元数据没有别的来源，这是
//     已知的尽力而为边界；
//   - 没有记录且没人的，不登记，留给人工处理或后续识别。
func (s *ReconcileService) Initialize(ctx context.Context, communityID string) error {
	logCtx := logrus.WithField("community_id", communityID)

	// 1. 预热黑名单缓存
	if err := s.blacklist.Load(ctx, communityID); err != nil {
		logCtx.WithError(err).Warn("Reconcile: failed to preload blacklist, will lazy-load")
	}

	// 2. 读取配置；未配置或未启用的社区没有需要恢复的状态
	settings, err := s.settingsRepo.Get(ctx, communityID)
	if err != nil {
		if errors.Is(err, repository.ErrSettingsNotFound) {
			return nil
		}
		logCtx.WithError(err).Error("Reconcile: failed to load settings")
		return ErrInternalServer
	}
	if !settings.Enabled || settings.ParentID == "" {
		return nil
	}

	// 3. 枚举父容器下的语音房间
	listing, err := s.api.ListRoomsUnder(ctx, communityID, settings.ParentID)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			logCtx.Warn("Reconcile: parent container no longer exists")
			return nil
		}
		logCtx.WithError(err).Error("Reconcile: failed to list rooms")
		return ErrInternalServer
	}

	restored := 0
	for _, info := range listing {
		if info.Type != platform.RoomTypeVoice || info.ID == settings.TriggerRoomID {
			continue
		}
		if s.restoreRoom(ctx, communityID, info, logCtx) {
			restored++
		}
	}

	logCtx.WithField("restored", restored).Info("Reconcile: registry rehydrated")
	return nil
}

// restoreRoom 恢复单个房间的注册表条目，返回是否登记了条目。
func (s *ReconcileService) restoreRoom(ctx context.Context, communityID string, info platform.RoomInfo, logCtx *logrus.Entry) bool {
	record, err := s.recordRepo.Find(ctx, info.ID)
	if err == nil {
		// 有持久化记录：按真实的 owner 和创建时间恢复，
		// 空房间也登记，让清扫走正常的 TTL 路径回收
		s.reg.Register(domain.EphemeralRoom{
			RoomID:      record.RoomID,
			OwnerID:     record.OwnerID,
			CommunityID: record.CommunityID,
			CompanionID: record.CompanionID,
			CreatedAt:   record.CreatedAt,
		})
		return true
	}
	if !errors.Is(err, repository.ErrRecordNotFound) {
		logCtx.WithError(err).WithField("room_id", info.ID).Warn("Reconcile: record lookup failed, falling back to occupancy")
	}

	if len(info.Occupants) == 0 {
		// 无记录且无人：不登记（已知的尽力而为边界）
		return false
	}

	// 无记录但有人在用：第一个占用者当作 owner，年龄从现在起算
	room := domain.EphemeralRoom{
		RoomID:      info.ID,
		OwnerID:     info.Occupants[0],
		CommunityID: communityID,
		CreatedAt:   time.Now(),
	}
	s.reg.Register(room)

	// 补写记录，下次重启就不用再猜了
	rec := domain.RoomRecord{
		RoomID:      room.RoomID,
		OwnerID:     room.OwnerID,
		CommunityID: room.CommunityID,
		CreatedAt:   room.CreatedAt,
	}
	if err := s.recordRepo.Save(ctx, &rec); err != nil {
		logCtx.WithError(err).WithField("room_id", info.ID).Warn("Reconcile: failed to persist synthesized record")
	}

	logCtx.WithFields(logrus.Fields{
		"room_id":  info.ID,
		"owner_id": room.OwnerID,
	}).Info("Reconcile: room restored from observed occupancy")
	return true
}
