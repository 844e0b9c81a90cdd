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

// ReclaimService 负责回收不再需要的临时房间。
// 事件驱动的 OnEmpty 和周期性的 Sweep 会在同一批房间上竞争，
// 两条路径都必须幂等：重复删除已消失的房间是 no-op，不是错误。
type ReclaimService struct {
	reg          *registry.Registry
	settingsRepo repository.SettingsRepository
	recordRepo   repository.RoomRecordRepository
	api          platform.API
}

// NewReclaimService 创建 ReclaimService 实例。
func NewReclaimService(
	reg *registry.Registry,
	settingsRepo repository.SettingsRepository,
	recordRepo repository.RoomRecordRepository,
	api platform.API,
) *ReclaimService {
	if reg == nil || settingsRepo == nil || recordRepo == nil || api == nil {
		panic("ReclaimService dependencies cannot be nil")
	}
	return &ReclaimService{
		reg:          reg,
		settingsRepo: settingsRepo,
		recordRepo:   recordRepo,
		api:          api,
	}
}

// OnEmpty 处理"有参与者离开了某个被跟踪房间"。
// 房间不在注册表中时直接返回（不是我们的房间，或已被回收）。
// 房间确认为空后按策略删除或锁定。
func (s *ReclaimService) OnEmpty(ctx context.Context, roomID string) error {
	lock := s.reg.KeyLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	room, ok := s.reg.Get(roomID)
	if !ok {
		return nil
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":      roomID,
		"community_id": room.CommunityID,
	})

	settings, err := s.settingsRepo.Get(ctx, room.CommunityID)
	if err != nil {
		if !errors.Is(err, repository.ErrSettingsNotFound) {
			logCtx.WithError(err).Error("Reclaim: failed to load settings, abandoning")
			return ErrInternalServer
		}
		// 配置已被删除的社区直接按自动删除处理
		settings = &domain.CommunitySettings{CommunityID: room.CommunityID}
	}

	// 事件只说明有人离开，房间未必真空了——核对实际占用
	info, found, err := s.findRoom(ctx, room.CommunityID, settings.ParentID, roomID)
	if err != nil {
		logCtx.WithError(err).Warn("Reclaim: failed to check occupancy, abandoning until next event or sweep")
		return nil
	}
	if !found {
		// 房间在平台上已经不存在（被人工删除或父容器消失），
		// 注册表绝不允许指向已删除的房间
		logCtx.Info("Reclaim: room already gone externally, dropping registry entry")
		s.dropEntry(ctx, roomID)
		return nil
	}
	if len(info.Occupants) > 0 {
		logCtx.Debug("Reclaim: room is not empty, ignoring")
		return nil
	}

	if settings.LockOnEmpty {
		return s.lockEmptyRoom(ctx, room, logCtx)
	}
	return s.deleteLocked(ctx, room)
}

// ForceDelete 无条件删除一个被跟踪房间（房主主动删除、管理清理）。
// 这是唯一会删除非空房间的路径。
func (s *ReclaimService) ForceDelete(ctx context.Context, roomID string) error {
	lock := s.reg.KeyLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	room, ok := s.reg.Get(roomID)
	if !ok {
		return nil
	}
	return s.deleteLocked(ctx, room)
}

// Sweep 扫描注册表，强制回收超过最长存活时间的房间。
// 这是对丢失事件和进程重启的兜底：锁定后无人再访问的房间、
// 事件窗口内漏掉的空房间，最终都由它回收。
func (s *ReclaimService) Sweep(ctx context.Context) error {
	rooms := s.reg.List()
	if len(rooms) == 0 {
		return nil
	}

	// 按社区分组，每个社区只枚举一次父容器
	byCommunity := make(map[string][]domain.EphemeralRoom)
	for _, room := range rooms {
		byCommunity[room.CommunityID] = append(byCommunity[room.CommunityID], room)
	}

	for communityID, communityRooms := range byCommunity {
		s.sweepCommunity(ctx, communityID, communityRooms)
	}
	return nil
}

// sweepCommunity 清扫单个社区的超龄房间。
func (s *ReclaimService) sweepCommunity(ctx context.Context, communityID string, rooms []domain.EphemeralRoom) {
	logCtx := logrus.WithField("community_id", communityID)

	settings, err := s.settingsRepo.Get(ctx, communityID)
	if err != nil {
		if errors.Is(err, repository.ErrSettingsNotFound) {
			settings = &domain.CommunitySettings{CommunityID: communityID}
		} else {
			logCtx.WithError(err).Warn("Sweep: failed to load settings, skipping community")
			return
		}
	}

	listing, err := s.api.ListRoomsUnder(ctx, communityID, settings.ParentID)
	if err != nil && !errors.Is(err, platform.ErrNotFound) {
		logCtx.WithError(err).Warn("Sweep: failed to list rooms, skipping community")
		return
	}
	// 父容器已不存在时 listing 为空，所有条目都会按"外部已消失"清掉
	occupancy := make(map[string]int, len(listing))
	for _, info := range listing {
		occupancy[info.ID] = len(info.Occupants)
	}

	maxAge := settings.MaxAge()
	now := time.Now()

	for _, snapshot := range rooms {
		if now.Sub(snapshot.CreatedAt) < maxAge {
			continue
		}

		lock := s.reg.KeyLock(snapshot.RoomID)
		lock.Lock()
		// 拿到锁后重读：OnEmpty 或房主删除可能已经抢先回收
		room, ok := s.reg.Get(snapshot.RoomID)
		if !ok {
			lock.Unlock()
			continue
		}

		count, exists := occupancy[room.RoomID]
		switch {
		case !exists:
			// 外部已消失，只需清掉本地状态
			logCtx.WithField("room_id", room.RoomID).Info("Sweep: room already gone externally, dropping entry")
			s.dropEntry(ctx, room.RoomID)
		case count > 0 && !room.Locked:
			// 错过了 departure/arrival 事件后房间又有人了，放过
			logCtx.WithField("room_id", room.RoomID).Debug("Sweep: expired room regained occupants, skipping")
		default:
			// 空房间，或锁定后等待回收的房间，无条件过期
			logCtx.WithFields(logrus.Fields{
				"room_id": room.RoomID,
				"age":     now.Sub(room.CreatedAt).String(),
			}).Info("Sweep: reclaiming expired room")
			if err := s.deleteLocked(ctx, room); err != nil {
				logCtx.WithError(err).Warn("Sweep: failed to reclaim room, will retry next pass")
			}
		}
		lock.Unlock()
	}
}

// lockEmptyRoom 执行"仅锁定"策略：给社区默认角色下发 deny-connect
// 覆盖并标记条目，条目保留给清扫最终回收。
func (s *ReclaimService) lockEmptyRoom(ctx context.Context, room domain.EphemeralRoom, logCtx *logrus.Entry) error {
	if room.Locked {
		return nil
	}
	grant := platform.AccessGrant{
		SubjectID: room.CommunityID, // 社区默认角色的 subject id 与社区 id 相同
		Deny:      platform.PermConnect,
	}
	if err := s.api.SetAccessGrant(ctx, room.RoomID, grant); err != nil {
		logCtx.WithError(err).Warn("Reclaim: failed to lock empty room, abandoning")
		return fmt.Errorf("%w: set access grant: %v", ErrPlatformFailure, err)
	}
	s.reg.SetLocked(room.RoomID, true)
	logCtx.Info("Reclaim: empty room locked, sweep will reclaim it")
	return nil
}

// deleteLocked 删除房间及其伴生文字房间并移除注册表条目。
// 调用方必须已持有该房间的 KeyLock。
//
// 删除顺序固定：先伴生文字房间（尽力而为），再语音房间，最后才移除
// 注册表条目和持久化记录——删除中途崩溃时，下次启动的 Reconcile
// 仍能重新发现孤儿房间。
func (s *ReclaimService) deleteLocked(ctx context.Context, room domain.EphemeralRoom) error {
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":      room.RoomID,
		"community_id": room.CommunityID,
	})

	if room.HasCompanion() {
		if err := s.api.DeleteRoom(ctx, room.CompanionID); err != nil && !errors.Is(err, platform.ErrNotFound) {
			logCtx.WithError(err).Warn("Reclaim: failed to delete companion text room, continuing")
		}
	}

	if err := s.api.DeleteRoom(ctx, room.RoomID); err != nil && !errors.Is(err, platform.ErrNotFound) {
		// 语音房间删除失败时不动注册表：条目继续指向一个仍然
		// 存在的房间，等下一个事件或清扫重试
		logCtx.WithError(err).Error("Reclaim: failed to delete voice room, abandoning")
		return fmt.Errorf("%w: delete room: %v", ErrPlatformFailure, err)
	}

	s.dropEntry(ctx, room.RoomID)
	logCtx.Info("Reclaim: room deleted")
	return nil
}

// dropEntry 移除注册表条目和持久化记录。
func (s *ReclaimService) dropEntry(ctx context.Context, roomID string) {
	if err := s.recordRepo.Delete(ctx, roomID); err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Warn("Reclaim: failed to delete room record")
	}
	s.reg.Remove(roomID)
}

// findRoom 在父容器下查找单个房间的占用信息。
func (s *ReclaimService) findRoom(ctx context.Context, communityID, parentID, roomID string) (platform.RoomInfo, bool, error) {
	listing, err := s.api.ListRoomsUnder(ctx, communityID, parentID)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			// 父容器没了，房间必然也没了
			return platform.RoomInfo{}, false, nil
		}
		return platform.RoomInfo{}, false, err
	}
	for _, info := range listing {
		if info.ID == roomID {
			return info, true, nil
		}
	}
	return platform.RoomInfo{}, false, nil
}
