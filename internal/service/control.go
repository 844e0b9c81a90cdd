package service

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"voiceroom-manager/internal/domain"
	"voiceroom-manager/internal/platform"
	"voiceroom-manager/internal/registry"
)

// 面板操作的参数约束。
const (
	maxParticipantLimit = 99
	minRoomNameRunes    = 1
	maxRoomNameRunes    = 100
)

// ControlService 处理房主对自己房间的面板操作。
// 所有修改先作用于外部资源，成功后才碰注册表（只有 lock/delete
// 需要碰）；外部调用失败时注册表保持原状，错误上抛给操作者。
type ControlService struct {
	reg     *registry.Registry
	reclaim *ReclaimService
	api     platform.API
}

// NewControlService 创建 ControlService 实例。
func NewControlService(reg *registry.Registry, reclaim *ReclaimService, api platform.API) *ControlService {
	if reg == nil || reclaim == nil || api == nil {
		panic("ControlService dependencies cannot be nil")
	}
	return &ControlService{reg: reg, reclaim: reclaim, api: api}
}

// Handle 执行一次面板操作。
// 房间不存在返回 ErrRoomNotFound；actor 不是房主返回 ErrNotOwner，
// 两种情况都保证没有任何状态被修改。所有权是绝对的，没有管理员旁路。
func (s *ControlService) Handle(ctx context.Context, action domain.ControlAction, roomID, actorID string, payload domain.ControlPayload) error {
	logCtx := logrus.WithFields(logrus.Fields{
		"action":   string(action),
		"room_id":  roomID,
		"actor_id": actorID,
	})

	lock := s.reg.KeyLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	room, ok := s.reg.Get(roomID)
	if !ok {
		logCtx.Debug("Control: room not found")
		return ErrRoomNotFound
	}
	if room.OwnerID != actorID {
		logCtx.Warn("Control: actor is not the room owner, rejecting")
		return ErrNotOwner
	}

	switch action {
	case domain.ActionLock:
		return s.toggleLock(ctx, room, logCtx)
	case domain.ActionSetLimit:
		return s.setLimit(ctx, room, payload.Limit, logCtx)
	case domain.ActionRename:
		return s.rename(ctx, room, payload.Name, logCtx)
	case domain.ActionSetRegion:
		return s.setRegion(ctx, room, payload.Region, logCtx)
	case domain.ActionDelete:
		// 房主主动删除：无视占用情况的强制回收
		return s.reclaim.deleteLocked(ctx, room)
	default:
		return fmt.Errorf("unknown control action %q", action)
	}
}

// toggleLock 切换社区默认角色的 deny-connect 覆盖并翻转注册表标记。
func (s *ControlService) toggleLock(ctx context.Context, room domain.EphemeralRoom, logCtx *logrus.Entry) error {
	if room.Locked {
		if err := s.api.RemoveAccessGrant(ctx, room.RoomID, room.CommunityID); err != nil {
			logCtx.WithError(err).Error("Control: failed to unlock room")
			return fmt.Errorf("%w: remove access grant: %v", ErrPlatformFailure, err)
		}
		s.reg.SetLocked(room.RoomID, false)
		logCtx.Info("Control: room unlocked")
		return nil
	}

	grant := platform.AccessGrant{
		SubjectID: room.CommunityID,
		Deny:      platform.PermConnect,
	}
	if err := s.api.SetAccessGrant(ctx, room.RoomID, grant); err != nil {
		logCtx.WithError(err).Error("Control: failed to lock room")
		return fmt.Errorf("%w: set access grant: %v", ErrPlatformFailure, err)
	}
	s.reg.SetLocked(room.RoomID, true)
	logCtx.Info("Control: room locked")
	return nil
}

// setLimit 修改人数上限。上限不镜像到注册表。
func (s *ControlService) setLimit(ctx context.Context, room domain.EphemeralRoom, limit int, logCtx *logrus.Entry) error {
	if limit < 0 || limit > maxParticipantLimit {
		return ErrInvalidLimit
	}
	if err := s.api.EditRoom(ctx, room.RoomID, platform.RoomPatch{Limit: &limit}); err != nil {
		logCtx.WithError(err).Error("Control: failed to set limit")
		return fmt.Errorf("%w: edit room: %v", ErrPlatformFailure, err)
	}
	logCtx.WithField("limit", limit).Info("Control: participant limit updated")
	return nil
}

// rename 修改房间名。名称不镜像到注册表。
func (s *ControlService) rename(ctx context.Context, room domain.EphemeralRoom, name string, logCtx *logrus.Entry) error {
	if n := utf8.RuneCountInString(name); n < minRoomNameRunes || n > maxRoomNameRunes {
		return ErrInvalidName
	}
	if err := s.api.EditRoom(ctx, room.RoomID, platform.RoomPatch{Name: &name}); err != nil {
		logCtx.WithError(err).Error("Control: failed to rename room")
		return fmt.Errorf("%w: edit room: %v", ErrPlatformFailure, err)
	}
	logCtx.Info("Control: room renamed")
	return nil
}

// setRegion 修改语音区域，空串表示切回 automatic。区域不镜像到注册表。
func (s *ControlService) setRegion(ctx context.Context, room domain.EphemeralRoom, region string, logCtx *logrus.Entry) error {
	if region == "automatic" {
		region = ""
	}
	if err := s.api.EditRoom(ctx, room.RoomID, platform.RoomPatch{Region: &region}); err != nil {
		logCtx.WithError(err).Error("Control: failed to set region")
		return fmt.Errorf("%w: edit room: %v", ErrPlatformFailure, err)
	}
	logCtx.WithField("region", region).Info("Control: room region updated")
	return nil
}
