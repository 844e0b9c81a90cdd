package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"voiceroom-manager/internal/domain"
	"voiceroom-manager/internal/platform"
	platformmocks "voiceroom-manager/internal/platform/mocks"
	"voiceroom-manager/internal/registry"
	"voiceroom-manager/internal/repository/mocks"
	"voiceroom-manager/internal/service"
)

type controlFixture struct {
	reg        *registry.Registry
	recordRepo *mocks.RoomRecordRepository
	api        *platformmocks.API
	svc        *service.ControlService
}

func newControlFixture() *controlFixture {
	f := &controlFixture{
		reg:        registry.New(),
		recordRepo: new(mocks.RoomRecordRepository),
		api:        new(platformmocks.API),
	}
	reclaim := service.NewReclaimService(f.reg, new(mocks.SettingsRepository), f.recordRepo, f.api)
	f.svc = service.NewControlService(f.reg, reclaim, f.api)
	return f
}

func ownedRoom() domain.EphemeralRoom {
	return domain.EphemeralRoom{
		RoomID:      "v1",
		OwnerID:     "owner",
		CommunityID: "c1",
		CreatedAt:   time.Now(),
	}
}

func TestControl_RoomNotFound(t *testing.T) {
	f := newControlFixture()

	err := f.svc.Handle(context.Background(), domain.ActionRename, "missing", "owner", domain.ControlPayload{Name: "x"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrRoomNotFound))
}

func TestControl_NonOwnerIsRejectedWithoutSideEffects(t *testing.T) {
	// Arrange: 所有权是绝对的，没有管理员旁路
	f := newControlFixture()
	f.reg.Register(ownedRoom())

	// Act
	err := f.svc.Handle(context.Background(), domain.ActionDelete, "v1", "intruder", domain.ControlPayload{})

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrNotOwner))
	_, ok := f.reg.Get("v1")
	assert.True(t, ok, "被拒绝的操作不应有任何状态变化")
	f.api.AssertNotCalled(t, "DeleteRoom", mock.Anything, mock.Anything)
	f.api.AssertNotCalled(t, "EditRoom", mock.Anything, mock.Anything, mock.Anything)
}

func TestControl_LockAndUnlockToggle(t *testing.T) {
	// Arrange
	f := newControlFixture()
	ctx := context.Background()
	f.reg.Register(ownedRoom())

	f.api.On("SetAccessGrant", ctx, "v1", platform.AccessGrant{
		SubjectID: "c1",
		Deny:      platform.PermConnect,
	}).Return(nil).Once()

	// Act: 上锁
	err := f.svc.Handle(ctx, domain.ActionLock, "v1", "owner", domain.ControlPayload{})
	require.NoError(t, err)
	room, _ := f.reg.Get("v1")
	assert.True(t, room.Locked)

	// Act: 再按一次应解锁
	f.api.On("RemoveAccessGrant", ctx, "v1", "c1").Return(nil).Once()
	err = f.svc.Handle(ctx, domain.ActionLock, "v1", "owner", domain.ControlPayload{})
	require.NoError(t, err)
	room, _ = f.reg.Get("v1")
	assert.False(t, room.Locked)

	f.api.AssertExpectations(t)
}

func TestControl_LockFailureLeavesFlagUnchanged(t *testing.T) {
	// Arrange
	f := newControlFixture()
	ctx := context.Background()
	f.reg.Register(ownedRoom())

	f.api.On("SetAccessGrant", ctx, "v1", mock.Anything).Return(errors.New("api down")).Once()

	// Act
	err := f.svc.Handle(ctx, domain.ActionLock, "v1", "owner", domain.ControlPayload{})

	// Assert: 先改外部资源，失败时注册表保持原状
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrPlatformFailure))
	room, _ := f.reg.Get("v1")
	assert.False(t, room.Locked)
}

func TestControl_SetLimit(t *testing.T) {
	// Arrange
	f := newControlFixture()
	ctx := context.Background()
	f.reg.Register(ownedRoom())

	f.api.On("EditRoom", ctx, "v1", mock.MatchedBy(func(patch platform.RoomPatch) bool {
		return patch.Limit != nil && *patch.Limit == 5 && patch.Name == nil && patch.Region == nil
	})).Return(nil).Once()

	// Act
	err := f.svc.Handle(ctx, domain.ActionSetLimit, "v1", "owner", domain.ControlPayload{Limit: 5})

	// Assert
	require.NoError(t, err)
	f.api.AssertExpectations(t)
}

func TestControl_SetLimitRejectsOutOfRange(t *testing.T) {
	f := newControlFixture()
	ctx := context.Background()
	f.reg.Register(ownedRoom())

	for _, limit := range []int{-1, 100, 500} {
		err := f.svc.Handle(ctx, domain.ActionSetLimit, "v1", "owner", domain.ControlPayload{Limit: limit})
		require.Error(t, err, "limit %d 应被拒绝", limit)
		assert.True(t, errors.Is(err, service.ErrInvalidLimit))
	}
	// 0 表示不限人数，是合法值
	f.api.On("EditRoom", ctx, "v1", mock.Anything).Return(nil).Once()
	assert.NoError(t, f.svc.Handle(ctx, domain.ActionSetLimit, "v1", "owner", domain.ControlPayload{Limit: 0}))

	f.api.AssertExpectations(t)
}

func TestControl_RenameValidatesLength(t *testing.T) {
	f := newControlFixture()
	ctx := context.Background()
	f.reg.Register(ownedRoom())

	// 空名称被拒
	err := f.svc.Handle(ctx, domain.ActionRename, "v1", "owner", domain.ControlPayload{Name: ""})
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrInvalidName))

	// 超过 100 个字符被拒（按字符数，不是字节数）
	long := make([]rune, 101)
	for i := range long {
		long[i] = '很'
	}
	err = f.svc.Handle(ctx, domain.ActionRename, "v1", "owner", domain.ControlPayload{Name: string(long)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrInvalidName))

	// 恰好 100 个多字节字符是合法的
	f.api.On("EditRoom", ctx, "v1", mock.Anything).Return(nil).Once()
	assert.NoError(t, f.svc.Handle(ctx, domain.ActionRename, "v1", "owner",
		domain.ControlPayload{Name: string(long[:100])}))

	f.api.AssertExpectations(t)
}

func TestControl_SetRegionAutomaticMapsToEmpty(t *testing.T) {
	// Arrange
	f := newControlFixture()
	ctx := context.Background()
	f.reg.Register(ownedRoom())

	f.api.On("EditRoom", ctx, "v1", mock.MatchedBy(func(patch platform.RoomPatch) bool {
		return patch.Region != nil && *patch.Region == ""
	})).Return(nil).Once()

	// Act
	err := f.svc.Handle(ctx, domain.ActionSetRegion, "v1", "owner", domain.ControlPayload{Region: "automatic"})

	// Assert
	require.NoError(t, err)
	f.api.AssertExpectations(t)
}

func TestControl_DeleteReclaimsEvenWhenOccupied(t *testing.T) {
	// Arrange: 房主主动删除是唯一允许删非空房间的路径
	f := newControlFixture()
	ctx := context.Background()
	room := ownedRoom()
	room.CompanionID = "t1"
	f.reg.Register(room)

	f.api.On("DeleteRoom", ctx, "t1").Return(nil).Once()
	f.api.On("DeleteRoom", ctx, "v1").Return(nil).Once()
	f.recordRepo.On("Delete", ctx, "v1").Return(nil).Once()

	// Act
	err := f.svc.Handle(ctx, domain.ActionDelete, "v1", "owner", domain.ControlPayload{})

	// Assert: 不做任何占用检查，直接回收
	require.NoError(t, err)
	_, ok := f.reg.Get("v1")
	assert.False(t, ok)
	f.api.AssertExpectations(t)
	f.api.AssertNotCalled(t, "ListRoomsUnder", mock.Anything, mock.Anything, mock.Anything)
}

func TestControl_UnknownActionIsRejected(t *testing.T) {
	f := newControlFixture()
	f.reg.Register(ownedRoom())

	err := f.svc.Handle(context.Background(), domain.ControlAction("explode"), "v1", "owner", domain.ControlPayload{})

	require.Error(t, err)
}
