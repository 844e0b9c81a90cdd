package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"voiceroom-manager/internal/domain"
	platformmocks "voiceroom-manager/internal/platform/mocks"
	"voiceroom-manager/internal/registry"
	"voiceroom-manager/internal/repository"
	"voiceroom-manager/internal/repository/mocks"
	"voiceroom-manager/internal/service"
)

type adminFixture struct {
	reg          *registry.Registry
	settingsRepo *mocks.SettingsRepository
	recordRepo   *mocks.RoomRecordRepository
	blRepo       *mocks.BlacklistRepository
	api          *platformmocks.API
	svc          *service.AdminService
}

func newAdminFixture() *adminFixture {
	f := &adminFixture{
		reg:          registry.New(),
		settingsRepo: new(mocks.SettingsRepository),
		recordRepo:   new(mocks.RoomRecordRepository),
		blRepo:       new(mocks.BlacklistRepository),
		api:          new(platformmocks.API),
	}
	reclaim := service.NewReclaimService(f.reg, f.settingsRepo, f.recordRepo, f.api)
	f.svc = service.NewAdminService(f.reg, f.settingsRepo, service.NewBlacklistCache(f.blRepo), reclaim)
	return f
}

func TestAdmin_SetupEnablesSubsystem(t *testing.T) {
	// Arrange
	f := newAdminFixture()
	ctx := context.Background()

	f.settingsRepo.On("Save", ctx, mock.MatchedBy(func(s *domain.CommunitySettings) bool {
		return s.CommunityID == "c1" && s.Enabled &&
			s.ParentID == "parent" && s.TriggerRoomID == "trigger"
	})).Return(nil).Once()

	// Act
	err := f.svc.Setup(ctx, "c1", service.SetupParams{
		ParentID:      "parent",
		TriggerRoomID: "trigger",
		NameTemplate:  "{user}'s Channel",
	})

	// Assert
	require.NoError(t, err)
	f.settingsRepo.AssertExpectations(t)
}

func TestAdmin_DisableReclaimsAllRooms(t *testing.T) {
	// Arrange
	f := newAdminFixture()
	ctx := context.Background()

	f.reg.Register(domain.EphemeralRoom{RoomID: "v1", OwnerID: "p1", CommunityID: "c1", CreatedAt: time.Now()})
	f.reg.Register(domain.EphemeralRoom{RoomID: "v2", OwnerID: "p2", CommunityID: "c1", CreatedAt: time.Now()})
	f.reg.Register(domain.EphemeralRoom{RoomID: "v3", OwnerID: "p3", CommunityID: "c2", CreatedAt: time.Now()})

	f.settingsRepo.On("Get", ctx, "c1").Return(enabledSettings(), nil).Once()
	f.settingsRepo.On("Save", ctx, mock.MatchedBy(func(s *domain.CommunitySettings) bool {
		return !s.Enabled
	})).Return(nil).Once()
	f.api.On("DeleteRoom", ctx, "v1").Return(nil).Once()
	f.api.On("DeleteRoom", ctx, "v2").Return(nil).Once()
	f.recordRepo.On("Delete", ctx, mock.AnythingOfType("string")).Return(nil).Twice()

	// Act
	err := f.svc.Disable(ctx, "c1")

	// Assert: 只回收该社区的房间，其它社区不受影响
	require.NoError(t, err)
	assert.Empty(t, f.reg.ListByCommunity("c1"))
	assert.Len(t, f.reg.ListByCommunity("c2"), 1)
	f.api.AssertNotCalled(t, "DeleteRoom", ctx, "v3")
}

func TestAdmin_DisableUnconfiguredCommunity(t *testing.T) {
	f := newAdminFixture()
	ctx := context.Background()

	f.settingsRepo.On("Get", ctx, "c1").Return(nil, repository.ErrSettingsNotFound).Once()

	err := f.svc.Disable(ctx, "c1")

	assert.ErrorIs(t, err, service.ErrCommunityNotConfigured)
}

func TestAdmin_CleanupAllCountsFailures(t *testing.T) {
	// Arrange: 一个房间删除失败，清理继续并只计成功的
	f := newAdminFixture()
	ctx := context.Background()

	f.reg.Register(domain.EphemeralRoom{RoomID: "ok", OwnerID: "p1", CommunityID: "c1", CreatedAt: time.Now()})
	f.reg.Register(domain.EphemeralRoom{RoomID: "stuck", OwnerID: "p2", CommunityID: "c1", CreatedAt: time.Now()})

	f.api.On("DeleteRoom", ctx, "ok").Return(nil).Once()
	f.api.On("DeleteRoom", ctx, "stuck").Return(assert.AnError).Once()
	f.recordRepo.On("Delete", ctx, "ok").Return(nil).Once()

	// Act
	reclaimed, err := f.svc.CleanupAll(ctx, "c1")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, reclaimed)
	_, ok := f.reg.Get("stuck")
	assert.True(t, ok, "删除失败的房间应保留条目等清扫重试")
}

func TestAdmin_ListActiveRooms(t *testing.T) {
	f := newAdminFixture()
	f.reg.Register(domain.EphemeralRoom{RoomID: "v1", OwnerID: "p1", CommunityID: "c1", CreatedAt: time.Now()})

	rooms := f.svc.ListActiveRooms("c1")

	require.Len(t, rooms, 1)
	assert.Equal(t, "v1", rooms[0].RoomID)
	assert.Empty(t, f.svc.ListActiveRooms("other"))
}
