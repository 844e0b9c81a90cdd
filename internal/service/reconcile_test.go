package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"voiceroom-manager/internal/domain"
	"voiceroom-manager/internal/platform"
	platformmocks "voiceroom-manager/internal/platform/mocks"
	"voiceroom-manager/internal/registry"
	"voiceroom-manager/internal/repository"
	"voiceroom-manager/internal/repository/mocks"
	"voiceroom-manager/internal/service"
)

type reconcileFixture struct {
	reg          *registry.Registry
	settingsRepo *mocks.SettingsRepository
	recordRepo   *mocks.RoomRecordRepository
	blRepo       *mocks.BlacklistRepository
	api          *platformmocks.API
	svc          *service.ReconcileService
}

func newReconcileFixture() *reconcileFixture {
	f := &reconcileFixture{
		reg:          registry.New(),
		settingsRepo: new(mocks.SettingsRepository),
		recordRepo:   new(mocks.RoomRecordRepository),
		blRepo:       new(mocks.BlacklistRepository),
		api:          new(platformmocks.API),
	}
	f.svc = service.NewReconcileService(
		f.reg, f.settingsRepo, f.recordRepo,
		service.NewBlacklistCache(f.blRepo), f.api,
	)
	return f
}

func TestReconcile_RestoresFromPersistedRecord(t *testing.T) {
	// Arrange
	f := newReconcileFixture()
	ctx := context.Background()

	createdAt := time.Now().Add(-3 * time.Hour)
	f.blRepo.On("List", ctx, "c1").Return([]string{}, nil).Once()
	f.settingsRepo.On("Get", ctx, "c1").Return(enabledSettings(), nil).Once()
	f.api.On("ListRoomsUnder", ctx, "c1", "parent").Return([]platform.RoomInfo{
		{ID: "trigger", Type: platform.RoomTypeVoice},
		{ID: "v1", Type: platform.RoomTypeVoice}, // 空房间，但有记录
	}, nil).Once()
	f.recordRepo.On("Find", ctx, "v1").Return(&domain.RoomRecord{
		RoomID:      "v1",
		OwnerID:     "real-owner",
		CommunityID: "c1",
		CompanionID: "t1",
		CreatedAt:   createdAt,
	}, nil).Once()

	// Act
	err := f.svc.Initialize(ctx, "c1")

	// Assert: 按记录恢复真实 owner 和创建时间，空房间也登记
	require.NoError(t, err)
	room, ok := f.reg.Get("v1")
	require.True(t, ok)
	assert.Equal(t, "real-owner", room.OwnerID)
	assert.Equal(t, "t1", room.CompanionID)
	assert.WithinDuration(t, createdAt, room.CreatedAt, time.Second)

	// 触发房间自己绝不登记
	_, ok = f.reg.Get("trigger")
	assert.False(t, ok)
}

func TestReconcile_OccupiedRoomWithoutRecordUsesFirstOccupant(t *testing.T) {
	// Arrange
	f := newReconcileFixture()
	ctx := context.Background()

	f.blRepo.On("List", ctx, "c1").Return([]string{}, nil).Once()
	f.settingsRepo.On("Get", ctx, "c1").Return(enabledSettings(), nil).Once()
	f.api.On("ListRoomsUnder", ctx, "c1", "parent").Return([]platform.RoomInfo{
		{ID: "v1", Type: platform.RoomTypeVoice, Occupants: []string{"p7", "p8"}},
	}, nil).Once()
	f.recordRepo.On("Find", ctx, "v1").Return(nil, repository.ErrRecordNotFound).Once()
	// 补写记录，下次重启不用再猜
	f.recordRepo.On("Save", ctx, mock.MatchedBy(func(rec *domain.RoomRecord) bool {
		return rec.RoomID == "v1" && rec.OwnerID == "p7"
	})).Return(nil).Once()

	// Act
	err := f.svc.Initialize(ctx, "c1")

	// Assert: 第一个占用者当作 owner，年龄从现在起算
	require.NoError(t, err)
	room, ok := f.reg.Get("v1")
	require.True(t, ok)
	assert.Equal(t, "p7", room.OwnerID)
	assert.WithinDuration(t, time.Now(), room.CreatedAt, time.Second)
	f.recordRepo.AssertExpectations(t)
}

func TestReconcile_EmptyRoomWithoutRecordIsSkipped(t *testing.T) {
	// Arrange: 既无记录又无人的房间没有任何可恢复的元数据
	f := newReconcileFixture()
	ctx := context.Background()

	f.blRepo.On("List", ctx, "c1").Return([]string{}, nil).Once()
	f.settingsRepo.On("Get", ctx, "c1").Return(enabledSettings(), nil).Once()
	f.api.On("ListRoomsUnder", ctx, "c1", "parent").Return([]platform.RoomInfo{
		{ID: "v1", Type: platform.RoomTypeVoice},
	}, nil).Once()
	f.recordRepo.On("Find", ctx, "v1").Return(nil, repository.ErrRecordNotFound).Once()

	// Act
	err := f.svc.Initialize(ctx, "c1")

	// Assert
	require.NoError(t, err)
	assert.Empty(t, f.reg.List())
	f.recordRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestReconcile_TextRoomsAreIgnored(t *testing.T) {
	// Arrange
	f := newReconcileFixture()
	ctx := context.Background()

	f.blRepo.On("List", ctx, "c1").Return([]string{}, nil).Once()
	f.settingsRepo.On("Get", ctx, "c1").Return(enabledSettings(), nil).Once()
	f.api.On("ListRoomsUnder", ctx, "c1", "parent").Return([]platform.RoomInfo{
		{ID: "t1", Type: platform.RoomTypeText},
	}, nil).Once()

	// Act
	err := f.svc.Initialize(ctx, "c1")

	// Assert
	require.NoError(t, err)
	assert.Empty(t, f.reg.List())
	f.recordRepo.AssertNotCalled(t, "Find", mock.Anything, mock.Anything)
}

func TestReconcile_UnconfiguredCommunityIsNoop(t *testing.T) {
	// Arrange
	f := newReconcileFixture()
	ctx := context.Background()

	f.blRepo.On("List", ctx, "c1").Return([]string{}, nil).Once()
	f.settingsRepo.On("Get", ctx, "c1").Return(nil, repository.ErrSettingsNotFound).Once()

	// Act
	err := f.svc.Initialize(ctx, "c1")

	// Assert
	require.NoError(t, err)
	f.api.AssertNotCalled(t, "ListRoomsUnder", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcile_ParentGoneIsNoop(t *testing.T) {
	// Arrange
	f := newReconcileFixture()
	ctx := context.Background()

	f.blRepo.On("List", ctx, "c1").Return([]string{}, nil).Once()
	f.settingsRepo.On("Get", ctx, "c1").Return(enabledSettings(), nil).Once()
	f.api.On("ListRoomsUnder", ctx, "c1", "parent").Return(nil, platform.ErrNotFound).Once()

	// Act
	err := f.svc.Initialize(ctx, "c1")

	// Assert
	require.NoError(t, err)
	assert.Empty(t, f.reg.List())
}
