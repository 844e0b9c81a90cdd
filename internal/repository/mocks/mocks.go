// Package mocks 提供 repository 接口的 testify mock 实现，供单元测试使用。
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"voiceroom-manager/internal/domain"
)

// SettingsRepository 是 repository.SettingsRepository 的 mock 实现
type SettingsRepository struct {
	mock.Mock
}

func (m *SettingsRepository) Get(ctx context.Context, communityID string) (*domain.CommunitySettings, error) {
	args := m.Called(ctx, communityID)
	var settings *domain.CommunitySettings
	if args.Get(0) != nil {
		settings = args.Get(0).(*domain.CommunitySettings)
	}
	return settings, args.Error(1)
}

func (m *SettingsRepository) Save(ctx context.Context, settings *domain.CommunitySettings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

func (m *SettingsRepository) ListEnabled(ctx context.Context) ([]domain.CommunitySettings, error) {
	args := m.Called(ctx)
	var list []domain.CommunitySettings
	if args.Get(0) != nil {
		list = args.Get(0).([]domain.CommunitySettings)
	}
	return list, args.Error(1)
}

// BlacklistRepository 是 repository.BlacklistRepository 的 mock 实现
type BlacklistRepository struct {
	mock.Mock
}

func (m *BlacklistRepository) List(ctx context.Context, communityID string) ([]string, error) {
	args := m.Called(ctx, communityID)
	var entries []string
	if args.Get(0) != nil {
		entries = args.Get(0).([]string)
	}
	return entries, args.Error(1)
}

func (m *BlacklistRepository) Add(ctx context.Context, communityID, participantID string) error {
	args := m.Called(ctx, communityID, participantID)
	return args.Error(0)
}

func (m *BlacklistRepository) Remove(ctx context.Context, communityID, participantID string) error {
	args := m.Called(ctx, communityID, participantID)
	return args.Error(0)
}

// RoomRecordRepository 是 repository.RoomRecordRepository 的 mock 实现
type RoomRecordRepository struct {
	mock.Mock
}

func (m *RoomRecordRepository) Find(ctx context.Context, roomID string) (*domain.RoomRecord, error) {
	args := m.Called(ctx, roomID)
	var record *domain.RoomRecord
	if args.Get(0) != nil {
		record = args.Get(0).(*domain.RoomRecord)
	}
	return record, args.Error(1)
}

func (m *RoomRecordRepository) Save(ctx context.Context, record *domain.RoomRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *RoomRecordRepository) Delete(ctx context.Context, roomID string) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

// StateRepository 是 repository.StateRepository 的 mock 实现
type StateRepository struct {
	mock.Mock
}

func (m *StateRepository) AcquireProvisionGuard(ctx context.Context, communityID, participantID string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, communityID, participantID, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *StateRepository) ReleaseProvisionGuard(ctx context.Context, communityID, participantID string) error {
	args := m.Called(ctx, communityID, participantID)
	return args.Error(0)
}
