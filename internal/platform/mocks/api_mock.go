// Package mocks 提供 platform.API 的 testify mock 实现，供单元测试使用。
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"voiceroom-manager/internal/platform"
)

// API 是 platform.API 的 mock 实现
type API struct {
	mock.Mock
}

func (m *API) CreateVoiceRoom(ctx context.Context, communityID, parentID, name string, limit, bitrate int, grants []platform.AccessGrant) (string, error) {
	args := m.Called(ctx, communityID, parentID, name, limit, bitrate, grants)
	return args.String(0), args.Error(1)
}

func (m *API) CreateTextRoom(ctx context.Context, communityID, parentID, name string, grants []platform.AccessGrant) (string, error) {
	args := m.Called(ctx, communityID, parentID, name, grants)
	return args.String(0), args.Error(1)
}

func (m *API) DeleteRoom(ctx context.Context, roomID string) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

func (m *API) EditRoom(ctx context.Context, roomID string, patch platform.RoomPatch) error {
	args := m.Called(ctx, roomID, patch)
	return args.Error(0)
}

func (m *API) SetAccessGrant(ctx context.Context, roomID string, grant platform.AccessGrant) error {
	args := m.Called(ctx, roomID, grant)
	return args.Error(0)
}

func (m *API) RemoveAccessGrant(ctx context.Context, roomID, subjectID string) error {
	args := m.Called(ctx, roomID, subjectID)
	return args.Error(0)
}

func (m *API) MoveParticipant(ctx context.Context, communityID, participantID, roomID string) error {
	args := m.Called(ctx, communityID, participantID, roomID)
	return args.Error(0)
}

func (m *API) DisconnectParticipant(ctx context.Context, communityID, participantID string) error {
	args := m.Called(ctx, communityID, participantID)
	return args.Error(0)
}

func (m *API) ListRoomsUnder(ctx context.Context, communityID, parentID string) ([]platform.RoomInfo, error) {
	args := m.Called(ctx, communityID, parentID)
	var listing []platform.RoomInfo
	if args.Get(0) != nil {
		listing = args.Get(0).([]platform.RoomInfo)
	}
	return listing, args.Error(1)
}

func (m *API) Participant(ctx context.Context, communityID, participantID string) (platform.ParticipantInfo, error) {
	args := m.Called(ctx, communityID, participantID)
	return args.Get(0).(platform.ParticipantInfo), args.Error(1)
}

func (m *API) Notify(ctx context.Context, participantID, message string) error {
	args := m.Called(ctx, participantID, message)
	return args.Error(0)
}
