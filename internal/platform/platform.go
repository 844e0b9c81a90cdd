// Package platform 封装对外部通信平台资源 API 的访问。
// 子系统只依赖这里的 API 接口；REST 实现见 client.go，
// 事件来源（网关）见 gateway.go。
package platform

import (
	"context"
	"errors"
)

// ErrNotFound 表示平台上不存在请求的资源（房间、父容器等）。
var ErrNotFound = errors.New("platform: resource not found")

// Permission 是平台的权限位掩码。
type Permission uint32

// 房间级权限位。数值只在本进程与平台 API 之间有意义。
const (
	PermView Permission = 1 << iota
	PermConnect
	PermSpeak
	PermStream
	PermUseVoiceActivity
	PermManageRoom
	PermMoveMembers
	PermMuteMembers
	PermDeafenMembers
	PermSendMessages
	PermReadHistory
)

// OwnerVoicePermissions 是房主在自己语音房间上获得的全部权限。
// 注意这些权限只存在于该房间，不是社区级角色。
const OwnerVoicePermissions = PermView | PermConnect | PermSpeak | PermStream |
	PermUseVoiceActivity | PermManageRoom | PermMoveMembers | PermMuteMembers | PermDeafenMembers

// OwnerTextPermissions 是房主在伴生文字房间上获得的权限。
const OwnerTextPermissions = PermView | PermSendMessages | PermReadHistory | PermManageRoom

// AccessGrant 是针对单个主体、单个房间的权限覆盖。
// 社区默认角色的 SubjectID 约定与社区 ID 相同。
type AccessGrant struct {
	SubjectID string
	Allow     Permission
	Deny      Permission
}

// RoomType 区分语音房间和文字房间。
type RoomType string

const (
	RoomTypeVoice RoomType = "voice"
	RoomTypeText  RoomType = "text"
)

// RoomInfo 是枚举父容器时返回的房间信息。
type RoomInfo struct {
	ID        string
	Type      RoomType
	Occupants []string // 当前在房间内的参与者 ID（仅语音房间有意义）
}

// RoomPatch 描述对已有房间的部分修改，nil 字段表示不改。
// Region 指向空串表示切回 automatic。
type RoomPatch struct {
	Name   *string
	Limit  *int
	Region *string
}

// API 是子系统消费的平台资源接口。
type API interface {
	// CreateVoiceRoom 在父容器下创建语音房间，返回房间 ID。
	CreateVoiceRoom(ctx context.Context, communityID, parentID, name string, limit, bitrate int, grants []AccessGrant) (string, error)

	// CreateTextRoom 在父容器下创建文字房间，返回房间 ID。
	CreateTextRoom(ctx context.Context, communityID, parentID, name string, grants []AccessGrant) (string, error)

	// DeleteRoom 删除房间。房间已不存在时返回 ErrNotFound。
	DeleteRoom(ctx context.Context, roomID string) error

	// EditRoom 修改房间属性（名称、人数上限、区域）。
	EditRoom(ctx context.Context, roomID string, patch RoomPatch) error

	// SetAccessGrant 设置某主体在某房间上的权限覆盖。
	SetAccessGrant(ctx context.Context, roomID string, grant AccessGrant) error

	// RemoveAccessGrant 移除某主体在某房间上的权限覆盖。
	RemoveAccessGrant(ctx context.Context, roomID, subjectID string) error

	// MoveParticipant 把参与者移动到指定语音房间。
	MoveParticipant(ctx context.Context, communityID, participantID, roomID string) error

	// DisconnectParticipant 把参与者从语音断开。
	DisconnectParticipant(ctx context.Context, communityID, participantID string) error

	// ListRoomsUnder 枚举父容器下的全部房间及其占用情况。
	// 父容器不存在时返回 ErrNotFound。
	ListRoomsUnder(ctx context.Context, communityID, parentID string) ([]RoomInfo, error)

	// Participant 查询参与者的展示信息，供渲染房间名模板。
	Participant(ctx context.Context, communityID, participantID string) (ParticipantInfo, error)

	// Notify 给参与者发一条私信。尽力而为，调用方通常忽略错误。
	Notify(ctx context.Context, participantID, message string) error
}

// ParticipantInfo 是平台返回的参与者展示信息。
type ParticipantInfo struct {
	ID          string
	Handle      string
	DisplayName string
}
