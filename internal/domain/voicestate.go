package domain

// VoiceState 描述某个参与者在某一时刻的语音位置。
// RoomID 为空表示该参与者未连接任何语音房间。
type VoiceState struct {
	CommunityID   string
	ParticipantID string
	RoomID        string
}

// Connected 返回该状态是否处于某个语音房间内。
func (s VoiceState) Connected() bool {
	return s.RoomID != ""
}

// ControlAction 是面板操作的类型。
type ControlAction string

// 房主面板支持的操作。所有操作都要求 actor 为房主本人。
const (
	ActionLock      ControlAction = "lock"
	ActionSetLimit  ControlAction = "limit"
	ActionRename    ControlAction = "rename"
	ActionSetRegion ControlAction = "region"
	ActionDelete    ControlAction = "delete"
)

// ControlPayload 携带面板操作的参数，按 Action 取用对应字段。
type ControlPayload struct {
	Limit  int    // ActionSetLimit: 0-99
	Name   string // ActionRename
	Region string // ActionSetRegion，空串表示 automatic
}
