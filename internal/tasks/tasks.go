package tasks

import "encoding/json"

// 任务类型常量
const (
	// TypeRoomSweep 周期性清扫任务：回收超龄/漏回收的临时房间
	TypeRoomSweep = "room:sweep"
)

// RoomSweepPayload 是清扫任务的数据结构。
// Community 为空表示清扫全部社区。
type RoomSweepPayload struct {
	CommunityID string `json:"community_id,omitempty"`
}

// NewRoomSweepTask 创建一个清扫任务的 payload。
func NewRoomSweepTask() ([]byte, error) {
	return json.Marshal(RoomSweepPayload{})
}
