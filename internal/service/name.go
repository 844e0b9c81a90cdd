package service

import (
	"strconv"
	"strings"

	"voiceroom-manager/internal/platform"
)

// 房间名模板支持的替换标记。
//
//	{user}     参与者展示名（缺失时回退到账号名）
//	{username} 参与者账号名
//	{id}       参与者 ID
//	{count}    当前社区第几个临时房间（从 1 开始）
const (
	tokenUser     = "{user}"
	tokenUsername = "{username}"
	tokenID       = "{id}"
	tokenCount    = "{count}"
)

// 平台的房间名长度上限。
const maxRoomNameLen = 100

// renderRoomName 按模板渲染新房间的名称，超长时按字符截断。
func renderRoomName(template string, info platform.ParticipantInfo, count int) string {
	display := info.DisplayName
	if display == "" {
		display = info.Handle
	}
	if display == "" {
		display = info.ID
	}

	replacer := strings.NewReplacer(
		tokenUser, display,
		tokenUsername, info.Handle,
		tokenID, info.ID,
		tokenCount, strconv.Itoa(count),
	)
	name := replacer.Replace(template)

	if runes := []rune(name); len(runes) > maxRoomNameLen {
		name = string(runes[:maxRoomNameLen])
	}
	return name
}
