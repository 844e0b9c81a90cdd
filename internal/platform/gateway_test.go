package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voiceroom-manager/internal/domain"
)

// recordingSink 收集网关合成的 before/after 对。
type recordingSink struct {
	events [][2]domain.VoiceState
}

func (s *recordingSink) OnVoiceStateChange(before, after domain.VoiceState) {
	s.events = append(s.events, [2]domain.VoiceState{before, after})
}

func TestGateway_DispatchSynthesizesBeforeAfter(t *testing.T) {
	sink := &recordingSink{}
	g := NewGateway("ws://unused", "tok", sink)

	// 首次出现：before 应是未连接状态
	g.dispatch(voiceStatePayload{CommunityID: "c1", ParticipantID: "p1", RoomID: "trigger"})
	require.Len(t, sink.events, 1)
	assert.Equal(t, "", sink.events[0][0].RoomID)
	assert.Equal(t, "trigger", sink.events[0][1].RoomID)

	// 转移：before 应是上一次观察到的位置
	g.dispatch(voiceStatePayload{CommunityID: "c1", ParticipantID: "p1", RoomID: "v1"})
	require.Len(t, sink.events, 2)
	assert.Equal(t, "trigger", sink.events[1][0].RoomID)
	assert.Equal(t, "v1", sink.events[1][1].RoomID)

	// 断开：after 应是未连接状态，缓存条目被清掉
	g.dispatch(voiceStatePayload{CommunityID: "c1", ParticipantID: "p1", RoomID: ""})
	require.Len(t, sink.events, 3)
	assert.Equal(t, "v1", sink.events[2][0].RoomID)
	assert.False(t, sink.events[2][1].Connected())

	// 再次加入：又从未连接状态开始
	g.dispatch(voiceStatePayload{CommunityID: "c1", ParticipantID: "p1", RoomID: "v2"})
	require.Len(t, sink.events, 4)
	assert.Equal(t, "", sink.events[3][0].RoomID)
}

func TestGateway_DispatchSkipsUnchangedPosition(t *testing.T) {
	sink := &recordingSink{}
	g := NewGateway("ws://unused", "tok", sink)

	g.dispatch(voiceStatePayload{CommunityID: "c1", ParticipantID: "p1", RoomID: "v1"})
	// mute/deafen 之类的更新不改变位置，不应产生事件
	g.dispatch(voiceStatePayload{CommunityID: "c1", ParticipantID: "p1", RoomID: "v1"})

	assert.Len(t, sink.events, 1)
}

func TestGateway_DispatchTracksParticipantsIndependently(t *testing.T) {
	sink := &recordingSink{}
	g := NewGateway("ws://unused", "tok", sink)

	g.dispatch(voiceStatePayload{CommunityID: "c1", ParticipantID: "p1", RoomID: "v1"})
	g.dispatch(voiceStatePayload{CommunityID: "c1", ParticipantID: "p2", RoomID: "v2"})
	g.dispatch(voiceStatePayload{CommunityID: "c2", ParticipantID: "p1", RoomID: "v3"})

	require.Len(t, sink.events, 3, "不同参与者、不同社区的状态互不影响")
	assert.Equal(t, "", sink.events[1][0].RoomID)
	assert.Equal(t, "", sink.events[2][0].RoomID, "同名参与者在另一个社区是独立条目")
}

func TestGateway_ConnectAndReadReportsHandshakeForBackoffReset(t *testing.T) {
	// Arrange: 服务端完成握手后正常关闭连接
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	g := NewGateway(url, "tok", &recordingSink{})

	// Act
	connected, err := g.connectAndRead(context.Background())

	// Assert: 握手成功必须上报，Run 据此把重连等待重置回起始值，
	// 否则长时间在线后的一次掉线会继承之前累积的退避
	assert.True(t, connected, "握手成功后应上报连接成功")
	assert.NoError(t, err)
}

func TestGateway_ConnectAndReadReportsDialFailure(t *testing.T) {
	g := NewGateway("ws://127.0.0.1:1", "tok", &recordingSink{})

	connected, err := g.connectAndRead(context.Background())

	// 拨号失败不算连接成功，退避继续累积
	assert.False(t, connected)
	assert.Error(t, err)
}
