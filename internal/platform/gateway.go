package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"voiceroom-manager/internal/domain"
)

// 网关连接的 WebSocket 常量
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// 断线后重连的起始等待时间，指数退避，封顶 maxReconnectWait
	reconnectWait    = 2 * time.Second
	maxReconnectWait = 60 * time.Second
)

// VoiceStateSink 接收网关合成的 before/after 语音状态变更对。
type VoiceStateSink interface {
	OnVoiceStateChange(before, after domain.VoiceState)
}

// Gateway 维护到平台事件网关的 WebSocket 连接。
// 平台事件只携带参与者的最新语音位置；Gateway 自己缓存上一次
// 观察到的位置，合成事件入口需要的 before/after 对。
type Gateway struct {
	url   string
	token string
	sink  VoiceStateSink

	// (communityID, participantID) -> 上一次观察到的房间 ID
	statesMu sync.Mutex
	states   map[string]string
}

// NewGateway 创建 Gateway 实例。
func NewGateway(url, token string, sink VoiceStateSink) *Gateway {
	if sink == nil {
		panic("VoiceStateSink cannot be nil for Gateway")
	}
	return &Gateway{
		url:    url,
		token:  token,
		sink:   sink,
		states: make(map[string]string),
	}
}

// gatewayEvent 是网关下行消息的外壳。
type gatewayEvent struct {
	Type string          `json:"t"`
	Data json.RawMessage `json:"d"`
}

// voiceStatePayload 是 voice_state_update 事件的数据体。
// RoomID 为空表示参与者已断开语音。
type voiceStatePayload struct {
	CommunityID   string `json:"community_id"`
	ParticipantID string `json:"participant_id"`
	RoomID        string `json:"room_id"`
}

// Run 维持网关连接直到 ctx 取消。断线后按指数退避重连。
// 它应该在一个单独的 goroutine 中运行。
func (g *Gateway) Run(ctx context.Context) {
	log := logrus.WithField("component", "gateway")
	wait := reconnectWait

	for {
		if ctx.Err() != nil {
			log.Info("Gateway stopped")
			return
		}

		connected, err := g.connectAndRead(ctx)
		if ctx.Err() != nil {
			log.Info("Gateway stopped")
			return
		}
		if connected {
			// 握手成功过就从头开始退避，长时间在线后掉线不该等一分钟
			wait = reconnectWait
		}
		if err != nil {
			log.WithError(err).Warnf("Gateway connection lost, reconnecting in %s", wait)
		}

		select {
		case <-ctx.Done():
			log.Info("Gateway stopped")
			return
		case <-time.After(wait):
		}
		// 指数退避
		wait *= 2
		if wait > maxReconnectWait {
			wait = maxReconnectWait
		}
	}
}

// connectAndRead 建立一次连接并阻塞读取事件，直到出错或 ctx 取消。
// 返回值 connected 表示握手是否成功，供调用方决定是否重置退避。
func (g *Gateway) connectAndRead(ctx context.Context) (bool, error) {
	log := logrus.WithField("component", "gateway")

	header := http.Header{}
	header.Set("Authorization", "Bot "+g.token)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, g.url, header)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	log.Info("Gateway connected")

	// 连上后由 ping goroutine 保活；读取端靠 pong 刷新超时
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// 写失败会让读取端很快超时退出，这里只记录
					log.WithError(err).Debug("Gateway ping failed")
					return
				}
			case <-pingDone:
				return
			case <-ctx.Done():
				// 主动关闭连接让 ReadMessage 解除阻塞
				_ = conn.Close()
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return true, err
			}
			return true, nil
		}

		var event gatewayEvent
		if err := json.Unmarshal(message, &event); err != nil {
			log.WithError(err).Warn("Gateway: failed to decode event, skipping")
			continue
		}
		if event.Type != "voice_state_update" {
			continue
		}

		var payload voiceStatePayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			log.WithError(err).Warn("Gateway: failed to decode voice state payload, skipping")
			continue
		}
		g.dispatch(payload)
	}
}

// dispatch 用缓存的上一次位置合成 before/after 对并交给 sink。
func (g *Gateway) dispatch(payload voiceStatePayload) {
	key := payload.CommunityID + ":" + payload.ParticipantID

	g.statesMu.Lock()
	previous := g.states[key]
	if payload.RoomID == "" {
		delete(g.states, key)
	} else {
		g.states[key] = payload.RoomID
	}
	g.statesMu.Unlock()

	if previous == payload.RoomID {
		// 位置没变（重复事件或 mute/deafen 类更新），忽略
		return
	}

	before := domain.VoiceState{
		CommunityID:   payload.CommunityID,
		ParticipantID: payload.ParticipantID,
		RoomID:        previous,
	}
	after := domain.VoiceState{
		CommunityID:   payload.CommunityID,
		ParticipantID: payload.ParticipantID,
		RoomID:        payload.RoomID,
	}
	g.sink.OnVoiceStateChange(before, after)
}
