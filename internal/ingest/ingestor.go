// Package ingest 把平台的语音状态变更事件分发给供给引擎和回收引擎。
package ingest

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"voiceroom-manager/internal/domain"
	"voiceroom-manager/internal/registry"
	"voiceroom-manager/internal/repository"
	"voiceroom-manager/internal/service"
)

// Event 是一次语音位置变更的 before/after 对。
type Event struct {
	Before domain.VoiceState
	After  domain.VoiceState
}

// Ingestor 消费语音状态事件。
// 事件处理相对平台投递是 fire-and-forget：失败只记录日志，
// 绝不上抛给事件来源，也绝不阻塞后续事件。
type Ingestor struct {
	eventChan chan Event

	reg          *registry.Registry
	settingsRepo repository.SettingsRepository
	provision    *service.ProvisionService
	reclaim      *service.ReclaimService
}

// New 创建 Ingestor 实例。
func New(
	reg *registry.Registry,
	settingsRepo repository.SettingsRepository,
	provision *service.ProvisionService,
	reclaim *service.ReclaimService,
) *Ingestor {
	if reg == nil || settingsRepo == nil || provision == nil || reclaim == nil {
		panic("Ingestor dependencies cannot be nil")
	}
	return &Ingestor{
		// 带缓冲的通道，大小按预期事件流量调整
		eventChan:    make(chan Event, 512),
		reg:          reg,
		settingsRepo: settingsRepo,
		provision:    provision,
		reclaim:      reclaim,
	}
}

// OnVoiceStateChange 是平台事件的入口，非阻塞。
// 通道满时丢弃事件并告警——清扫会兜底丢失的回收。
func (i *Ingestor) OnVoiceStateChange(before, after domain.VoiceState) {
	select {
	case i.eventChan <- Event{Before: before, After: after}:
	default:
		logrus.WithFields(logrus.Fields{
			"community_id":   after.CommunityID,
			"participant_id": after.ParticipantID,
		}).Warn("Ingestor: event channel full, dropping voice state event")
	}
}

// Run 启动事件处理循环。它应该在一个单独的 goroutine 中运行。
func (i *Ingestor) Run() {
	log := logrus.WithField("component", "ingestor")
	log.Info("Ingestor is running...")

	for event := range i.eventChan {
		// 每个事件独立的 goroutine 处理，互相不阻塞；
		// 同一事件内部的 departure→arrival 顺序由 handleEvent 保证
		go i.handleEvent(event)
	}
	log.Info("Ingestor is shutting down...")
}

// Stop 关闭事件通道，让 Run 退出。
func (i *Ingestor) Stop() {
	close(i.eventChan)
}

// handleEvent 处理单个事件。
// 转移（both set and different）按先 departure 后 arrival 处理成
// 两个独立事件：转移进触发房间时即使同时清空了旧房间，也必须照常供给。
func (i *Ingestor) handleEvent(event Event) {
	defer func() {
		// 单个异常事件绝不允许拖垮事件处理
		if r := recover(); r != nil {
			logrus.WithField("panic", r).Error("Ingestor: recovered from panic while handling event")
		}
	}()

	ctx := context.Background()
	before, after := event.Before, event.After
	if before.RoomID == after.RoomID {
		return
	}

	if before.Connected() {
		i.handleDeparture(ctx, before)
	}
	if after.Connected() {
		i.handleArrival(ctx, after)
	}
}

// handleDeparture 处理离开：被跟踪房间才值得回收引擎看一眼。
func (i *Ingestor) handleDeparture(ctx context.Context, state domain.VoiceState) {
	if _, tracked := i.reg.Get(state.RoomID); !tracked {
		return
	}
	if err := i.reclaim.OnEmpty(ctx, state.RoomID); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"room_id":        state.RoomID,
			"participant_id": state.ParticipantID,
		}).Error("Ingestor: reclaim failed")
	}
}

// handleArrival 处理到达：进触发房间就供给，进被跟踪房间是 no-op。
func (i *Ingestor) handleArrival(ctx context.Context, state domain.VoiceState) {
	settings, err := i.settingsRepo.Get(ctx, state.CommunityID)
	if err != nil {
		if errors.Is(err, repository.ErrSettingsNotFound) {
			return
		}
		logrus.WithError(err).WithField("community_id", state.CommunityID).Warn("Ingestor: failed to load settings for arrival")
		return
	}
	if !settings.Enabled || state.RoomID != settings.TriggerRoomID {
		return
	}

	if err := i.provision.Provision(ctx, state.CommunityID, state.ParticipantID); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"community_id":   state.CommunityID,
			"participant_id": state.ParticipantID,
		}).Error("Ingestor: provisioning failed")
	}
}
