package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"voiceroom-manager/internal/service"
	"voiceroom-manager/internal/tasks"
)

// RoomSweepHandler 处理周期性的房间清扫任务
type RoomSweepHandler struct {
	reclaim *service.ReclaimService
}

// NewRoomSweepHandler 创建 Handler 实例
func NewRoomSweepHandler(reclaim *service.ReclaimService) *RoomSweepHandler {
	if reclaim == nil {
		panic("ReclaimService cannot be nil for RoomSweepHandler")
	}
	return &RoomSweepHandler{reclaim: reclaim}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *RoomSweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	retryCount, _ := asynq.GetRetryCount(ctx)
	logCtx := logrus.WithFields(logrus.Fields{
		"task_type": t.Type(),
		"retry":     retryCount,
	})
	logCtx.Debug("Processing room sweep task...")

	var payload tasks.RoomSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal sweep task payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	if err := h.reclaim.Sweep(ctx); err != nil {
		logCtx.WithError(err).Error("Room sweep failed")
		return fmt.Errorf("room sweep: %w", err)
	}

	logCtx.Debug("Room sweep task processed successfully")
	return nil
}
