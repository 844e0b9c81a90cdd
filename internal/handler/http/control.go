package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"voiceroom-manager/internal/domain"
	"voiceroom-manager/internal/service"
)

// ControlHandler 封装了房主面板操作的 HTTP 处理逻辑
type ControlHandler struct {
	controlService *service.ControlService
}

// NewControlHandler 创建 ControlHandler 实例
func NewControlHandler(controlService *service.ControlService) *ControlHandler {
	return &ControlHandler{controlService: controlService}
}

// ControlRequest 定义面板操作请求的结构体
type ControlRequest struct {
	Action string `json:"action" binding:"required"`
	Limit  int    `json:"limit"`
	Name   string `json:"name"`
	Region string `json:"region"`
}

// HandleAction 处理一次面板操作请求
func (h *ControlHandler) HandleAction(c *gin.Context) {
	// 1. 从 Gin 上下文中获取认证参与者 ID
	//    这需要 Auth 中间件已经运行并设置了 "participant_id"
	actorAny, exists := c.Get("participant_id")
	if !exists {
		logrus.Warn("Handler.HandleAction: participant ID not found in context, middleware missing or failed?")
		ErrorResponse(c, http.StatusUnauthorized, "Not authenticated")
		return
	}
	actorID, ok := actorAny.(string)
	if !ok {
		logrus.Error("Handler.HandleAction: participant ID in context is not string")
		ErrorResponse(c, http.StatusInternalServerError, "Internal server error processing participant ID")
		return
	}

	roomID := c.Param("roomId")
	logCtx := logrus.WithFields(logrus.Fields{"actor_id": actorID, "room_id": roomID})

	// 2. 绑定请求体
	var req ControlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logCtx.WithError(err).Warn("Handler.HandleAction: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: action is required")
		return
	}

	// 3. 调用 Service 层执行操作
	err := h.controlService.Handle(c.Request.Context(), domain.ControlAction(req.Action), roomID, actorID, domain.ControlPayload{
		Limit:  req.Limit,
		Name:   req.Name,
		Region: req.Region,
	})
	if err != nil {
		logCtx.WithError(err).WithField("action", req.Action).Warn("Handler.HandleAction: control action failed")
		HandleServiceError(c, err)
		return
	}

	// 4. 成功响应
	logCtx.WithField("action", req.Action).Info("Handler.HandleAction: control action applied")
	SuccessResponse(c, http.StatusOK, gin.H{"message": "ok"})
}
