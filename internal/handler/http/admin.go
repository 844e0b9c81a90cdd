package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"voiceroom-manager/internal/service"
)

// AdminHandler 封装了管理入口的 HTTP 处理逻辑。
// 调用方是外部命令层，已经完成了社区管理员权限校验。
type AdminHandler struct {
	adminService *service.AdminService
}

// NewAdminHandler 创建 AdminHandler 实例
func NewAdminHandler(adminService *service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// SetupRequest 定义配置子系统请求的结构体
type SetupRequest struct {
	ParentID       string `json:"parent_id" binding:"required"`
	TriggerRoomID  string `json:"trigger_room_id" binding:"required"`
	NameTemplate   string `json:"name_template"`
	DefaultLimit   int    `json:"default_limit"`
	DefaultBitrate int    `json:"default_bitrate"`
	CompanionText  bool   `json:"companion_text"`
	LockOnEmpty    bool   `json:"lock_on_empty"`
	MaxAgeMinutes  int    `json:"max_age_minutes"`
}

// Setup 处理启用/配置子系统的请求
func (h *AdminHandler) Setup(c *gin.Context) {
	communityID := c.Param("communityId")

	var req SetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.Setup: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: parent_id and trigger_room_id are required")
		return
	}

	err := h.adminService.Setup(c.Request.Context(), communityID, service.SetupParams{
		ParentID:       req.ParentID,
		TriggerRoomID:  req.TriggerRoomID,
		NameTemplate:   req.NameTemplate,
		DefaultLimit:   req.DefaultLimit,
		DefaultBitrate: req.DefaultBitrate,
		CompanionText:  req.CompanionText,
		LockOnEmpty:    req.LockOnEmpty,
		MaxAgeMinutes:  req.MaxAgeMinutes,
	})
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"message": "configured"})
}

// Disable 处理关闭子系统的请求
func (h *AdminHandler) Disable(c *gin.Context) {
	communityID := c.Param("communityId")
	if err := h.adminService.Disable(c.Request.Context(), communityID); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"message": "disabled"})
}

// Cleanup 处理强制回收某社区全部房间的请求
func (h *AdminHandler) Cleanup(c *gin.Context) {
	communityID := c.Param("communityId")
	reclaimed, err := h.adminService.CleanupAll(c.Request.Context(), communityID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"reclaimed": reclaimed})
}

// BlacklistAdd 处理添加黑名单的请求
func (h *AdminHandler) BlacklistAdd(c *gin.Context) {
	communityID := c.Param("communityId")
	participantID := c.Param("participantId")
	if err := h.adminService.BlacklistAdd(c.Request.Context(), communityID, participantID); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"message": "blacklisted"})
}

// BlacklistRemove 处理移除黑名单的请求
func (h *AdminHandler) BlacklistRemove(c *gin.Context) {
	communityID := c.Param("communityId")
	participantID := c.Param("participantId")
	if err := h.adminService.BlacklistRemove(c.Request.Context(), communityID, participantID); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"message": "removed"})
}

// activeRoomPayload 是活跃房间列表的响应项
type activeRoomPayload struct {
	RoomID      string    `json:"room_id"`
	OwnerID     string    `json:"owner_id"`
	CompanionID string    `json:"companion_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Locked      bool      `json:"locked"`
}

// ListActiveRooms 处理列出某社区活跃房间的请求
func (h *AdminHandler) ListActiveRooms(c *gin.Context) {
	communityID := c.Param("communityId")
	rooms := h.adminService.ListActiveRooms(communityID)

	payload := make([]activeRoomPayload, 0, len(rooms))
	for _, room := range rooms {
		payload = append(payload, activeRoomPayload{
			RoomID:      room.RoomID,
			OwnerID:     room.OwnerID,
			CompanionID: room.CompanionID,
			CreatedAt:   room.CreatedAt,
			Locked:      room.Locked,
		})
	}
	SuccessResponse(c, http.StatusOK, gin.H{"rooms": payload})
}
