package attendance

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"PRESENCE-backend/internal/platform/apperr"
	"PRESENCE-backend/internal/platform/auth"
)

type Handler struct {
	svc *Service
	log *zap.Logger
}

type Groups struct {
	Kiosk  gin.IRoutes
	Member gin.IRoutes
	Admin  gin.IRoutes
}

func RegisterRoutes(g Groups, svc *Service, log *zap.Logger) {
	h := &Handler{svc: svc, log: log}

	// キオスク
	g.Kiosk.POST("/kiosk/taps", h.Tap)

	// メンバー本人
	g.Member.GET("/me/status", h.MyStatus)

	// 管理
	g.Admin.POST("/admin/attendance/force", h.Force)
	g.Admin.POST("/admin/attendance/force-logout-all", h.ForceLogoutAll)
	g.Admin.GET("/admin/attendance/present", h.Present)
	g.Admin.GET("/admin/members/:id/events", h.History)
	g.Admin.GET("/admin/logs/logouts", h.LogoutLogs)
}

// ---------- handlers ----------

func (h *Handler) Tap(c *gin.Context) {
	var req TapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.BadRequest(c, "card_id is required")
		return
	}
	res, err := h.svc.Tap(c.Request.Context(), req.CardID)
	if err != nil {
		apperr.Write(c, h.log, err)
		return
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, res)
}

func (h *Handler) MyStatus(c *gin.Context) {
	res, err := h.svc.Status(c.Request.Context(), auth.MemberIDFrom(c))
	if err != nil {
		apperr.Write(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Force(c *gin.Context) {
	var req ForceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.BadRequest(c, "member_id and type are required")
		return
	}
	res, err := h.svc.ForceSet(c.Request.Context(), auth.MemberIDFrom(c), req)
	if err != nil {
		apperr.Write(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) ForceLogoutAll(c *gin.Context) {
	res, err := h.svc.ForceLogoutAllResponse(c.Request.Context(), auth.MemberIDFrom(c))
	if err != nil {
		apperr.Write(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Present(c *gin.Context) {
	res, err := h.svc.Present(c.Request.Context())
	if err != nil {
		apperr.Write(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": res, "count": len(res)})
}

func (h *Handler) History(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		apperr.BadRequest(c, "id must be a positive integer")
		return
	}
	res, err := h.svc.History(c.Request.Context(), id, c.Query("month"))
	if err != nil {
		apperr.Write(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": res})
}

func (h *Handler) LogoutLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	res, err := h.svc.LogoutLogs(c.Request.Context(), limit)
	if err != nil {
		apperr.Write(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": res})
}
