package announcements

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

// RegisterRoutes: 表示中の取得は公開とキオスクの両方、更新系は admin
func RegisterRoutes(public, kiosk, admin gin.IRoutes, svc *Service, log *zap.Logger) {
	h := &Handler{svc: svc, log: log}

	public.GET("/announcements/current", h.Current)
	kiosk.GET("/kiosk/announcement", h.Current)

	admin.GET("/admin/announcements", h.List)
	admin.POST("/admin/announcements", h.Create)
	admin.PATCH("/admin/announcements/:id", h.Update)
	admin.DELETE("/admin/announcements/:id", h.Delete)
	admin.PUT("/admin/announcements/:id/current", h.SetCurrent)
	admin.DELETE("/admin/announcement-current", h.ClearCurrent)
}

func (h *Handler) Current(c *gin.Context) {
	res, err := h.svc.Current(c.Request.Context())
	if err != nil {
		apperr.Write(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) List(c *gin.Context) {
	all := c.Query("all") == "1" || c.Query("all") == "true"
	res, err := h.svc.List(c.Request.Context(), all)
	if err != nil {
		apperr.Write(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"announcements": res})
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.BadRequest(c, "title is required")
		return
	}
	res, err := h.svc.Create(c.Request.Context(), auth.MemberIDFrom(c), req)
	if err != nil {
		apperr.Write(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.BadRequest(c, "invalid json")
		return
	}
	res, err := h.svc.Update(c.Request.Context(), id, req)
	if err != nil {
		apperr.Write(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		apperr.Write(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) SetCurrent(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	res, err := h.svc.SetCurrent(c.Request.Context(), id)
	if err != nil {
		apperr.Write(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ClearCurrent(c *gin.Context) {
	if err := h.svc.ClearCurrent(c.Request.Context()); err != nil {
		apperr.Write(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		apperr.BadRequest(c, "id must be a positive integer")
		return 0, false
	}
	return id, true
}
