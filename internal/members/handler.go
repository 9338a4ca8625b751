package members

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"PRESENCE-backend/internal/domain"
	"PRESENCE-backend/internal/platform/apperr"
	"PRESENCE-backend/internal/platform/auth"
)

type Handler struct {
	svc *Service
	log *zap.Logger
}

// RegisterRoutes: me は登録済みメンバー、admin は管理者グループ
func RegisterRoutes(me, admin gin.IRoutes, svc *Service, log *zap.Logger) {
	h := &Handler{svc: svc, log: log}

	me.GET("/me", h.Me)

	admin.GET("/admin/members", h.List)
	admin.GET("/admin/members/:id", h.Get)
	admin.PATCH("/admin/members/:id", h.Update)
	admin.GET("/admin/logs/edits", h.EditLogs)
}

// ---------- handlers ----------

func (h *Handler) Me(c *gin.Context) {
	res, err := h.svc.Get(c.Request.Context(), auth.MemberIDFrom(c))
	if err != nil {
		apperr.Write(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) List(c *gin.Context) {
	f := domain.MemberFilter{}
	if v := c.Query("team_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			apperr.BadRequest(c, "team_id must be an integer")
			return
		}
		f.TeamID = &id
	}
	if v := c.Query("active"); v == "true" || v == "1" {
		f.ActiveOnly = true
	}
	res, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		apperr.Write(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": res})
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	res, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		apperr.Write(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req UpdateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.BadRequest(c, "invalid json")
		return
	}
	res, err := h.svc.Update(c.Request.Context(), auth.MemberIDFrom(c), id, req)
	if err != nil {
		apperr.Write(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) EditLogs(c *gin.Context) {
	var target *int64
	if v := c.Query("target_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			apperr.BadRequest(c, "target_id must be an integer")
			return
		}
		target = &id
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	res, err := h.svc.EditLogs(c.Request.Context(), target, limit)
	if err != nil {
		apperr.Write(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": res})
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		apperr.BadRequest(c, "id must be a positive integer")
		return 0, false
	}
	return id, true
}
