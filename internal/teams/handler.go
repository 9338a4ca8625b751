package teams

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"PRESENCE-backend/internal/platform/apperr"
)

type Handler struct {
	svc *Service
	log *zap.Logger
}

// RegisterRoutes: 一覧は登録画面からも引くので member グループ、更新系は admin
func RegisterRoutes(public, admin gin.IRoutes, svc *Service, log *zap.Logger) {
	h := &Handler{svc: svc, log: log}

	public.GET("/teams", h.List)

	admin.POST("/admin/teams", h.Create)
	admin.PATCH("/admin/teams/:id", h.Rename)
	admin.DELETE("/admin/teams/:id", h.Delete)
}

func (h *Handler) List(c *gin.Context) {
	res, err := h.svc.List(c.Request.Context())
	if err != nil {
		apperr.Write(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"teams": res})
}

func (h *Handler) Create(c *gin.Context) {
	var req TeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.BadRequest(c, "invalid json")
		return
	}
	res, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		apperr.Write(c, h.log, err)
		return
	}
	c.Header("Location", "/api/v2/teams/"+strconv.FormatInt(res.ID, 10))
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Rename(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req TeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.BadRequest(c, "invalid json")
		return
	}
	res, err := h.svc.Rename(c.Request.Context(), id, req)
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

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		apperr.BadRequest(c, "id must be a positive integer")
		return 0, false
	}
	return id, true
}
