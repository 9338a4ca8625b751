package registration

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"PRESENCE-backend/internal/platform/apperr"
	"PRESENCE-backend/internal/platform/auth"
)

type Handler struct {
	svc *Service
	log *zap.Logger
}

// RegisterRoutes: kiosk はキオスクキー必須、page はトークン自体が権限
// （complete だけ OptionalAuth を前段に置く）
func RegisterRoutes(kiosk, page gin.IRoutes, optionalAuth gin.HandlerFunc, svc *Service, log *zap.Logger) {
	h := &Handler{svc: svc, log: log}

	kiosk.POST("/kiosk/registrations", h.Begin)
	kiosk.GET("/kiosk/registrations/:token/status", h.Status)

	page.GET("/registrations/:token", h.Fetch)
	page.POST("/registrations/:token/complete", optionalAuth, h.Complete)
}

func (h *Handler) Begin(c *gin.Context) {
	var req BeginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.BadRequest(c, "card_id is required")
		return
	}
	res, err := h.svc.Begin(c.Request.Context(), req.CardID)
	if err != nil {
		apperr.Write(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Status(c *gin.Context) {
	res, err := h.svc.Status(c.Request.Context(), c.Param("token"))
	if err != nil {
		apperr.Write(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Fetch(c *gin.Context) {
	res, err := h.svc.Fetch(c.Request.Context(), c.Param("token"))
	if err != nil {
		apperr.Write(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Complete(c *gin.Context) {
	var externalID string
	if p, ok := auth.PrincipalFrom(c); ok {
		externalID = p.ExternalID
	}
	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// トークン・ログイン状態のエラーが先
		if err := h.svc.CheckSession(c.Request.Context(), c.Param("token"), externalID); err != nil {
			apperr.Write(c, h.log, err)
			return
		}
		apperr.BadRequest(c, "invalid json")
		return
	}
	res, err := h.svc.Complete(c.Request.Context(), c.Param("token"), req, externalID)
	if err != nil {
		apperr.Write(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}
