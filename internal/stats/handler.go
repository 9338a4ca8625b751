package stats

import (
	"bytes"
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

func RegisterRoutes(member, admin gin.IRoutes, svc *Service, log *zap.Logger) {
	h := &Handler{svc: svc, log: log}

	member.GET("/me/attendance", h.MyMonth)
	member.GET("/me/stats", h.MySummary)
	member.GET("/stats/teams/:id/rate", h.TeamRate)

	admin.GET("/stats/daily", h.Daily)
	admin.GET("/stats/daily.csv", h.DailyCSV)
}

func (h *Handler) MyMonth(c *gin.Context) {
	res, err := h.svc.MemberMonth(c.Request.Context(), auth.MemberIDFrom(c), c.Query("month"))
	if err != nil {
		apperr.Write(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) MySummary(c *gin.Context) {
	res, err := h.svc.MemberSummary(c.Request.Context(), auth.MemberIDFrom(c), c.Query("month"))
	if err != nil {
		apperr.Write(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) TeamRate(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		apperr.BadRequest(c, "id must be a positive integer")
		return
	}
	window := 0
	if v := c.Query("window"); v != "" {
		window, err = strconv.Atoi(v)
		if err != nil || window <= 0 {
			apperr.BadRequest(c, "window must be a positive integer")
			return
		}
	}
	res, err := h.svc.TeamRate(c.Request.Context(), id, auth.MemberIDFrom(c), window)
	if err != nil {
		apperr.Write(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Daily(c *gin.Context) {
	res, err := h.svc.DailySummary(c.Request.Context(), c.Query("month"))
	if err != nil {
		apperr.Write(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) DailyCSV(c *gin.Context) {
	enc := c.DefaultQuery("encoding", EncodingUTF8)
	if enc != EncodingUTF8 && enc != EncodingShiftJIS {
		apperr.BadRequest(c, "encoding must be utf8 or sjis")
		return
	}
	res, err := h.svc.DailySummary(c.Request.Context(), c.Query("month"))
	if err != nil {
		apperr.Write(c, h.log, err)
		return
	}

	// 途中で失敗したら JSON エラーを返せるよう一度バッファに書く
	var buf bytes.Buffer
	if err := WriteCSV(&buf, res.Days, enc); err != nil {
		apperr.Write(c, h.log, apperr.Internal("csv encode failed", err))
		return
	}
	charset := "utf-8"
	if enc == EncodingShiftJIS {
		charset = "shift_jis"
	}
	c.Header("Content-Disposition", `attachment; filename="attendance-`+res.Month+`.csv"`)
	c.Data(http.StatusOK, "text/csv; charset="+charset, buf.Bytes())
}
