package apperr

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorDTO struct {
	OK    bool      `json:"ok"`
	Error *APIError `json:"error"`
}

// Write: エラーをレスポンスに変換して返す。
// STORE_UNAVAILABLE / INTERNAL は原因ごとログに残し、利用者向けには汎用文言のみ
func Write(c *gin.Context, log *zap.Logger, err error) {
	var api *APIError
	if !errors.As(err, &api) {
		api = Internal("内部エラーが発生しました", err)
	}

	switch api.Code {
	case CodeStoreUnavailable, CodeInternal:
		log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", string(api.Code)),
			zap.Error(err),
		)
	default:
		log.Info("request rejected",
			zap.String("path", c.FullPath()),
			zap.String("code", string(api.Code)),
			zap.String("reason", api.Reason),
		)
	}

	c.JSON(HTTPStatus(api), errorDTO{OK: false, Error: api})
}

// BadRequest: バインド失敗など
func BadRequest(c *gin.Context, msg string) {
	c.JSON(HTTPStatus(Invalid(msg)), errorDTO{OK: false, Error: Invalid(msg)})
}
