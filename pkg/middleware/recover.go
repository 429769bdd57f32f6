package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gopherwallet.com/pkg/common"
	"gopherwallet.com/pkg/logger"
	"gopherwallet.com/pkg/xerr"
)

func Recover() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error(c.Request.Context(), "http panic",
					zap.String("request_id", common.RequestIDFromGin(c)),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.Any("panic", err),
					zap.ByteString("stack", debug.Stack()),
				)
				common.Fail(c, http.StatusInternalServerError, xerr.CodeOf(xerr.Internal), "internal error")
				c.Abort()
			}
		}()
		c.Next()
	}
}
