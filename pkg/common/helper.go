package common

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gopherwallet.com/pkg/logger"
	"gopherwallet.com/pkg/xerr"
)

// 定义http返回格式，错误时 data=null
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func Success(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: http.StatusText(http.StatusOK),
		Data:    data,
	})
}

func Created(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusCreated, Response{
		Code:    http.StatusCreated,
		Message: http.StatusText(http.StatusCreated),
		Data:    data,
	})
}

func Fail(c *gin.Context, httpStatus int, code int, message string) {
	c.JSON(httpStatus, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// Error 按 xerr.Kind 映射 HTTP 状态与业务码
// 业务错误只打一条 warn；系统错误带堆栈，对外统一 internal error
func Error(c *gin.Context, err error) {
	kind := xerr.KindOf(err)
	httpStatus := xerr.HTTPStatus(kind)
	msg := xerr.Message(err)

	fields := []zap.Field{
		zap.String("request_id", RequestIDFromGin(c)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("kind", string(kind)),
		zap.Int("biz_code", xerr.CodeOf(kind)),
		zap.Error(err),
	}
	if httpStatus >= http.StatusInternalServerError {
		fields = append(fields, zap.ByteString("stack", debug.Stack()))
		logger.Error(c.Request.Context(), "http error", fields...)
	} else {
		logger.Warn(c.Request.Context(), "http biz error", fields...)
	}
	Fail(c, httpStatus, xerr.CodeOf(kind), msg)
}

// BadRequest 参数绑定失败，不透出校验器细节以外的内容
func BadRequest(c *gin.Context, msg string) {
	Fail(c, http.StatusBadRequest, xerr.CodeOf(xerr.InvalidArgument), msg)
}
