package server

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"gopherwallet.com/pkg/common"
	"gopherwallet.com/pkg/xerr"
)

// HeaderUserID 上游网关鉴权后写入的调用方用户 id
const HeaderUserID = "X-User-Id"

const ctxKeyUserID = "caller_user_id"

// Caller 缺少或非法的 X-User-Id 直接拒绝
func Caller() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(HeaderUserID)
		id, err := strconv.ParseInt(raw, 10, 64)
		if raw == "" || err != nil || id <= 0 {
			common.Error(c, xerr.New(xerr.Forbidden, "missing caller identity"))
			c.Abort()
			return
		}
		c.Set(ctxKeyUserID, id)
		c.Next()
	}
}

func callerID(c *gin.Context) int64 {
	return c.GetInt64(ctxKeyUserID)
}
