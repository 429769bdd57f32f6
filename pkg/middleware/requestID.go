package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"gopherwallet.com/pkg/common"
)

func ReqId() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(common.HeaderRequestID)
		if rid == "" {
			rid = common.New()
		}
		c.Set(common.CtxKeyRequestID, rid)
		c.Header(common.HeaderRequestID, rid)
		// 写进 request context，logger 与下游 service 都从这里取
		ctx := context.WithValue(c.Request.Context(), common.CtxKeyRequestID, rid)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
