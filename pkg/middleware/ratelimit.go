package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gopherwallet.com/pkg/common"
	"gopherwallet.com/pkg/logger"
	"gopherwallet.com/pkg/metrics"
	"gopherwallet.com/pkg/ratelimit"
	"gopherwallet.com/pkg/xerr"
)

// RateLimit 按 ip+路由 令牌桶限流
func RateLimit(store *ratelimit.Store, serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := c.ClientIP() + ":" + route

		if !store.Allow(key) {
			// 限流属于可控拒绝，不打堆栈
			metrics.RateLimitBlockTotal.WithLabelValues(serviceName, route, "token_bucket").Inc()
			logger.Warn(c.Request.Context(), "http rate limited",
				zap.String("request_id", common.RequestIDFromGin(c)),
				zap.String("ip", c.ClientIP()),
				zap.String("route", route),
			)
			common.Fail(c, http.StatusTooManyRequests, xerr.CodeOf(xerr.RateLimited), "too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}
