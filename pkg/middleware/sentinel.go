package middleware

import (
	"fmt"
	"net/http"

	sentinels "github.com/alibaba/sentinel-golang/api"
	"github.com/alibaba/sentinel-golang/core/base"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gopherwallet.com/pkg/common"
	"gopherwallet.com/pkg/logger"
	"gopherwallet.com/pkg/metrics"
	"gopherwallet.com/pkg/xerr"
)

// SentinelResource 资源名 = METHOD:路由模板，例如 POST:/api/transfers
func SentinelResource(c *gin.Context) string {
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	return c.Request.Method + ":" + route
}

// Sentinel 流控 + 熔断，规则由 bootstrap.InitSentinel 加载
// 没有匹配规则的资源直接放行
func Sentinel(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		resource := SentinelResource(c)
		entry, blockErr := sentinels.Entry(resource,
			sentinels.WithResourceType(base.ResTypeWeb),
			sentinels.WithTrafficType(base.Inbound),
		)
		if blockErr != nil {
			metrics.RateLimitBlockTotal.WithLabelValues(serviceName, resource, "sentinel").Inc()
			logger.Warn(c.Request.Context(), "request blocked by sentinel",
				zap.String("request_id", common.RequestIDFromGin(c)),
				zap.String("resource", resource),
				zap.String("blockType", blockErr.BlockType().String()),
			)
			common.Fail(c, http.StatusTooManyRequests, xerr.CodeOf(xerr.RateLimited), "service is busy, please try again later")
			c.Abort()
			return
		}
		defer entry.Exit()

		c.Next()

		// 只有 5xx 计入熔断统计，业务错误不算
		if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			sentinels.TraceError(entry, fmt.Errorf("http status %d", status))
		}
	}
}
