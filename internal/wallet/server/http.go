package server

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprom "github.com/zsais/go-gin-prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gopherwallet.com/internal/wallet/keyvault"
	"gopherwallet.com/internal/wallet/registry"
	"gopherwallet.com/internal/wallet/transfer"
	"gopherwallet.com/pkg/common"
	"gopherwallet.com/pkg/middleware"
	"gopherwallet.com/pkg/ratelimit"
)

type Handler struct {
	registry *registry.Registry
	engine   *transfer.Engine
	vault    *keyvault.Vault
}

func NewHandler(reg *registry.Registry, engine *transfer.Engine, vault *keyvault.Vault) *Handler {
	return &Handler{registry: reg, engine: engine, vault: vault}
}

type RouterOptions struct {
	ServiceName string
	// nil 表示不限流
	RateLimit *ratelimit.Store
	// 转账路由挂 sentinel，规则由 bootstrap.InitSentinel 加载
	Sentinel bool
	// 暴露 gin 的 /metrics，独立 metrics 端口时可以关掉
	Metrics bool
}

func NewRouter(h *Handler, opt RouterOptions) *gin.Engine {
	if opt.ServiceName == "" {
		opt.ServiceName = "wallet-service"
	}
	r := gin.New()
	if opt.Metrics {
		p := ginprom.NewPrometheus("gopherwallet")
		// 路由模板做 label，避免 wallet id 把基数打爆
		p.ReqCntURLLabelMappingFn = func(c *gin.Context) string {
			if route := c.FullPath(); route != "" {
				return route
			}
			return "unmatched"
		}
		p.Use(r)
	}
	r.Use(
		otelgin.Middleware(opt.ServiceName),
		middleware.ReqId(),
		cors.New(corsConfig()),
		middleware.Recover(),
	)
	if opt.RateLimit != nil {
		r.Use(middleware.RateLimit(opt.RateLimit, opt.ServiceName))
	}

	r.GET("/healthz", func(c *gin.Context) { common.Success(c, "ok") })

	api := r.Group("/api", Caller())
	wallets := api.Group("/wallets")
	{
		wallets.POST("", h.CreateWallet)
		wallets.GET("", h.ListWallets)
		wallets.POST("/recover", h.RecoverWallet)
		wallets.GET("/search", h.SearchWallets)
		wallets.POST("/validate-address", h.ValidateAddress)
		wallets.GET("/:id", h.GetWallet)
		wallets.POST("/:id/private-key", h.GetPrivateKey)
		wallets.DELETE("/:id/private-key", h.RemovePrivateKey)
		wallets.PUT("/:id/password", h.UpdatePassword)
	}

	transfers := api.Group("/transfers")
	{
		if opt.Sentinel {
			transfers.POST("", middleware.Sentinel(opt.ServiceName), h.Transfer)
		} else {
			transfers.POST("", h.Transfer)
		}
		transfers.GET("/history/:walletId", h.History)
		transfers.GET("/tx/:hash", h.GetTransaction)
		transfers.GET("/balance/:walletId", h.WalletBalances)
		transfers.GET("/balance/:walletId/:tokenId", h.TokenBalance)
		transfers.POST("/initialize-balance", h.InitializeBalance)
	}
	return r
}

func corsConfig() cors.Config {
	c := cors.DefaultConfig()
	c.AllowAllOrigins = true
	c.AllowHeaders = append(c.AllowHeaders, HeaderUserID, common.HeaderRequestID)
	c.ExposeHeaders = []string{common.HeaderRequestID}
	c.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	return c
}
