package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopherwallet.com/pkg/common"
	"gopherwallet.com/pkg/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRecover_ReturnsEnvelope(t *testing.T) {
	r := gin.New()
	r.Use(ReqId(), Recover())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })
	r.GET("/ok", func(c *gin.Context) { common.Success(c, "fine") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp common.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 5000000, resp.Code)
	assert.Equal(t, "internal error", resp.Message)

	// 没有 panic 时后续 handler 必须被执行
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReqId_EchoesOrGenerates(t *testing.T) {
	r := gin.New()
	r.Use(ReqId())
	var seen string
	r.GET("/x", func(c *gin.Context) {
		seen = common.RequestIDFromCtx(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(common.HeaderRequestID, "rid-123")
	r.ServeHTTP(w, req)
	assert.Equal(t, "rid-123", seen)
	assert.Equal(t, "rid-123", w.Header().Get(common.HeaderRequestID))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.NotEmpty(t, seen)
	assert.NotEqual(t, "rid-123", seen)
}

func TestRateLimit_Blocks(t *testing.T) {
	store := ratelimit.NewStore(0.0001, 2, time.Minute)
	r := gin.New()
	r.Use(RateLimit(store, "wallet-service-test"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestSentinelResource(t *testing.T) {
	r := gin.New()
	var got string
	r.POST("/api/transfers/:id", func(c *gin.Context) {
		got = SentinelResource(c)
		c.Status(http.StatusOK)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/transfers/42", nil))
	assert.Equal(t, "POST:/api/transfers/:id", got)
}
