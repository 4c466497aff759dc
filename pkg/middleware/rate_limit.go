package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"HibiscusGuard/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"
)

var rateLimitRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "guard_rate_limit_rejected_total",
	Help: "Requests rejected by the rate limiter.",
}, []string{"path"})

// RateLimitConfig 限流配置
//
// Rate 用 ulule/limiter 的格式串，如 "120-M"（每分钟 120 次）。
// SkipPaths 前缀匹配；健康检查和指标端点不参与限流。
type RateLimitConfig struct {
	Rate      string
	SkipPaths []string
}

// RateLimit 按客户端 IP 限流
// 误杀一条真实求救的代价太高，所以限流放得很宽，只拦明显的刷接口行为
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Rate == "" {
		cfg.Rate = "120-M"
	}
	rate, err := limiter.NewRateFromFormatted(cfg.Rate)
	if err != nil {
		logger.Warn("invalid rate format, rate limiting disabled", zap.String("rate", cfg.Rate))
		return func(c *gin.Context) { c.Next() }
	}
	instance := limiter.New(memory.NewStore(), rate)

	return func(c *gin.Context) {
		for _, p := range cfg.SkipPaths {
			if strings.HasPrefix(c.Request.URL.Path, p) {
				c.Next()
				return
			}
		}

		lctx, err := instance.Get(c.Request.Context(), c.ClientIP())
		if err != nil {
			// 限流器自身出错不拦请求
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		if lctx.Reached {
			rateLimitRejected.WithLabelValues(c.Request.URL.Path).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
