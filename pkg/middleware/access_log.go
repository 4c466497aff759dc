package middleware

import (
	"time"

	"HibiscusGuard/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/mssola/user_agent"
	"go.uber.org/zap"
)

// AccessLog 记录每个请求的访问日志
// 报警类请求来源五花八门（App、穿戴桥接、浏览器观看页），顺带解析 UA 便于排查
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ua := user_agent.New(c.Request.UserAgent())
		browser, _ := ua.Browser()
		logger.Info("access",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
			zap.String("platform", ua.Platform()),
			zap.String("client", browser),
			zap.Bool("mobile", ua.Mobile()))
	}
}
