package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

func generateSignature(data, secretKey string) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// DeviceSignVerify 设备桥接请求的签名校验
// 穿戴设备和家用传感器通过网关触发报警，请求必须用共享密钥签名
// 签名数据 = Method + Path + Body + timestamp
func DeviceSignVerify(secretKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		signature := c.GetHeader("Signature")
		if signature == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Signature is missing"})
			return
		}

		timestamp := c.DefaultQuery("timestamp", "")
		if timestamp == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Timestamp is missing"})
			return
		}

		var requestBody string
		if c.Request.Method == http.MethodPost {
			bodyBytes, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			requestBody = string(bodyBytes)
		}

		data := fmt.Sprintf("%s%s%s", c.Request.Method, c.Request.URL.Path, requestBody+timestamp)
		expectedSignature := generateSignature(data, secretKey)
		if !hmac.Equal([]byte(signature), []byte(expectedSignature)) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
			return
		}
		c.Next()
	}
}
