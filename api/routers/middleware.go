package routers

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"sync"
	"time"

	"fraud-risk-engine/pkg/httputil"
	"fraud-risk-engine/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var jwtSecret []byte

// SetJWTSecret 设置JWT密钥
func SetJWTSecret(secret string) {
	jwtSecret = []byte(secret)
}

// ParseToken 校验 HS256 令牌并返回操作人
func ParseToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}
	sub, _ := claims.GetSubject()
	if sub == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return sub, nil
}

// AuthMiddleware JWT认证中间件，管理端使用
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httputil.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}

		operator, err := ParseToken(parts[1])
		if err != nil {
			httputil.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}

		c.Set("operator", operator)
		c.Next()
	}
}

// GetOperator 当前操作人
func GetOperator(c *gin.Context) string {
	return c.GetString("operator")
}

// APIKeyMiddleware 商户调用方认证；未配置密钥时放行
func APIKeyMiddleware(apiKey string) gin.HandlerFunc {
	if apiKey == "" {
		logger.Warn("RISK_API_KEY is not set, scoring endpoints are unauthenticated")
	}
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}

		key := c.GetHeader("X-API-Key")
		if key == "" {
			httputil.Unauthorized(c, "missing API key")
			c.Abort()
			return
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
			httputil.Unauthorized(c, "invalid API key")
			c.Abort()
			return
		}
		c.Next()
	}
}

// CORSMiddleware CORS中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-API-Key")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// RateLimitMiddleware 按客户端IP的令牌桶限流，rps<=0 时不限流
func RateLimitMiddleware(rps int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	var mu sync.Mutex
	visitors := make(map[string]*visitor)
	go cleanupVisitors(&mu, visitors)

	burst := float64(rps)
	return func(c *gin.Context) {
		ip := c.ClientIP()
		now := time.Now()

		mu.Lock()
		v, ok := visitors[ip]
		if !ok {
			v = &visitor{last: now, tokens: burst}
			visitors[ip] = v
		}
		v.tokens += now.Sub(v.last).Seconds() * float64(rps)
		if v.tokens > burst {
			v.tokens = burst
		}
		v.last = now
		if v.tokens < 1 {
			mu.Unlock()
			httputil.TooManyRequests(c, "too many requests")
			c.Abort()
			return
		}
		v.tokens--
		mu.Unlock()
		c.Next()
	}
}

type visitor struct {
	last   time.Time
	tokens float64
}

func cleanupVisitors(mu *sync.Mutex, visitors map[string]*visitor) {
	for {
		time.Sleep(1 * time.Minute)
		mu.Lock()
		for ip, v := range visitors {
			if time.Since(v.last) > 10*time.Minute {
				delete(visitors, ip)
			}
		}
		mu.Unlock()
	}
}

// LoggerMiddleware 请求日志
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"latency":  time.Since(start).String(),
			"clientIP": c.ClientIP(),
		}).Debug("http request")
	}
}

// RecoveryMiddleware 恢复中间件
func RecoveryMiddleware() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Errorf("panic recovered on %s %s: %v", c.Request.Method, c.Request.URL.Path, recovered)
		httputil.InternalError(c, "internal error")
		c.Abort()
	})
}
