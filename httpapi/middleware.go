package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"escrowflow/auth"
	"escrowflow/logger"

	"go.uber.org/zap"
)

const (
	ctxClaims    = "claims"
	ctxRequestID = "request_id"
)

// requestID attaches a request id to the context and response headers.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// requestLogger logs one line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.L().Info("request",
			zap.String("request_id", c.GetString(ctxRequestID)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	VerifyToken(token string) (*auth.Claims, error)
}

// requireAuth rejects requests without a valid bearer token.
func requireAuth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, envelope{Success: false, Message: "missing bearer token"})
			return
		}
		claims, err := verifier.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, envelope{Success: false, Message: "invalid token"})
			return
		}
		c.Set(ctxClaims, claims)
		c.Next()
	}
}

// requireRole additionally restricts a route to specific roles. Admins
// pass every check.
func requireRole(roles ...auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := claimsFrom(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, envelope{Success: false, Message: "missing bearer token"})
			return
		}
		if claims.Role == auth.RoleAdmin {
			c.Next()
			return
		}
		for _, r := range roles {
			if claims.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, envelope{Success: false, Message: "insufficient role"})
	}
}

func claimsFrom(c *gin.Context) *auth.Claims {
	v, ok := c.Get(ctxClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}
