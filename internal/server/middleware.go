package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/kevobebop/kindmind/internal/authctx"
	"go.uber.org/zap"
)

// RequestLogger emits one structured line per request with a correlation id.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := strings.TrimSpace(c.GetHeader("X-Request-Id"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-Id", requestID)

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		}
		if lastErr := c.Errors.Last(); lastErr != nil {
			fields = append(fields, zap.String("error", lastErr.Err.Error()))
		}

		if status >= http.StatusInternalServerError {
			log.Error("http request", fields...)
			return
		}
		log.Info("http request", fields...)
	}
}

// AuthRequired authenticates the caller from a bearer token and resolves the
// caller's role before handing off to the handler.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
			}
			return []byte(s.cfg.AuthJWTSecret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		mapClaims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		sub, err := mapClaims.GetSubject()
		if err != nil || strings.TrimSpace(sub) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		email, _ := mapClaims["email"].(string)

		role, err := s.claims.RoleOf(c.Request.Context(), sub)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := authctx.WithUser(c.Request.Context(), authctx.User{
			ID:    sub,
			Email: email,
			Role:  role,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// HookAuthRequired guards the identity-provider callback with a shared token.
func (s *Server) HookAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" || s.cfg.AccountHookToken == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AccountHookToken)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}
