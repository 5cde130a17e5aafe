package web

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	ctxUserID = "userID"
	ctxToken  = "accessToken"

	// PipelineTokenHeader carries the shared secret of the processing pipeline.
	PipelineTokenHeader = "X-Pipeline-Token"
)

// requestLogger logs one line per request, at a level that follows the status.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		kv := []interface{}{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if userID := c.GetString(ctxUserID); userID != "" {
			kv = append(kv, "user_id", userID)
		}
		if len(c.Errors) > 0 {
			kv = append(kv, "error", c.Errors.String())
		}
		switch {
		case status >= 500:
			s.log.Error("HTTP request", kv...)
		case status >= 400:
			s.log.Warn("HTTP request", kv...)
		default:
			s.log.Debug("HTTP request", kv...)
		}
	}
}

// bearerToken reads the access token from the Authorization header, falling
// back to the token query parameter for EventSource clients.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.Request)
		userID, err := s.Auth.Authenticate(token)
		if err != nil {
			respondError(c, err)
			c.Abort()
			return
		}
		c.Set(ctxUserID, userID)
		c.Set(ctxToken, token)
		c.Next()
	}
}

func (s *Server) requirePipelineToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(PipelineTokenHeader)
		if s.PipelineToken == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.PipelineToken)) != 1 {
			respondStatus(c, http.StatusUnauthorized, "invalid pipeline token", "unauthorized")
			c.Abort()
			return
		}
		c.Next()
	}
}

func userID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}
