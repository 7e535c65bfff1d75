package server

import (
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mprlab/noted/internal/auth"
)

// admitRequest runs the rate-limit gate keyed by client IP before any other
// processing. The gate itself fails closed, so a throttled or failing
// counter store always denies.
func (h *httpHandler) admitRequest(c *gin.Context) {
	key := clientIP(c.Request)
	decision := h.gate.Admit(c.Request.Context(), key)
	if decision.Allowed {
		c.Next()
		return
	}

	retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	h.logger.Warn("request throttled",
		zap.String("ip", key),
		zap.String("path", c.Request.URL.Path),
		zap.Int("retry_after_s", retryAfter),
	)
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, envelope{
		Data:    gin.H{"retry_after_s": retryAfter},
		Message: messageTooManyRequests,
	})
}

// authorizeRequest validates the bearer token and resolves its subject to a
// live account. A token whose subject no longer exists is treated the same
// as an invalid token.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, envelope{Data: gin.H{}, Message: messageUnauthorized})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, envelope{Data: gin.H{}, Message: messageUnauthorized})
		return
	}

	subject, err := h.tokens.Validate(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, envelope{Data: gin.H{}, Message: messageUnauthorized})
		return
	}

	account, err := h.users.Lookup(c.Request.Context(), subject)
	if err != nil {
		h.logger.Warn("token subject does not resolve to a user", zap.String("user_id", subject))
		c.AbortWithStatusJSON(http.StatusUnauthorized, envelope{Data: gin.H{}, Message: messageUnauthorized})
		return
	}

	c.Set(userContextKey, account)
	c.Next()
}

// clientIP extracts the remote address, stripping the port. Proxy headers
// are deliberately not trusted here; deployments behind a reverse proxy
// should terminate them upstream.
func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
