package auth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	headerName = "X-API-Key"
	queryParam = "api_key"
)

// APIKeyMiddleware guards the API with a shared key. The key is read from
// X-API-Key, then from an "Authorization: Bearer" header. Browsers cannot set
// headers on a WebSocket handshake, so upgrade requests may pass it as
// ?api_key= instead. An empty apiKey disables authentication.
func APIKeyMiddleware(apiKey string) gin.HandlerFunc {
	want := []byte(apiKey)
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}

		provided := providedKey(c.Request)
		if provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), want) != 1 {
			slog.Warn("rejected API key", "path", c.Request.URL.Path, "remote", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid API key"})
			return
		}
		c.Next()
	}
}

func providedKey(r *http.Request) string {
	if k := r.Header.Get(headerName); k != "" {
		return k
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	if isUpgrade(r) {
		return r.URL.Query().Get(queryParam)
	}
	return ""
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
