package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// The admin UI and kiosks call this API cross-origin; the allowed headers
// cover the bearer token and the request ID the kiosk forwards.
const (
	allowedHeaders = "Authorization, Content-Type, X-Requested-With, X-Request-ID"
	allowedMethods = "GET, POST, PUT, DELETE, OPTIONS"
	maxAge         = "600"
)

// New returns a CORS middleware restricted to ALLOWED_ORIGINS. An empty
// list allows any origin, which is the development default.
func New(allowedOrigins []string) gin.HandlerFunc {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[normalizeOrigin(origin)] = struct{}{}
	}

	return func(c *gin.Context) {
		header := c.Writer.Header()
		origin := c.GetHeader("Origin")
		switch {
		case origin != "":
			if _, ok := allowed[normalizeOrigin(origin)]; ok || allowAll {
				header.Set("Access-Control-Allow-Origin", origin)
			}
		case allowAll:
			header.Set("Access-Control-Allow-Origin", "*")
		}

		header.Set("Vary", "Origin")
		header.Set("Access-Control-Allow-Credentials", "true")
		header.Set("Access-Control-Allow-Headers", allowedHeaders)
		header.Set("Access-Control-Allow-Methods", allowedMethods)
		header.Set("Access-Control-Max-Age", maxAge)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func normalizeOrigin(origin string) string {
	return strings.ToLower(strings.TrimRight(origin, "/"))
}
