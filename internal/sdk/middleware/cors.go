package middleware

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS returns a CORS middleware configured from APP_FRONTEND_ORIGIN, a
// comma-separated origin list (wildcard when unset).
func CORS() gin.HandlerFunc {
	allowOrigins := parseOrigins(os.Getenv("APP_FRONTEND_ORIGIN"))
	allowCredentials := true
	if len(allowOrigins) == 0 {
		allowOrigins = []string{"*"}
	}
	if len(allowOrigins) == 1 && allowOrigins[0] == "*" {
		allowCredentials = false
		slog.Warn("cors: disabling credentials for wildcard origin")
	}

	config := cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Authorization", "Content-Type"},
		AllowCredentials: allowCredentials,
		MaxAge:           time.Hour,
	}

	return cors.New(config)
}

func parseOrigins(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin != "" {
			origins = append(origins, origin)
		}
	}

	return origins
}
