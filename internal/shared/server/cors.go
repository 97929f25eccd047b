package server

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"

	"talentpool-backend/internal/shared/telemetry"
)

// corsConfig allows credentialed requests from the configured browser origins.
func corsConfig(allowedOrigins []string) cors.Config {
	origins := make([]string, 0, len(allowedOrigins))
	for _, o := range allowedOrigins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			telemetry.Warn("cors.origin_ignored", map[string]any{"origin": o})
			continue
		}
		origins = append(origins, o)
	}

	cfg := cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "X-Guest-Id", "X-Request-Id"},
		ExposeHeaders:    []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           10 * time.Minute,
	}
	if len(origins) == 0 {
		// Same-origin only.
		cfg.AllowOriginFunc = func(string) bool { return false }
	}
	return cfg
}
