package server

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"talentpool-backend/internal/access"
	"talentpool-backend/internal/pools"
	"talentpool-backend/internal/shared/config"
	"talentpool-backend/internal/shared/metrics"
	"talentpool-backend/internal/shared/server/middleware"
	"talentpool-backend/internal/shared/server/respond"
	"talentpool-backend/internal/skills"
)

// RouterDeps holds the handlers mounted by NewRouter.
type RouterDeps struct {
	Config        config.Config
	PoolHandler   *pools.Handler
	SkillsHandler *skills.Handler
	Authz         access.Authorizer
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		cors.New(corsConfig(deps.Config.CORSAllowOrigin)),
	)

	r.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.Use(
		middleware.Auth(deps.Config.Env),
		middleware.RateLimit(middleware.RateLimitConfig{
			DefaultGroup: "WRITE",
			GroupFor:     rateLimitGroup,
			Rules:        defaultRateLimits,
		}),
	)
	registerMeRoutes(api, deps.Authz)
	if deps.PoolHandler != nil {
		deps.PoolHandler.RegisterRoutes(api)
	}
	if deps.SkillsHandler != nil {
		deps.SkillsHandler.RegisterRoutes(api)
	}

	return r
}

var defaultRateLimits = map[string]middleware.RateLimitRule{
	"READ":  {Rate: 20, Burst: 60},
	"WRITE": {Rate: 5, Burst: 20},
}

func rateLimitGroup(c *gin.Context) string {
	if c.Request.Method == http.MethodGet {
		return "READ"
	}
	return "WRITE"
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
