package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"talentpool-backend/internal/access"
	"talentpool-backend/internal/shared/server/middleware"
	"talentpool-backend/internal/shared/server/respond"
)

var knownRoles = []access.Role{access.RoleAdmin, access.RoleOperator, access.RoleCompany, access.RoleCandidate}

// registerMeRoutes attaches the /me endpoint.
func registerMeRoutes(rg *gin.RouterGroup, authz access.Authorizer) {
	rg.GET("/me", func(c *gin.Context) {
		meHandler(c, authz)
	})
}

func meHandler(c *gin.Context, authz access.Authorizer) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
		return
	}

	roles := []access.Role{}
	if authz != nil {
		for _, role := range knownRoles {
			if authz.HasRole(c.Request.Context(), userID, role) {
				roles = append(roles, role)
			}
		}
	}
	response := gin.H{
		"userId":  userID,
		"isGuest": middleware.IsGuest(c),
		"roles":   roles,
	}
	if email := middleware.UserEmailFromContext(c); email != "" {
		response["email"] = email
	}

	respond.JSON(c, http.StatusOK, response)
}
