package skills

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"talentpool-backend/internal/access"
	"talentpool-backend/internal/shared/server/middleware"
	"talentpool-backend/internal/shared/server/respond"
	"talentpool-backend/internal/shared/telemetry"
)

// Handler exposes skill token minting and lookup. Minting is restricted to
// operators, who act as credential issuers.
type Handler struct {
	Tokens Minter
	Authz  access.Authorizer
}

// NewHandler constructs a Handler.
func NewHandler(tokens Minter, authz access.Authorizer) *Handler {
	return &Handler{Tokens: tokens, Authz: authz}
}

// RegisterRoutes attaches skill token routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/skills/tokens", h.mint)
	rg.GET("/skills/tokens/:id", h.get)
}

type mintRequest struct {
	Owner    string `json:"owner"`
	Category string `json:"category"`
	Level    int    `json:"level"`
}

// TokenResponse is the outward-facing representation of a skill token.
type TokenResponse struct {
	ID       int64     `json:"id"`
	Owner    string    `json:"owner"`
	Category string    `json:"category"`
	Level    int       `json:"level"`
	Issuer   string    `json:"issuer"`
	MintedAt time.Time `json:"mintedAt"`
}

func toTokenResponse(t Token) TokenResponse {
	return TokenResponse{
		ID:       t.ID,
		Owner:    t.Owner,
		Category: t.Category,
		Level:    t.Level,
		Issuer:   t.Issuer,
		MintedAt: t.MintedAt,
	}
}

func (h *Handler) mint(c *gin.Context) {
	issuer := middleware.UserIDFromContext(c)
	if issuer == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing identity", nil)
		return
	}
	if h.Authz == nil || !h.Authz.HasRole(c.Request.Context(), issuer, access.RoleOperator) {
		respond.Error(c, http.StatusForbidden, "forbidden", "caller may not issue skill tokens", nil)
		return
	}
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	token, err := h.Tokens.Mint(c.Request.Context(), req.Owner, issuer, req.Category, req.Level)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			respond.Error(c, http.StatusBadRequest, "validation_error", "owner and category are required and level must be within 1..100", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
		return
	}
	telemetry.Info("skills.mint", map[string]any{
		"token_id": token.ID,
		"owner":    token.Owner,
		"issuer":   issuer,
		"category": token.Category,
		"level":    token.Level,
	})
	respond.Created(c, toTokenResponse(token))
}

func (h *Handler) get(c *gin.Context) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid token id", gin.H{"id": raw})
		return
	}
	token, err := h.Tokens.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "skill token not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
		return
	}
	respond.OK(c, toTokenResponse(token))
}
