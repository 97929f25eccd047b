package pools

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"talentpool-backend/internal/access"
	"talentpool-backend/internal/shared/server/middleware"
	"talentpool-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the engine.
type Handler struct {
	Engine *Engine
}

// NewHandler constructs a Handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{Engine: engine}
}

// RegisterRoutes attaches pool, stats and admin routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/pools", h.createPool)
	rg.GET("/pools/:id", h.getPool)
	rg.GET("/pools/:id/applications", h.listApplications)
	rg.GET("/pools/:id/applications/:candidate", h.getApplication)
	rg.POST("/pools/:id/applications", h.submitApplication)
	rg.DELETE("/pools/:id/applications/me", h.withdrawApplication)
	rg.GET("/pools/:id/metrics", h.metrics)
	rg.GET("/pools/:id/score/:candidate", h.matchScore)
	rg.POST("/pools/:id/score-preview", h.scorePreview)
	rg.POST("/pools/:id/select", h.selectCandidate)
	rg.POST("/pools/:id/complete", h.completePool)
	rg.POST("/pools/:id/close", h.closePool)
	rg.POST("/pools/:id/expire", h.expirePool)
	rg.GET("/companies/:company/pools", h.listByCompany)
	rg.GET("/candidates/:candidate/applications", h.listByCandidate)
	rg.GET("/stats", h.stats)

	admin := rg.Group("/admin")
	admin.GET("/settings", h.settings)
	admin.PUT("/fee-rate", h.setFeeRate)
	admin.PUT("/fee-collector", h.setFeeCollector)
	admin.PUT("/minimum-stake", h.setMinimumStake)
	admin.POST("/pause", h.pause)
	admin.POST("/unpause", h.unpause)
	admin.POST("/roles", h.grantRole)
	admin.DELETE("/roles", h.revokeRole)
}

func (h *Handler) createPool(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req createPoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	pool, effects, err := h.Engine.CreatePool(c.Request.Context(), caller, req.params())
	if err != nil {
		writeError(c, err)
		return
	}
	c.Set("poolId", pool.ID)
	respond.Created(c, respond.WithEffects("pool", toPoolResponse(pool), toEffectsResponse(effects)))
}

func (h *Handler) getPool(c *gin.Context) {
	poolID, ok := poolIDParam(c)
	if !ok {
		return
	}
	pool, err := h.Engine.GetPool(c.Request.Context(), poolID)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, toPoolResponse(pool))
}

func (h *Handler) listApplications(c *gin.Context) {
	poolID, ok := poolIDParam(c)
	if !ok {
		return
	}
	apps, err := h.Engine.ListPoolApplications(c.Request.Context(), poolID)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, gin.H{"applications": toApplicationResponses(apps)})
}

func (h *Handler) getApplication(c *gin.Context) {
	poolID, ok := poolIDParam(c)
	if !ok {
		return
	}
	app, err := h.Engine.GetApplication(c.Request.Context(), poolID, c.Param("candidate"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, toApplicationResponse(app))
}

func (h *Handler) submitApplication(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	poolID, ok := poolIDParam(c)
	if !ok {
		return
	}
	var req submitApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	app, effects, err := h.Engine.SubmitApplication(c.Request.Context(), caller, poolID, ApplicationParams{
		SkillTokenIDs: req.SkillTokenIDs,
		StakeAmount:   req.StakeAmount,
		CoverLetter:   req.CoverLetter,
		Portfolio:     req.Portfolio,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respond.Created(c, respond.WithEffects("application", toApplicationResponse(app), toEffectsResponse(effects)))
}

func (h *Handler) withdrawApplication(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	poolID, ok := poolIDParam(c)
	if !ok {
		return
	}
	app, effects, err := h.Engine.WithdrawApplication(c.Request.Context(), caller, poolID)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, respond.WithEffects("application", toApplicationResponse(app), toEffectsResponse(effects)))
}

func (h *Handler) metrics(c *gin.Context) {
	poolID, ok := poolIDParam(c)
	if !ok {
		return
	}
	m, err := h.Engine.GetPoolMetrics(c.Request.Context(), poolID)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, toMetricsResponse(m))
}

func (h *Handler) matchScore(c *gin.Context) {
	poolID, ok := poolIDParam(c)
	if !ok {
		return
	}
	candidate := c.Param("candidate")
	score, err := h.Engine.GetMatchScore(c.Request.Context(), poolID, candidate)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, gin.H{"poolId": poolID, "candidate": candidate, "matchScore": score})
}

func (h *Handler) scorePreview(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	poolID, ok := poolIDParam(c)
	if !ok {
		return
	}
	var req scorePreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	score, err := h.Engine.PreviewMatchScore(c.Request.Context(), caller, poolID, req.SkillTokenIDs)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, gin.H{"poolId": poolID, "candidate": caller, "matchScore": score})
}

func (h *Handler) selectCandidate(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	poolID, ok := poolIDParam(c)
	if !ok {
		return
	}
	var req selectCandidateRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Candidate) == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "candidate is required", nil)
		return
	}
	app, effects, err := h.Engine.SelectCandidate(c.Request.Context(), caller, poolID, strings.TrimSpace(req.Candidate))
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, respond.WithEffects("application", toApplicationResponse(app), toEffectsResponse(effects)))
}

func (h *Handler) completePool(c *gin.Context) {
	h.poolTransition(c, h.Engine.CompletePool)
}

func (h *Handler) closePool(c *gin.Context) {
	h.poolTransition(c, h.Engine.ClosePool)
}

func (h *Handler) expirePool(c *gin.Context) {
	h.poolTransition(c, h.Engine.ExpirePool)
}

func (h *Handler) poolTransition(c *gin.Context, fn func(ctx context.Context, caller string, poolID int64) (Pool, Effects, error)) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	poolID, ok := poolIDParam(c)
	if !ok {
		return
	}
	pool, effects, err := fn(c.Request.Context(), caller, poolID)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, respond.WithEffects("pool", toPoolResponse(pool), toEffectsResponse(effects)))
}

func (h *Handler) listByCompany(c *gin.Context) {
	pools, err := h.Engine.ListPoolsByCompany(c.Request.Context(), c.Param("company"))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]PoolResponse, 0, len(pools))
	for _, p := range pools {
		out = append(out, toPoolResponse(p))
	}
	respond.OK(c, gin.H{"pools": out})
}

func (h *Handler) listByCandidate(c *gin.Context) {
	apps, err := h.Engine.ListApplicationsByCandidate(c.Request.Context(), c.Param("candidate"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, gin.H{"applications": toApplicationResponses(apps)})
}

func (h *Handler) stats(c *gin.Context) {
	ctx := c.Request.Context()
	stats, err := h.Engine.GlobalStats(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	active, err := h.Engine.ActivePoolCount(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, gin.H{
		"totalPools":        stats.TotalPools,
		"activePools":       active,
		"totalApplications": stats.TotalApplications,
		"totalMatches":      stats.TotalMatches,
		"totalValueStaked":  stats.TotalValueStaked,
	})
}

func (h *Handler) settings(c *gin.Context) {
	s, err := h.Engine.Settings(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, toSettingsResponse(s))
}

func (h *Handler) setFeeRate(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req feeRateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.FeeRateBps == nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "feeRateBps is required", nil)
		return
	}
	h.settingsResult(c)(h.Engine.SetPlatformFee(c.Request.Context(), caller, *req.FeeRateBps))
}

func (h *Handler) setFeeCollector(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req feeCollectorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	h.settingsResult(c)(h.Engine.SetFeeCollector(c.Request.Context(), caller, req.FeeCollector))
}

func (h *Handler) setMinimumStake(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req minimumStakeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.MinimumStake == nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "minimumStake is required", nil)
		return
	}
	h.settingsResult(c)(h.Engine.SetMinimumStake(c.Request.Context(), caller, *req.MinimumStake))
}

func (h *Handler) pause(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	h.settingsResult(c)(h.Engine.Pause(c.Request.Context(), caller))
}

func (h *Handler) unpause(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	h.settingsResult(c)(h.Engine.Unpause(c.Request.Context(), caller))
}

func (h *Handler) settingsResult(c *gin.Context) func(Settings, error) {
	return func(s Settings, err error) {
		if err != nil {
			writeError(c, err)
			return
		}
		respond.OK(c, toSettingsResponse(s))
	}
}

func (h *Handler) grantRole(c *gin.Context) {
	h.changeRole(c, h.Engine.GrantRole)
}

func (h *Handler) revokeRole(c *gin.Context) {
	h.changeRole(c, h.Engine.RevokeRole)
}

func (h *Handler) changeRole(c *gin.Context, fn func(ctx context.Context, caller, target string, role access.Role) (Effects, error)) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	role, err := access.ParseRole(req.Role)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), gin.H{"role": req.Role})
		return
	}
	effects, err := fn(c.Request.Context(), caller, req.Account, role)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, gin.H{
		"account": strings.TrimSpace(req.Account),
		"role":    role,
		"effects": toEffectsResponse(effects),
	})
}

func requireCaller(c *gin.Context) (string, bool) {
	caller := middleware.UserIDFromContext(c)
	if caller == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing identity", nil)
		return "", false
	}
	return caller, true
}

func poolIDParam(c *gin.Context) (int64, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid pool id", gin.H{"id": raw})
		return 0, false
	}
	c.Set("poolId", id)
	return id, true
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidApplication):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), validationDetails(err))
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, ErrUnauthorized):
		respond.Error(c, http.StatusForbidden, "forbidden", err.Error(), nil)
	case errors.Is(err, ErrInvalidState):
		respond.Error(c, http.StatusConflict, "invalid_state", err.Error(), nil)
	case errors.Is(err, ErrPaused):
		respond.Error(c, http.StatusLocked, "paused", err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}

func validationDetails(err error) interface{} {
	var verr *ValidationError
	if errors.As(err, &verr) && verr.Field != "" {
		return gin.H{"field": verr.Field, "reason": verr.Reason}
	}
	return nil
}
