package pools

import (
	"context"
	"errors"
)

// GetPool returns a pool by id.
func (e *Engine) GetPool(ctx context.Context, poolID int64) (Pool, error) {
	return e.store.GetPool(ctx, poolID)
}

// GetApplication returns a candidate's application on a pool.
func (e *Engine) GetApplication(ctx context.Context, poolID int64, candidate string) (Application, error) {
	if _, err := e.store.GetPool(ctx, poolID); err != nil {
		return Application{}, err
	}
	return e.store.GetApplication(ctx, poolID, candidate)
}

// ListPoolApplications returns a pool's applications in submission order.
func (e *Engine) ListPoolApplications(ctx context.Context, poolID int64) ([]Application, error) {
	return e.store.ListApplications(ctx, poolID)
}

// ListPoolsByCompany returns the pools created by company, oldest first.
func (e *Engine) ListPoolsByCompany(ctx context.Context, company string) ([]Pool, error) {
	ids, err := e.store.ListPoolsByCompany(ctx, company)
	if err != nil {
		return nil, err
	}
	out := make([]Pool, 0, len(ids))
	for _, id := range ids {
		pool, err := e.store.GetPool(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, pool)
	}
	return out, nil
}

// ListApplicationsByCandidate returns every application the candidate submitted.
func (e *Engine) ListApplicationsByCandidate(ctx context.Context, candidate string) ([]Application, error) {
	ids, err := e.store.ListApplicationsByCandidate(ctx, candidate)
	if err != nil {
		return nil, err
	}
	out := make([]Application, 0, len(ids))
	for _, id := range ids {
		app, err := e.store.GetApplication(ctx, id, candidate)
		if err != nil {
			return nil, err
		}
		out = append(out, app)
	}
	return out, nil
}

// GetPoolMetrics returns the rolling metrics of a pool.
func (e *Engine) GetPoolMetrics(ctx context.Context, poolID int64) (PoolMetrics, error) {
	return e.store.GetMetrics(ctx, poolID)
}

// GetMatchScore returns the score recorded for a candidate's application.
func (e *Engine) GetMatchScore(ctx context.Context, poolID int64, candidate string) (int, error) {
	app, err := e.GetApplication(ctx, poolID, candidate)
	if err != nil {
		return 0, err
	}
	return app.MatchScore, nil
}

// PreviewMatchScore computes the score the given tokens would earn on a pool
// without recording anything.
func (e *Engine) PreviewMatchScore(ctx context.Context, candidate string, poolID int64, tokenIDs []int64) (int, error) {
	pool, err := e.store.GetPool(ctx, poolID)
	if err != nil {
		return 0, err
	}
	if len(tokenIDs) == 0 {
		return 0, invalidApplication("skillTokenIds", "at least one skill token is required")
	}
	skills, err := e.resolve(ctx, candidate, tokenIDs)
	if err != nil {
		return 0, err
	}
	return CalculateMatchScore(pool.RequiredSkills, pool.MinimumLevels, skills), nil
}

// ActivePoolCount returns the number of pools still open.
func (e *Engine) ActivePoolCount(ctx context.Context) (int64, error) {
	return e.store.CountActivePools(ctx)
}

// TotalPoolCount returns the number of pools ever created.
func (e *Engine) TotalPoolCount(ctx context.Context) (int64, error) {
	stats, err := e.store.GetStats(ctx)
	if err != nil {
		return 0, err
	}
	return stats.TotalPools, nil
}

// GlobalStats returns the reporting counters.
func (e *Engine) GlobalStats(ctx context.Context) (GlobalStats, error) {
	return e.store.GetStats(ctx)
}

// Settings returns fee rate, fee collector, minimum stake and pause state.
func (e *Engine) Settings(ctx context.Context) (Settings, error) {
	return e.store.GetSettings(ctx)
}

// PlatformFeeRate returns the fee rate in basis points.
func (e *Engine) PlatformFeeRate(ctx context.Context) (int64, error) {
	s, err := e.store.GetSettings(ctx)
	return s.PlatformFeeBps, err
}

// FeeCollector returns the recipient of fees and penalties.
func (e *Engine) FeeCollector(ctx context.Context) (string, error) {
	s, err := e.store.GetSettings(ctx)
	return s.FeeCollector, err
}

// MinimumStake returns the minimum company stake.
func (e *Engine) MinimumStake(ctx context.Context) (int64, error) {
	s, err := e.store.GetSettings(ctx)
	return s.MinimumStake, err
}

// IsNotFound reports whether err is any not-found variant.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
