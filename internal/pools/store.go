package pools

import (
	"context"
	"time"

	"talentpool-backend/internal/access"
)

// RoleGrant is a role given to an account at runtime by an admin.
type RoleGrant struct {
	Account   string
	Role      access.Role
	GrantedBy string
	GrantedAt time.Time
}

// Reader exposes committed state. Returned values are copies.
type Reader interface {
	GetPool(ctx context.Context, poolID int64) (Pool, error)
	GetApplication(ctx context.Context, poolID int64, candidate string) (Application, error)
	ListApplications(ctx context.Context, poolID int64) ([]Application, error)
	ListPoolsByCompany(ctx context.Context, company string) ([]int64, error)
	ListApplicationsByCandidate(ctx context.Context, candidate string) ([]int64, error)
	ListActivePoolsDue(ctx context.Context, now time.Time) ([]int64, error)
	GetMetrics(ctx context.Context, poolID int64) (PoolMetrics, error)
	GetStats(ctx context.Context) (GlobalStats, error)
	GetSettings(ctx context.Context) (Settings, error)
	CountActivePools(ctx context.Context) (int64, error)
	ListRoles(ctx context.Context, account string) ([]access.Role, error)
}

// Tx is the write view of a single transition. Writes become visible to
// other readers only when the enclosing Update returns nil.
type Tx interface {
	Reader
	NextPoolID(ctx context.Context) (int64, error)
	PutPool(ctx context.Context, pool Pool) error
	PutApplication(ctx context.Context, app Application) error
	PutMetrics(ctx context.Context, m PoolMetrics) error
	PutStats(ctx context.Context, s GlobalStats) error
	PutSettings(ctx context.Context, s Settings) error
	PutRole(ctx context.Context, grant RoleGrant) error
	DeleteRole(ctx context.Context, account string, role access.Role) error
	AppendEffects(ctx context.Context, effects Effects) error
}

// Store is the durable state of the engine.
type Store interface {
	Reader
	// Update runs fn atomically. If fn returns an error nothing it wrote is kept.
	Update(ctx context.Context, fn func(tx Tx) error) error
	// PendingEffects returns effects not yet marked dispatched, oldest first.
	PendingEffects(ctx context.Context, limit int) (Effects, error)
	MarkDispatched(ctx context.Context, eventIDs, payoutIDs []string) error
}

var _ access.GrantSource = Store(nil)
