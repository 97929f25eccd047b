package pools

import (
	"context"
	"sort"
	"sync"
	"time"

	"talentpool-backend/internal/access"
)

type appKey struct {
	poolID    int64
	candidate string
}

type roleKey struct {
	account string
	role    access.Role
}

type memState struct {
	lastPoolID  int64
	pools       map[int64]Pool
	apps        map[appKey]Application
	applicants  map[int64][]string
	byCompany   map[string][]int64
	byCandidate map[string][]int64
	metrics     map[int64]PoolMetrics
	stats       GlobalStats
	settings    Settings
	roles       map[roleKey]RoleGrant
	events      []Event
	payouts     []PayoutIntent
}

// MemoryStore keeps engine state in memory and is safe for concurrent use.
// Updates are staged and applied in one step, so readers never observe a
// partially applied transition.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
}

// NewMemoryStore constructs a MemoryStore seeded with settings.
func NewMemoryStore(settings Settings) *MemoryStore {
	return &MemoryStore{
		state: &memState{
			pools:       make(map[int64]Pool),
			apps:        make(map[appKey]Application),
			applicants:  make(map[int64][]string),
			byCompany:   make(map[string][]int64),
			byCandidate: make(map[string][]int64),
			metrics:     make(map[int64]PoolMetrics),
			settings:    settings,
			roles:       make(map[roleKey]RoleGrant),
		},
	}
}

func (s *MemoryStore) view() *memTx {
	return newMemTx(s.state)
}

// Update runs fn against a staged copy and commits it when fn succeeds.
func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := newMemTx(s.state)
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// GetPool returns a committed pool.
func (s *MemoryStore) GetPool(ctx context.Context, poolID int64) (Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetPool(ctx, poolID)
}

// GetApplication returns a committed application.
func (s *MemoryStore) GetApplication(ctx context.Context, poolID int64, candidate string) (Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetApplication(ctx, poolID, candidate)
}

// ListApplications returns a pool's applications in submission order.
func (s *MemoryStore) ListApplications(ctx context.Context, poolID int64) ([]Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ListApplications(ctx, poolID)
}

// ListPoolsByCompany returns pool ids created by company.
func (s *MemoryStore) ListPoolsByCompany(ctx context.Context, company string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ListPoolsByCompany(ctx, company)
}

// ListApplicationsByCandidate returns ids of pools the candidate applied to.
func (s *MemoryStore) ListApplicationsByCandidate(ctx context.Context, candidate string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ListApplicationsByCandidate(ctx, candidate)
}

// ListActivePoolsDue returns active pools whose deadline is not after now.
func (s *MemoryStore) ListActivePoolsDue(ctx context.Context, now time.Time) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ListActivePoolsDue(ctx, now)
}

// GetMetrics returns a pool's metrics.
func (s *MemoryStore) GetMetrics(ctx context.Context, poolID int64) (PoolMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetMetrics(ctx, poolID)
}

// GetStats returns the global counters.
func (s *MemoryStore) GetStats(ctx context.Context) (GlobalStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetStats(ctx)
}

// GetSettings returns the engine settings.
func (s *MemoryStore) GetSettings(ctx context.Context) (Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetSettings(ctx)
}

// CountActivePools counts pools in the active state.
func (s *MemoryStore) CountActivePools(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().CountActivePools(ctx)
}

// ListRoles returns the roles granted to account at runtime.
func (s *MemoryStore) ListRoles(ctx context.Context, account string) ([]access.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ListRoles(ctx, account)
}

// PendingEffects returns undispatched events and payouts, oldest first.
func (s *MemoryStore) PendingEffects(ctx context.Context, limit int) (Effects, error) {
	if err := ctx.Err(); err != nil {
		return Effects{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	events, payouts := s.state.events, s.state.payouts
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	if limit > 0 && len(payouts) > limit {
		payouts = payouts[:limit]
	}
	return Effects{
		Events:  append([]Event(nil), events...),
		Payouts: append([]PayoutIntent(nil), payouts...),
	}, nil
}

// MarkDispatched drops the given effects from the outbox.
func (s *MemoryStore) MarkDispatched(ctx context.Context, eventIDs, payoutIDs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	events := toSet(eventIDs)
	keptEvents := s.state.events[:0]
	for _, ev := range s.state.events {
		if _, ok := events[ev.ID]; !ok {
			keptEvents = append(keptEvents, ev)
		}
	}
	clear(s.state.events[len(keptEvents):])
	s.state.events = keptEvents

	payouts := toSet(payoutIDs)
	keptPayouts := s.state.payouts[:0]
	for _, p := range s.state.payouts {
		if _, ok := payouts[p.ID]; !ok {
			keptPayouts = append(keptPayouts, p)
		}
	}
	clear(s.state.payouts[len(keptPayouts):])
	s.state.payouts = keptPayouts
	return nil
}

func toSet(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

// memTx overlays staged writes on top of committed state.
type memTx struct {
	base         *memState
	lastPoolID   int64
	pools        map[int64]Pool
	apps         map[appKey]Application
	addApplicant map[int64][]string
	addCompany   map[string][]int64
	addCandidate map[string][]int64
	metrics      map[int64]PoolMetrics
	stats        *GlobalStats
	settings     *Settings
	roles        map[roleKey]*RoleGrant
	effects      Effects
}

func newMemTx(base *memState) *memTx {
	return &memTx{
		base:         base,
		lastPoolID:   base.lastPoolID,
		pools:        make(map[int64]Pool),
		apps:         make(map[appKey]Application),
		addApplicant: make(map[int64][]string),
		addCompany:   make(map[string][]int64),
		addCandidate: make(map[string][]int64),
		metrics:      make(map[int64]PoolMetrics),
		roles:        make(map[roleKey]*RoleGrant),
	}
}

func (t *memTx) pool(poolID int64) (Pool, bool) {
	if p, ok := t.pools[poolID]; ok {
		return p, true
	}
	p, ok := t.base.pools[poolID]
	return p, ok
}

func (t *memTx) app(key appKey) (Application, bool) {
	if a, ok := t.apps[key]; ok {
		return a, true
	}
	a, ok := t.base.apps[key]
	return a, ok
}

func (t *memTx) GetPool(ctx context.Context, poolID int64) (Pool, error) {
	if err := ctx.Err(); err != nil {
		return Pool{}, err
	}
	p, ok := t.pool(poolID)
	if !ok {
		return Pool{}, ErrPoolNotFound
	}
	return p.clone(), nil
}

func (t *memTx) GetApplication(ctx context.Context, poolID int64, candidate string) (Application, error) {
	if err := ctx.Err(); err != nil {
		return Application{}, err
	}
	a, ok := t.app(appKey{poolID: poolID, candidate: candidate})
	if !ok {
		return Application{}, ErrApplicationNotFound
	}
	return a.clone(), nil
}

func (t *memTx) ListApplications(ctx context.Context, poolID int64) ([]Application, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := t.pool(poolID); !ok {
		return nil, ErrPoolNotFound
	}
	candidates := append(append([]string(nil), t.base.applicants[poolID]...), t.addApplicant[poolID]...)
	out := make([]Application, 0, len(candidates))
	for _, c := range candidates {
		if a, ok := t.app(appKey{poolID: poolID, candidate: c}); ok {
			out = append(out, a.clone())
		}
	}
	return out, nil
}

func (t *memTx) ListPoolsByCompany(ctx context.Context, company string) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := append([]int64{}, t.base.byCompany[company]...)
	return append(out, t.addCompany[company]...), nil
}

func (t *memTx) ListApplicationsByCandidate(ctx context.Context, candidate string) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := append([]int64{}, t.base.byCandidate[candidate]...)
	return append(out, t.addCandidate[candidate]...), nil
}

func (t *memTx) poolIDs() []int64 {
	seen := make(map[int64]struct{}, len(t.base.pools)+len(t.pools))
	ids := make([]int64, 0, len(t.base.pools)+len(t.pools))
	for id := range t.base.pools {
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for id := range t.pools {
		if _, ok := seen[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (t *memTx) ListActivePoolsDue(ctx context.Context, now time.Time) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []int64
	for _, id := range t.poolIDs() {
		p, _ := t.pool(id)
		if p.Status == PoolActive && !now.Before(p.Deadline) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (t *memTx) GetMetrics(ctx context.Context, poolID int64) (PoolMetrics, error) {
	if err := ctx.Err(); err != nil {
		return PoolMetrics{}, err
	}
	if m, ok := t.metrics[poolID]; ok {
		return m, nil
	}
	m, ok := t.base.metrics[poolID]
	if !ok {
		return PoolMetrics{}, ErrPoolNotFound
	}
	return m, nil
}

func (t *memTx) GetStats(ctx context.Context) (GlobalStats, error) {
	if err := ctx.Err(); err != nil {
		return GlobalStats{}, err
	}
	if t.stats != nil {
		return *t.stats, nil
	}
	return t.base.stats, nil
}

func (t *memTx) GetSettings(ctx context.Context) (Settings, error) {
	if err := ctx.Err(); err != nil {
		return Settings{}, err
	}
	if t.settings != nil {
		return *t.settings, nil
	}
	return t.base.settings, nil
}

func (t *memTx) CountActivePools(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range t.poolIDs() {
		if p, _ := t.pool(id); p.Status == PoolActive {
			n++
		}
	}
	return n, nil
}

func (t *memTx) ListRoles(ctx context.Context, account string) ([]access.Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	held := make(map[access.Role]struct{})
	for k := range t.base.roles {
		if k.account == account {
			held[k.role] = struct{}{}
		}
	}
	for k, g := range t.roles {
		if k.account != account {
			continue
		}
		if g == nil {
			delete(held, k.role)
		} else {
			held[k.role] = struct{}{}
		}
	}
	out := make([]access.Role, 0, len(held))
	for r := range held {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (t *memTx) NextPoolID(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	t.lastPoolID++
	return t.lastPoolID, nil
}

func (t *memTx) PutPool(ctx context.Context, pool Pool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, exists := t.pool(pool.ID); !exists {
		t.addCompany[pool.Company] = append(t.addCompany[pool.Company], pool.ID)
	}
	t.pools[pool.ID] = pool.clone()
	return nil
}

func (t *memTx) PutApplication(ctx context.Context, app Application) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := appKey{poolID: app.PoolID, candidate: app.Candidate}
	if _, exists := t.app(key); !exists {
		t.addApplicant[app.PoolID] = append(t.addApplicant[app.PoolID], app.Candidate)
		t.addCandidate[app.Candidate] = append(t.addCandidate[app.Candidate], app.PoolID)
	}
	t.apps[key] = app.clone()
	return nil
}

func (t *memTx) PutMetrics(ctx context.Context, m PoolMetrics) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.metrics[m.PoolID] = m
	return nil
}

func (t *memTx) PutStats(ctx context.Context, s GlobalStats) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.stats = &s
	return nil
}

func (t *memTx) PutSettings(ctx context.Context, s Settings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.settings = &s
	return nil
}

func (t *memTx) PutRole(ctx context.Context, grant RoleGrant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.roles[roleKey{account: grant.Account, role: grant.Role}] = &grant
	return nil
}

// DeleteRole stages a revocation as a nil entry.
func (t *memTx) DeleteRole(ctx context.Context, account string, role access.Role) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.roles[roleKey{account: account, role: role}] = nil
	return nil
}

func (t *memTx) AppendEffects(ctx context.Context, effects Effects) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.effects.Events = append(t.effects.Events, effects.Events...)
	t.effects.Payouts = append(t.effects.Payouts, effects.Payouts...)
	return nil
}

func (t *memTx) commit() {
	b := t.base
	b.lastPoolID = t.lastPoolID
	for id, p := range t.pools {
		b.pools[id] = p
	}
	for k, a := range t.apps {
		b.apps[k] = a
	}
	for id, cs := range t.addApplicant {
		b.applicants[id] = append(b.applicants[id], cs...)
	}
	for c, ids := range t.addCompany {
		b.byCompany[c] = append(b.byCompany[c], ids...)
	}
	for c, ids := range t.addCandidate {
		b.byCandidate[c] = append(b.byCandidate[c], ids...)
	}
	for id, m := range t.metrics {
		b.metrics[id] = m
	}
	if t.stats != nil {
		b.stats = *t.stats
	}
	if t.settings != nil {
		b.settings = *t.settings
	}
	for k, g := range t.roles {
		if g == nil {
			delete(b.roles, k)
		} else {
			b.roles[k] = *g
		}
	}
	b.events = append(b.events, t.effects.Events...)
	b.payouts = append(b.payouts, t.effects.Payouts...)
}

var _ Store = (*MemoryStore)(nil)
