package pools

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"talentpool-backend/internal/access"
)

const (
	testCompany   = "acme"
	testAdmin     = "admin-1"
	testOperator  = "ops-1"
	testCollector = "treasury"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeSkills struct {
	tokens map[int64]Skill
	owners map[int64]string
	// onResolve runs inside ResolveSkills with the caller's context.
	onResolve func(ctx context.Context)
}

func newFakeSkills() *fakeSkills {
	return &fakeSkills{tokens: map[int64]Skill{}, owners: map[int64]string{}}
}

func (f *fakeSkills) add(id int64, owner, category string, level int) {
	f.tokens[id] = Skill{Category: category, Level: level}
	f.owners[id] = owner
}

func (f *fakeSkills) ResolveSkills(ctx context.Context, candidate string, tokenIDs []int64) ([]Skill, error) {
	if f.onResolve != nil {
		f.onResolve(ctx)
	}
	out := make([]Skill, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		s, ok := f.tokens[id]
		if !ok || f.owners[id] != candidate {
			return nil, ErrSkillRejected
		}
		out = append(out, s)
	}
	return out, nil
}

type testEnv struct {
	engine *Engine
	store  *MemoryStore
	clock  *fakeClock
	skills *fakeSkills
	policy *access.Policy
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(Settings{
		PlatformFeeBps: DefaultPlatformFeeBps,
		FeeCollector:   testCollector,
		MinimumStake:   100,
	})
	skills := newFakeSkills()
	policy := access.NewPolicy([]string{testAdmin}, []string{testOperator}, true).WithGrantSource(store)
	engine := NewEngine(store, skills, policy, Options{
		Bounds: DefaultBounds(),
		Now:    clock.Now,
	})
	return &testEnv{engine: engine, store: store, clock: clock, skills: skills, policy: policy}
}

func (env *testEnv) rustPool(t *testing.T, stake int64) Pool {
	t.Helper()
	pool, _, err := env.engine.CreatePool(context.Background(), testCompany, PoolParams{
		Title:          "Rust engineer",
		JobType:        JobFullTime,
		RequiredSkills: []string{"Rust"},
		MinimumLevels:  []int{5},
		SalaryMin:      50000,
		SalaryMax:      80000,
		StakeAmount:    stake,
		Deadline:       env.clock.Now().Add(7 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreatePool: %v", err)
	}
	return pool
}

// apply mints a Rust token for candidate and submits an application with it.
func (env *testEnv) apply(t *testing.T, poolID int64, candidate string, tokenID int64, level int, stake int64) Application {
	t.Helper()
	env.skills.add(tokenID, candidate, "Rust", level)
	app, _, err := env.engine.SubmitApplication(context.Background(), candidate, poolID, ApplicationParams{
		SkillTokenIDs: []int64{tokenID},
		StakeAmount:   stake,
	})
	if err != nil {
		t.Fatalf("SubmitApplication(%s): %v", candidate, err)
	}
	return app
}

func requireKind(t *testing.T, err error, want error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v, got nil", want)
	}
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func payoutsTo(effects Effects, recipient string) int64 {
	var total int64
	for _, p := range effects.Payouts {
		if p.Recipient == recipient {
			total += p.Amount
		}
	}
	return total
}

func countEvents(effects Effects, typ EventType) int {
	n := 0
	for _, ev := range effects.Events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

type snapshot struct {
	pools   map[int64]Pool
	apps    map[int64][]Application
	metrics map[int64]PoolMetrics
	stats   GlobalStats
	setting Settings
	pending Effects
}

func takeSnapshot(t *testing.T, s Store, poolIDs ...int64) snapshot {
	t.Helper()
	ctx := context.Background()
	snap := snapshot{
		pools:   map[int64]Pool{},
		apps:    map[int64][]Application{},
		metrics: map[int64]PoolMetrics{},
	}
	for _, id := range poolIDs {
		p, err := s.GetPool(ctx, id)
		if err != nil {
			t.Fatalf("GetPool: %v", err)
		}
		snap.pools[id] = p
		apps, err := s.ListApplications(ctx, id)
		if err != nil {
			t.Fatalf("ListApplications: %v", err)
		}
		snap.apps[id] = apps
		m, err := s.GetMetrics(ctx, id)
		if err != nil {
			t.Fatalf("GetMetrics: %v", err)
		}
		snap.metrics[id] = m
	}
	var err error
	if snap.stats, err = s.GetStats(ctx); err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if snap.setting, err = s.GetSettings(ctx); err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if snap.pending, err = s.PendingEffects(ctx, 0); err != nil {
		t.Fatalf("PendingEffects: %v", err)
	}
	return snap
}
