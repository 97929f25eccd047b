package pools

import (
	"context"
	"errors"
	"testing"
	"time"

	"talentpool-backend/internal/access"
)

func TestMemoryStoreDiscardsFailedUpdate(t *testing.T) {
	store := NewMemoryStore(Settings{PlatformFeeBps: 250})
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.Update(ctx, func(tx Tx) error {
		id, _ := tx.NextPoolID(ctx)
		if err := tx.PutPool(ctx, Pool{ID: id, Company: "acme", Status: PoolActive}); err != nil {
			return err
		}
		if _, err := tx.GetPool(ctx, id); err != nil {
			t.Fatalf("staged pool must be visible inside the transaction: %v", err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := store.GetPool(ctx, 1); !errors.Is(err, ErrPoolNotFound) {
		t.Fatalf("expected pool discarded, got %v", err)
	}
	ids, _ := store.ListPoolsByCompany(ctx, "acme")
	if len(ids) != 0 {
		t.Fatalf("expected company index untouched, got %v", ids)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore(Settings{})
	ctx := context.Background()
	if err := store.Update(ctx, func(tx Tx) error {
		return tx.PutPool(ctx, Pool{ID: 1, Company: "acme", RequiredSkills: []string{"Go"}, MinimumLevels: []int{2}})
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	p, _ := store.GetPool(ctx, 1)
	p.RequiredSkills[0] = "mutated"
	again, _ := store.GetPool(ctx, 1)
	if again.RequiredSkills[0] != "Go" {
		t.Fatalf("caller mutation leaked into store")
	}
}

func TestMemoryStoreIndexesAndOutbox(t *testing.T) {
	store := NewMemoryStore(Settings{})
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := store.Update(ctx, func(tx Tx) error {
		for i := int64(1); i <= 2; i++ {
			if err := tx.PutPool(ctx, Pool{ID: i, Company: "acme", Status: PoolActive, Deadline: now.Add(time.Duration(i) * time.Hour)}); err != nil {
				return err
			}
			if err := tx.PutApplication(ctx, Application{PoolID: i, Candidate: "alice", Status: ApplicationPending}); err != nil {
				return err
			}
		}
		return tx.AppendEffects(ctx, Effects{
			Events:  []Event{{ID: "e1"}, {ID: "e2"}},
			Payouts: []PayoutIntent{{ID: "p1", Amount: 5}},
		})
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	pools, _ := store.ListApplicationsByCandidate(ctx, "alice")
	if len(pools) != 2 || pools[0] != 1 || pools[1] != 2 {
		t.Fatalf("unexpected candidate index: %v", pools)
	}
	due, _ := store.ListActivePoolsDue(ctx, now.Add(90*time.Minute))
	if len(due) != 1 || due[0] != 1 {
		t.Fatalf("unexpected due pools: %v", due)
	}

	pending, _ := store.PendingEffects(ctx, 1)
	if len(pending.Events) != 1 || pending.Events[0].ID != "e1" {
		t.Fatalf("expected limit to apply, got %+v", pending.Events)
	}
	if err := store.MarkDispatched(ctx, []string{"e1"}, []string{"p1"}); err != nil {
		t.Fatalf("MarkDispatched: %v", err)
	}
	pending, _ = store.PendingEffects(ctx, 0)
	if len(pending.Events) != 1 || pending.Events[0].ID != "e2" || len(pending.Payouts) != 0 {
		t.Fatalf("unexpected pending after dispatch: %+v", pending)
	}
}

func TestMemoryStoreCompactsDispatchedOutbox(t *testing.T) {
	store := NewMemoryStore(Settings{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := store.Update(ctx, func(tx Tx) error {
			return tx.AppendEffects(ctx, Effects{
				Events:  []Event{{ID: "e" + string(rune('a'+i))}},
				Payouts: []PayoutIntent{{ID: "p" + string(rune('a'+i)), Amount: 1}},
			})
		}); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
	if err := store.MarkDispatched(ctx, []string{"ea", "ec"}, []string{"pa", "pb", "pc"}); err != nil {
		t.Fatalf("MarkDispatched: %v", err)
	}

	store.mu.RLock()
	events, payouts := len(store.state.events), len(store.state.payouts)
	store.mu.RUnlock()
	if events != 1 || payouts != 0 {
		t.Fatalf("expected dispatched effects dropped, got %d events %d payouts", events, payouts)
	}
	pending, _ := store.PendingEffects(ctx, 0)
	if len(pending.Events) != 1 || pending.Events[0].ID != "eb" {
		t.Fatalf("unexpected pending events: %+v", pending.Events)
	}
}

func TestMemoryStoreStagesRoleChanges(t *testing.T) {
	store := NewMemoryStore(Settings{})
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := store.Update(ctx, func(tx Tx) error {
		if err := tx.PutRole(ctx, RoleGrant{Account: "acme", Role: access.RoleCompany, GrantedBy: "root", GrantedAt: now}); err != nil {
			return err
		}
		return tx.PutRole(ctx, RoleGrant{Account: "acme", Role: access.RoleCandidate, GrantedBy: "root", GrantedAt: now})
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	boom := errors.New("boom")
	err := store.Update(ctx, func(tx Tx) error {
		if err := tx.DeleteRole(ctx, "acme", access.RoleCompany); err != nil {
			return err
		}
		roles, _ := tx.ListRoles(ctx, "acme")
		if len(roles) != 1 || roles[0] != access.RoleCandidate {
			t.Fatalf("staged revoke must be visible inside the transaction: %v", roles)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	roles, _ := store.ListRoles(ctx, "acme")
	if len(roles) != 2 || roles[0] != access.RoleCandidate || roles[1] != access.RoleCompany {
		t.Fatalf("expected failed revoke discarded, got %v", roles)
	}
	if roles, _ := store.ListRoles(ctx, "nobody"); len(roles) != 0 {
		t.Fatalf("expected no roles, got %v", roles)
	}
}

func TestMemoryStoreHonoursCancelledContext(t *testing.T) {
	store := NewMemoryStore(Settings{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := store.Update(ctx, func(tx Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected cancelled update to be skipped, got %v (called=%v)", err, called)
	}
}
