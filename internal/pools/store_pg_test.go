package pools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"talentpool-backend/internal/access"
)

func newMockStore(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPGStore(db), mock
}

func TestPGStoreUpdateLocksSettingsAndCommits(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM engine_settings WHERE id = 1 FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec("UPDATE engine_settings").
		WithArgs(int64(300), "vault", int64(10), false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO pool_events").
		WithArgs("ev-1", "PlatformFeeUpdated", int64(0), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Update(context.Background(), func(tx Tx) error {
		if err := tx.PutSettings(context.Background(), Settings{PlatformFeeBps: 300, FeeCollector: "vault", MinimumStake: 10}); err != nil {
			return err
		}
		return tx.AppendEffects(context.Background(), Effects{Events: []Event{{ID: "ev-1", Type: EventPlatformFeeUpdated}}})
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreUpdateRollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM engine_settings").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectRollback()

	err := store.Update(context.Background(), func(tx Tx) error {
		return ErrPoolNotActive
	})
	if !errors.Is(err, ErrPoolNotActive) {
		t.Fatalf("expected ErrPoolNotActive, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreGetPoolScansRow(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "company", "title", "description", "job_type", "required_skills", "minimum_levels",
		"salary_min", "salary_max", "stake_amount", "deadline", "created_at", "remote", "location", "status",
		"selected_candidate", "total_applications", "escrow_balance", "closed_at",
	}).AddRow(
		int64(7), "acme", "Rust engineer", "", "contract", []byte(`["Rust","Go"]`), []byte(`[5,3]`),
		int64(10), int64(20), int64(1000), created.Add(time.Hour), created, true, "Remote", "active",
		"", int64(2), int64(1400), nil,
	)
	mock.ExpectQuery("SELECT .+ FROM pools WHERE id = \\$1").WithArgs(int64(7)).WillReturnRows(rows)

	pool, err := store.GetPool(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetPool: %v", err)
	}
	if pool.JobType != JobContract || pool.Status != PoolActive {
		t.Fatalf("unexpected enums: %+v", pool)
	}
	if len(pool.RequiredSkills) != 2 || pool.MinimumLevels[1] != 3 {
		t.Fatalf("unexpected skills: %v %v", pool.RequiredSkills, pool.MinimumLevels)
	}
	if pool.ClosedAt != nil || pool.EscrowBalance != 1400 {
		t.Fatalf("unexpected pool: %+v", pool)
	}

	mock.ExpectQuery("SELECT .+ FROM pools WHERE id = \\$1").WithArgs(int64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	if _, err := store.GetPool(context.Background(), 8); !errors.Is(err, ErrPoolNotFound) {
		t.Fatalf("expected ErrPoolNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreListActivePoolsDueUsesDeadlineFilter(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT id FROM pools WHERE status = \\$1 AND deadline <= \\$2 ORDER BY id").
		WithArgs("active", now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)).AddRow(int64(5)))

	ids, err := store.ListActivePoolsDue(context.Background(), now)
	if err != nil {
		t.Fatalf("ListActivePoolsDue: %v", err)
	}
	if len(ids) != 2 || ids[0] != 3 || ids[1] != 5 {
		t.Fatalf("unexpected ids: %v", ids)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreMarkDispatched(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE pool_events SET dispatched_at = \\$1 WHERE id IN \\(\\$2,\\$3\\)").
		WithArgs(sqlmock.AnyArg(), "e1", "e2").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("UPDATE payout_intents SET dispatched_at = \\$1 WHERE id IN \\(\\$2\\)").
		WithArgs(sqlmock.AnyArg(), "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.MarkDispatched(context.Background(), []string{"e1", "e2"}, []string{"p1"}); err != nil {
		t.Fatalf("MarkDispatched: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStorePendingEffectsDecodesOutbox(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT payload FROM pool_events").WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).
			AddRow([]byte(`{"id":"e1","type":"MatchMade","poolId":4,"candidate":"alice","occurredAt":"2025-02-01T00:00:00Z"}`)))
	mock.ExpectQuery("SELECT id, pool_id, recipient, amount, kind, memo, created_at FROM payout_intents").WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "pool_id", "recipient", "amount", "kind", "memo", "created_at"}).
			AddRow("p1", int64(4), "alice", int64(200), "refund", "withdrawal refund", at))

	effects, err := store.PendingEffects(context.Background(), 50)
	if err != nil {
		t.Fatalf("PendingEffects: %v", err)
	}
	if len(effects.Events) != 1 || effects.Events[0].Type != EventMatchMade || effects.Events[0].PoolID != 4 {
		t.Fatalf("unexpected events: %+v", effects.Events)
	}
	if len(effects.Payouts) != 1 || effects.Payouts[0].Kind != PayoutRefund || effects.Payouts[0].Amount != 200 {
		t.Fatalf("unexpected payouts: %+v", effects.Payouts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreRoleGrantsRoundTrip(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM engine_settings WHERE id = 1 FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec("INSERT INTO role_grants \\(account, role, granted_by, granted_at\\)").
		WithArgs("acme", "company", "root", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM role_grants WHERE account = \\$1 AND role = \\$2").
		WithArgs("bob", "operator").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT role FROM role_grants WHERE account = \\$1 ORDER BY role").
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("candidate").AddRow("company"))

	err := store.Update(ctx, func(tx Tx) error {
		if err := tx.PutRole(ctx, RoleGrant{Account: "acme", Role: access.RoleCompany, GrantedBy: "root", GrantedAt: at}); err != nil {
			return err
		}
		return tx.DeleteRole(ctx, "bob", access.RoleOperator)
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	roles, err := store.ListRoles(ctx, "acme")
	if err != nil {
		t.Fatalf("ListRoles: %v", err)
	}
	if len(roles) != 2 || roles[0] != access.RoleCandidate || roles[1] != access.RoleCompany {
		t.Fatalf("unexpected roles: %v", roles)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
