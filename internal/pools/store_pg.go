package pools

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"talentpool-backend/internal/access"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const poolColumns = `id, company, title, description, job_type, required_skills, minimum_levels,
    salary_min, salary_max, stake_amount, deadline, created_at, remote, location, status,
    selected_candidate, total_applications, escrow_balance, closed_at`

const applicationColumns = `pool_id, candidate, skill_token_ids, stake_amount, applied_at, cover_letter,
    portfolio, match_score, status, decided_at, refund, penalty`

// PGStore implements Store using Postgres. Each Update runs in one
// transaction that first locks the settings row, so writers from every
// process are serialized.
type PGStore struct {
	pgReader
	DB *sql.DB
}

// NewPGStore constructs a Postgres-backed store.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{pgReader: pgReader{q: db}, DB: db}
}

// Seed inserts the settings and stats rows if they do not exist yet.
func (s *PGStore) Seed(ctx context.Context, settings Settings) error {
	if _, err := s.DB.ExecContext(ctx, `
INSERT INTO engine_settings (id, platform_fee_bps, fee_collector, minimum_stake, paused)
VALUES (1, $1, $2, $3, $4)
ON CONFLICT (id) DO NOTHING`,
		settings.PlatformFeeBps,
		settings.FeeCollector,
		settings.MinimumStake,
		settings.Paused,
	); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	if _, err := s.DB.ExecContext(ctx, `
INSERT INTO global_stats (id, total_pools, total_applications, total_matches, total_value_staked)
VALUES (1, 0, 0, 0, 0)
ON CONFLICT (id) DO NOTHING`); err != nil {
		return fmt.Errorf("seed stats: %w", err)
	}
	return nil
}

// Update runs fn inside a serializable unit guarded by the settings row lock.
func (s *PGStore) Update(ctx context.Context, fn func(tx Tx) error) (err error) {
	sqlTx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			sqlTx.Rollback()
		}
	}()

	var locked int
	if err = sqlTx.QueryRowContext(ctx, `SELECT id FROM engine_settings WHERE id = 1 FOR UPDATE`).Scan(&locked); err != nil {
		return fmt.Errorf("lock settings: %w", err)
	}
	if err = fn(&pgTx{pgReader: pgReader{q: sqlTx}, tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// PendingEffects returns undispatched events and payouts, oldest first.
func (s *PGStore) PendingEffects(ctx context.Context, limit int) (Effects, error) {
	if limit <= 0 {
		limit = 100
	}
	var out Effects

	rows, err := s.DB.QueryContext(ctx, `
SELECT payload FROM pool_events
WHERE dispatched_at IS NULL
ORDER BY seq
LIMIT $1`, limit)
	if err != nil {
		return Effects{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return Effects{}, err
		}
		var ev Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			return Effects{}, fmt.Errorf("decode event: %w", err)
		}
		out.Events = append(out.Events, ev)
	}
	if err := rows.Err(); err != nil {
		return Effects{}, err
	}

	payoutRows, err := s.DB.QueryContext(ctx, `
SELECT id, pool_id, recipient, amount, kind, memo, created_at FROM payout_intents
WHERE dispatched_at IS NULL
ORDER BY seq
LIMIT $1`, limit)
	if err != nil {
		return Effects{}, err
	}
	defer payoutRows.Close()
	for payoutRows.Next() {
		var p PayoutIntent
		if err := payoutRows.Scan(&p.ID, &p.PoolID, &p.Recipient, &p.Amount, &p.Kind, &p.Memo, &p.CreatedAt); err != nil {
			return Effects{}, err
		}
		out.Payouts = append(out.Payouts, p)
	}
	return out, payoutRows.Err()
}

// MarkDispatched stamps the given effects as delivered.
func (s *PGStore) MarkDispatched(ctx context.Context, eventIDs, payoutIDs []string) error {
	now := time.Now().UTC()
	if len(eventIDs) > 0 {
		query, args, err := psql.Update("pool_events").
			Set("dispatched_at", now).
			Where(sq.Eq{"id": eventIDs}).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := s.DB.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("mark events dispatched: %w", err)
		}
	}
	if len(payoutIDs) > 0 {
		query, args, err := psql.Update("payout_intents").
			Set("dispatched_at", now).
			Where(sq.Eq{"id": payoutIDs}).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := s.DB.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("mark payouts dispatched: %w", err)
		}
	}
	return nil
}

type pgReader struct {
	q querier
}

func (r pgReader) GetPool(ctx context.Context, poolID int64) (Pool, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+poolColumns+` FROM pools WHERE id = $1`, poolID)
	pool, err := scanPool(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Pool{}, ErrPoolNotFound
		}
		return Pool{}, err
	}
	return pool, nil
}

func (r pgReader) GetApplication(ctx context.Context, poolID int64, candidate string) (Application, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE pool_id = $1 AND candidate = $2`, poolID, candidate)
	app, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Application{}, ErrApplicationNotFound
		}
		return Application{}, err
	}
	return app, nil
}

func (r pgReader) ListApplications(ctx context.Context, poolID int64) ([]Application, error) {
	if _, err := r.GetPool(ctx, poolID); err != nil {
		return nil, err
	}
	rows, err := r.q.QueryContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE pool_id = $1 ORDER BY seq`, poolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Application{}
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, app)
	}
	return out, rows.Err()
}

func (r pgReader) ListPoolsByCompany(ctx context.Context, company string) ([]int64, error) {
	return r.ids(ctx, psql.Select("id").From("pools").Where(sq.Eq{"company": company}).OrderBy("id"))
}

func (r pgReader) ListApplicationsByCandidate(ctx context.Context, candidate string) ([]int64, error) {
	return r.ids(ctx, psql.Select("pool_id").From("applications").Where(sq.Eq{"candidate": candidate}).OrderBy("seq"))
}

func (r pgReader) ListActivePoolsDue(ctx context.Context, now time.Time) ([]int64, error) {
	return r.ids(ctx, psql.Select("id").From("pools").
		Where(sq.Eq{"status": string(PoolActive)}).
		Where(sq.LtOrEq{"deadline": now}).
		OrderBy("id"))
}

func (r pgReader) ids(ctx context.Context, b sq.SelectBuilder) ([]int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r pgReader) GetMetrics(ctx context.Context, poolID int64) (PoolMetrics, error) {
	var (
		m      PoolMetrics
		fillMs int64
	)
	err := r.q.QueryRowContext(ctx, `
SELECT pool_id, total_staked, average_match_score, match_score_sum, application_count, completion_rate, average_time_to_fill_ms
FROM pool_metrics WHERE pool_id = $1`, poolID).Scan(
		&m.PoolID,
		&m.TotalStaked,
		&m.AverageMatchScore,
		&m.MatchScoreSum,
		&m.ApplicationCount,
		&m.CompletionRate,
		&fillMs,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PoolMetrics{}, ErrPoolNotFound
		}
		return PoolMetrics{}, err
	}
	m.AverageTimeToFill = time.Duration(fillMs) * time.Millisecond
	return m, nil
}

func (r pgReader) GetStats(ctx context.Context) (GlobalStats, error) {
	var s GlobalStats
	err := r.q.QueryRowContext(ctx, `
SELECT total_pools, total_applications, total_matches, total_value_staked
FROM global_stats WHERE id = 1`).Scan(&s.TotalPools, &s.TotalApplications, &s.TotalMatches, &s.TotalValueStaked)
	if errors.Is(err, sql.ErrNoRows) {
		return GlobalStats{}, nil
	}
	return s, err
}

func (r pgReader) GetSettings(ctx context.Context) (Settings, error) {
	var s Settings
	err := r.q.QueryRowContext(ctx, `
SELECT platform_fee_bps, fee_collector, minimum_stake, paused
FROM engine_settings WHERE id = 1`).Scan(&s.PlatformFeeBps, &s.FeeCollector, &s.MinimumStake, &s.Paused)
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return s, nil
}

func (r pgReader) CountActivePools(ctx context.Context) (int64, error) {
	var n int64
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM pools WHERE status = $1`, string(PoolActive)).Scan(&n)
	return n, err
}

func (r pgReader) ListRoles(ctx context.Context, account string) ([]access.Role, error) {
	query, args, err := psql.Select("role").From("role_grants").
		Where(sq.Eq{"account": account}).
		OrderBy("role").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	out := []access.Role{}
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		out = append(out, access.Role(role))
	}
	return out, rows.Err()
}

type pgTx struct {
	pgReader
	tx *sql.Tx
}

func (t *pgTx) NextPoolID(ctx context.Context) (int64, error) {
	var id int64
	if err := t.tx.QueryRowContext(ctx, `SELECT nextval('pools_id_seq')`).Scan(&id); err != nil {
		return 0, fmt.Errorf("next pool id: %w", err)
	}
	return id, nil
}

func (t *pgTx) PutPool(ctx context.Context, p Pool) error {
	skills, err := json.Marshal(p.RequiredSkills)
	if err != nil {
		return err
	}
	levels, err := json.Marshal(p.MinimumLevels)
	if err != nil {
		return err
	}
	const query = `
INSERT INTO pools (` + poolColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
ON CONFLICT (id) DO UPDATE SET
    status = EXCLUDED.status,
    selected_candidate = EXCLUDED.selected_candidate,
    total_applications = EXCLUDED.total_applications,
    escrow_balance = EXCLUDED.escrow_balance,
    closed_at = EXCLUDED.closed_at`
	_, err = t.tx.ExecContext(ctx, query,
		p.ID,
		p.Company,
		p.Title,
		p.Description,
		string(p.JobType),
		skills,
		levels,
		p.SalaryMin,
		p.SalaryMax,
		p.StakeAmount,
		p.Deadline,
		p.CreatedAt,
		p.Remote,
		p.Location,
		string(p.Status),
		p.SelectedCandidate,
		p.TotalApplications,
		p.EscrowBalance,
		nullTime(p.ClosedAt),
	)
	return err
}

func (t *pgTx) PutApplication(ctx context.Context, a Application) error {
	tokens, err := json.Marshal(a.SkillTokenIDs)
	if err != nil {
		return err
	}
	const query = `
INSERT INTO applications (` + applicationColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (pool_id, candidate) DO UPDATE SET
    status = EXCLUDED.status,
    decided_at = EXCLUDED.decided_at,
    refund = EXCLUDED.refund,
    penalty = EXCLUDED.penalty`
	_, err = t.tx.ExecContext(ctx, query,
		a.PoolID,
		a.Candidate,
		tokens,
		a.StakeAmount,
		a.AppliedAt,
		a.CoverLetter,
		a.Portfolio,
		a.MatchScore,
		string(a.Status),
		nullTime(a.DecidedAt),
		a.Refund,
		a.Penalty,
	)
	return err
}

func (t *pgTx) PutMetrics(ctx context.Context, m PoolMetrics) error {
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO pool_metrics (pool_id, total_staked, average_match_score, match_score_sum, application_count, completion_rate, average_time_to_fill_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (pool_id) DO UPDATE SET
    total_staked = EXCLUDED.total_staked,
    average_match_score = EXCLUDED.average_match_score,
    match_score_sum = EXCLUDED.match_score_sum,
    application_count = EXCLUDED.application_count,
    completion_rate = EXCLUDED.completion_rate,
    average_time_to_fill_ms = EXCLUDED.average_time_to_fill_ms`,
		m.PoolID,
		m.TotalStaked,
		m.AverageMatchScore,
		m.MatchScoreSum,
		m.ApplicationCount,
		m.CompletionRate,
		m.AverageTimeToFill.Milliseconds(),
	)
	return err
}

func (t *pgTx) PutStats(ctx context.Context, s GlobalStats) error {
	_, err := t.tx.ExecContext(ctx, `
UPDATE global_stats
SET total_pools = $1, total_applications = $2, total_matches = $3, total_value_staked = $4
WHERE id = 1`, s.TotalPools, s.TotalApplications, s.TotalMatches, s.TotalValueStaked)
	return err
}

func (t *pgTx) PutSettings(ctx context.Context, s Settings) error {
	_, err := t.tx.ExecContext(ctx, `
UPDATE engine_settings
SET platform_fee_bps = $1, fee_collector = $2, minimum_stake = $3, paused = $4
WHERE id = 1`, s.PlatformFeeBps, s.FeeCollector, s.MinimumStake, s.Paused)
	return err
}

func (t *pgTx) PutRole(ctx context.Context, g RoleGrant) error {
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO role_grants (account, role, granted_by, granted_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (account, role) DO NOTHING`, g.Account, string(g.Role), g.GrantedBy, g.GrantedAt)
	if err != nil {
		return fmt.Errorf("grant role: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteRole(ctx context.Context, account string, role access.Role) error {
	query, args, err := psql.Delete("role_grants").
		Where(sq.Eq{"account": account, "role": string(role)}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}
	return nil
}

func (t *pgTx) AppendEffects(ctx context.Context, effects Effects) error {
	for _, ev := range effects.Events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := t.tx.ExecContext(ctx, `
INSERT INTO pool_events (id, type, pool_id, payload, occurred_at)
VALUES ($1, $2, $3, $4, $5)`, ev.ID, string(ev.Type), ev.PoolID, payload, ev.OccurredAt); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}
	for _, p := range effects.Payouts {
		if _, err := t.tx.ExecContext(ctx, `
INSERT INTO payout_intents (id, pool_id, recipient, amount, kind, memo, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, p.ID, p.PoolID, p.Recipient, p.Amount, string(p.Kind), p.Memo, p.CreatedAt); err != nil {
			return fmt.Errorf("insert payout intent: %w", err)
		}
	}
	return nil
}

func scanPool(row rowScanner) (Pool, error) {
	var (
		p        Pool
		jobType  string
		status   string
		skills   []byte
		levels   []byte
		closedAt sql.NullTime
	)
	if err := row.Scan(
		&p.ID,
		&p.Company,
		&p.Title,
		&p.Description,
		&jobType,
		&skills,
		&levels,
		&p.SalaryMin,
		&p.SalaryMax,
		&p.StakeAmount,
		&p.Deadline,
		&p.CreatedAt,
		&p.Remote,
		&p.Location,
		&status,
		&p.SelectedCandidate,
		&p.TotalApplications,
		&p.EscrowBalance,
		&closedAt,
	); err != nil {
		return Pool{}, err
	}
	p.JobType = JobType(jobType)
	p.Status = PoolStatus(status)
	if err := json.Unmarshal(skills, &p.RequiredSkills); err != nil {
		return Pool{}, fmt.Errorf("decode required skills: %w", err)
	}
	if err := json.Unmarshal(levels, &p.MinimumLevels); err != nil {
		return Pool{}, fmt.Errorf("decode minimum levels: %w", err)
	}
	if closedAt.Valid {
		t := closedAt.Time
		p.ClosedAt = &t
	}
	return p, nil
}

func scanApplication(row rowScanner) (Application, error) {
	var (
		a         Application
		tokens    []byte
		status    string
		decidedAt sql.NullTime
	)
	if err := row.Scan(
		&a.PoolID,
		&a.Candidate,
		&tokens,
		&a.StakeAmount,
		&a.AppliedAt,
		&a.CoverLetter,
		&a.Portfolio,
		&a.MatchScore,
		&status,
		&decidedAt,
		&a.Refund,
		&a.Penalty,
	); err != nil {
		return Application{}, err
	}
	a.Status = ApplicationStatus(status)
	if err := json.Unmarshal(tokens, &a.SkillTokenIDs); err != nil {
		return Application{}, fmt.Errorf("decode skill tokens: %w", err)
	}
	if decidedAt.Valid {
		t := decidedAt.Time
		a.DecidedAt = &t
	}
	return a, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

var (
	_ Store = (*PGStore)(nil)
	_ Tx    = (*pgTx)(nil)
)
