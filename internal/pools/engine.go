package pools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"talentpool-backend/internal/access"
	"talentpool-backend/internal/shared/metrics"
	"talentpool-backend/internal/shared/telemetry"
)

// SystemActor is recorded as the actor of transitions triggered by the engine itself.
const SystemActor = "system"

// SkillResolver turns skill token ids presented by a candidate into skills.
type SkillResolver interface {
	ResolveSkills(ctx context.Context, candidate string, tokenIDs []int64) ([]Skill, error)
}

// ErrSkillRejected is returned by resolvers for tokens that are unknown or
// not held by the candidate.
var ErrSkillRejected = errors.New("skill token rejected")

// Options tune the engine.
type Options struct {
	Bounds  Bounds
	Penalty PenaltyPolicy
	Now     func() time.Time
}

// Engine is the pool lifecycle controller. Mutating calls are serialized
// through a single writer; reads go straight to committed store state.
type Engine struct {
	store   Store
	skills  SkillResolver
	authz   access.Authorizer
	bounds  Bounds
	penalty PenaltyPolicy
	now     func() time.Time

	mu sync.Mutex
}

// NewEngine constructs an Engine.
func NewEngine(store Store, skills SkillResolver, authz access.Authorizer, opts Options) *Engine {
	if opts.Penalty == nil {
		opts.Penalty = LinearPenalty{MaxBps: BasisPoints}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		store:   store,
		skills:  skills,
		authz:   authz,
		bounds:  opts.Bounds.normalized(),
		penalty: opts.Penalty,
		now:     opts.Now,
	}
}

type transitionKey struct{}

// enter acquires the writer lock, rejecting calls made from inside a transition.
func (e *Engine) enter(ctx context.Context) (context.Context, func(), error) {
	if owner, ok := ctx.Value(transitionKey{}).(*Engine); ok && owner == e {
		return ctx, func() {}, ErrReentrantCall
	}
	e.mu.Lock()
	return context.WithValue(ctx, transitionKey{}, e), e.mu.Unlock, nil
}

// apply runs fn in one store transaction and records its effects in the outbox.
func (e *Engine) apply(ctx context.Context, op, actor string, b *effectsBuilder, fn func(tx Tx) error) (Effects, error) {
	err := e.store.Update(ctx, func(tx Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		return tx.AppendEffects(ctx, b.out)
	})
	if err != nil {
		e.logRejected(op, actor, err)
		return Effects{}, err
	}
	metrics.IncTransition(op)
	telemetry.Info("pool."+op, map[string]any{
		"actor":   actor,
		"events":  len(b.out.Events),
		"payouts": len(b.out.Payouts),
		"pool_id": effectsPoolID(b.out),
	})
	return b.out, nil
}

func (e *Engine) reject(op, actor string, err error) error {
	e.logRejected(op, actor, err)
	return err
}

func (e *Engine) logRejected(op, actor string, err error) {
	kind := KindOf(err)
	if kind == nil {
		metrics.IncRejected(op, "internal")
		telemetry.Error("pool."+op+".failed", map[string]any{"actor": actor, "error": err.Error()})
		return
	}
	metrics.IncRejected(op, kind.Error())
	telemetry.Info("pool."+op+".rejected", map[string]any{"actor": actor, "kind": kind.Error(), "reason": err.Error()})
}

func effectsPoolID(out Effects) int64 {
	for _, ev := range out.Events {
		if ev.PoolID != 0 {
			return ev.PoolID
		}
	}
	return 0
}

func (e *Engine) requireRole(ctx context.Context, caller string, role access.Role) error {
	if e.authz == nil || !e.authz.HasRole(ctx, caller, role) {
		return ErrMissingRole
	}
	return nil
}

// CreatePool opens a new active pool owned by caller.
func (e *Engine) CreatePool(ctx context.Context, caller string, params PoolParams) (Pool, Effects, error) {
	const op = "create_pool"
	ctx, release, err := e.enter(ctx)
	if err != nil {
		return Pool{}, Effects{}, e.reject(op, caller, err)
	}
	defer release()

	if err := e.requireRole(ctx, caller, access.RoleCompany); err != nil {
		return Pool{}, Effects{}, e.reject(op, caller, err)
	}
	if params.JobType == "" {
		params.JobType = JobFullTime
	}

	now := e.now().UTC()
	b := &effectsBuilder{now: now}
	var created Pool
	effects, err := e.apply(ctx, op, caller, b, func(tx Tx) error {
		settings, err := tx.GetSettings(ctx)
		if err != nil {
			return err
		}
		if settings.Paused {
			return ErrPaused
		}
		bounds := e.bounds
		bounds.MinimumStake = settings.MinimumStake
		if err := ValidatePoolCreation(params, bounds, now); err != nil {
			return err
		}

		id, err := tx.NextPoolID(ctx)
		if err != nil {
			return err
		}
		created = Pool{
			ID:             id,
			Company:        caller,
			Title:          strings.TrimSpace(params.Title),
			Description:    params.Description,
			JobType:        params.JobType,
			RequiredSkills: params.RequiredSkills,
			MinimumLevels:  params.MinimumLevels,
			SalaryMin:      params.SalaryMin,
			SalaryMax:      params.SalaryMax,
			StakeAmount:    params.StakeAmount,
			Deadline:       params.Deadline.UTC(),
			CreatedAt:      now,
			Remote:         params.Remote,
			Location:       params.Location,
			Status:         PoolActive,
			EscrowBalance:  params.StakeAmount,
		}
		if err := tx.PutPool(ctx, created); err != nil {
			return err
		}
		if err := tx.PutMetrics(ctx, PoolMetrics{PoolID: id, TotalStaked: params.StakeAmount}); err != nil {
			return err
		}
		stats, err := tx.GetStats(ctx)
		if err != nil {
			return err
		}
		stats.TotalPools++
		stats.TotalValueStaked += params.StakeAmount
		if err := tx.PutStats(ctx, stats); err != nil {
			return err
		}
		b.event(Event{Type: EventPoolCreated, PoolID: id, Actor: caller, Amount: params.StakeAmount})
		return nil
	})
	if err != nil {
		return Pool{}, Effects{}, err
	}
	return created.clone(), effects, nil
}

// ApplicationParams are the caller-supplied attributes of an application.
type ApplicationParams struct {
	SkillTokenIDs []int64
	StakeAmount   int64
	CoverLetter   string
	Portfolio     string
}

// SubmitApplication records caller's pending application on a pool.
func (e *Engine) SubmitApplication(ctx context.Context, caller string, poolID int64, params ApplicationParams) (Application, Effects, error) {
	const op = "submit_application"
	ctx, release, err := e.enter(ctx)
	if err != nil {
		return Application{}, Effects{}, e.reject(op, caller, err)
	}
	defer release()

	if err := e.requireRole(ctx, caller, access.RoleCandidate); err != nil {
		return Application{}, Effects{}, e.reject(op, caller, err)
	}

	now := e.now().UTC()
	// Existence and state errors take precedence over skill resolution.
	pool, err := e.store.GetPool(ctx, poolID)
	if err != nil {
		return Application{}, Effects{}, e.reject(op, caller, err)
	}
	if err := checkApplicable(ctx, e.store, pool, caller, params, now); err != nil {
		return Application{}, Effects{}, e.reject(op, caller, err)
	}
	skills, err := e.resolve(ctx, caller, params.SkillTokenIDs)
	if err != nil {
		return Application{}, Effects{}, e.reject(op, caller, err)
	}

	b := &effectsBuilder{now: now}
	var submitted Application
	effects, err := e.apply(ctx, op, caller, b, func(tx Tx) error {
		settings, err := tx.GetSettings(ctx)
		if err != nil {
			return err
		}
		if settings.Paused {
			return ErrPaused
		}
		pool, err := tx.GetPool(ctx, poolID)
		if err != nil {
			return err
		}
		if err := checkApplicable(ctx, tx, pool, caller, params, now); err != nil {
			return err
		}

		score := CalculateMatchScore(pool.RequiredSkills, pool.MinimumLevels, skills)
		submitted = Application{
			PoolID:        poolID,
			Candidate:     caller,
			SkillTokenIDs: params.SkillTokenIDs,
			StakeAmount:   params.StakeAmount,
			AppliedAt:     now,
			CoverLetter:   params.CoverLetter,
			Portfolio:     params.Portfolio,
			MatchScore:    score,
			Status:        ApplicationPending,
		}
		if err := tx.PutApplication(ctx, submitted); err != nil {
			return err
		}

		pool.TotalApplications++
		pool.EscrowBalance += params.StakeAmount
		if err := tx.PutPool(ctx, pool); err != nil {
			return err
		}

		m, err := tx.GetMetrics(ctx, poolID)
		if err != nil {
			return err
		}
		m.TotalStaked += params.StakeAmount
		m.ApplicationCount++
		m.MatchScoreSum += int64(score)
		m.AverageMatchScore = int(m.MatchScoreSum / m.ApplicationCount)
		if err := tx.PutMetrics(ctx, m); err != nil {
			return err
		}

		stats, err := tx.GetStats(ctx)
		if err != nil {
			return err
		}
		stats.TotalApplications++
		stats.TotalValueStaked += params.StakeAmount
		if err := tx.PutStats(ctx, stats); err != nil {
			return err
		}

		b.event(Event{
			Type:       EventApplicationSubmitted,
			PoolID:     poolID,
			Actor:      caller,
			Candidate:  caller,
			Amount:     params.StakeAmount,
			MatchScore: score,
		})
		return nil
	})
	if err != nil {
		return Application{}, Effects{}, err
	}
	metrics.ObserveMatchScore(float64(submitted.MatchScore))
	return submitted.clone(), effects, nil
}

func checkApplicable(ctx context.Context, r Reader, pool Pool, candidate string, params ApplicationParams, now time.Time) error {
	if pool.Status != PoolActive {
		return ErrPoolNotActive
	}
	if _, err := r.GetApplication(ctx, pool.ID, candidate); err == nil {
		return ErrDuplicateApplication
	} else if !errors.Is(err, ErrApplicationNotFound) {
		return err
	}
	return ValidateApplication(params.StakeAmount, params.SkillTokenIDs, pool.Status, pool.Deadline, now)
}

func (e *Engine) resolve(ctx context.Context, candidate string, tokenIDs []int64) ([]Skill, error) {
	if e.skills == nil {
		return nil, errors.New("skill registry not configured")
	}
	skills, err := e.skills.ResolveSkills(ctx, candidate, tokenIDs)
	if err != nil {
		if errors.Is(err, ErrSkillRejected) {
			return nil, invalidApplication("skillTokenIds", err.Error())
		}
		if KindOf(err) != nil {
			return nil, err
		}
		return nil, fmt.Errorf("resolve skills: %w", err)
	}
	return e.clampSkills(skills), nil
}

func (e *Engine) clampSkills(skills []Skill) []Skill {
	out := make([]Skill, 0, len(skills))
	for _, s := range skills {
		if s.Level < e.bounds.MinSkillLevel {
			continue
		}
		if s.Level > e.bounds.MaxSkillLevel {
			s.Level = e.bounds.MaxSkillLevel
		}
		out = append(out, s)
	}
	return out
}

// SelectCandidate accepts one pending application on the caller's pool.
func (e *Engine) SelectCandidate(ctx context.Context, caller string, poolID int64, candidate string) (Application, Effects, error) {
	const op = "select_candidate"
	ctx, release, err := e.enter(ctx)
	if err != nil {
		return Application{}, Effects{}, e.reject(op, caller, err)
	}
	defer release()

	now := e.now().UTC()
	b := &effectsBuilder{now: now}
	var accepted Application
	effects, err := e.apply(ctx, op, caller, b, func(tx Tx) error {
		pool, err := tx.GetPool(ctx, poolID)
		if err != nil {
			return err
		}
		if pool.Company != caller {
			return ErrNotPoolOwner
		}
		if pool.Status != PoolActive {
			return ErrPoolNotActive
		}
		if pool.HasSelection() {
			return ErrAlreadySelected
		}
		app, err := tx.GetApplication(ctx, poolID, candidate)
		if err != nil {
			return err
		}
		if app.Status != ApplicationPending {
			return ErrInvalidApplicationStatus
		}

		pool.SelectedCandidate = candidate
		if err := tx.PutPool(ctx, pool); err != nil {
			return err
		}
		app.Status = ApplicationAccepted
		app.DecidedAt = &now
		if err := tx.PutApplication(ctx, app); err != nil {
			return err
		}
		accepted = app
		b.event(Event{
			Type:       EventMatchMade,
			PoolID:     poolID,
			Actor:      caller,
			Candidate:  candidate,
			Amount:     app.StakeAmount,
			MatchScore: app.MatchScore,
		})
		return nil
	})
	if err != nil {
		return Application{}, Effects{}, err
	}
	return accepted.clone(), effects, nil
}

// CompletePool settles a pool with a selected candidate. The candidate's stake
// is returned in full, the platform fee is taken from the company stake and
// every other pending applicant is rejected with a full refund.
func (e *Engine) CompletePool(ctx context.Context, caller string, poolID int64) (Pool, Effects, error) {
	const op = "complete_pool"
	ctx, release, err := e.enter(ctx)
	if err != nil {
		return Pool{}, Effects{}, e.reject(op, caller, err)
	}
	defer release()

	now := e.now().UTC()
	b := &effectsBuilder{now: now}
	var completed Pool
	effects, err := e.apply(ctx, op, caller, b, func(tx Tx) error {
		pool, err := tx.GetPool(ctx, poolID)
		if err != nil {
			return err
		}
		if pool.Company != caller {
			return ErrNotPoolOwner
		}
		if pool.Status != PoolActive {
			return ErrPoolNotActive
		}
		if !pool.HasSelection() {
			return ErrNoCandidateSelected
		}
		winner, err := tx.GetApplication(ctx, poolID, pool.SelectedCandidate)
		if err != nil {
			return err
		}
		settings, err := tx.GetSettings(ctx)
		if err != nil {
			return err
		}

		fee := CalculatePlatformFee(pool.StakeAmount+winner.StakeAmount, settings.PlatformFeeBps)
		if fee > pool.StakeAmount {
			fee = pool.StakeAmount
		}
		b.payout(poolID, winner.Candidate, winner.StakeAmount, PayoutCandidateStake, "stake returned to selected candidate")
		b.payout(poolID, pool.Company, pool.StakeAmount-fee, PayoutCompanyStake, "company stake less platform fee")
		b.payout(poolID, settings.FeeCollector, fee, PayoutPlatformFee, "platform fee")
		winner.Refund = winner.StakeAmount
		if err := tx.PutApplication(ctx, winner); err != nil {
			return err
		}
		released := winner.StakeAmount + pool.StakeAmount

		refunded, err := rejectPending(ctx, tx, b, poolID, now)
		if err != nil {
			return err
		}
		released += refunded

		pool.Status = PoolCompleted
		pool.ClosedAt = &now
		pool.EscrowBalance -= released
		if err := tx.PutPool(ctx, pool); err != nil {
			return err
		}

		m, err := tx.GetMetrics(ctx, poolID)
		if err != nil {
			return err
		}
		m.CompletionRate = 100
		m.AverageTimeToFill = now.Sub(pool.CreatedAt)
		if err := tx.PutMetrics(ctx, m); err != nil {
			return err
		}

		stats, err := tx.GetStats(ctx)
		if err != nil {
			return err
		}
		stats.TotalMatches++
		if err := tx.PutStats(ctx, stats); err != nil {
			return err
		}

		b.event(Event{
			Type:      EventPoolCompleted,
			PoolID:    poolID,
			Actor:     caller,
			Candidate: winner.Candidate,
			Amount:    pool.StakeAmount + winner.StakeAmount,
			Fee:       fee,
		})
		completed = pool
		return nil
	})
	if err != nil {
		return Pool{}, Effects{}, err
	}
	return completed.clone(), effects, nil
}

// WithdrawApplication withdraws caller's pending application. The refund is
// the stake less a time-decayed penalty paid to the fee collector.
func (e *Engine) WithdrawApplication(ctx context.Context, caller string, poolID int64) (Application, Effects, error) {
	const op = "withdraw_application"
	ctx, release, err := e.enter(ctx)
	if err != nil {
		return Application{}, Effects{}, e.reject(op, caller, err)
	}
	defer release()

	now := e.now().UTC()
	b := &effectsBuilder{now: now}
	var withdrawn Application
	effects, err := e.apply(ctx, op, caller, b, func(tx Tx) error {
		pool, err := tx.GetPool(ctx, poolID)
		if err != nil {
			return err
		}
		// A terminal pool rejects every withdrawal the same way, whether or
		// not the caller ever applied.
		if pool.Status != PoolActive {
			return ErrPoolNotActive
		}
		app, err := tx.GetApplication(ctx, poolID, caller)
		if err != nil {
			return err
		}
		if app.Status != ApplicationPending {
			return ErrInvalidApplicationStatus
		}
		settings, err := tx.GetSettings(ctx)
		if err != nil {
			return err
		}

		penalty := e.penalty.Penalty(app.AppliedAt, pool.Deadline, now, app.StakeAmount)
		if penalty < 0 {
			penalty = 0
		}
		if penalty > app.StakeAmount {
			penalty = app.StakeAmount
		}
		refund := app.StakeAmount - penalty

		app.Status = ApplicationWithdrawn
		app.DecidedAt = &now
		app.Refund = refund
		app.Penalty = penalty
		if err := tx.PutApplication(ctx, app); err != nil {
			return err
		}
		pool.EscrowBalance -= app.StakeAmount
		if err := tx.PutPool(ctx, pool); err != nil {
			return err
		}

		b.event(Event{
			Type:      EventApplicationWithdrawn,
			PoolID:    poolID,
			Actor:     caller,
			Candidate: caller,
			Amount:    refund,
			Fee:       penalty,
		})
		b.payout(poolID, caller, refund, PayoutRefund, "withdrawal refund")
		b.payout(poolID, settings.FeeCollector, penalty, PayoutPenalty, "withdrawal penalty")
		withdrawn = app
		return nil
	})
	if err != nil {
		return Application{}, Effects{}, err
	}
	return withdrawn.clone(), effects, nil
}

// ClosePool cancels the caller's pool before any selection, refunding every stake.
func (e *Engine) ClosePool(ctx context.Context, caller string, poolID int64) (Pool, Effects, error) {
	const op = "close_pool"
	ctx, release, err := e.enter(ctx)
	if err != nil {
		return Pool{}, Effects{}, e.reject(op, caller, err)
	}
	defer release()

	return e.release(ctx, op, caller, poolID, PoolCancelled)
}

// ExpirePool moves an active pool past its deadline with no selection to
// Expired, refunding every stake. Any caller may trigger it.
func (e *Engine) ExpirePool(ctx context.Context, caller string, poolID int64) (Pool, Effects, error) {
	const op = "expire_pool"
	ctx, release, err := e.enter(ctx)
	if err != nil {
		return Pool{}, Effects{}, e.reject(op, caller, err)
	}
	defer release()

	return e.release(ctx, op, caller, poolID, PoolExpired)
}

// ExpireOverdue expires every active pool whose deadline has passed and that
// has no selected candidate. It returns the expired pool ids.
func (e *Engine) ExpireOverdue(ctx context.Context) ([]int64, error) {
	due, err := e.store.ListActivePoolsDue(ctx, e.now().UTC())
	if err != nil {
		return nil, err
	}
	var expired []int64
	for _, id := range due {
		_, _, err := e.ExpirePool(ctx, SystemActor, id)
		switch {
		case err == nil:
			expired = append(expired, id)
		case KindOf(err) != nil:
			// selected pools stay open for completion; concurrent closes are fine
		default:
			return expired, err
		}
	}
	return expired, nil
}

func (e *Engine) release(ctx context.Context, op, caller string, poolID int64, status PoolStatus) (Pool, Effects, error) {
	now := e.now().UTC()
	b := &effectsBuilder{now: now}
	var released Pool
	effects, err := e.apply(ctx, op, caller, b, func(tx Tx) error {
		pool, err := tx.GetPool(ctx, poolID)
		if err != nil {
			return err
		}
		if status == PoolCancelled && pool.Company != caller {
			return ErrNotPoolOwner
		}
		if pool.Status != PoolActive {
			return ErrPoolNotActive
		}
		if status == PoolExpired && now.Before(pool.Deadline) {
			return ErrDeadlineNotReached
		}
		if pool.HasSelection() {
			return ErrAlreadySelected
		}

		b.payout(poolID, pool.Company, pool.StakeAmount, PayoutRefund, "company stake refund")
		refunded, err := rejectPending(ctx, tx, b, poolID, now)
		if err != nil {
			return err
		}

		pool.Status = status
		pool.ClosedAt = &now
		pool.EscrowBalance -= pool.StakeAmount + refunded
		if err := tx.PutPool(ctx, pool); err != nil {
			return err
		}

		evType := EventPoolCancelled
		if status == PoolExpired {
			evType = EventPoolExpired
		}
		b.event(Event{Type: evType, PoolID: poolID, Actor: caller, Amount: pool.StakeAmount + refunded})
		released = pool
		return nil
	})
	if err != nil {
		return Pool{}, Effects{}, err
	}
	return released.clone(), effects, nil
}

// rejectPending rejects every pending application of a pool with a full
// refund and returns the total refunded.
func rejectPending(ctx context.Context, tx Tx, b *effectsBuilder, poolID int64, now time.Time) (int64, error) {
	apps, err := tx.ListApplications(ctx, poolID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, app := range apps {
		if app.Status != ApplicationPending {
			continue
		}
		app.Status = ApplicationRejected
		app.DecidedAt = &now
		app.Refund = app.StakeAmount
		if err := tx.PutApplication(ctx, app); err != nil {
			return 0, err
		}
		b.event(Event{Type: EventApplicationRejected, PoolID: poolID, Candidate: app.Candidate, Amount: app.StakeAmount})
		b.payout(poolID, app.Candidate, app.StakeAmount, PayoutRefund, "application rejected refund")
		total += app.StakeAmount
	}
	return total, nil
}
