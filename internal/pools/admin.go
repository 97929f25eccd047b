package pools

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"talentpool-backend/internal/access"
)

// SetPlatformFee updates the fee rate in basis points.
func (e *Engine) SetPlatformFee(ctx context.Context, caller string, bps int64) (Settings, error) {
	return e.updateSettings(ctx, "set_platform_fee", caller, access.RoleAdmin, func(s *Settings, b *effectsBuilder) error {
		if err := ValidatePlatformFee(bps, e.bounds); err != nil {
			return err
		}
		b.event(Event{
			Type:     EventPlatformFeeUpdated,
			Actor:    caller,
			OldValue: strconv.FormatInt(s.PlatformFeeBps, 10),
			NewValue: strconv.FormatInt(bps, 10),
		})
		s.PlatformFeeBps = bps
		return nil
	})
}

// SetFeeCollector updates the recipient of platform fees and penalties.
func (e *Engine) SetFeeCollector(ctx context.Context, caller, collector string) (Settings, error) {
	collector = strings.TrimSpace(collector)
	return e.updateSettings(ctx, "set_fee_collector", caller, access.RoleAdmin, func(s *Settings, b *effectsBuilder) error {
		if collector == "" {
			return invalidInput("feeCollector", "is required")
		}
		b.event(Event{Type: EventFeeCollectorUpdated, Actor: caller, OldValue: s.FeeCollector, NewValue: collector})
		s.FeeCollector = collector
		return nil
	})
}

// SetMinimumStake updates the minimum company stake for new pools.
func (e *Engine) SetMinimumStake(ctx context.Context, caller string, amount int64) (Settings, error) {
	return e.updateSettings(ctx, "set_minimum_stake", caller, access.RoleAdmin, func(s *Settings, b *effectsBuilder) error {
		if amount < 0 {
			return invalidInput("minimumStake", "must not be negative")
		}
		b.event(Event{
			Type:     EventMinimumStakeUpdated,
			Actor:    caller,
			OldValue: strconv.FormatInt(s.MinimumStake, 10),
			NewValue: strconv.FormatInt(amount, 10),
		})
		s.MinimumStake = amount
		return nil
	})
}

// Pause stops new pools and applications.
func (e *Engine) Pause(ctx context.Context, caller string) (Settings, error) {
	return e.updateSettings(ctx, "pause", caller, access.RoleOperator, func(s *Settings, b *effectsBuilder) error {
		if s.Paused {
			return ErrAlreadyPaused
		}
		s.Paused = true
		b.event(Event{Type: EventPaused, Actor: caller})
		return nil
	})
}

// Unpause resumes normal operation.
func (e *Engine) Unpause(ctx context.Context, caller string) (Settings, error) {
	return e.updateSettings(ctx, "unpause", caller, access.RoleOperator, func(s *Settings, b *effectsBuilder) error {
		if !s.Paused {
			return ErrNotPaused
		}
		s.Paused = false
		b.event(Event{Type: EventUnpaused, Actor: caller})
		return nil
	})
}

func (e *Engine) updateSettings(ctx context.Context, op, caller string, role access.Role, mutate func(s *Settings, b *effectsBuilder) error) (Settings, error) {
	ctx, release, err := e.enter(ctx)
	if err != nil {
		return Settings{}, e.reject(op, caller, err)
	}
	defer release()

	if err := e.requireRole(ctx, caller, role); err != nil {
		return Settings{}, e.reject(op, caller, err)
	}

	b := &effectsBuilder{now: e.now().UTC()}
	var updated Settings
	_, err = e.apply(ctx, op, caller, b, func(tx Tx) error {
		settings, err := tx.GetSettings(ctx)
		if err != nil {
			return err
		}
		if err := mutate(&settings, b); err != nil {
			return err
		}
		updated = settings
		return tx.PutSettings(ctx, settings)
	})
	if err != nil {
		return Settings{}, err
	}
	return updated, nil
}

// fixedGrants is implemented by authorizers that hold grants runtime
// revocation cannot remove.
type fixedGrants interface {
	Fixed(caller string, role access.Role) bool
}

// GrantRole gives target the role. Only admins may change roles. Granting a
// role the target already holds changes nothing and emits no event.
func (e *Engine) GrantRole(ctx context.Context, caller, target string, role access.Role) (Effects, error) {
	return e.changeRole(ctx, "grant_role", caller, target, role, true)
}

// RevokeRole removes a runtime grant from target.
func (e *Engine) RevokeRole(ctx context.Context, caller, target string, role access.Role) (Effects, error) {
	return e.changeRole(ctx, "revoke_role", caller, target, role, false)
}

func (e *Engine) changeRole(ctx context.Context, op, caller, target string, role access.Role, grant bool) (Effects, error) {
	ctx, release, err := e.enter(ctx)
	if err != nil {
		return Effects{}, e.reject(op, caller, err)
	}
	defer release()

	if err := e.requireRole(ctx, caller, access.RoleAdmin); err != nil {
		return Effects{}, e.reject(op, caller, err)
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return Effects{}, e.reject(op, caller, invalidInput("account", "is required"))
	}
	if fixed, ok := e.authz.(fixedGrants); ok && !grant && fixed.Fixed(target, role) {
		return Effects{}, e.reject(op, caller, ErrRolesFixed)
	}

	b := &effectsBuilder{now: e.now().UTC()}
	return e.apply(ctx, op, caller, b, func(tx Tx) error {
		held, err := tx.ListRoles(ctx, target)
		if err != nil {
			return err
		}
		has := slices.Contains(held, role)
		switch {
		case grant && !has:
			b.event(Event{Type: EventRoleGranted, Actor: caller, Account: target, NewValue: string(role)})
			return tx.PutRole(ctx, RoleGrant{Account: target, Role: role, GrantedBy: caller, GrantedAt: b.now})
		case !grant && has:
			b.event(Event{Type: EventRoleRevoked, Actor: caller, Account: target, OldValue: string(role)})
			return tx.DeleteRole(ctx, target, role)
		}
		return nil
	})
}
