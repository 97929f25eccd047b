package access

import (
	"context"
	"errors"
	"strings"
	"sync"

	"talentpool-backend/internal/shared/telemetry"
)

// Role is a capability a caller may hold.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleOperator  Role = "operator"
	RoleCompany   Role = "company"
	RoleCandidate Role = "candidate"
)

// ErrUnknownRole indicates a role name outside the known set.
var ErrUnknownRole = errors.New("unknown role")

// ParseRole validates a role name.
func ParseRole(raw string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(raw))); r {
	case RoleAdmin, RoleOperator, RoleCompany, RoleCandidate:
		return r, nil
	default:
		return "", ErrUnknownRole
	}
}

// Authorizer answers role checks at the top of role-gated operations.
type Authorizer interface {
	HasRole(ctx context.Context, caller string, role Role) bool
}

// GrantSource lists roles granted at runtime and kept in durable storage.
type GrantSource interface {
	ListRoles(ctx context.Context, account string) ([]Role, error)
}

// Policy answers role checks from configured grants, then from the grant
// source when one is attached. When OpenParticipation is set every non-empty
// caller is both a company and a candidate.
type Policy struct {
	mu                sync.RWMutex
	grants            map[string]map[Role]struct{}
	source            GrantSource
	openParticipation bool
}

// NewPolicy constructs a Policy seeded with admins and operators.
func NewPolicy(admins, operators []string, openParticipation bool) *Policy {
	p := &Policy{
		grants:            make(map[string]map[Role]struct{}),
		openParticipation: openParticipation,
	}
	for _, id := range admins {
		p.grant(id, RoleAdmin)
	}
	for _, id := range operators {
		p.grant(id, RoleOperator)
	}
	return p
}

// WithGrantSource makes the policy consult src for runtime grants.
func (p *Policy) WithGrantSource(src GrantSource) *Policy {
	p.mu.Lock()
	p.source = src
	p.mu.Unlock()
	return p
}

// HasRole implements Authorizer. Admins implicitly hold the operator role.
func (p *Policy) HasRole(ctx context.Context, caller string, role Role) bool {
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return false
	}
	if p.openParticipation && (role == RoleCompany || role == RoleCandidate) {
		return true
	}
	p.mu.RLock()
	held := satisfies(p.grants[caller], role)
	src := p.source
	p.mu.RUnlock()
	if held || src == nil {
		return held
	}

	granted, err := src.ListRoles(ctx, caller)
	if err != nil {
		telemetry.Warn("access.grants_unavailable", map[string]any{"caller": caller, "role": string(role), "error": err.Error()})
		return false
	}
	roles := make(map[Role]struct{}, len(granted))
	for _, r := range granted {
		roles[r] = struct{}{}
	}
	return satisfies(roles, role)
}

// Fixed reports whether caller holds role through configuration, which
// runtime revocation cannot undo.
func (p *Policy) Fixed(caller string, role Role) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.grants[strings.TrimSpace(caller)][role]
	return ok
}

// Grant gives caller the role as a configured grant.
func (p *Policy) Grant(caller string, role Role) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.grant(caller, role)
}

// Revoke removes a configured grant from caller.
func (p *Policy) Revoke(caller string, role Role) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if roles, ok := p.grants[strings.TrimSpace(caller)]; ok {
		delete(roles, role)
	}
}

func satisfies(roles map[Role]struct{}, role Role) bool {
	if _, ok := roles[role]; ok {
		return true
	}
	if role == RoleOperator {
		_, ok := roles[RoleAdmin]
		return ok
	}
	return false
}

func (p *Policy) grant(caller string, role Role) {
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return
	}
	roles, ok := p.grants[caller]
	if !ok {
		roles = make(map[Role]struct{})
		p.grants[caller] = roles
	}
	roles[role] = struct{}{}
}

var _ Authorizer = (*Policy)(nil)
