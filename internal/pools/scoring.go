package pools

import (
	"math/big"
	"strings"
	"time"
)

const (
	// BasisPoints is the denominator for fee and penalty rates.
	BasisPoints = 10000

	DefaultPlatformFeeBps = 250
	DefaultMinSkillLevel  = 1
	DefaultMaxSkillLevel  = 100
	maxScore              = 100
)

// Bounds constrains creation parameters.
type Bounds struct {
	MinimumStake  int64
	MinSkillLevel int
	MaxSkillLevel int
	MaxFeeBps     int64
}

// DefaultBounds returns the bounds used when none are configured.
func DefaultBounds() Bounds {
	return Bounds{
		MinSkillLevel: DefaultMinSkillLevel,
		MaxSkillLevel: DefaultMaxSkillLevel,
		MaxFeeBps:     BasisPoints,
	}
}

func (b Bounds) normalized() Bounds {
	if b.MinSkillLevel <= 0 {
		b.MinSkillLevel = DefaultMinSkillLevel
	}
	if b.MaxSkillLevel < b.MinSkillLevel {
		b.MaxSkillLevel = DefaultMaxSkillLevel
	}
	if b.MaxFeeBps <= 0 || b.MaxFeeBps > BasisPoints {
		b.MaxFeeBps = BasisPoints
	}
	return b
}

// PoolParams are the caller-supplied attributes of a new pool.
type PoolParams struct {
	Title          string
	Description    string
	JobType        JobType
	RequiredSkills []string
	MinimumLevels  []int
	SalaryMin      int64
	SalaryMax      int64
	StakeAmount    int64
	Deadline       time.Time
	Remote         bool
	Location       string
}

// ValidatePoolCreation checks creation parameters against bounds at time now.
func ValidatePoolCreation(p PoolParams, bounds Bounds, now time.Time) error {
	bounds = bounds.normalized()
	if p.StakeAmount < 0 {
		return invalidInput("stakeAmount", "must not be negative")
	}
	if p.StakeAmount < bounds.MinimumStake {
		return invalidInput("stakeAmount", "is below the minimum stake")
	}
	if strings.TrimSpace(p.Title) == "" {
		return invalidInput("title", "is required")
	}
	if p.JobType != "" && !p.JobType.Valid() {
		return invalidInput("jobType", "is not a known job type")
	}
	if p.SalaryMin < 0 {
		return invalidInput("salaryMin", "must not be negative")
	}
	if p.SalaryMin > p.SalaryMax {
		return invalidInput("salaryMin", "must not exceed salaryMax")
	}
	if !p.Deadline.After(now) {
		return invalidInput("deadline", "must be in the future")
	}
	if len(p.RequiredSkills) == 0 {
		return invalidInput("requiredSkills", "must not be empty")
	}
	if len(p.RequiredSkills) != len(p.MinimumLevels) {
		return invalidInput("minimumLevels", "must match requiredSkills length")
	}
	for i, skill := range p.RequiredSkills {
		if strings.TrimSpace(skill) == "" {
			return invalidInput("requiredSkills", "must not contain empty names")
		}
		level := p.MinimumLevels[i]
		if level < bounds.MinSkillLevel || level > bounds.MaxSkillLevel {
			return invalidInput("minimumLevels", "out of range")
		}
	}
	return nil
}

// ValidateApplication checks a submission against the pool state at time now.
func ValidateApplication(stake int64, skillTokenIDs []int64, status PoolStatus, deadline, now time.Time) error {
	if status != PoolActive {
		return invalidApplication("pool", "is not active")
	}
	if !now.Before(deadline) {
		return invalidApplication("pool", "deadline has passed")
	}
	if stake < 0 {
		return invalidApplication("stakeAmount", "must not be negative")
	}
	if len(skillTokenIDs) == 0 {
		return invalidApplication("skillTokenIds", "at least one skill token is required")
	}
	return nil
}

// ValidatePlatformFee checks a fee rate in basis points.
func ValidatePlatformFee(bps int64, bounds Bounds) error {
	bounds = bounds.normalized()
	if bps < 0 || bps > bounds.MaxFeeBps {
		return invalidInput("feeRate", "out of range")
	}
	return nil
}

// Skill is a resolved (category, level) pair.
type Skill struct {
	Category string
	Level    int
}

// CalculateMatchScore returns a score in [0, 100]. Required skills are matched
// to candidate skills by exact category name; when a category is offered more
// than once the highest level counts.
func CalculateMatchScore(requiredSkills []string, minimumLevels []int, candidate []Skill) int {
	if len(requiredSkills) == 0 || len(requiredSkills) != len(minimumLevels) {
		return 0
	}
	best := make(map[string]int, len(candidate))
	for _, s := range candidate {
		if s.Level <= 0 {
			continue
		}
		if s.Level > best[s.Category] {
			best[s.Category] = s.Level
		}
	}

	total := 0
	for i, name := range requiredSkills {
		level, ok := best[name]
		if !ok {
			continue
		}
		required := minimumLevels[i]
		if required <= 0 || level >= required {
			total += maxScore
			continue
		}
		total += level * maxScore / required
	}
	return total / len(requiredSkills)
}

// CalculatePlatformFee returns floor(totalStaked * bps / 10000), clamped to [0, totalStaked].
func CalculatePlatformFee(totalStaked, bps int64) int64 {
	if totalStaked <= 0 || bps <= 0 {
		return 0
	}
	if bps >= BasisPoints {
		return totalStaked
	}
	return mulDiv(totalStaked, bps, BasisPoints)
}

// PenaltyPolicy decides how much of a withdrawing candidate's stake is forfeited.
// Implementations must return a value in [0, stake].
type PenaltyPolicy interface {
	Penalty(appliedAt, deadline, now time.Time, stake int64) int64
}

// LinearPenalty grows linearly from zero at application time to MaxBps of the
// stake at the deadline.
type LinearPenalty struct {
	MaxBps int64
}

// Penalty implements PenaltyPolicy.
func (l LinearPenalty) Penalty(appliedAt, deadline, now time.Time, stake int64) int64 {
	if stake <= 0 {
		return 0
	}
	maxBps := l.MaxBps
	if maxBps <= 0 || maxBps > BasisPoints {
		maxBps = BasisPoints
	}
	ceiling := mulDiv(stake, maxBps, BasisPoints)

	window := deadline.Sub(appliedAt)
	if window <= 0 {
		return ceiling
	}
	elapsed := now.Sub(appliedAt)
	if elapsed <= 0 {
		return 0
	}
	if elapsed >= window {
		return ceiling
	}
	return mulDiv(ceiling, int64(elapsed), int64(window))
}

// CalculateWithdrawalPenalty applies the default linear policy.
func CalculateWithdrawalPenalty(appliedAt, deadline, now time.Time, stake int64) int64 {
	return LinearPenalty{MaxBps: BasisPoints}.Penalty(appliedAt, deadline, now, stake)
}

// mulDiv computes floor(a*b/c) without intermediate overflow. Inputs are non-negative.
func mulDiv(a, b, c int64) int64 {
	if c == 0 {
		return 0
	}
	var out big.Int
	out.Mul(big.NewInt(a), big.NewInt(b))
	out.Quo(&out, big.NewInt(c))
	return out.Int64()
}
