package pools

import "time"

// JobType classifies the engagement offered by a pool.
type JobType string

const (
	JobFullTime   JobType = "full_time"
	JobPartTime   JobType = "part_time"
	JobContract   JobType = "contract"
	JobFreelance  JobType = "freelance"
	JobInternship JobType = "internship"
)

// Valid reports whether the job type is one of the known values.
func (t JobType) Valid() bool {
	switch t {
	case JobFullTime, JobPartTime, JobContract, JobFreelance, JobInternship:
		return true
	default:
		return false
	}
}

// PoolStatus is the lifecycle state of a pool.
type PoolStatus string

const (
	PoolActive    PoolStatus = "active"
	PoolCompleted PoolStatus = "completed"
	PoolCancelled PoolStatus = "cancelled"
	PoolExpired   PoolStatus = "expired"
)

// Terminal reports whether no further transition can leave the status.
func (s PoolStatus) Terminal() bool {
	return s == PoolCompleted || s == PoolCancelled || s == PoolExpired
}

// ApplicationStatus is the lifecycle state of an application.
type ApplicationStatus string

const (
	ApplicationPending   ApplicationStatus = "pending"
	ApplicationAccepted  ApplicationStatus = "accepted"
	ApplicationRejected  ApplicationStatus = "rejected"
	ApplicationWithdrawn ApplicationStatus = "withdrawn"
)

// Pool is a job posting opened by a company.
type Pool struct {
	ID                int64
	Company           string
	Title             string
	Description       string
	JobType           JobType
	RequiredSkills    []string
	MinimumLevels     []int
	SalaryMin         int64
	SalaryMax         int64
	StakeAmount       int64
	Deadline          time.Time
	CreatedAt         time.Time
	Remote            bool
	Location          string
	Status            PoolStatus
	SelectedCandidate string
	TotalApplications int64
	// EscrowBalance is the value currently held on behalf of the pool.
	EscrowBalance int64
	ClosedAt      *time.Time
}

// HasSelection reports whether the company picked a candidate.
func (p Pool) HasSelection() bool {
	return p.SelectedCandidate != ""
}

func (p Pool) clone() Pool {
	out := p
	out.RequiredSkills = append([]string(nil), p.RequiredSkills...)
	out.MinimumLevels = append([]int(nil), p.MinimumLevels...)
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		out.ClosedAt = &t
	}
	return out
}

// Application is one candidate's bid on one pool.
type Application struct {
	PoolID        int64
	Candidate     string
	SkillTokenIDs []int64
	StakeAmount   int64
	AppliedAt     time.Time
	CoverLetter   string
	Portfolio     string
	MatchScore    int
	Status        ApplicationStatus
	DecidedAt     *time.Time
	Refund        int64
	Penalty       int64
}

func (a Application) clone() Application {
	out := a
	out.SkillTokenIDs = append([]int64(nil), a.SkillTokenIDs...)
	if a.DecidedAt != nil {
		t := *a.DecidedAt
		out.DecidedAt = &t
	}
	return out
}

// PoolMetrics is the rolling aggregate kept per pool.
type PoolMetrics struct {
	PoolID            int64
	TotalStaked       int64
	AverageMatchScore int
	MatchScoreSum     int64
	ApplicationCount  int64
	// CompletionRate is 0 or 100.
	CompletionRate    int
	AverageTimeToFill time.Duration
}

// GlobalStats are monotonically non-decreasing reporting counters.
type GlobalStats struct {
	TotalPools        int64
	TotalApplications int64
	TotalMatches      int64
	TotalValueStaked  int64
}

// Settings is the mutable engine configuration.
type Settings struct {
	PlatformFeeBps int64
	FeeCollector   string
	MinimumStake   int64
	Paused         bool
}
