package pools

import "time"

type createPoolRequest struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	JobType        string   `json:"jobType"`
	RequiredSkills []string `json:"requiredSkills"`
	MinimumLevels  []int    `json:"minimumLevels"`
	SalaryMin      int64    `json:"salaryMin"`
	SalaryMax      int64    `json:"salaryMax"`
	StakeAmount    int64    `json:"stakeAmount"`
	// Deadline is a unix timestamp in seconds.
	Deadline int64  `json:"deadline"`
	Remote   bool   `json:"remote"`
	Location string `json:"location"`
}

func (r createPoolRequest) params() PoolParams {
	return PoolParams{
		Title:          r.Title,
		Description:    r.Description,
		JobType:        JobType(r.JobType),
		RequiredSkills: r.RequiredSkills,
		MinimumLevels:  r.MinimumLevels,
		SalaryMin:      r.SalaryMin,
		SalaryMax:      r.SalaryMax,
		StakeAmount:    r.StakeAmount,
		Deadline:       time.Unix(r.Deadline, 0).UTC(),
		Remote:         r.Remote,
		Location:       r.Location,
	}
}

type submitApplicationRequest struct {
	SkillTokenIDs []int64 `json:"skillTokenIds"`
	StakeAmount   int64   `json:"stakeAmount"`
	CoverLetter   string  `json:"coverLetter"`
	Portfolio     string  `json:"portfolio"`
}

type selectCandidateRequest struct {
	Candidate string `json:"candidate"`
}

type scorePreviewRequest struct {
	SkillTokenIDs []int64 `json:"skillTokenIds"`
}

type feeRateRequest struct {
	FeeRateBps *int64 `json:"feeRateBps"`
}

type feeCollectorRequest struct {
	FeeCollector string `json:"feeCollector"`
}

type minimumStakeRequest struct {
	MinimumStake *int64 `json:"minimumStake"`
}

type roleRequest struct {
	Account string `json:"account"`
	Role    string `json:"role"`
}

// PoolResponse is the outward-facing representation of a pool.
type PoolResponse struct {
	ID                int64      `json:"id"`
	Company           string     `json:"company"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	JobType           JobType    `json:"jobType"`
	RequiredSkills    []string   `json:"requiredSkills"`
	MinimumLevels     []int      `json:"minimumLevels"`
	SalaryMin         int64      `json:"salaryMin"`
	SalaryMax         int64      `json:"salaryMax"`
	StakeAmount       int64      `json:"stakeAmount"`
	Deadline          int64      `json:"deadline"`
	CreatedAt         time.Time  `json:"createdAt"`
	Remote            bool       `json:"remote"`
	Location          string     `json:"location"`
	Status            PoolStatus `json:"status"`
	SelectedCandidate *string    `json:"selectedCandidate"`
	TotalApplications int64      `json:"totalApplications"`
	EscrowBalance     int64      `json:"escrowBalance"`
	ClosedAt          *time.Time `json:"closedAt,omitempty"`
}

func toPoolResponse(p Pool) PoolResponse {
	out := PoolResponse{
		ID:                p.ID,
		Company:           p.Company,
		Title:             p.Title,
		Description:       p.Description,
		JobType:           p.JobType,
		RequiredSkills:    p.RequiredSkills,
		MinimumLevels:     p.MinimumLevels,
		SalaryMin:         p.SalaryMin,
		SalaryMax:         p.SalaryMax,
		StakeAmount:       p.StakeAmount,
		Deadline:          p.Deadline.Unix(),
		CreatedAt:         p.CreatedAt,
		Remote:            p.Remote,
		Location:          p.Location,
		Status:            p.Status,
		TotalApplications: p.TotalApplications,
		EscrowBalance:     p.EscrowBalance,
		ClosedAt:          p.ClosedAt,
	}
	if p.HasSelection() {
		selected := p.SelectedCandidate
		out.SelectedCandidate = &selected
	}
	return out
}

// ApplicationResponse is the outward-facing representation of an application.
type ApplicationResponse struct {
	PoolID        int64             `json:"poolId"`
	Candidate     string            `json:"candidate"`
	SkillTokenIDs []int64           `json:"skillTokenIds"`
	StakeAmount   int64             `json:"stakeAmount"`
	AppliedAt     time.Time         `json:"appliedAt"`
	CoverLetter   string            `json:"coverLetter"`
	Portfolio     string            `json:"portfolio"`
	MatchScore    int               `json:"matchScore"`
	Status        ApplicationStatus `json:"status"`
	DecidedAt     *time.Time        `json:"decidedAt,omitempty"`
	Refund        int64             `json:"refund"`
	Penalty       int64             `json:"penalty"`
}

func toApplicationResponse(a Application) ApplicationResponse {
	return ApplicationResponse{
		PoolID:        a.PoolID,
		Candidate:     a.Candidate,
		SkillTokenIDs: a.SkillTokenIDs,
		StakeAmount:   a.StakeAmount,
		AppliedAt:     a.AppliedAt,
		CoverLetter:   a.CoverLetter,
		Portfolio:     a.Portfolio,
		MatchScore:    a.MatchScore,
		Status:        a.Status,
		DecidedAt:     a.DecidedAt,
		Refund:        a.Refund,
		Penalty:       a.Penalty,
	}
}

func toApplicationResponses(apps []Application) []ApplicationResponse {
	out := make([]ApplicationResponse, 0, len(apps))
	for _, a := range apps {
		out = append(out, toApplicationResponse(a))
	}
	return out
}

// MetricsResponse is the outward-facing representation of pool metrics.
type MetricsResponse struct {
	PoolID                   int64 `json:"poolId"`
	TotalStaked              int64 `json:"totalStaked"`
	AverageMatchScore        int   `json:"averageMatchScore"`
	ApplicationCount         int64 `json:"applicationCount"`
	CompletionRate           int   `json:"completionRate"`
	AverageTimeToFillSeconds int64 `json:"averageTimeToFillSeconds"`
}

func toMetricsResponse(m PoolMetrics) MetricsResponse {
	return MetricsResponse{
		PoolID:                   m.PoolID,
		TotalStaked:              m.TotalStaked,
		AverageMatchScore:        m.AverageMatchScore,
		ApplicationCount:         m.ApplicationCount,
		CompletionRate:           m.CompletionRate,
		AverageTimeToFillSeconds: int64(m.AverageTimeToFill / time.Second),
	}
}

// SettingsResponse is the outward-facing representation of engine settings.
type SettingsResponse struct {
	PlatformFeeBps int64  `json:"platformFeeBps"`
	FeeCollector   string `json:"feeCollector"`
	MinimumStake   int64  `json:"minimumStake"`
	Paused         bool   `json:"paused"`
}

func toSettingsResponse(s Settings) SettingsResponse {
	return SettingsResponse{
		PlatformFeeBps: s.PlatformFeeBps,
		FeeCollector:   s.FeeCollector,
		MinimumStake:   s.MinimumStake,
		Paused:         s.Paused,
	}
}

// EffectsResponse lists what a transition emitted.
type EffectsResponse struct {
	Events  []Event        `json:"events"`
	Payouts []PayoutIntent `json:"payouts"`
}

func toEffectsResponse(e Effects) EffectsResponse {
	out := EffectsResponse{Events: e.Events, Payouts: e.Payouts}
	if out.Events == nil {
		out.Events = []Event{}
	}
	if out.Payouts == nil {
		out.Payouts = []PayoutIntent{}
	}
	return out
}
