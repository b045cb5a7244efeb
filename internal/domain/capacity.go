package domain

// DefaultAmberThreshold is the utilization fraction at which review becomes mandatory.
const DefaultAmberThreshold = 0.7

// DefaultMaxPoints is the per-caseworker ceiling used when none is configured.
const DefaultMaxPoints = 15

// WorkloadPolicy holds the director-configurable capacity settings.
type WorkloadPolicy struct {
	MaxPoints      int              `json:"max_points" yaml:"max_points" minimum:"0" maximum:"100000"`
	AmberThreshold float64          `json:"amber_threshold" yaml:"amber_threshold"`
	SeverityPoints map[Severity]int `json:"severity_points" yaml:"severity_points"`
}

// DefaultWorkloadPolicy returns 15 points, a 0.7 amber threshold and 1/2/3/4 severity costs.
func DefaultWorkloadPolicy() WorkloadPolicy {
	return WorkloadPolicy{
		MaxPoints:      DefaultMaxPoints,
		AmberThreshold: DefaultAmberThreshold,
		SeverityPoints: DefaultSeverityPoints(),
	}
}

func DefaultSeverityPoints() map[Severity]int {
	return map[Severity]int{
		SeveritySimple:          1,
		SeverityModerate:        2,
		SeverityComplex:         3,
		SeveritySeverelyComplex: 4,
	}
}

type CapacityDecision struct {
	Status                  CapacityStatus `json:"status" enum:"Green,Amber,Red"`
	AllowAssignment         bool           `json:"allow_assignment"`
	RequireSupervisorReview bool           `json:"require_supervisor_review"`
	RequireDirectorOverride bool           `json:"require_director_override"`
	IncomingSeverity        Severity       `json:"incoming_severity"`
	CurrentPoints           int            `json:"current_points"`
	IncomingPoints          int            `json:"incoming_points"`
	ProjectedPoints         int            `json:"projected_points"`
	MaxPoints               int            `json:"max_points"`
	UtilizationPercent      float64        `json:"utilization_percent"`
	RequesterMessage        string         `json:"requester_message"`
	ReviewerMessage         string         `json:"reviewer_message"`
}

// ReviewRequired reports whether any human review is mandatory.
func (d CapacityDecision) ReviewRequired() bool {
	return d.RequireSupervisorReview || d.RequireDirectorOverride
}

// Caseworker is a rostered actor with a running complexity-point load.
type Caseworker struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	CurrentPoints int    `json:"current_points"`
	MaxPoints     *int   `json:"max_points,omitempty"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

// Assignment records a case placed on a caseworker's load.
type Assignment struct {
	CaseID       string   `json:"case_id"`
	CaseworkerID string   `json:"caseworker_id"`
	Severity     Severity `json:"severity"`
	Points       int      `json:"points"`
	Status       string   `json:"status" enum:"held,active"`
	OverrideID   *string  `json:"override_id,omitempty"`
	CreatedAt    string   `json:"created_at" format:"date-time"`
	UpdatedAt    string   `json:"updated_at" format:"date-time"`
}
