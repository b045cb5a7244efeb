package escalation

import (
	"fmt"

	"careline/internal/domain"
)

// MetadataSource tags requests built by the capacity gate.
const MetadataSource = "IntakeWorkloadEnforcement"

// WorkloadParams carries what the intake flow knows when the gate asks for review.
type WorkloadParams struct {
	CaseID     string
	ClientName string
	Requester  domain.Actor
	Narrative  string
	Severity   *domain.Severity
	RAGStatus  *domain.RAGStatus
	Dimensions []domain.Dimension
}

// FromCapacityDecision builds open params for a workload override. A
// caseworker files WORKLOAD_LIMIT_OVERRIDE to a supervisor; a supervisor files
// WORKLOAD_OVERRIDE_APPROVAL to a director. Green decisions need no override.
func FromCapacityDecision(d domain.CapacityDecision, p WorkloadParams) (OpenParams, error) {
	if !d.ReviewRequired() {
		return OpenParams{}, domain.Invalid("decision", "capacity is %s, no override needed", d.Status)
	}
	var origin domain.OverrideOrigin
	var category domain.OverrideCategory
	switch p.Requester.Role {
	case domain.RoleCaseworker:
		origin, category = domain.OriginCaseworkerToSupervisor, domain.CategoryWorkloadLimitOverride
	case domain.RoleSupervisor:
		origin, category = domain.OriginSupervisorToDirector, domain.CategoryWorkloadOverrideApproval
	default:
		return OpenParams{}, domain.PolicyViolationError{
			Rule:   domain.RuleOriginRoleMismatch,
			Reason: fmt.Sprintf("workload overrides are filed by CASEWORKER or SUPERVISOR, not %q", p.Requester.Role),
		}
	}

	narrative := p.Narrative
	if narrative == "" {
		narrative = fmt.Sprintf("Caseworker workload would exceed the director-defined maximum (approx. %.1f%% of limit) when adding this case. Requesting supervisor review and potential director override.",
			d.UtilizationPercent)
	}

	severity := p.Severity
	if severity == nil && d.IncomingSeverity.Valid() {
		s := d.IncomingSeverity
		severity = &s
	}
	util := d.UtilizationPercent
	status := d.Status
	out := OpenParams{
		CaseID:         p.CaseID,
		ClientName:     p.ClientName,
		Origin:         origin,
		Category:       category,
		ReasonCategory: category.Group(),
		Justification:  narrative,
		Requester:      p.Requester,
		Context: domain.OverrideContext{
			Severity:           severity,
			RAGStatus:          p.RAGStatus,
			UtilizationPercent: &util,
			CapacityStatus:     &status,
			RelatedDimensions:  p.Dimensions,
		},
		Metadata: map[string]any{
			"source":           MetadataSource,
			"projected_points": d.ProjectedPoints,
			"max_points":       d.MaxPoints,
		},
	}
	return out, nil
}
