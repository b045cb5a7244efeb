package domain

import (
	"fmt"
	"strings"
)

// Dimension is one of the ten 10-Vs case-quality lenses.
type Dimension string

const (
	DimVoiceView    Dimension = "V1_VOICE_VIEW"
	DimViability    Dimension = "V2_VIABILITY"
	DimVision       Dimension = "V3_VISION"
	DimVeracity     Dimension = "V4_VERACITY"
	DimVersatility  Dimension = "V5_VERSATILITY"
	DimVitality     Dimension = "V6_VITALITY"
	DimVigilance    Dimension = "V7_VIGILANCE"
	DimVerification Dimension = "V8_VERIFICATION"
	DimValue        Dimension = "V9_VALUE"
	DimValidation   Dimension = "V10_VALIDATION"
)

// Dimensions lists every dimension in V1..V10 order.
var Dimensions = []Dimension{
	DimVoiceView, DimViability, DimVision, DimVeracity, DimVersatility,
	DimVitality, DimVigilance, DimVerification, DimValue, DimValidation,
}

func (d Dimension) Valid() bool {
	switch d {
	case DimVoiceView, DimViability, DimVision, DimVeracity, DimVersatility,
		DimVitality, DimVigilance, DimVerification, DimValue, DimValidation:
		return true
	}
	return false
}

// ActionLabel is the hard-stop documentation prompt for the dimension.
func (d Dimension) ActionLabel() string {
	switch d {
	case DimVoiceView:
		return "Document Voice/View plan"
	case DimViability:
		return "Document Viability plan"
	case DimVision:
		return "Document Vision (trajectory of care) plan"
	case DimVeracity:
		return "Document Veracity (advocacy, integrity, documentation) plan"
	case DimVersatility:
		return "Document Versatility (individualized approach) plan"
	case DimVitality:
		return "Document Vitality (momentum & engagement) plan"
	case DimVigilance:
		return "Document Vigilance (risk monitoring) plan"
	case DimVerification:
		return "Document Verification (guidelines & payer alignment) plan"
	case DimValue:
		return "Document Value (outcomes/ROI) plan"
	case DimValidation:
		return "Document Validation (quality & oversight) plan"
	}
	return "Document " + string(d) + " plan"
}

// Severity is the case complexity ordinal, 1 (simple) through 4 (severely complex).
type Severity int

const (
	SeveritySimple          Severity = 1
	SeverityModerate        Severity = 2
	SeverityComplex         Severity = 3
	SeveritySeverelyComplex Severity = 4
)

func (s Severity) Valid() bool {
	return s >= SeveritySimple && s <= SeveritySeverelyComplex
}

func (s Severity) String() string {
	switch s {
	case SeveritySimple:
		return "Simple"
	case SeverityModerate:
		return "Moderate"
	case SeverityComplex:
		return "Complex"
	case SeveritySeverelyComplex:
		return "Severely Complex"
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// RAGStatus is the traffic-light classification of a case.
type RAGStatus string

const (
	RAGRed   RAGStatus = "RED"
	RAGAmber RAGStatus = "AMBER"
	RAGGreen RAGStatus = "GREEN"
)

func (s RAGStatus) Valid() bool {
	switch s {
	case RAGRed, RAGAmber, RAGGreen:
		return true
	}
	return false
}

type FlagSeverity string

const (
	FlagLow      FlagSeverity = "Low"
	FlagMedium   FlagSeverity = "Medium"
	FlagHigh     FlagSeverity = "High"
	FlagCritical FlagSeverity = "Critical"
)

func (s FlagSeverity) Valid() bool {
	switch s {
	case FlagLow, FlagMedium, FlagHigh, FlagCritical:
		return true
	}
	return false
}

// ParseFlagSeverity matches s case-insensitively. Unknown values are returned
// trimmed and unchanged.
func ParseFlagSeverity(s string) FlagSeverity {
	s = strings.TrimSpace(s)
	for _, v := range []FlagSeverity{FlagLow, FlagMedium, FlagHigh, FlagCritical} {
		if strings.EqualFold(s, string(v)) {
			return v
		}
	}
	return FlagSeverity(s)
}

// HighOrCritical reports whether the severity carries the extra severity weight.
func (s FlagSeverity) HighOrCritical() bool {
	return s == FlagHigh || s == FlagCritical
}

type FlagStatus string

const (
	FlagOpen     FlagStatus = "Open"
	FlagResolved FlagStatus = "Resolved"
)

func (s FlagStatus) Valid() bool {
	return s == FlagOpen || s == FlagResolved
}

// ParseFlagStatus matches s case-insensitively.
func ParseFlagStatus(s string) FlagStatus {
	s = strings.TrimSpace(s)
	for _, v := range []FlagStatus{FlagOpen, FlagResolved} {
		if strings.EqualFold(s, string(v)) {
			return v
		}
	}
	return FlagStatus(s)
}

// CapacityStatus classifies a caseworker's projected utilization.
type CapacityStatus string

const (
	CapacityGreen CapacityStatus = "Green"
	CapacityAmber CapacityStatus = "Amber"
	CapacityRed   CapacityStatus = "Red"
)

func (s CapacityStatus) Valid() bool {
	switch s {
	case CapacityGreen, CapacityAmber, CapacityRed:
		return true
	}
	return false
}

// ActorRole is an ordered tier; a higher tier may act wherever a lower one may.
type ActorRole string

const (
	RoleCaseworker ActorRole = "CASEWORKER"
	RoleSupervisor ActorRole = "SUPERVISOR"
	RoleDirector   ActorRole = "DIRECTOR"
)

func (r ActorRole) Valid() bool {
	return r.Tier() > 0
}

// Tier returns 1..3 for known roles and 0 otherwise.
func (r ActorRole) Tier() int {
	switch r {
	case RoleCaseworker:
		return 1
	case RoleSupervisor:
		return 2
	case RoleDirector:
		return 3
	}
	return 0
}

// AtLeast reports whether r is at or above the given tier.
func (r ActorRole) AtLeast(min ActorRole) bool {
	return r.Valid() && r.Tier() >= min.Tier()
}

// OverrideOrigin says who escalates to whom.
type OverrideOrigin string

const (
	OriginCaseworkerToSupervisor OverrideOrigin = "CASEWORKER_TO_SUPERVISOR"
	OriginSupervisorToDirector   OverrideOrigin = "SUPERVISOR_TO_DIRECTOR"
)

func (o OverrideOrigin) Valid() bool {
	return o == OriginCaseworkerToSupervisor || o == OriginSupervisorToDirector
}

// RequesterRole is the role that files requests of this origin.
func (o OverrideOrigin) RequesterRole() ActorRole {
	switch o {
	case OriginCaseworkerToSupervisor:
		return RoleCaseworker
	case OriginSupervisorToDirector:
		return RoleSupervisor
	}
	return ""
}

// ReviewerRole is the minimum role allowed to decide requests of this origin.
func (o OverrideOrigin) ReviewerRole() ActorRole {
	switch o {
	case OriginCaseworkerToSupervisor:
		return RoleSupervisor
	case OriginSupervisorToDirector:
		return RoleDirector
	}
	return ""
}

// OverrideCategory is the closed set of override request types.
type OverrideCategory string

const (
	// caseworker -> supervisor
	CategorySeverityChangeRequest  OverrideCategory = "SEVERITY_CHANGE_REQUEST"
	CategoryWorkloadLimitOverride  OverrideCategory = "WORKLOAD_LIMIT_OVERRIDE"
	CategoryVTriggerException      OverrideCategory = "V_TRIGGER_EXCEPTION"
	CategoryHighRiskSDOHUnresolved OverrideCategory = "HIGH_RISK_SDOH_UNRESOLVED"
	CategoryLateAssessment         OverrideCategory = "LATE_ASSESSMENT_DOCUMENTATION"
	CategoryFollowupOverdue        OverrideCategory = "FOLLOWUP_OVERDUE"
	CategoryTaskOverdue            OverrideCategory = "TASK_OVERDUE"
	CategoryCaseClosureRequest     OverrideCategory = "CASE_CLOSURE_REQUEST"
	CategoryCaseReopenRequest      OverrideCategory = "CASE_REOPEN_REQUEST"
	CategoryVarianceUseRequest     OverrideCategory = "VARIANCE_USE_REQUEST"
	CategoryAdminClosureOverride   OverrideCategory = "ADMIN_CLOSURE_REASON_OVERRIDE"
	CategoryCrisisEscalation       OverrideCategory = "CRISIS_ESCALATION"
	// supervisor -> director
	CategorySeverityChangeApproval   OverrideCategory = "SEVERITY_CHANGE_APPROVAL"
	CategoryWorkloadOverrideApproval OverrideCategory = "WORKLOAD_OVERRIDE_APPROVAL"
	CategoryVarianceApproval         OverrideCategory = "VARIANCE_APPROVAL"
	CategoryLegalLockdownApproval    OverrideCategory = "LEGAL_LOCKDOWN_APPROVAL"
	CategoryCoverageHandoffApproval  OverrideCategory = "COVERAGE_HANDOFF_APPROVAL"
	CategoryExtendedFollowupApproval OverrideCategory = "EXTENDED_FOLLOWUP_APPROVAL"
	CategoryRAGBlockOverride         OverrideCategory = "OVERRIDE_RAG_BLOCK"
)

// Origin returns the only origin a category may be filed under.
func (c OverrideCategory) Origin() OverrideOrigin {
	switch c {
	case CategorySeverityChangeRequest, CategoryWorkloadLimitOverride, CategoryVTriggerException,
		CategoryHighRiskSDOHUnresolved, CategoryLateAssessment, CategoryFollowupOverdue,
		CategoryTaskOverdue, CategoryCaseClosureRequest, CategoryCaseReopenRequest,
		CategoryVarianceUseRequest, CategoryAdminClosureOverride, CategoryCrisisEscalation:
		return OriginCaseworkerToSupervisor
	case CategorySeverityChangeApproval, CategoryWorkloadOverrideApproval, CategoryVarianceApproval,
		CategoryLegalLockdownApproval, CategoryCoverageHandoffApproval, CategoryExtendedFollowupApproval,
		CategoryRAGBlockOverride:
		return OriginSupervisorToDirector
	}
	return ""
}

func (c OverrideCategory) Valid() bool {
	return c.Origin() != ""
}

// Group is the reporting bucket ("Workload", "Severity", ...).
func (c OverrideCategory) Group() string {
	switch c {
	case CategorySeverityChangeRequest, CategorySeverityChangeApproval:
		return "Severity"
	case CategoryWorkloadLimitOverride, CategoryWorkloadOverrideApproval, CategoryCoverageHandoffApproval:
		return "Workload"
	case CategoryVarianceUseRequest, CategoryVarianceApproval:
		return "Variance"
	case CategoryLegalLockdownApproval:
		return "Legal"
	case CategoryVTriggerException, CategoryRAGBlockOverride, CategoryHighRiskSDOHUnresolved, CategoryCrisisEscalation:
		return "Clinical"
	case CategoryCaseClosureRequest, CategoryCaseReopenRequest, CategoryAdminClosureOverride:
		return "Case"
	case CategoryLateAssessment, CategoryFollowupOverdue, CategoryTaskOverdue, CategoryExtendedFollowupApproval:
		return "Timeliness"
	}
	return ""
}

// IsWorkload reports whether approval of the category releases a held assignment.
func (c OverrideCategory) IsWorkload() bool {
	return c == CategoryWorkloadLimitOverride || c == CategoryWorkloadOverrideApproval
}

// IsSeverityChange reports whether the category carries a requested severity.
func (c OverrideCategory) IsSeverityChange() bool {
	return c == CategorySeverityChangeRequest || c == CategorySeverityChangeApproval
}

type OverrideStatus string

const (
	OverridePending           OverrideStatus = "Pending"
	OverrideApproved          OverrideStatus = "Approved"
	OverrideDenied            OverrideStatus = "Denied"
	OverrideMoreInfoRequested OverrideStatus = "MoreInfoRequested"
)

func (s OverrideStatus) Valid() bool {
	switch s {
	case OverridePending, OverrideApproved, OverrideDenied, OverrideMoreInfoRequested:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s OverrideStatus) Terminal() bool {
	return s == OverrideApproved || s == OverrideDenied
}

// DecisionAction is what an actor did to an override request.
type DecisionAction string

const (
	ActionRequested         DecisionAction = "REQUESTED"
	ActionApproved          DecisionAction = "APPROVED"
	ActionDenied            DecisionAction = "DENIED"
	ActionMoreInfoRequested DecisionAction = "MORE_INFO_REQUESTED"
	ActionResubmitted       DecisionAction = "RESUBMITTED"
)

func (a DecisionAction) Valid() bool {
	return a.ResultingStatus() != ""
}

// ResultingStatus is the request status after the action is applied.
func (a DecisionAction) ResultingStatus() OverrideStatus {
	switch a {
	case ActionRequested, ActionResubmitted:
		return OverridePending
	case ActionApproved:
		return OverrideApproved
	case ActionDenied:
		return OverrideDenied
	case ActionMoreInfoRequested:
		return OverrideMoreInfoRequested
	}
	return ""
}
