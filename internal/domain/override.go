package domain

// OverrideRequest is the auditable escalation record. Status always equals the
// status implied by the last DecisionLog entry.
type OverrideRequest struct {
	ID             string             `json:"id"`
	CaseID         string             `json:"case_id"`
	ClientName     string             `json:"client_name,omitempty"`
	CaseworkerID   string             `json:"caseworker_id,omitempty"`
	SupervisorID   string             `json:"supervisor_id,omitempty"`
	DirectorID     string             `json:"director_id,omitempty"`
	Origin         OverrideOrigin     `json:"origin" enum:"CASEWORKER_TO_SUPERVISOR,SUPERVISOR_TO_DIRECTOR"`
	Category       OverrideCategory   `json:"category"`
	ReasonCategory string             `json:"reason_category,omitempty"`
	Justification  string             `json:"justification"`
	Status         OverrideStatus     `json:"status" enum:"Pending,Approved,Denied,MoreInfoRequested"`
	Version        int                `json:"version"`
	CreatedAt      string             `json:"created_at" format:"date-time"`
	UpdatedAt      string             `json:"updated_at" format:"date-time"`
	Context        OverrideContext    `json:"context"`
	Metadata       map[string]any     `json:"metadata,omitempty"`
	DecisionLog    []DecisionLogEntry `json:"decision_log"`
}

// OverrideContext snapshots the clinical and workload picture when the request was filed.
type OverrideContext struct {
	Severity           *Severity       `json:"severity,omitempty"`
	RequestedSeverity  *Severity       `json:"requested_severity,omitempty"`
	RAGStatus          *RAGStatus      `json:"rag_status,omitempty"`
	VitalityScore      *float64        `json:"vitality_score,omitempty"`
	UtilizationPercent *float64        `json:"utilization_percent,omitempty"`
	CapacityStatus     *CapacityStatus `json:"capacity_status,omitempty"`
	RelatedDimensions  []Dimension     `json:"related_dimensions,omitempty"`
}

type DecisionLogEntry struct {
	ActorRole ActorRole      `json:"actor_role" enum:"CASEWORKER,SUPERVISOR,DIRECTOR"`
	ActorID   string         `json:"actor_id,omitempty"`
	Action    DecisionAction `json:"action" enum:"REQUESTED,APPROVED,DENIED,MORE_INFO_REQUESTED,RESUBMITTED"`
	Reason    string         `json:"reason"`
	At        string         `json:"at" format:"date-time"`
}

// Requester returns the actor who filed the request.
func (r OverrideRequest) Requester() (ActorRole, string) {
	if len(r.DecisionLog) == 0 {
		return r.Origin.RequesterRole(), ""
	}
	first := r.DecisionLog[0]
	return first.ActorRole, first.ActorID
}

// DerivedStatus recomputes status from the decision log.
func (r OverrideRequest) DerivedStatus() OverrideStatus {
	if len(r.DecisionLog) == 0 {
		return ""
	}
	return r.DecisionLog[len(r.DecisionLog)-1].Action.ResultingStatus()
}

// Actor identifies who is acting, as supplied by the authentication collaborator.
type Actor struct {
	ID   string    `json:"id"`
	Role ActorRole `json:"role" enum:"CASEWORKER,SUPERVISOR,DIRECTOR"`
}
