// Package escalation runs the override request lifecycle: open, approve, deny,
// request more information and resubmit. Each operation takes a request value
// and returns a new one; the caller persists it.
package escalation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"careline/internal/domain"
)

// Workflow applies override transitions. Now and NewID are injected so runs
// are reproducible under test.
type Workflow struct {
	Now   func() time.Time
	NewID func() string
}

// New returns a Workflow on the wall clock with UUID identifiers.
func New() Workflow {
	return Workflow{Now: time.Now, NewID: uuid.NewString}
}

// OpenParams describes a new override request.
type OpenParams struct {
	CaseID         string
	ClientName     string
	Origin         domain.OverrideOrigin
	Category       domain.OverrideCategory
	ReasonCategory string
	Justification  string
	Requester      domain.Actor
	CaseworkerID   string
	SupervisorID   string
	DirectorID     string
	Context        domain.OverrideContext
	Metadata       map[string]any
}

// Open validates params and returns a Pending request whose log holds the
// single REQUESTED entry.
func (w Workflow) Open(p OpenParams) (domain.OverrideRequest, error) {
	if strings.TrimSpace(p.CaseID) == "" {
		return domain.OverrideRequest{}, domain.Invalid("case_id", "required")
	}
	if !p.Origin.Valid() {
		return domain.OverrideRequest{}, domain.Invalid("origin", "unknown origin %q", p.Origin)
	}
	if !p.Category.Valid() {
		return domain.OverrideRequest{}, domain.Invalid("category", "unknown category %q", p.Category)
	}
	if p.Category.Origin() != p.Origin {
		return domain.OverrideRequest{}, domain.Invalid("category", "%s cannot be filed as %s", p.Category, p.Origin)
	}
	justification := strings.TrimSpace(p.Justification)
	if justification == "" {
		return domain.OverrideRequest{}, domain.Invalid("justification", "required")
	}
	if strings.TrimSpace(p.Requester.ID) == "" {
		return domain.OverrideRequest{}, domain.Invalid("requester", "actor id required")
	}
	if !p.Requester.Role.Valid() {
		return domain.OverrideRequest{}, domain.Invalid("requester", "unknown role %q", p.Requester.Role)
	}
	if p.Requester.Role != p.Origin.RequesterRole() {
		return domain.OverrideRequest{}, domain.PolicyViolationError{
			Rule:   domain.RuleOriginRoleMismatch,
			Reason: fmt.Sprintf("%s requests are filed by %s, not %s", p.Origin, p.Origin.RequesterRole(), p.Requester.Role),
		}
	}
	if err := validateContext(p.Category, p.Context); err != nil {
		return domain.OverrideRequest{}, err
	}

	now := w.timestamp()
	req := domain.OverrideRequest{
		ID:             w.id(),
		CaseID:         p.CaseID,
		ClientName:     p.ClientName,
		CaseworkerID:   p.CaseworkerID,
		SupervisorID:   p.SupervisorID,
		DirectorID:     p.DirectorID,
		Origin:         p.Origin,
		Category:       p.Category,
		ReasonCategory: p.ReasonCategory,
		Justification:  justification,
		Status:         domain.OverridePending,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
		Context:        cloneContext(p.Context),
		Metadata:       cloneMetadata(p.Metadata),
		DecisionLog: []domain.DecisionLogEntry{{
			ActorRole: p.Requester.Role,
			ActorID:   p.Requester.ID,
			Action:    domain.ActionRequested,
			Reason:    justification,
			At:        now,
		}},
	}
	if req.ReasonCategory == "" {
		req.ReasonCategory = p.Category.Group()
	}
	recordActor(&req, p.Requester)
	return req, nil
}

// Approve closes the request as Approved.
func (w Workflow) Approve(req domain.OverrideRequest, actor domain.Actor, reason string) (domain.OverrideRequest, error) {
	if err := ensureTransition(req, domain.ActionApproved); err != nil {
		return domain.OverrideRequest{}, err
	}
	if err := checkReviewer(req, actor); err != nil {
		return domain.OverrideRequest{}, err
	}
	if req.Context.CapacityStatus != nil && *req.Context.CapacityStatus == domain.CapacityRed && actor.Role != domain.RoleDirector {
		return domain.OverrideRequest{}, domain.PolicyViolationError{
			Rule:   domain.RuleInsufficientRole,
			Reason: "assignments over the workload ceiling need a DIRECTOR override",
		}
	}
	return w.append(req, actor, domain.ActionApproved, strings.TrimSpace(reason)), nil
}

// Deny closes the request as Denied. A reason is required.
func (w Workflow) Deny(req domain.OverrideRequest, actor domain.Actor, reason string) (domain.OverrideRequest, error) {
	if err := ensureTransition(req, domain.ActionDenied); err != nil {
		return domain.OverrideRequest{}, err
	}
	if err := checkReviewer(req, actor); err != nil {
		return domain.OverrideRequest{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.OverrideRequest{}, domain.Invalid("reason", "required when denying")
	}
	return w.append(req, actor, domain.ActionDenied, reason), nil
}

// RequestMoreInfo sends the request back to the requester.
func (w Workflow) RequestMoreInfo(req domain.OverrideRequest, actor domain.Actor, reason string) (domain.OverrideRequest, error) {
	if err := ensureTransition(req, domain.ActionMoreInfoRequested); err != nil {
		return domain.OverrideRequest{}, err
	}
	if err := checkReviewer(req, actor); err != nil {
		return domain.OverrideRequest{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.OverrideRequest{}, domain.Invalid("reason", "say what information is needed")
	}
	return w.append(req, actor, domain.ActionMoreInfoRequested, reason), nil
}

// Resubmit returns the request to Pending with an updated justification. Only
// the original requester may resubmit.
func (w Workflow) Resubmit(req domain.OverrideRequest, actor domain.Actor, justification string) (domain.OverrideRequest, error) {
	if err := ensureTransition(req, domain.ActionResubmitted); err != nil {
		return domain.OverrideRequest{}, err
	}
	_, requesterID := req.Requester()
	if actor.ID == "" || actor.ID != requesterID {
		return domain.OverrideRequest{}, domain.PolicyViolationError{
			Rule:   domain.RuleRequesterOnly,
			Reason: "only the original requester can resubmit",
		}
	}
	justification = strings.TrimSpace(justification)
	if justification == "" {
		return domain.OverrideRequest{}, domain.Invalid("justification", "required")
	}
	next := w.append(req, actor, domain.ActionResubmitted, justification)
	next.Justification = justification
	return next, nil
}

// checkReviewer enforces the tier required by the origin and forbids the
// requester from deciding their own request.
func checkReviewer(req domain.OverrideRequest, actor domain.Actor) error {
	if strings.TrimSpace(actor.ID) == "" {
		return domain.Invalid("actor", "actor id required")
	}
	if !actor.Role.Valid() {
		return domain.Invalid("actor", "unknown role %q", actor.Role)
	}
	requesterRole, requesterID := req.Requester()
	if actor.ID == requesterID || actor.Role == requesterRole {
		return domain.PolicyViolationError{
			Rule:   domain.RuleSelfApproval,
			Reason: "you cannot decide your own request",
		}
	}
	if need := req.Origin.ReviewerRole(); !actor.Role.AtLeast(need) {
		return domain.PolicyViolationError{
			Rule:   domain.RuleInsufficientRole,
			Reason: fmt.Sprintf("%s requests need %s or above, actor is %s", req.Origin, need, actor.Role),
		}
	}
	return nil
}

func validateContext(category domain.OverrideCategory, c domain.OverrideContext) error {
	if c.Severity != nil && !c.Severity.Valid() {
		return domain.Invalid("context.severity", "must be 1-4, got %d", *c.Severity)
	}
	if c.RAGStatus != nil && !c.RAGStatus.Valid() {
		return domain.Invalid("context.rag_status", "unknown status %q", *c.RAGStatus)
	}
	if c.CapacityStatus != nil && !c.CapacityStatus.Valid() {
		return domain.Invalid("context.capacity_status", "unknown status %q", *c.CapacityStatus)
	}
	for _, d := range c.RelatedDimensions {
		if !d.Valid() {
			return domain.Invalid("context.related_dimensions", "unknown dimension %q", d)
		}
	}
	if !category.IsSeverityChange() {
		if c.RequestedSeverity != nil {
			return domain.Invalid("context.requested_severity", "only severity change requests carry a requested severity")
		}
		return nil
	}
	if c.RequestedSeverity == nil {
		return domain.Invalid("context.requested_severity", "required for %s", category)
	}
	if !c.RequestedSeverity.Valid() {
		return domain.Invalid("context.requested_severity", "must be 1-4, got %d", *c.RequestedSeverity)
	}
	if c.Severity != nil && *c.Severity == *c.RequestedSeverity {
		return domain.Invalid("context.requested_severity", "already at severity %d", *c.Severity)
	}
	return nil
}

func (w Workflow) append(req domain.OverrideRequest, actor domain.Actor, action domain.DecisionAction, reason string) domain.OverrideRequest {
	now := w.timestamp()
	next := req
	next.Context = cloneContext(req.Context)
	next.Metadata = cloneMetadata(req.Metadata)
	next.DecisionLog = make([]domain.DecisionLogEntry, len(req.DecisionLog), len(req.DecisionLog)+1)
	copy(next.DecisionLog, req.DecisionLog)
	next.DecisionLog = append(next.DecisionLog, domain.DecisionLogEntry{
		ActorRole: actor.Role,
		ActorID:   actor.ID,
		Action:    action,
		Reason:    reason,
		At:        now,
	})
	next.Status = action.ResultingStatus()
	next.Version = req.Version + 1
	next.UpdatedAt = now
	recordActor(&next, actor)
	return next
}

// recordActor fills the per-role actor slot the first time that role acts.
func recordActor(req *domain.OverrideRequest, actor domain.Actor) {
	switch actor.Role {
	case domain.RoleCaseworker:
		if req.CaseworkerID == "" {
			req.CaseworkerID = actor.ID
		}
	case domain.RoleSupervisor:
		if req.SupervisorID == "" {
			req.SupervisorID = actor.ID
		}
	case domain.RoleDirector:
		if req.DirectorID == "" {
			req.DirectorID = actor.ID
		}
	}
}

func (w Workflow) timestamp() string {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	return now().UTC().Format(time.RFC3339)
}

func (w Workflow) id() string {
	if w.NewID != nil {
		return w.NewID()
	}
	return uuid.NewString()
}

func cloneContext(c domain.OverrideContext) domain.OverrideContext {
	c.Severity = clonePtr(c.Severity)
	c.RequestedSeverity = clonePtr(c.RequestedSeverity)
	c.RAGStatus = clonePtr(c.RAGStatus)
	c.VitalityScore = clonePtr(c.VitalityScore)
	c.UtilizationPercent = clonePtr(c.UtilizationPercent)
	c.CapacityStatus = clonePtr(c.CapacityStatus)
	if c.RelatedDimensions != nil {
		c.RelatedDimensions = append([]domain.Dimension(nil), c.RelatedDimensions...)
	}
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
