package escalation_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"careline/internal/domain"
	"careline/internal/engine/capacity"
	"careline/internal/engine/escalation"
)

var (
	nurse      = domain.Actor{ID: "rn-1", Role: domain.RoleCaseworker}
	otherNurse = domain.Actor{ID: "rn-2", Role: domain.RoleCaseworker}
	supervisor = domain.Actor{ID: "sup-1", Role: domain.RoleSupervisor}
	director   = domain.Actor{ID: "dir-1", Role: domain.RoleDirector}
)

func newWorkflow() escalation.Workflow {
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	return escalation.Workflow{
		Now: func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		},
		NewID: func() string {
			n++
			return fmt.Sprintf("ovr-%d", n)
		},
	}
}

func openVariance(t *testing.T, w escalation.Workflow) domain.OverrideRequest {
	t.Helper()
	req, err := w.Open(escalation.OpenParams{
		CaseID:        "case-1",
		Origin:        domain.OriginCaseworkerToSupervisor,
		Category:      domain.CategoryVarianceUseRequest,
		Justification: "client cannot travel to the in-network clinic",
		Requester:     nurse,
	})
	require.NoError(t, err)
	return req
}

func TestOpen(t *testing.T) {
	w := newWorkflow()
	req := openVariance(t, w)

	assert.Equal(t, "ovr-1", req.ID)
	assert.Equal(t, domain.OverridePending, req.Status)
	assert.Equal(t, 1, req.Version)
	assert.Equal(t, "rn-1", req.CaseworkerID)
	assert.Equal(t, "Variance", req.ReasonCategory)
	require.Len(t, req.DecisionLog, 1)
	first := req.DecisionLog[0]
	assert.Equal(t, domain.ActionRequested, first.Action)
	assert.Equal(t, domain.RoleCaseworker, first.ActorRole)
	assert.Equal(t, req.Justification, first.Reason)
	assert.Equal(t, req.CreatedAt, first.At)
}

func TestOpenRejectsBadInput(t *testing.T) {
	w := newWorkflow()
	base := escalation.OpenParams{
		CaseID:        "case-1",
		Origin:        domain.OriginCaseworkerToSupervisor,
		Category:      domain.CategoryTaskOverdue,
		Justification: "waiting on records",
		Requester:     nurse,
	}

	cases := map[string]func(p *escalation.OpenParams){
		"missing case":        func(p *escalation.OpenParams) { p.CaseID = "" },
		"blank justification": func(p *escalation.OpenParams) { p.Justification = "   " },
		"unknown category":    func(p *escalation.OpenParams) { p.Category = "COFFEE_BREAK" },
		"category for other origin": func(p *escalation.OpenParams) {
			p.Category = domain.CategoryWorkloadOverrideApproval
		},
		"requested severity on non severity category": func(p *escalation.OpenParams) {
			s := domain.SeverityComplex
			p.Context.RequestedSeverity = &s
		},
		"missing requester id": func(p *escalation.OpenParams) { p.Requester.ID = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := base
			mutate(&p)
			_, err := w.Open(p)
			require.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}

	p := base
	p.Requester = supervisor
	_, err := w.Open(p)
	var pv domain.PolicyViolationError
	require.ErrorAs(t, err, &pv)
	assert.Equal(t, domain.RuleOriginRoleMismatch, pv.Rule)
}

func TestSeverityChangeNeedsDifferentSeverity(t *testing.T) {
	w := newWorkflow()
	current := domain.SeverityModerate
	params := escalation.OpenParams{
		CaseID:        "case-9",
		Origin:        domain.OriginCaseworkerToSupervisor,
		Category:      domain.CategorySeverityChangeRequest,
		Justification: "new surgery scheduled",
		Requester:     nurse,
		Context:       domain.OverrideContext{Severity: &current},
	}

	_, err := w.Open(params)
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	same := domain.SeverityModerate
	params.Context.RequestedSeverity = &same
	_, err = w.Open(params)
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	higher := domain.SeverityComplex
	params.Context.RequestedSeverity = &higher
	req, err := w.Open(params)
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityComplex, *req.Context.RequestedSeverity)
}

func TestApproveBySupervisor(t *testing.T) {
	w := newWorkflow()
	req := openVariance(t, w)

	approved, err := w.Approve(req, supervisor, "ok for 30 days")
	require.NoError(t, err)

	assert.Equal(t, domain.OverrideApproved, approved.Status)
	assert.Equal(t, 2, approved.Version)
	assert.Equal(t, "sup-1", approved.SupervisorID)
	assert.Len(t, approved.DecisionLog, 2)
	assert.Len(t, req.DecisionLog, 1, "input request must not change")
	assert.Equal(t, domain.OverridePending, req.Status)
	assert.Equal(t, approved.Status, approved.DerivedStatus())
}

func TestMoreInfoThenResubmit(t *testing.T) {
	w := newWorkflow()
	req := openVariance(t, w)

	asked, err := w.RequestMoreInfo(req, supervisor, "which clinic?")
	require.NoError(t, err)
	assert.Equal(t, domain.OverrideMoreInfoRequested, asked.Status)

	_, err = w.Resubmit(asked, otherNurse, "someone else")
	var pv domain.PolicyViolationError
	require.ErrorAs(t, err, &pv)
	assert.Equal(t, domain.RuleRequesterOnly, pv.Rule)

	back, err := w.Resubmit(asked, nurse, "Riverside clinic, 40 miles away")
	require.NoError(t, err)
	assert.Equal(t, domain.OverridePending, back.Status)
	assert.Equal(t, "Riverside clinic, 40 miles away", back.Justification)
	assert.Equal(t, 3, back.Version)

	approved, err := w.Approve(back, director, "")
	require.NoError(t, err)
	assert.Equal(t, domain.OverrideApproved, approved.Status)
	assert.Equal(t, "dir-1", approved.DirectorID)
	assert.Len(t, approved.DecisionLog, 4)
}

func TestApproveFromMoreInfoRequested(t *testing.T) {
	w := newWorkflow()
	asked, err := w.RequestMoreInfo(openVariance(t, w), supervisor, "need dates")
	require.NoError(t, err)

	approved, err := w.Approve(asked, supervisor, "dates found in chart")
	require.NoError(t, err)
	assert.Equal(t, domain.OverrideApproved, approved.Status)
}

func TestSelfApprovalAndTier(t *testing.T) {
	w := newWorkflow()
	req := openVariance(t, w)

	_, err := w.Approve(req, nurse, "")
	var pv domain.PolicyViolationError
	require.ErrorAs(t, err, &pv)
	assert.Equal(t, domain.RuleSelfApproval, pv.Rule)

	_, err = w.Approve(req, otherNurse, "")
	require.ErrorAs(t, err, &pv)
	assert.Equal(t, domain.RuleSelfApproval, pv.Rule)

	upward, err := w.Open(escalation.OpenParams{
		CaseID:        "case-2",
		Origin:        domain.OriginSupervisorToDirector,
		Category:      domain.CategoryLegalLockdownApproval,
		Justification: "records requested under subpoena",
		Requester:     supervisor,
	})
	require.NoError(t, err)

	_, err = w.Deny(upward, nurse, "no")
	require.ErrorAs(t, err, &pv)
	assert.Equal(t, domain.RuleInsufficientRole, pv.Rule)

	_, err = w.Approve(upward, domain.Actor{ID: "sup-2", Role: domain.RoleSupervisor}, "")
	require.ErrorIs(t, err, domain.ErrPolicyViolation)
}

func TestDenyNeedsReason(t *testing.T) {
	w := newWorkflow()
	_, err := w.Deny(openVariance(t, w), supervisor, " ")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestTerminalStatesRejectEverything(t *testing.T) {
	w := newWorkflow()
	approved, err := w.Approve(openVariance(t, w), supervisor, "fine")
	require.NoError(t, err)
	denied, err := w.Deny(openVariance(t, w), supervisor, "not justified")
	require.NoError(t, err)

	attempts := map[string]func(domain.OverrideRequest) (domain.OverrideRequest, error){
		"approve": func(r domain.OverrideRequest) (domain.OverrideRequest, error) { return w.Approve(r, director, "x") },
		"deny":    func(r domain.OverrideRequest) (domain.OverrideRequest, error) { return w.Deny(r, director, "x") },
		"more info": func(r domain.OverrideRequest) (domain.OverrideRequest, error) {
			return w.RequestMoreInfo(r, director, "x")
		},
		"resubmit": func(r domain.OverrideRequest) (domain.OverrideRequest, error) { return w.Resubmit(r, nurse, "x") },
	}
	for _, closed := range []domain.OverrideRequest{approved, denied} {
		for name, attempt := range attempts {
			t.Run(string(closed.Status)+"/"+name, func(t *testing.T) {
				_, err := attempt(closed)
				require.ErrorIs(t, err, domain.ErrInvalidTransition)
				assert.Len(t, closed.DecisionLog, 2)
			})
		}
	}
}

func TestResubmitOnlyFromMoreInfo(t *testing.T) {
	w := newWorkflow()
	_, err := w.Resubmit(openVariance(t, w), nurse, "again")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestTamperedStatusRejected(t *testing.T) {
	w := newWorkflow()
	req := openVariance(t, w)
	req.Status = domain.OverrideMoreInfoRequested

	_, err := w.Resubmit(req, nurse, "sneaky")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestTransitionTable(t *testing.T) {
	assert.ElementsMatch(t,
		[]domain.DecisionAction{domain.ActionApproved, domain.ActionDenied, domain.ActionMoreInfoRequested},
		escalation.Transitions(domain.OverridePending))
	assert.True(t, escalation.CanTransition(domain.OverrideMoreInfoRequested, domain.ActionResubmitted))
	assert.Empty(t, escalation.Transitions(domain.OverrideApproved))
	assert.Empty(t, escalation.Transitions(domain.OverrideDenied))
	assert.False(t, escalation.CanTransition(domain.OverrideDenied, domain.ActionApproved))
}

func TestRedOverrideDeniedThenApproved(t *testing.T) {
	decision, err := capacity.Evaluate(12, domain.SeveritySeverelyComplex, domain.DefaultWorkloadPolicy())
	require.NoError(t, err)
	require.Equal(t, domain.CapacityRed, decision.Status)

	params, err := escalation.FromCapacityDecision(decision, escalation.WorkloadParams{
		CaseID:    "case-b",
		Requester: nurse,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryWorkloadLimitOverride, params.Category)
	assert.Contains(t, params.Justification, "106.7%")

	w := newWorkflow()
	req, err := w.Open(params)
	require.NoError(t, err)

	denied, err := w.Deny(req, director, "caseload must be rebalanced first")
	require.NoError(t, err)

	_, err = w.Approve(denied, director, "changed my mind")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	var it domain.InvalidTransitionError
	require.ErrorAs(t, err, &it)
	assert.Equal(t, domain.OverrideDenied, it.From)
	assert.Len(t, denied.DecisionLog, 2)
}

func TestRedOverrideNeedsDirectorApproval(t *testing.T) {
	decision, err := capacity.Evaluate(14, domain.SeverityComplex, domain.DefaultWorkloadPolicy())
	require.NoError(t, err)
	params, err := escalation.FromCapacityDecision(decision, escalation.WorkloadParams{CaseID: "case-r", Requester: nurse})
	require.NoError(t, err)

	w := newWorkflow()
	req, err := w.Open(params)
	require.NoError(t, err)

	_, err = w.Approve(req, supervisor, "ok")
	require.ErrorIs(t, err, domain.ErrPolicyViolation)

	approved, err := w.Approve(req, director, "temporary coverage")
	require.NoError(t, err)
	assert.Equal(t, domain.OverrideApproved, approved.Status)
}

func TestFromCapacityDecision(t *testing.T) {
	green, err := capacity.Evaluate(0, domain.SeveritySimple, domain.DefaultWorkloadPolicy())
	require.NoError(t, err)
	_, err = escalation.FromCapacityDecision(green, escalation.WorkloadParams{CaseID: "c", Requester: nurse})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	amber, err := capacity.Evaluate(10, domain.SeveritySimple, domain.DefaultWorkloadPolicy())
	require.NoError(t, err)
	params, err := escalation.FromCapacityDecision(amber, escalation.WorkloadParams{CaseID: "c", Requester: supervisor, Narrative: "covering leave"})
	require.NoError(t, err)
	assert.Equal(t, domain.OriginSupervisorToDirector, params.Origin)
	assert.Equal(t, domain.CategoryWorkloadOverrideApproval, params.Category)
	assert.Equal(t, "covering leave", params.Justification)
	assert.Equal(t, escalation.MetadataSource, params.Metadata["source"])

	_, err = escalation.FromCapacityDecision(amber, escalation.WorkloadParams{CaseID: "c", Requester: director})
	require.ErrorIs(t, err, domain.ErrPolicyViolation)
}
