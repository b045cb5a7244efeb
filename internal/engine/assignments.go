package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"careline/internal/domain"
	"careline/internal/engine/auth"
	"careline/internal/engine/capacity"
	"careline/internal/engine/escalation"
	"careline/internal/events"
	"careline/internal/repo"
)

type CheckParams struct {
	CaseworkerID string
	CaseID       string
	ClientName   string
	// Severity of the incoming case. Zero means use the case's latest
	// evaluation.
	Severity domain.Severity
	ActorID  string
	// Commit places the case on the caseworker's load. Green and Amber
	// assignments become active at once; Red ones are held behind a workload
	// override opened in the actor's name.
	Commit    bool
	Narrative string
}

type CheckResult struct {
	Decision   domain.CapacityDecision `json:"decision"`
	Assignment *domain.Assignment      `json:"assignment,omitempty"`
	Override   *domain.OverrideRequest `json:"override,omitempty"`
}

// CheckAssignment runs the capacity gate for adding a case to a caseworker.
func (e Engine) CheckAssignment(ctx context.Context, p CheckParams) (CheckResult, error) {
	caseID := strings.TrimSpace(p.CaseID)
	if p.Commit && caseID == "" {
		return CheckResult{}, domain.Invalid("case_id", "required to commit an assignment")
	}
	var ev *domain.Evaluation
	if caseID != "" {
		latest, err := e.Repo.LatestEvaluation(ctx, caseID)
		switch {
		case err == nil:
			ev = &latest
		case !errors.Is(err, repo.ErrNotFound):
			return CheckResult{}, err
		}
	}
	severity := p.Severity
	if severity == 0 && ev != nil {
		severity = ev.Result.SuggestedSeverity
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return CheckResult{}, err
	}
	defer tx.Rollback()

	actor, err := e.Auth.Require(ctx, tx, p.ActorID, auth.PermCapacityCheck)
	if err != nil {
		return CheckResult{}, err
	}
	cw, err := e.Repo.GetCaseworker(ctx, tx, p.CaseworkerID)
	if err != nil {
		return CheckResult{}, fmt.Errorf("caseworker %s: %w", p.CaseworkerID, err)
	}
	pol, err := e.policy(ctx, tx)
	if err != nil {
		return CheckResult{}, err
	}
	policy := pol.Policy
	if cw.MaxPoints != nil {
		policy.MaxPoints = *cw.MaxPoints
	}
	decision, err := capacity.Evaluate(cw.CurrentPoints, severity, policy)
	if err != nil {
		return CheckResult{}, err
	}
	res := CheckResult{Decision: decision}
	if err := e.audit().Append(ctx, tx, events.CapacityChecked, caseID, "caseworker", cw.ID, actor.ID, events.EventPayload{
		"status":              decision.Status,
		"projected_points":    decision.ProjectedPoints,
		"max_points":          decision.MaxPoints,
		"utilization_percent": decision.UtilizationPercent,
		"commit":              p.Commit,
	}); err != nil {
		return CheckResult{}, err
	}

	if p.Commit {
		if _, err := e.Repo.GetAssignment(ctx, tx, caseID); err == nil {
			return CheckResult{}, domain.Invalid("case_id", "case %s is already assigned", caseID)
		} else if !errors.Is(err, repo.ErrNotFound) {
			return CheckResult{}, err
		}
		now := e.timestamp()
		a := domain.Assignment{
			CaseID:       caseID,
			CaseworkerID: cw.ID,
			Severity:     severity,
			Points:       decision.IncomingPoints,
			Status:       domain.AssignmentActive,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if decision.AllowAssignment {
			if err := e.Repo.InsertAssignment(ctx, tx, a); err != nil {
				return CheckResult{}, fmt.Errorf("insert assignment: %w", err)
			}
			if err := e.Repo.AddPoints(ctx, tx, cw.ID, a.Points); err != nil {
				return CheckResult{}, err
			}
		} else {
			wp := escalation.WorkloadParams{
				CaseID:     caseID,
				ClientName: p.ClientName,
				Requester:  actor,
				Narrative:  p.Narrative,
			}
			if ev != nil {
				rag := ev.Result.Status
				wp.RAGStatus = &rag
				wp.Dimensions = ev.Result.TriggeredDimensions()
			}
			params, err := escalation.FromCapacityDecision(decision, wp)
			if err != nil {
				return CheckResult{}, err
			}
			params.CaseworkerID = cw.ID
			req, err := e.workflow().Open(params)
			if err != nil {
				return CheckResult{}, err
			}
			if err := e.Repo.InsertOverride(ctx, tx, req); err != nil {
				return CheckResult{}, fmt.Errorf("insert override: %w", err)
			}
			if err := e.audit().Append(ctx, tx, events.OverrideOpened, caseID, "override", req.ID, actor.ID, events.EventPayload{
				"origin":   req.Origin,
				"category": req.Category,
			}); err != nil {
				return CheckResult{}, err
			}
			a.Status = domain.AssignmentHeld
			a.OverrideID = &req.ID
			if err := e.Repo.InsertAssignment(ctx, tx, a); err != nil {
				return CheckResult{}, fmt.Errorf("insert assignment: %w", err)
			}
			res.Override = &req
		}
		if err := e.audit().Append(ctx, tx, events.AssignmentCreated, caseID, "assignment", caseID, actor.ID, events.EventPayload{
			"caseworker_id": cw.ID,
			"points":        a.Points,
			"status":        a.Status,
		}); err != nil {
			return CheckResult{}, err
		}
		res.Assignment = &a
	}
	if err := tx.Commit(); err != nil {
		return CheckResult{}, err
	}
	e.log().Info("capacity checked",
		zap.String("case_id", caseID),
		zap.String("caseworker_id", cw.ID),
		zap.String("status", string(decision.Status)),
		zap.Float64("utilization_percent", decision.UtilizationPercent),
		zap.Bool("commit", p.Commit))
	return res, nil
}

// ListCaseworkers returns the roster with current loads.
func (e Engine) ListCaseworkers(ctx context.Context) ([]domain.Caseworker, error) {
	return e.Repo.ListCaseworkers(ctx)
}

// ListAssignments filters assignments by caseworker and status.
func (e Engine) ListAssignments(ctx context.Context, caseworkerID, status string) ([]domain.Assignment, error) {
	return e.Repo.ListAssignments(ctx, caseworkerID, status)
}
