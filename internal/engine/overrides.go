package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"careline/internal/domain"
	"careline/internal/engine/auth"
	"careline/internal/engine/escalation"
	"careline/internal/events"
	"careline/internal/repo"
)

// OpenOverride files a new request. The requester's role comes from the
// roster, not from params.
func (e Engine) OpenOverride(ctx context.Context, p escalation.OpenParams, actorID string) (domain.OverrideRequest, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.OverrideRequest{}, err
	}
	defer tx.Rollback()

	actor, err := e.Auth.Require(ctx, tx, actorID, auth.PermOverrideOpen)
	if err != nil {
		return domain.OverrideRequest{}, err
	}
	p.Requester = actor
	req, err := e.workflow().Open(p)
	if err != nil {
		return domain.OverrideRequest{}, err
	}
	if err := e.Repo.InsertOverride(ctx, tx, req); err != nil {
		return domain.OverrideRequest{}, fmt.Errorf("insert override: %w", err)
	}
	if err := e.audit().Append(ctx, tx, events.OverrideOpened, req.CaseID, "override", req.ID, actor.ID, events.EventPayload{
		"origin":   req.Origin,
		"category": req.Category,
	}); err != nil {
		return domain.OverrideRequest{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.OverrideRequest{}, err
	}
	e.log().Info("override opened",
		zap.String("override_id", req.ID),
		zap.String("case_id", req.CaseID),
		zap.String("category", string(req.Category)),
		zap.String("actor_id", actor.ID))
	return req, nil
}

// GetOverride loads one request.
func (e Engine) GetOverride(ctx context.Context, id string) (domain.OverrideRequest, error) {
	return e.Repo.GetOverride(ctx, nil, id)
}

// ListOverrides filters requests newest first.
func (e Engine) ListOverrides(ctx context.Context, f repo.OverrideFilters) ([]domain.OverrideRequest, error) {
	return e.Repo.ListOverrides(ctx, f)
}

// ApproveOverride approves a request. Approving a workload override
// activates the held assignment and adds its points to the caseworker.
func (e Engine) ApproveOverride(ctx context.Context, id string, expectedVersion int, actorID, reason string) (domain.OverrideRequest, error) {
	return e.transition(ctx, id, expectedVersion, actorID, events.OverrideApproved,
		func(w escalation.Workflow, req domain.OverrideRequest, a domain.Actor) (domain.OverrideRequest, error) {
			return w.Approve(req, a, reason)
		})
}

// DenyOverride denies a request. Denying a workload override releases the
// held assignment.
func (e Engine) DenyOverride(ctx context.Context, id string, expectedVersion int, actorID, reason string) (domain.OverrideRequest, error) {
	return e.transition(ctx, id, expectedVersion, actorID, events.OverrideDenied,
		func(w escalation.Workflow, req domain.OverrideRequest, a domain.Actor) (domain.OverrideRequest, error) {
			return w.Deny(req, a, reason)
		})
}

func (e Engine) RequestMoreInfo(ctx context.Context, id string, expectedVersion int, actorID, reason string) (domain.OverrideRequest, error) {
	return e.transition(ctx, id, expectedVersion, actorID, events.OverrideMoreInfo,
		func(w escalation.Workflow, req domain.OverrideRequest, a domain.Actor) (domain.OverrideRequest, error) {
			return w.RequestMoreInfo(req, a, reason)
		})
}

func (e Engine) ResubmitOverride(ctx context.Context, id string, expectedVersion int, actorID, justification string) (domain.OverrideRequest, error) {
	return e.transition(ctx, id, expectedVersion, actorID, events.OverrideResubmitted,
		func(w escalation.Workflow, req domain.OverrideRequest, a domain.Actor) (domain.OverrideRequest, error) {
			return w.Resubmit(req, a, justification)
		})
}

type transitionFunc func(w escalation.Workflow, req domain.OverrideRequest, a domain.Actor) (domain.OverrideRequest, error)

// transition loads the request, checks the caller's expected version, applies
// fn and persists the result with a version guard. expectedVersion 0 skips the
// caller check but the store guard still applies.
func (e Engine) transition(ctx context.Context, id string, expectedVersion int, actorID, evtType string, fn transitionFunc) (domain.OverrideRequest, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.OverrideRequest{}, err
	}
	defer tx.Rollback()

	actor, err := e.Auth.Actor(ctx, tx, actorID)
	if err != nil {
		return domain.OverrideRequest{}, err
	}
	req, err := e.Repo.GetOverride(ctx, tx, id)
	if err != nil {
		return domain.OverrideRequest{}, err
	}
	if expectedVersion > 0 && req.Version != expectedVersion {
		return req, fmt.Errorf("override %s is at version %d, not %d: %w", id, req.Version, expectedVersion, repo.ErrVersionConflict)
	}
	next, err := fn(e.workflow(), req, actor)
	if err != nil {
		return req, err
	}
	if err := e.Repo.UpdateOverride(ctx, tx, next, req.Version); err != nil {
		return req, err
	}
	last := next.DecisionLog[len(next.DecisionLog)-1]
	if err := e.audit().Append(ctx, tx, evtType, next.CaseID, "override", next.ID, actor.ID, events.EventPayload{
		"from":    req.Status,
		"to":      next.Status,
		"reason":  last.Reason,
		"version": next.Version,
	}); err != nil {
		return req, err
	}
	if next.Category.IsWorkload() {
		if err := e.settleAssignment(ctx, tx, next, actor.ID); err != nil {
			return req, err
		}
	}
	if err := tx.Commit(); err != nil {
		return req, err
	}
	e.log().Info("override transition",
		zap.String("override_id", next.ID),
		zap.String("from", string(req.Status)),
		zap.String("to", string(next.Status)),
		zap.String("actor_id", actor.ID),
		zap.Int("version", next.Version))
	return next, nil
}

// settleAssignment activates or releases the assignment held behind a
// workload override once the override is decided.
func (e Engine) settleAssignment(ctx context.Context, tx *sql.Tx, req domain.OverrideRequest, actorID string) error {
	if !req.Status.Terminal() {
		return nil
	}
	a, err := e.Repo.GetAssignmentByOverride(ctx, tx, req.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if a.Status != domain.AssignmentHeld {
		return nil
	}
	if req.Status == domain.OverrideDenied {
		if err := e.Repo.DeleteAssignment(ctx, tx, a.CaseID); err != nil {
			return err
		}
		return e.audit().Append(ctx, tx, events.AssignmentReleased, a.CaseID, "assignment", a.CaseID, actorID, events.EventPayload{
			"caseworker_id": a.CaseworkerID,
			"override_id":   req.ID,
		})
	}
	a.Status = domain.AssignmentActive
	a.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateAssignment(ctx, tx, a); err != nil {
		return err
	}
	if err := e.Repo.AddPoints(ctx, tx, a.CaseworkerID, a.Points); err != nil {
		return err
	}
	return e.audit().Append(ctx, tx, events.AssignmentActivated, a.CaseID, "assignment", a.CaseID, actorID, events.EventPayload{
		"caseworker_id": a.CaseworkerID,
		"points":        a.Points,
		"override_id":   req.ID,
	})
}
