package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"careline/internal/domain"
	"careline/internal/engine/auth"
	"careline/internal/engine/release"
	"careline/internal/events"
	"careline/internal/repo"
)

type EvaluateParams struct {
	CaseID  string
	Profile domain.ConditionProfile
	Flags   []domain.Flag
	Client  domain.ClientContext
	ActorID string
}

// EvaluateCase runs the trigger engine plus the configured custom rules and
// stores the result against the case.
func (e Engine) EvaluateCase(ctx context.Context, p EvaluateParams) (domain.Evaluation, error) {
	caseID := strings.TrimSpace(p.CaseID)
	if caseID == "" {
		return domain.Evaluation{}, domain.Invalid("case_id", "required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Evaluation{}, err
	}
	defer tx.Rollback()

	if _, err := e.Auth.Require(ctx, tx, p.ActorID, auth.PermCaseEvaluate); err != nil {
		return domain.Evaluation{}, err
	}
	flags := p.Flags
	if flags == nil {
		flags = []domain.Flag{}
	}
	ev := domain.Evaluation{
		ID:        uuid.NewString(),
		CaseID:    caseID,
		ActorID:   p.ActorID,
		Profile:   p.Profile,
		Flags:     flags,
		Result:    e.Rules.Evaluate(p.Profile, flags, p.Client),
		CreatedAt: e.timestamp(),
	}
	if err := e.Repo.InsertEvaluation(ctx, tx, ev); err != nil {
		return domain.Evaluation{}, fmt.Errorf("insert evaluation: %w", err)
	}
	if err := e.audit().Append(ctx, tx, events.CaseEvaluated, caseID, "evaluation", ev.ID, p.ActorID, events.EventPayload{
		"suggested_severity": ev.Result.SuggestedSeverity,
		"severity_points":    ev.Result.SeverityPoints,
		"vitality_score":     ev.Result.VitalityScore,
		"status":             ev.Result.Status,
		"dimensions":         ev.Result.TriggeredDimensions(),
	}); err != nil {
		return domain.Evaluation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Evaluation{}, err
	}
	e.log().Info("case evaluated",
		zap.String("case_id", caseID),
		zap.String("actor_id", p.ActorID),
		zap.Int("severity", int(ev.Result.SuggestedSeverity)),
		zap.String("status", string(ev.Result.Status)))
	return ev, nil
}

// LatestEvaluation returns the most recent stored evaluation for a case.
func (e Engine) LatestEvaluation(ctx context.Context, caseID string) (domain.Evaluation, error) {
	return e.Repo.LatestEvaluation(ctx, caseID)
}

// CodeLegalOverride marks a release allowed by an approved legal lock-down override.
const CodeLegalOverride = "LEGAL_LOCKDOWN_OVERRIDE"

// ReleaseCheck runs the release gate against the case's latest evaluation.
// An approved LEGAL_LOCKDOWN_APPROVAL override on the case carries blocking
// issues.
func (e Engine) ReleaseCheck(ctx context.Context, caseID string, tasks []domain.Task, actorID string) (release.Decision, error) {
	if strings.TrimSpace(caseID) == "" {
		return release.Decision{}, domain.Invalid("case_id", "required")
	}
	if _, err := e.Auth.Require(ctx, nil, actorID, auth.PermReleaseCheck); err != nil {
		return release.Decision{}, err
	}
	ev, err := e.Repo.LatestEvaluation(ctx, caseID)
	if err != nil {
		return release.Decision{}, fmt.Errorf("case %s has no evaluation: %w", caseID, err)
	}
	opts := release.Options{}
	if e.Config != nil {
		opts.Reminders = e.Config.Release.Reminders
	}
	d := release.Evaluate(ev.Result, ev.Flags, tasks, e.now(), opts)
	if !d.CanRelease {
		approved, err := e.Repo.ListOverrides(ctx, repo.OverrideFilters{CaseID: caseID, Status: string(domain.OverrideApproved)})
		if err != nil {
			return release.Decision{}, err
		}
		for _, o := range approved {
			if o.Category != domain.CategoryLegalLockdownApproval {
				continue
			}
			d.CanRelease = true
			d.Issues = append(d.Issues, release.Issue{
				Code:     CodeLegalOverride,
				Severity: release.IssueInfo,
				Message:  fmt.Sprintf("Blocking issues carried by approved override %s.", o.ID),
			})
			break
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return d, err
	}
	defer tx.Rollback()
	if err := e.audit().Append(ctx, tx, events.ReleaseChecked, caseID, "case", caseID, actorID, events.EventPayload{
		"can_release": d.CanRelease,
		"risk_level":  d.RiskLevel,
		"blocking":    len(d.Blocking()),
	}); err != nil {
		return d, err
	}
	if err := tx.Commit(); err != nil {
		return d, err
	}
	return d, nil
}
