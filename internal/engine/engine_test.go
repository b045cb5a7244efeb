package engine_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"careline/internal/config"
	"careline/internal/db"
	"careline/internal/domain"
	"careline/internal/engine"
	"careline/internal/engine/auth"
	"careline/internal/engine/escalation"
	"careline/internal/engine/release"
	"careline/internal/events"
	"careline/internal/migrate"
	"careline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

// newTestEnv rosters a director (dina), a supervisor (sam) and a caseworker
// (cara) on a fresh workspace.
func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng, err := engine.New(conn, config.Default(), nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.RegisterActor(ctx, domain.ActorRecord{ID: "dina", Name: "Dina", Role: domain.RoleDirector}, ""); err != nil {
		t.Fatalf("register director: %v", err)
	}
	if _, err := eng.RegisterActor(ctx, domain.ActorRecord{ID: "sam", Name: "Sam", Role: domain.RoleSupervisor}, "dina"); err != nil {
		t.Fatalf("register supervisor: %v", err)
	}
	if _, err := eng.RegisterCaseworker(ctx, "cara", "Cara", nil, "sam"); err != nil {
		t.Fatalf("register caseworker: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) load(t *testing.T, id string) int {
	t.Helper()
	cw, err := env.Engine.Repo.GetCaseworker(env.Ctx, nil, id)
	if err != nil {
		t.Fatalf("get caseworker: %v", err)
	}
	return cw.CurrentPoints
}

func TestRosterRules(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.RegisterActor(env.Ctx, domain.ActorRecord{ID: "boss", Role: domain.RoleDirector}, "sam")
	var forbidden auth.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("supervisor granted director tier: %v", err)
	}
	_, err = env.Engine.RegisterActor(env.Ctx, domain.ActorRecord{ID: "x", Role: domain.RoleCaseworker}, "cara")
	if !errors.As(err, &forbidden) {
		t.Fatalf("caseworker managed roster: %v", err)
	}
	_, err = env.Engine.RegisterCaseworker(env.Ctx, "sam", "Sam", nil, "dina")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("supervisor rostered as caseworker: %v", err)
	}
}

func TestEvaluateCaseStoresResult(t *testing.T) {
	env := newTestEnv(t)
	ev, err := env.Engine.EvaluateCase(env.Ctx, engine.EvaluateParams{
		CaseID:  "case-1",
		Profile: domain.ConditionProfile{Physical: domain.PhysicalObservations{PainLevel: domain.Float(8)}},
		ActorID: "cara",
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if ev.Result.SuggestedSeverity != domain.SeverityModerate || ev.Result.Status != domain.RAGAmber {
		t.Fatalf("unexpected result: %+v", ev.Result)
	}
	latest, err := env.Engine.LatestEvaluation(env.Ctx, "case-1")
	if err != nil || latest.ID != ev.ID {
		t.Fatalf("latest evaluation: %v %+v", err, latest)
	}
	evts, err := env.Engine.ListEvents(env.Ctx, repo.EventFilters{CaseID: "case-1"})
	if err != nil || len(evts) != 1 || evts[0].Type != events.CaseEvaluated {
		t.Fatalf("events: %v %+v", err, evts)
	}
	if _, err := env.Engine.EvaluateCase(env.Ctx, engine.EvaluateParams{CaseID: "case-1", ActorID: "ghost"}); err == nil {
		t.Fatalf("unknown actor evaluated a case")
	}
}

func TestGreenAssignmentAddsPoints(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.CheckAssignment(env.Ctx, engine.CheckParams{
		CaseworkerID: "cara", CaseID: "case-1", Severity: domain.SeverityModerate, ActorID: "cara", Commit: true,
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Decision.Status != domain.CapacityGreen || res.Assignment == nil || res.Assignment.Status != domain.AssignmentActive {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Override != nil {
		t.Fatalf("green assignment opened an override")
	}
	if got := env.load(t, "cara"); got != 2 {
		t.Fatalf("load = %d, want 2", got)
	}
	_, err = env.Engine.CheckAssignment(env.Ctx, engine.CheckParams{
		CaseworkerID: "cara", CaseID: "case-1", Severity: domain.SeverityModerate, ActorID: "cara", Commit: true,
	})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("double assignment: %v", err)
	}
}

func TestSeverityFromLatestEvaluation(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.EvaluateCase(env.Ctx, engine.EvaluateParams{
		CaseID:  "case-1",
		Profile: domain.ConditionProfile{Physical: domain.PhysicalObservations{PainLevel: domain.Float(8)}},
		ActorID: "cara",
	}); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	res, err := env.Engine.CheckAssignment(env.Ctx, engine.CheckParams{CaseworkerID: "cara", CaseID: "case-1", ActorID: "cara"})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Decision.IncomingSeverity != domain.SeverityModerate || res.Assignment != nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if _, err := env.Engine.CheckAssignment(env.Ctx, engine.CheckParams{CaseworkerID: "cara", CaseID: "case-2", ActorID: "cara"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("missing severity: %v", err)
	}
}

func openRedOverride(t *testing.T, env testEnv) engine.CheckResult {
	t.Helper()
	if err := env.Engine.Repo.AddPoints(env.Ctx, nil, "cara", 12); err != nil {
		t.Fatalf("seed load: %v", err)
	}
	res, err := env.Engine.CheckAssignment(env.Ctx, engine.CheckParams{
		CaseworkerID: "cara", CaseID: "case-9", Severity: domain.SeveritySeverelyComplex, ActorID: "cara", Commit: true,
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Decision.Status != domain.CapacityRed || res.Decision.UtilizationPercent != 106.7 {
		t.Fatalf("unexpected decision: %+v", res.Decision)
	}
	if res.Override == nil || res.Assignment == nil || res.Assignment.Status != domain.AssignmentHeld {
		t.Fatalf("red commit should hold the assignment behind an override: %+v", res)
	}
	if res.Override.Category != domain.CategoryWorkloadLimitOverride || res.Override.Status != domain.OverridePending {
		t.Fatalf("unexpected override: %+v", res.Override)
	}
	if got := env.load(t, "cara"); got != 12 {
		t.Fatalf("held assignment changed load to %d", got)
	}
	return res
}

func TestRedOverrideApprovedByDirector(t *testing.T) {
	env := newTestEnv(t)
	res := openRedOverride(t, env)
	id := res.Override.ID

	_, err := env.Engine.ApproveOverride(env.Ctx, id, 1, "sam", "ok")
	if !errors.Is(err, domain.ErrPolicyViolation) {
		t.Fatalf("supervisor approved over-ceiling: %v", err)
	}
	_, err = env.Engine.ApproveOverride(env.Ctx, id, 2, "dina", "ok")
	if !errors.Is(err, repo.ErrVersionConflict) {
		t.Fatalf("stale version accepted: %v", err)
	}
	req, err := env.Engine.ApproveOverride(env.Ctx, id, 1, "dina", "temporary coverage")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if req.Status != domain.OverrideApproved || req.Version != 2 || len(req.DecisionLog) != 2 {
		t.Fatalf("unexpected request: %+v", req)
	}
	a, err := env.Engine.Repo.GetAssignment(env.Ctx, nil, "case-9")
	if err != nil || a.Status != domain.AssignmentActive {
		t.Fatalf("assignment not activated: %v %+v", err, a)
	}
	if got := env.load(t, "cara"); got != 16 {
		t.Fatalf("load = %d, want 16", got)
	}
}

func TestDeniedOverrideStaysDenied(t *testing.T) {
	env := newTestEnv(t)
	res := openRedOverride(t, env)
	id := res.Override.ID

	req, err := env.Engine.DenyOverride(env.Ctx, id, 1, "dina", "reassign to another caseworker")
	if err != nil {
		t.Fatalf("deny: %v", err)
	}
	_, err = env.Engine.ApproveOverride(env.Ctx, id, req.Version, "dina", "changed my mind")
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("approve after deny: %v", err)
	}
	stored, err := env.Engine.GetOverride(env.Ctx, id)
	if err != nil || stored.Status != domain.OverrideDenied || len(stored.DecisionLog) != 2 {
		t.Fatalf("stored request changed: %v %+v", err, stored)
	}
	if _, err := env.Engine.Repo.GetAssignment(env.Ctx, nil, "case-9"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("held assignment not released: %v", err)
	}
	if got := env.load(t, "cara"); got != 12 {
		t.Fatalf("load = %d, want 12", got)
	}
}

func TestMoreInfoRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	req, err := env.Engine.OpenOverride(env.Ctx, escalation.OpenParams{
		CaseID:        "case-3",
		Origin:        domain.OriginCaseworkerToSupervisor,
		Category:      domain.CategoryVarianceUseRequest,
		Justification: "Guideline variance needed for home infusion",
	}, "cara")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	req, err = env.Engine.RequestMoreInfo(env.Ctx, req.ID, req.Version, "sam", "attach the payer letter")
	if err != nil || req.Status != domain.OverrideMoreInfoRequested {
		t.Fatalf("more info: %v %+v", err, req)
	}
	if _, err := env.Engine.ResubmitOverride(env.Ctx, req.ID, req.Version, "sam", "x"); !errors.Is(err, domain.ErrPolicyViolation) {
		t.Fatalf("non-requester resubmitted: %v", err)
	}
	req, err = env.Engine.ResubmitOverride(env.Ctx, req.ID, req.Version, "cara", "Payer letter attached")
	if err != nil || req.Status != domain.OverridePending || req.Version != 3 {
		t.Fatalf("resubmit: %v %+v", err, req)
	}
	list, err := env.Engine.ListOverrides(env.Ctx, repo.OverrideFilters{Status: string(domain.OverridePending)})
	if err != nil || len(list) != 1 || list[0].Justification != "Payer letter attached" {
		t.Fatalf("list: %v %+v", err, list)
	}
}

func TestOpenOverrideUsesRosterRole(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.OpenOverride(env.Ctx, escalation.OpenParams{
		CaseID:        "case-3",
		Origin:        domain.OriginSupervisorToDirector,
		Category:      domain.CategoryVarianceApproval,
		Justification: "x",
		Requester:     domain.Actor{ID: "cara", Role: domain.RoleSupervisor},
	}, "cara")
	if !errors.Is(err, domain.ErrPolicyViolation) {
		t.Fatalf("caseworker filed a supervisor request: %v", err)
	}
}

func TestPolicyIsDirectorOnly(t *testing.T) {
	env := newTestEnv(t)
	p := domain.DefaultWorkloadPolicy()
	p.MaxPoints = 20
	_, err := env.Engine.UpdatePolicy(env.Ctx, p, "sam")
	var forbidden auth.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("supervisor changed policy: %v", err)
	}
	bad := p
	bad.AmberThreshold = 1.5
	if _, err := env.Engine.UpdatePolicy(env.Ctx, bad, "dina"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("invalid policy accepted: %v", err)
	}
	huge := p
	huge.SeverityPoints = map[domain.Severity]int{1: 1, 2: 2, 3: 3, 4: math.MaxInt}
	if _, err := env.Engine.UpdatePolicy(env.Ctx, huge, "dina"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("unbounded severity cost accepted: %v", err)
	}
	if _, err := env.Engine.UpdatePolicy(env.Ctx, p, "dina"); err != nil {
		t.Fatalf("update policy: %v", err)
	}
	rec, err := env.Engine.Policy(env.Ctx)
	if err != nil || rec.Policy.MaxPoints != 20 || rec.UpdatedBy != "dina" {
		t.Fatalf("policy: %v %+v", err, rec)
	}
	evts, err := env.Engine.ListEvents(env.Ctx, repo.EventFilters{Type: events.PolicyUpdated})
	if err != nil || len(evts) != 1 {
		t.Fatalf("policy events: %v %+v", err, evts)
	}
}

func TestReleaseCheckWithLegalOverride(t *testing.T) {
	env := newTestEnv(t)
	flags := []domain.Flag{{ID: "f1", Severity: domain.FlagCritical, Status: domain.FlagOpen}}
	if _, err := env.Engine.EvaluateCase(env.Ctx, engine.EvaluateParams{CaseID: "case-4", Flags: flags, ActorID: "cara"}); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	d, err := env.Engine.ReleaseCheck(env.Ctx, "case-4", nil, "cara")
	if err != nil {
		t.Fatalf("release check: %v", err)
	}
	if d.CanRelease || d.RiskLevel != release.RiskHigh {
		t.Fatalf("critical flag released: %+v", d)
	}
	req, err := env.Engine.OpenOverride(env.Ctx, escalation.OpenParams{
		CaseID:        "case-4",
		Origin:        domain.OriginSupervisorToDirector,
		Category:      domain.CategoryLegalLockdownApproval,
		Justification: "Court-ordered disclosure",
	}, "sam")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := env.Engine.ApproveOverride(env.Ctx, req.ID, req.Version, "dina", "approved by counsel"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	d, err = env.Engine.ReleaseCheck(env.Ctx, "case-4", nil, "cara")
	if err != nil || !d.CanRelease {
		t.Fatalf("legal override not applied: %v %+v", err, d)
	}
	if _, err := env.Engine.ReleaseCheck(env.Ctx, "case-none", nil, "cara"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("missing evaluation: %v", err)
	}
}

func TestAPIKeys(t *testing.T) {
	env := newTestEnv(t)
	secret, key, err := env.Engine.CreateAPIKey(env.Ctx, "cara", "laptop", "cara")
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	stored, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(secret))
	if err != nil || stored.ID != key.ID || stored.ActorID != "cara" {
		t.Fatalf("lookup: %v %+v", err, stored)
	}
	var forbidden auth.ForbiddenError
	if _, _, err := env.Engine.CreateAPIKey(env.Ctx, "sam", "", "cara"); !errors.As(err, &forbidden) {
		t.Fatalf("caseworker issued a key for someone else: %v", err)
	}

	if _, err := env.Engine.RegisterCaseworker(env.Ctx, "cole", "Cole", nil, "sam"); err != nil {
		t.Fatalf("register cole: %v", err)
	}
	if err := env.Engine.RevokeAPIKey(env.Ctx, key.ID, "cole"); !errors.As(err, &forbidden) {
		t.Fatalf("caseworker revoked another actor's key: %v", err)
	}
	if err := env.Engine.RevokeAPIKey(env.Ctx, key.ID, "cara"); err != nil {
		t.Fatalf("revoke own key: %v", err)
	}
	if _, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(secret)); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("revoked key still resolves: %v", err)
	}
	if err := env.Engine.RevokeAPIKey(env.Ctx, key.ID, "cara"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("second revoke: %v", err)
	}
}
