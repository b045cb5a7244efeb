package repo_test

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"careline/internal/domain"
	"careline/internal/repo"
)

func newMock(t *testing.T) (repo.Repo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return repo.Repo{DB: db}, mock
}

func sampleOverride() domain.OverrideRequest {
	return domain.OverrideRequest{
		ID:            "ovr-1",
		CaseID:        "case-1",
		Origin:        domain.OriginCaseworkerToSupervisor,
		Category:      domain.CategoryTaskOverdue,
		Justification: "records delayed",
		Status:        domain.OverrideApproved,
		Version:       2,
		CreatedAt:     "2026-03-01T09:00:00Z",
		UpdatedAt:     "2026-03-01T10:00:00Z",
		DecisionLog: []domain.DecisionLogEntry{
			{ActorRole: domain.RoleCaseworker, ActorID: "rn-1", Action: domain.ActionRequested, Reason: "records delayed"},
			{ActorRole: domain.RoleSupervisor, ActorID: "sup-1", Action: domain.ActionApproved},
		},
	}
}

func TestUpdateOverrideChecksVersion(t *testing.T) {
	r, mock := newMock(t)
	ctx := context.Background()
	req := sampleOverride()
	body, err := json.Marshal(req)
	require.NoError(t, err)

	update := regexp.QuoteMeta(`UPDATE override_requests SET status=?, version=?, body_json=?, updated_at=? WHERE id=? AND version=?`)
	selectBody := regexp.QuoteMeta(`SELECT body_json FROM override_requests WHERE id=?`)

	mock.ExpectExec(update).
		WithArgs(req.Status, req.Version, sqlmock.AnyArg(), req.UpdatedAt, req.ID, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, r.UpdateOverride(ctx, nil, req, 1))

	mock.ExpectExec(update).
		WithArgs(req.Status, req.Version, sqlmock.AnyArg(), req.UpdatedAt, req.ID, 1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(selectBody).
		WithArgs(req.ID).
		WillReturnRows(sqlmock.NewRows([]string{"body_json"}).AddRow(string(body)))
	err = r.UpdateOverride(ctx, nil, req, 1)
	assert.ErrorIs(t, err, repo.ErrVersionConflict)

	mock.ExpectExec(update).
		WithArgs(req.Status, req.Version, sqlmock.AnyArg(), req.UpdatedAt, req.ID, 1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(selectBody).
		WithArgs(req.ID).
		WillReturnRows(sqlmock.NewRows([]string{"body_json"}))
	err = r.UpdateOverride(ctx, nil, req, 1)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOverrideDecodesBody(t *testing.T) {
	r, mock := newMock(t)
	req := sampleOverride()
	body, err := json.Marshal(req)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT body_json FROM override_requests WHERE id=?`)).
		WithArgs("ovr-1").
		WillReturnRows(sqlmock.NewRows([]string{"body_json"}).AddRow(string(body)))

	got, err := r.GetOverride(context.Background(), nil, "ovr-1")
	require.NoError(t, err)
	assert.Equal(t, req, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertOverrideStoresRequester(t *testing.T) {
	r, mock := newMock(t)
	req := sampleOverride()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO override_requests`)).
		WithArgs(req.ID, req.CaseID, req.Origin, req.Category, req.Status, req.Version, "rn-1", sqlmock.AnyArg(), req.CreatedAt, req.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, r.InsertOverride(context.Background(), nil, req))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCaseworkerLoad(t *testing.T) {
	r, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM caseworkers c JOIN actors a ON a.id=c.id WHERE c.id=?`)).
		WithArgs("rn-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "current_points", "max_points", "created_at"}).
			AddRow("rn-1", "Ana", 12, nil, "2026-01-01T00:00:00Z"))
	cw, err := r.GetCaseworker(ctx, nil, "rn-1")
	require.NoError(t, err)
	assert.Equal(t, 12, cw.CurrentPoints)
	assert.Nil(t, cw.MaxPoints)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM caseworkers c JOIN actors a ON a.id=c.id WHERE c.id=?`)).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "current_points", "max_points", "created_at"}))
	_, err = r.GetCaseworker(ctx, nil, "ghost")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE caseworkers SET current_points=current_points+? WHERE id=?`)).
		WithArgs(4, "rn-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, r.AddPoints(ctx, nil, "rn-1", 4))

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE caseworkers SET current_points=current_points+? WHERE id=?`)).
		WithArgs(4, "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, r.AddPoints(ctx, nil, "ghost", 4), repo.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPolicy(t *testing.T) {
	r, mock := newMock(t)
	policy := domain.DefaultWorkloadPolicy()
	policy.MaxPoints = 20
	payload, err := json.Marshal(policy)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT policy_json,updated_at,updated_by FROM workload_policy WHERE id=1`)).
		WillReturnRows(sqlmock.NewRows([]string{"policy_json", "updated_at", "updated_by"}).
			AddRow(string(payload), "2026-02-01T00:00:00Z", "dir-1"))

	rec, err := r.GetPolicy(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 20, rec.Policy.MaxPoints)
	assert.Equal(t, 4, rec.Policy.SeverityPoints[domain.SeveritySeverelyComplex])
	assert.Equal(t, "dir-1", rec.UpdatedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestEventsFilters(t *testing.T) {
	r, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM events WHERE 1=1 AND case_id=? AND type=? ORDER BY id DESC LIMIT ?`)).
		WithArgs("case-1", "override.opened", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "ts", "type", "case_id", "entity_kind", "entity_id", "actor_id", "payload_json"}).
			AddRow(7, "2026-03-01T09:00:00Z", "override.opened", "case-1", "override", "ovr-1", "rn-1", `{"category":"TASK_OVERDUE"}`))

	evts, err := r.LatestEvents(context.Background(), repo.EventFilters{CaseID: "case-1", Type: "override.opened", Limit: 10})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, int64(7), evts[0].ID)
	assert.Equal(t, "ovr-1", evts[0].EntityID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
