package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"careline/internal/domain"
)

func (r Repo) InsertOverride(ctx context.Context, tx *sql.Tx, req domain.OverrideRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal override: %w", err)
	}
	_, requesterID := req.Requester()
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO override_requests(id,case_id,origin,category,status,version,requester_id,body_json,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		req.ID, req.CaseID, req.Origin, req.Category, req.Status, req.Version, requesterID, string(body), req.CreatedAt, req.UpdatedAt)
	return err
}

// UpdateOverride stores req only if the stored row is still at expectedVersion.
func (r Repo) UpdateOverride(ctx context.Context, tx *sql.Tx, req domain.OverrideRequest, expectedVersion int) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal override: %w", err)
	}
	res, err := r.q(tx).ExecContext(ctx, `UPDATE override_requests SET status=?, version=?, body_json=?, updated_at=? WHERE id=? AND version=?`,
		req.Status, req.Version, string(body), req.UpdatedAt, req.ID, expectedVersion)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetOverride(ctx, tx, req.ID); err != nil {
			return err
		}
		return ErrVersionConflict
	}
	return nil
}

func (r Repo) GetOverride(ctx context.Context, tx *sql.Tx, id string) (domain.OverrideRequest, error) {
	var body string
	err := r.q(tx).QueryRowContext(ctx, `SELECT body_json FROM override_requests WHERE id=?`, id).Scan(&body)
	if err == sql.ErrNoRows {
		return domain.OverrideRequest{}, ErrNotFound
	}
	if err != nil {
		return domain.OverrideRequest{}, err
	}
	return decodeOverride(body)
}

type OverrideFilters struct {
	CaseID      string
	Status      string
	Origin      string
	RequesterID string
	Limit       int
}

func (r Repo) ListOverrides(ctx context.Context, f OverrideFilters) ([]domain.OverrideRequest, error) {
	var clauses []string
	var args []any
	if f.CaseID != "" {
		clauses = append(clauses, "case_id=?")
		args = append(args, f.CaseID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Origin != "" {
		clauses = append(clauses, "origin=?")
		args = append(args, f.Origin)
	}
	if f.RequesterID != "" {
		clauses = append(clauses, "requester_id=?")
		args = append(args, f.RequesterID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT body_json FROM override_requests ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.OverrideRequest
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		req, err := decodeOverride(body)
		if err != nil {
			return nil, err
		}
		res = append(res, req)
	}
	return res, rows.Err()
}

func decodeOverride(body string) (domain.OverrideRequest, error) {
	var req domain.OverrideRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return req, fmt.Errorf("decode override: %w", err)
	}
	return req, nil
}
