package repo

import (
	"context"
	"database/sql"

	"careline/internal/domain"
)

const assignmentColumns = `case_id,caseworker_id,severity,points,status,override_id,created_at,updated_at`

func scanAssignment(scan func(...any) error) (domain.Assignment, error) {
	var a domain.Assignment
	var overrideID sql.NullString
	if err := scan(&a.CaseID, &a.CaseworkerID, &a.Severity, &a.Points, &a.Status, &overrideID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return a, err
	}
	if overrideID.Valid {
		a.OverrideID = &overrideID.String
	}
	return a, nil
}

func (r Repo) InsertAssignment(ctx context.Context, tx *sql.Tx, a domain.Assignment) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO assignments(`+assignmentColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		a.CaseID, a.CaseworkerID, a.Severity, a.Points, a.Status, nullableStringPtr(a.OverrideID), a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) GetAssignment(ctx context.Context, tx *sql.Tx, caseID string) (domain.Assignment, error) {
	row := r.q(tx).QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE case_id=?`, caseID)
	a, err := scanAssignment(row.Scan)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

// GetAssignmentByOverride finds the held assignment waiting on an override.
func (r Repo) GetAssignmentByOverride(ctx context.Context, tx *sql.Tx, overrideID string) (domain.Assignment, error) {
	row := r.q(tx).QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE override_id=?`, overrideID)
	a, err := scanAssignment(row.Scan)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) UpdateAssignment(ctx context.Context, tx *sql.Tx, a domain.Assignment) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE assignments SET status=?, override_id=?, updated_at=? WHERE case_id=?`,
		a.Status, nullableStringPtr(a.OverrideID), a.UpdatedAt, a.CaseID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListAssignments(ctx context.Context, caseworkerID, status string) ([]domain.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE 1=1`
	var args []any
	if caseworkerID != "" {
		query += ` AND caseworker_id=?`
		args = append(args, caseworkerID)
	}
	if status != "" {
		query += ` AND status=?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, case_id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// DeleteAssignment drops the assignment for a case.
func (r Repo) DeleteAssignment(ctx context.Context, tx *sql.Tx, caseID string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM assignments WHERE case_id=?`, caseID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
