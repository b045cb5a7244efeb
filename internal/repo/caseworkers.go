package repo

import (
	"context"
	"database/sql"

	"careline/internal/domain"
)

const caseworkerColumns = `c.id,COALESCE(a.name,''),c.current_points,c.max_points,c.created_at`

func scanCaseworker(scan func(...any) error) (domain.Caseworker, error) {
	var c domain.Caseworker
	var maxPoints sql.NullInt64
	if err := scan(&c.ID, &c.Name, &c.CurrentPoints, &maxPoints, &c.CreatedAt); err != nil {
		return c, err
	}
	if maxPoints.Valid {
		m := int(maxPoints.Int64)
		c.MaxPoints = &m
	}
	return c, nil
}

func (r Repo) InsertCaseworker(ctx context.Context, tx *sql.Tx, c domain.Caseworker) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO caseworkers(id,current_points,max_points,created_at) VALUES (?,?,?,?)`,
		c.ID, c.CurrentPoints, nullableIntPtr(c.MaxPoints), c.CreatedAt)
	return err
}

func (r Repo) GetCaseworker(ctx context.Context, tx *sql.Tx, id string) (domain.Caseworker, error) {
	row := r.q(tx).QueryRowContext(ctx, `SELECT `+caseworkerColumns+` FROM caseworkers c JOIN actors a ON a.id=c.id WHERE c.id=?`, id)
	c, err := scanCaseworker(row.Scan)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) ListCaseworkers(ctx context.Context) ([]domain.Caseworker, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+caseworkerColumns+` FROM caseworkers c JOIN actors a ON a.id=c.id ORDER BY c.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Caseworker
	for rows.Next() {
		c, err := scanCaseworker(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// AddPoints adjusts a caseworker's running load by delta.
func (r Repo) AddPoints(ctx context.Context, tx *sql.Tx, id string, delta int) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE caseworkers SET current_points=current_points+? WHERE id=?`, delta, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetMaxPoints sets or clears a per-caseworker ceiling.
func (r Repo) SetMaxPoints(ctx context.Context, tx *sql.Tx, id string, maxPoints *int) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE caseworkers SET max_points=? WHERE id=?`, nullableIntPtr(maxPoints), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
