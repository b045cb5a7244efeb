package repo

import (
	"context"
	"database/sql"

	"careline/internal/domain"
)

func (r Repo) InsertActor(ctx context.Context, tx *sql.Tx, a domain.ActorRecord) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO actors(id,name,role,created_at) VALUES (?,?,?,?)`,
		a.ID, nullable(a.Name), a.Role, a.CreatedAt)
	return err
}

func (r Repo) GetActor(ctx context.Context, tx *sql.Tx, id string) (domain.ActorRecord, error) {
	var a domain.ActorRecord
	err := r.q(tx).QueryRowContext(ctx, `SELECT id,COALESCE(name,''),role,created_at FROM actors WHERE id=?`, id).
		Scan(&a.ID, &a.Name, &a.Role, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) ListActors(ctx context.Context, role domain.ActorRole) ([]domain.ActorRecord, error) {
	query := `SELECT id,COALESCE(name,''),role,created_at FROM actors`
	var args []any
	if role != "" {
		query += ` WHERE role=?`
		args = append(args, role)
	}
	query += ` ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ActorRecord
	for rows.Next() {
		var a domain.ActorRecord
		if err := rows.Scan(&a.ID, &a.Name, &a.Role, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// CountActors reports the roster size.
func (r Repo) CountActors(ctx context.Context, tx *sql.Tx) (int, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM actors`).Scan(&n)
	return n, err
}
