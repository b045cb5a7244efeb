package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"careline/internal/domain"
)

// GetPolicy returns the stored workload policy, or ErrNotFound when only the
// config default applies.
func (r Repo) GetPolicy(ctx context.Context, tx *sql.Tx) (domain.PolicyRecord, error) {
	var rec domain.PolicyRecord
	var payload string
	err := r.q(tx).QueryRowContext(ctx, `SELECT policy_json,updated_at,updated_by FROM workload_policy WHERE id=1`).
		Scan(&payload, &rec.UpdatedAt, &rec.UpdatedBy)
	if err == sql.ErrNoRows {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal([]byte(payload), &rec.Policy); err != nil {
		return rec, fmt.Errorf("decode policy: %w", err)
	}
	return rec, nil
}

func (r Repo) UpsertPolicy(ctx context.Context, tx *sql.Tx, rec domain.PolicyRecord) error {
	payload, err := json.Marshal(rec.Policy)
	if err != nil {
		return fmt.Errorf("marshal policy: %w", err)
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO workload_policy(id,policy_json,updated_at,updated_by) VALUES (1,?,?,?)
ON CONFLICT(id) DO UPDATE SET policy_json=excluded.policy_json, updated_at=excluded.updated_at, updated_by=excluded.updated_by`,
		string(payload), rec.UpdatedAt, rec.UpdatedBy)
	return err
}
