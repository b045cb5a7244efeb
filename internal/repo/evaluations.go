package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"careline/internal/domain"
)

func (r Repo) InsertEvaluation(ctx context.Context, tx *sql.Tx, ev domain.Evaluation) error {
	profile, err := json.Marshal(ev.Profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	flags := ev.Flags
	if flags == nil {
		flags = []domain.Flag{}
	}
	flagsJSON, err := json.Marshal(flags)
	if err != nil {
		return fmt.Errorf("marshal flags: %w", err)
	}
	result, err := json.Marshal(ev.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO evaluations(id,case_id,actor_id,profile_json,flags_json,result_json,created_at) VALUES (?,?,?,?,?,?,?)`,
		ev.ID, ev.CaseID, ev.ActorID, string(profile), string(flagsJSON), string(result), ev.CreatedAt)
	return err
}

// LatestEvaluation returns the most recent evaluation stored for a case.
func (r Repo) LatestEvaluation(ctx context.Context, caseID string) (domain.Evaluation, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,case_id,actor_id,profile_json,flags_json,result_json,created_at FROM evaluations WHERE case_id=? ORDER BY created_at DESC, rowid DESC LIMIT 1`, caseID)
	var ev domain.Evaluation
	var profile, flags, result string
	err := row.Scan(&ev.ID, &ev.CaseID, &ev.ActorID, &profile, &flags, &result, &ev.CreatedAt)
	if err == sql.ErrNoRows {
		return ev, ErrNotFound
	}
	if err != nil {
		return ev, err
	}
	if err := json.Unmarshal([]byte(profile), &ev.Profile); err != nil {
		return ev, fmt.Errorf("decode profile: %w", err)
	}
	if err := json.Unmarshal([]byte(flags), &ev.Flags); err != nil {
		return ev, fmt.Errorf("decode flags: %w", err)
	}
	if err := json.Unmarshal([]byte(result), &ev.Result); err != nil {
		return ev, fmt.Errorf("decode result: %w", err)
	}
	return ev, nil
}
