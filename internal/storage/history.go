package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// AttemptRecord is one persisted pass of the regeneration loop
type AttemptRecord struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	Index           int       `json:"index"`
	Hypothesis      string    `json:"hypothesis"`
	Tactic          string    `json:"tactic"`
	Tags            []string  `json:"tags"`
	Score           float64   `json:"score"`
	TTPScore        float64   `json:"ttp_score"`
	CorpusScore     float64   `json:"corpus_score"`
	Approved        bool      `json:"approved"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	Error           string    `json:"error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// HistoryStats aggregates the stored attempts
type HistoryStats struct {
	TotalAttempts int     `json:"total_attempts"`
	Approved      int     `json:"approved"`
	Rejected      int     `json:"rejected"`
	Errors        int     `json:"errors"`
	Sessions      int     `json:"sessions"`
	AvgScore      float64 `json:"avg_score"`
	ApprovalRate  float64 `json:"approval_rate"`
}

// AttemptStore persists generation attempts in SQLite.
type AttemptStore struct {
	db *sql.DB
}

// NewAttemptStore creates a store on an open database.
func NewAttemptStore(db *DB) *AttemptStore {
	return &AttemptStore{db: db.GetConnection()}
}

// SaveAttempts writes records in one transaction. Saving the same ID twice
// replaces the earlier row.
func (s *AttemptStore) SaveAttempts(ctx context.Context, records []AttemptRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO generation_attempts (
			id, session_id, attempt_index, hypothesis, tactic, tags, score, ttp_score,
			corpus_score, approved, rejection_reason, error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		tags := r.Tags
		if tags == nil {
			tags = []string{}
		}
		tagsJSON, err := json.Marshal(tags)
		if err != nil {
			return err
		}
		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.SessionID, r.Index, r.Hypothesis, r.Tactic, string(tagsJSON),
			r.Score, r.TTPScore, r.CorpusScore, r.Approved, r.RejectionReason, r.Error,
			createdAt.UTC().Format(timeLayout),
		); err != nil {
			return fmt.Errorf("failed to save attempt %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

const attemptColumns = `id, session_id, attempt_index, hypothesis, tactic, tags, score, ttp_score,
	corpus_score, approved, rejection_reason, error, created_at`

// ListSession returns a session's attempts in attempt order.
func (s *AttemptStore) ListSession(ctx context.Context, sessionID string) ([]AttemptRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+attemptColumns+`
		FROM generation_attempts
		WHERE session_id = ?
		ORDER BY created_at, attempt_index
	`, sessionID)
	if err != nil {
		return nil, err
	}
	return scanAttempts(rows)
}

// ListRecent returns the newest attempts first.
func (s *AttemptStore) ListRecent(ctx context.Context, limit int) ([]AttemptRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+attemptColumns+`
		FROM generation_attempts
		ORDER BY created_at DESC, attempt_index DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	return scanAttempts(rows)
}

func scanAttempts(rows *sql.Rows) ([]AttemptRecord, error) {
	defer rows.Close()

	var out []AttemptRecord
	for rows.Next() {
		var r AttemptRecord
		var tagsJSON, createdAt string
		if err := rows.Scan(
			&r.ID, &r.SessionID, &r.Index, &r.Hypothesis, &r.Tactic, &tagsJSON,
			&r.Score, &r.TTPScore, &r.CorpusScore, &r.Approved, &r.RejectionReason, &r.Error,
			&createdAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(tagsJSON), &r.Tags); err != nil {
			return nil, fmt.Errorf("attempt %s has malformed tags: %w", r.ID, err)
		}
		if parsed, err := time.Parse(timeLayout, createdAt); err == nil {
			r.CreatedAt = parsed
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stats aggregates every stored attempt. Errors are attempts that produced
// no candidate and do not count towards the approval rate.
func (s *AttemptStore) Stats(ctx context.Context) (HistoryStats, error) {
	var stats HistoryStats
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN approved = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN approved = 0 AND error = '' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN error != '' THEN 1 ELSE 0 END), 0),
			COUNT(DISTINCT session_id),
			AVG(CASE WHEN error = '' THEN score END)
		FROM generation_attempts
	`).Scan(&stats.TotalAttempts, &stats.Approved, &stats.Rejected, &stats.Errors, &stats.Sessions, &avg)
	if err != nil {
		return HistoryStats{}, err
	}
	if avg.Valid {
		stats.AvgScore = avg.Float64
	}
	if scored := stats.Approved + stats.Rejected; scored > 0 {
		stats.ApprovalRate = float64(stats.Approved) / float64(scored)
	}
	return stats, nil
}

// Prune deletes attempts created before olderThan.
func (s *AttemptStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM generation_attempts WHERE created_at < ?`,
		olderThan.UTC().Format(timeLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
