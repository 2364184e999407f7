package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/mohammad-safakhou/scholar/internal/research"
)

// PostgresStore persists tasks in Postgres. Scalar columns carry what the
// API filters on; the task document itself lives in jsonb.
type PostgresStore struct {
	DB *sql.DB
}

// NewPostgresStore connects to Postgres with an explicit DSN and verifies
// the connection. Schema management is the migrate command's job.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PostgresStore{DB: db}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error { return s.DB.Close() }

func (s *PostgresStore) SaveTask(ctx context.Context, task *research.ResearchTask) error {
	doc, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encoding task: %w", err)
	}
	score := sql.NullFloat64{}
	if n := len(task.FeedbackHistory); n > 0 {
		score = sql.NullFloat64{Float64: task.FeedbackHistory[n-1].OverallScore, Valid: true}
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO research_tasks (id, topic, status, retry_count, max_retries, latest_score, document, created_at, updated_at, completed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  retry_count = EXCLUDED.retry_count,
  latest_score = EXCLUDED.latest_score,
  document = EXCLUDED.document,
  updated_at = EXCLUDED.updated_at,
  completed_at = EXCLUDED.completed_at`,
		task.ID, task.Query.Topic, string(task.Status), task.RetryCount, task.MaxRetries,
		score, doc, task.CreatedAt, task.UpdatedAt, nullableTime(task.CompletedAt))
	if err != nil {
		return fmt.Errorf("saving task %s: %w", task.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetTask(ctx context.Context, id string) (*research.ResearchTask, error) {
	var doc []byte
	err := s.DB.QueryRowContext(ctx, `SELECT document FROM research_tasks WHERE id = $1`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading task %s: %w", id, err)
	}
	var task research.ResearchTask
	if err := json.Unmarshal(doc, &task); err != nil {
		return nil, fmt.Errorf("decoding task %s: %w", id, err)
	}
	return &task, nil
}

func (s *PostgresStore) ListTasks(ctx context.Context) ([]*research.ResearchTask, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT document FROM research_tasks ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	var out []*research.ResearchTask
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scanning task row: %w", err)
		}
		var task research.ResearchTask
		if err := json.Unmarshal(doc, &task); err != nil {
			return nil, fmt.Errorf("decoding task row: %w", err)
		}
		out = append(out, &task)
	}
	return out, rows.Err()
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
