package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists detections in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initPostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS detections (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			audio_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			start_s DOUBLE PRECISION NOT NULL,
			end_s DOUBLE PRECISION NOT NULL,
			speaker TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			status TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			reason TEXT NOT NULL,
			is_warning BOOLEAN NOT NULL DEFAULT FALSE,
			pii_redacted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_detections_session_created ON detections (session_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveDetection(ctx context.Context, record Detection) error {
	if err := validate(record); err != nil {
		return err
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO detections (id, session_id, audio_id, seq, start_s, end_s, speaker, role, content, status, confidence, reason, is_warning, pii_redacted, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		record.ID,
		record.SessionID,
		record.AudioID,
		record.Index,
		record.Start,
		record.End,
		record.Speaker,
		record.Role,
		record.Text,
		record.Status,
		record.Confidence,
		record.Reason,
		record.IsWarning,
		record.PIIRedacted,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save detection: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDetections(ctx context.Context, sessionID string, limit int) ([]Detection, error) {
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, audio_id, seq, start_s, end_s, speaker, role, content, status, confidence, reason, is_warning, pii_redacted, created_at
		 FROM detections WHERE session_id=$1 ORDER BY created_at DESC, seq DESC LIMIT $2`,
		sessionID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query detections: %w", err)
	}
	defer rows.Close()

	items := make([]Detection, 0, 16)
	for rows.Next() {
		var r Detection
		if err := rows.Scan(&r.ID, &r.SessionID, &r.AudioID, &r.Index, &r.Start, &r.End, &r.Speaker, &r.Role,
			&r.Text, &r.Status, &r.Confidence, &r.Reason, &r.IsWarning, &r.PIIRedacted, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan detection row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate detection rows: %w", err)
	}

	reverse(items)
	return items, nil
}

func (s *PostgresStore) Mode() string { return "postgres" }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// reverse puts newest-first query results back into emission order.
func reverse(items []Detection) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}
