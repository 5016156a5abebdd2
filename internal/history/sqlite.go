package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore persists detections in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := initSQLiteSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initSQLiteSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS detections (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			audio_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			start_s REAL NOT NULL,
			end_s REAL NOT NULL,
			speaker TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			status TEXT NOT NULL,
			confidence REAL NOT NULL,
			reason TEXT NOT NULL,
			is_warning INTEGER NOT NULL DEFAULT 0,
			pii_redacted INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_detections_session ON detections (session_id, created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *SQLiteStore) SaveDetection(ctx context.Context, record Detection) error {
	if err := validate(record); err != nil {
		return err
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO detections (id, session_id, audio_id, seq, start_s, end_s, speaker, role, content, status, confidence, reason, is_warning, pii_redacted, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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

func (s *SQLiteStore) ListDetections(ctx context.Context, sessionID string, limit int) ([]Detection, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, audio_id, seq, start_s, end_s, speaker, role, content, status, confidence, reason, is_warning, pii_redacted, created_at
		 FROM detections WHERE session_id = ? ORDER BY created_at DESC, seq DESC, rowid DESC LIMIT ?`,
		sessionID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query detections: %w", err)
	}
	defer rows.Close()

	var items []Detection
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

func (s *SQLiteStore) Mode() string { return "sqlite" }

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
