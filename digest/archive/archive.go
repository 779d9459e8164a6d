// Package archive persists generated digest documents in a local SQLite
// database so past digests stay queryable after the session that produced
// them is gone.
package archive

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/theimaginaryfoundation/inbox-o-matic/digest"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps a SQLite connection holding archived digests.
type Store struct {
	db *sql.DB
}

// Record is one archived digest row.
type Record struct {
	ID          string
	UserID      string
	SessionID   string
	GeneratedAt time.Time
	Document    digest.SummaryDocument
}

// Open opens (or creates) the archive database at the given path.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("Open: create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("Open: open database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("Open: apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveDigest archives one generated document and returns the record ID.
func (s *Store) SaveDigest(ctx context.Context, doc digest.SummaryDocument) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("SaveDigest: marshal document: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO digests (id, user_id, session_id, generated_at, document)
		VALUES (?, ?, ?, ?, ?)
	`, id, doc.UserID, doc.SessionID, doc.GeneratedAt.Unix(), string(body))
	if err != nil {
		return "", fmt.Errorf("SaveDigest: insert: %w", err)
	}
	return id, nil
}

// LatestDigest returns the newest archived digest for a user, or
// sql.ErrNoRows when the user has none.
func (s *Store) LatestDigest(ctx context.Context, userID string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, session_id, generated_at, document
		FROM digests
		WHERE user_id = ?
		ORDER BY generated_at DESC, id DESC
		LIMIT 1
	`, userID)
	return scanRecord(row)
}

// ListDigests returns a user's archived digests, newest first, up to limit.
// A limit of zero or less means no limit.
func (s *Store) ListDigests(ctx context.Context, userID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, session_id, generated_at, document
		FROM digests
		WHERE user_id = ?
		ORDER BY generated_at DESC, id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ListDigests: query: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListDigests: rows: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var generatedAt int64
	var body string
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.SessionID, &generatedAt, &body); err != nil {
		return Record{}, err
	}
	rec.GeneratedAt = time.Unix(generatedAt, 0).UTC()
	if err := json.Unmarshal([]byte(body), &rec.Document); err != nil {
		return Record{}, fmt.Errorf("scanRecord: unmarshal document %s: %w", rec.ID, err)
	}
	return rec, nil
}
