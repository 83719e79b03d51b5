// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package history persists finished generation runs and detected course
// contexts in a local SQLite database with full-text search over topics and
// content.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/pdiddy/lecture-engine/pkg/types"
)

const (
	dbFile            = "history.db"
	defaultMaxResults = 20
)

// ErrNotFound is returned by Get and Delete for unknown run IDs.
var ErrNotFound = errors.New("run not found")

// Store manages the history database.
type Store struct {
	db         *sql.DB
	log        *zap.Logger
	maxResults int
	now        func() time.Time
}

// NewStore opens or creates cfg.Dir/history.db and its schema.
func NewStore(cfg types.HistoryConfig, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dir, dbFile)+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	s := &Store{db: db, log: log, maxResults: maxResults, now: time.Now}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			topic TEXT NOT NULL,
			subtopics TEXT,
			mode TEXT NOT NULL,
			transcript INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			message TEXT,
			content TEXT,
			items TEXT,
			gap TEXT,
			cost REAL NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_mode ON runs(mode)`,
		`CREATE TABLE IF NOT EXISTS contexts (
			key TEXT PRIMARY KEY,
			context TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='runs_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}
	if ftsExists > 0 {
		return nil
	}

	ftsStatements := []string{
		`CREATE VIRTUAL TABLE runs_fts USING fts5(topic, subtopics, content, content=runs, content_rowid=rowid)`,
		`CREATE TRIGGER runs_ai AFTER INSERT ON runs BEGIN
			INSERT INTO runs_fts(rowid, topic, subtopics, content) VALUES (new.rowid, new.topic, new.subtopics, new.content);
		END`,
		`CREATE TRIGGER runs_ad AFTER DELETE ON runs BEGIN
			INSERT INTO runs_fts(runs_fts, rowid, topic, subtopics, content) VALUES ('delete', old.rowid, old.topic, old.subtopics, old.content);
		END`,
		`CREATE TRIGGER runs_au AFTER UPDATE ON runs BEGIN
			INSERT INTO runs_fts(runs_fts, rowid, topic, subtopics, content) VALUES ('delete', old.rowid, old.topic, old.subtopics, old.content);
			INSERT INTO runs_fts(rowid, topic, subtopics, content) VALUES (new.rowid, new.topic, new.subtopics, new.content);
		END`,
	}
	for _, stmt := range ftsStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("creating FTS: %w", err)
		}
	}
	return nil
}

// Save inserts rec or replaces the stored run with the same ID. A zero
// CreatedAt is set to the current time.
func (s *Store) Save(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return errors.New("run id is required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	items, err := marshalNullable(rec.Items, len(rec.Items) > 0)
	if err != nil {
		return fmt.Errorf("marshaling items: %w", err)
	}
	gap, err := marshalNullable(rec.Gap, rec.Gap != nil)
	if err != nil {
		return fmt.Errorf("marshaling gap analysis: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, topic, subtopics, mode, transcript, status, message, content, items, gap, cost, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			topic=excluded.topic, subtopics=excluded.subtopics, mode=excluded.mode,
			transcript=excluded.transcript, status=excluded.status, message=excluded.message,
			content=excluded.content, items=excluded.items, gap=excluded.gap,
			cost=excluded.cost, created_at=excluded.created_at`,
		rec.ID, rec.Topic, rec.Subtopics, string(rec.Mode), rec.Transcript,
		string(rec.Status), rec.Message, rec.Content, items, gap, rec.Cost,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", rec.ID, err)
	}
	s.log.Debug("run saved", zap.String("run_id", rec.ID), zap.String("status", string(rec.Status)))
	return nil
}

func marshalNullable(v any, present bool) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

const selectRun = `SELECT r.id, r.topic, r.subtopics, r.mode, r.transcript, r.status,
	r.message, r.content, r.items, r.gap, r.cost, r.created_at`

// Get returns the run with the given ID.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, selectRun+` FROM runs r WHERE r.id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("looking up run: %w", err)
	}
	return rec, nil
}

// Delete removes the run with the given ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Query filters List and Search results.
type Query struct {
	// Text is an FTS5 match expression over topic, subtopics and content.
	// Empty lists runs newest first.
	Text string

	Mode   types.Mode
	Status Status

	// MaxResults limits result count. Zero uses the store default.
	MaxResults int
}

// List returns runs newest first, filtered by q. A non-empty q.Text ranks
// by relevance instead.
func (s *Store) List(ctx context.Context, q Query) ([]Record, error) {
	limit := q.MaxResults
	if limit <= 0 {
		limit = s.maxResults
	}

	var (
		qb     strings.Builder
		args   []any
		useFTS = strings.TrimSpace(q.Text) != ""
	)
	qb.WriteString(selectRun)
	if useFTS {
		qb.WriteString(` FROM runs_fts JOIN runs r ON r.rowid = runs_fts.rowid WHERE runs_fts MATCH ?`)
		args = append(args, q.Text)
	} else {
		qb.WriteString(` FROM runs r WHERE 1=1`)
	}
	if q.Mode != "" {
		qb.WriteString(` AND r.mode = ?`)
		args = append(args, string(q.Mode))
	}
	if q.Status != "" {
		qb.WriteString(` AND r.status = ?`)
		args = append(args, string(q.Status))
	}
	if useFTS {
		qb.WriteString(` ORDER BY runs_fts.rank`)
	} else {
		qb.WriteString(` ORDER BY r.created_at DESC, r.rowid DESC`)
	}
	qb.WriteString(` LIMIT ?`)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Search is List with a required full-text query.
func (s *Store) Search(ctx context.Context, text string, limit int) ([]Record, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("search query is empty")
	}
	return s.List(ctx, Query{Text: text, MaxResults: limit})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var (
		rec                         Record
		mode, status, created       string
		subtopics, message, content sql.NullString
		items, gap                  sql.NullString
	)
	if err := sc.Scan(
		&rec.ID, &rec.Topic, &subtopics, &mode, &rec.Transcript, &status,
		&message, &content, &items, &gap, &rec.Cost, &created,
	); err != nil {
		return Record{}, err
	}
	rec.Subtopics = subtopics.String
	rec.Mode = types.Mode(mode)
	rec.Status = Status(status)
	rec.Message = message.String
	rec.Content = content.String
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)

	if items.Valid {
		if err := json.Unmarshal([]byte(items.String), &rec.Items); err != nil {
			return Record{}, fmt.Errorf("decoding items of %s: %w", rec.ID, err)
		}
	}
	if gap.Valid {
		rec.Gap = &types.GapAnalysisResult{}
		if err := json.Unmarshal([]byte(gap.String), rec.Gap); err != nil {
			return Record{}, fmt.Errorf("decoding gap analysis of %s: %w", rec.ID, err)
		}
	}
	return rec, nil
}

// GetContext returns a cached course context. Lookup errors are logged and
// reported as a miss.
func (s *Store) GetContext(ctx context.Context, key string) (types.CourseContext, bool) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT context FROM contexts WHERE key = ?`, key).Scan(&data)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Warn("context cache lookup failed", zap.String("key", key), zap.Error(err))
		}
		return types.CourseContext{}, false
	}
	var cc types.CourseContext
	if err := json.Unmarshal([]byte(data), &cc); err != nil {
		s.log.Warn("context cache entry unreadable", zap.String("key", key), zap.Error(err))
		return types.CourseContext{}, false
	}
	return cc, true
}

// PutContext stores cc under key, replacing any previous entry.
func (s *Store) PutContext(ctx context.Context, key string, cc types.CourseContext) {
	data, err := json.Marshal(cc)
	if err != nil {
		s.log.Warn("context cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO contexts (key, context, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET context=excluded.context, updated_at=excluded.updated_at`,
		key, string(data), s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		s.log.Warn("context cache write failed", zap.String("key", key), zap.Error(err))
	}
}
