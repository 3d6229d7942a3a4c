// Package sqlite persists chunk vectors in a single SQLite file and ranks
// them with brute-force cosine similarity after a SQL source filter.
package sqlite

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

	_ "modernc.org/sqlite"

	"persona-rag/internal/domain"
	"persona-rag/internal/embedding"
	"persona-rag/internal/vectorstore"
)

// Storage implements vectorstore.Storage on SQLite.
type Storage struct {
	db         *sql.DB
	collection string
}

// Create opens or creates the database at dbPath for writing.
func Create(dbPath, collection string) (*Storage, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return open(dbPath, collection)
}

// Open opens an existing, already built store. It returns
// vectorstore.ErrStoreMissing when the file or the collection is absent.
func Open(ctx context.Context, dbPath, collection string) (*Storage, error) {
	if _, err := os.Stat(dbPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", vectorstore.ErrStoreMissing, dbPath)
		}
		return nil, err
	}
	s, err := open(dbPath, collection)
	if err != nil {
		return nil, err
	}
	var name string
	err = s.db.QueryRowContext(ctx, `SELECT name FROM collections WHERE name = ?`, collection).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		s.Close()
		return nil, fmt.Errorf("%w: collection %q", vectorstore.ErrStoreMissing, collection)
	}
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("lookup collection: %w", err)
	}
	return s, nil
}

func open(dbPath, collection string) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &Storage{db: db, collection: collection}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Storage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		name       TEXT PRIMARY KEY,
		dimension  INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL,
		source     TEXT NOT NULL,
		category   TEXT NOT NULL,
		content    TEXT NOT NULL,
		vector     TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(collection, source);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension < 0 {
		return errors.New("invalid dimension")
	}
	if err := s.Clear(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collections (name, dimension, created_at) VALUES (?, ?, ?)`,
		s.collection, dimension, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	return nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (collection, source, category, content, vector) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, ch := range chunks {
		vec, err := json.Marshal(vectors[i])
		if err != nil {
			return fmt.Errorf("encode vector: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, s.collection, ch.Source, ch.Category, ch.Content, string(vec)); err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Storage) Search(ctx context.Context, vector []float64, topK int, sources []string) ([]domain.SearchResult, error) {
	query := `SELECT source, category, content, vector FROM chunks WHERE collection = ?`
	args := []any{s.collection}
	if len(sources) > 0 {
		query += ` AND source IN (?` + strings.Repeat(`, ?`, len(sources)-1) + `)`
		for _, src := range sources {
			args = append(args, src)
		}
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var results []domain.SearchResult
	for rows.Next() {
		var ch domain.Chunk
		var raw string
		if err := rows.Scan(&ch.Source, &ch.Category, &ch.Content, &raw); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		var vec []float64
		if err := json.Unmarshal([]byte(raw), &vec); err != nil {
			return nil, fmt.Errorf("decode vector: %w", err)
		}
		results = append(results, domain.SearchResult{Chunk: ch, Score: embedding.CosineSimilarity(vec, vector)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return vectorstore.TopK(results, topK), nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE collection = ?`, s.collection).Scan(&n)
	return n, err
}

func (s *Storage) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE collection = ?`, s.collection); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, s.collection); err != nil {
		return fmt.Errorf("clear collection: %w", err)
	}
	return nil
}

func (s *Storage) Close() error { return s.db.Close() }
