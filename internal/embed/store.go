package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/toricodesthings/pdf-quiz-extraction-service/internal/types"
)

// File describes the document the questions came from.
type File struct {
	Hash       string
	Name       string
	TotalPages int
	Metadata   map[string]any
}

// Record is one question ready for storage.
type Record struct {
	Question    types.Question
	ContentHash string
	Vector      []float32
}

// Store persists embedded questions.
type Store interface {
	Save(ctx context.Context, f File, recs []Record) error
	Search(ctx context.Context, vec []float32, limit int) ([]types.SearchHit, error)
	Close()
}

// ContentHash identifies a question by its normalized stem and options.
func ContentHash(q types.Question) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.Join(strings.Fields(q.Question), " "))))
	for _, o := range q.Options {
		h.Write([]byte{0})
		h.Write([]byte(o.Label))
		h.Write([]byte{0})
		h.Write([]byte(strings.ToLower(strings.Join(strings.Fields(o.Text), " "))))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// PGStore keeps vectors in Postgres with the pgvector extension.
type PGStore struct {
	pool *pgxpool.Pool
	dim  int
}

func NewPGStore(ctx context.Context, url string, dim int) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PGStore{pool: pool, dim: dim}, nil
}

func (s *PGStore) Close() { s.pool.Close() }

// Migrate creates the extension, tables and the cosine index if missing.
func (s *PGStore) Migrate(ctx context.Context) error {
	for _, stmt := range Schema(s.dim) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Schema returns the DDL statements for a vector column of dim dimensions.
func Schema(dim int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS files (
			id SERIAL PRIMARY KEY,
			file_hash TEXT UNIQUE NOT NULL,
			filename TEXT NOT NULL,
			total_pages INTEGER NOT NULL,
			total_questions INTEGER NOT NULL,
			metadata JSONB,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS questions (
			id SERIAL PRIMARY KEY,
			question_id TEXT NOT NULL,
			file_hash TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			text TEXT NOT NULL,
			options JSONB,
			correct_answer TEXT,
			explanation TEXT,
			embedding vector(%d),
			metadata JSONB,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (file_hash, content_hash)
		)`, dim),
		`CREATE INDEX IF NOT EXISTS questions_embedding_idx
			ON questions USING ivfflat (embedding vector_cosine_ops)
			WITH (lists = 100)`,
	}
}

// Save writes one document's questions in a single transaction. Questions
// are upserted by content hash, so reprocessing a file updates rows in place.
func (s *PGStore) Save(ctx context.Context, f File, recs []Record) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	meta, err := json.Marshal(f.Metadata)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO files (file_hash, filename, total_pages, total_questions, metadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (file_hash)
		DO UPDATE SET filename = EXCLUDED.filename,
			total_pages = EXCLUDED.total_pages,
			total_questions = EXCLUDED.total_questions,
			metadata = EXCLUDED.metadata`,
		f.Hash, f.Name, f.TotalPages, len(recs), meta)
	if err != nil {
		return fmt.Errorf("save file: %w", err)
	}

	for i, r := range recs {
		q := r.Question
		opts, err := json.Marshal(q.Options)
		if err != nil {
			return err
		}
		qmeta, err := json.Marshal(map[string]any{
			"page":          q.Page,
			"section":       q.Section,
			"contains_math": q.ContainsMath,
			"has_table":     q.HasTable,
			"duplicate_of":  q.DuplicateOf,
		})
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO questions (question_id, file_hash, content_hash, text, options, correct_answer, explanation, embedding, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (file_hash, content_hash)
			DO UPDATE SET question_id = EXCLUDED.question_id,
				options = EXCLUDED.options,
				correct_answer = EXCLUDED.correct_answer,
				explanation = EXCLUDED.explanation,
				embedding = EXCLUDED.embedding,
				metadata = EXCLUDED.metadata`,
			q.ID, f.Hash, r.ContentHash, q.Question, opts, q.Correct, q.Explanation,
			pgvector.NewVector(r.Vector), qmeta)
		if err != nil {
			return fmt.Errorf("save question %d: %w", i, err)
		}
	}
	return tx.Commit(ctx)
}

// Search returns the stored questions closest to vec by cosine distance.
func (s *PGStore) Search(ctx context.Context, vec []float32, limit int) ([]types.SearchHit, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT question_id, file_hash, text, options, COALESCE(correct_answer, ''),
			1 - (embedding <=> $1) AS score
		FROM questions
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $2`,
		pgvector.NewVector(vec), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hits := []types.SearchHit{}
	for rows.Next() {
		var h types.SearchHit
		var opts []byte
		if err := rows.Scan(&h.QuestionID, &h.FileHash, &h.Question, &opts, &h.Correct, &h.Score); err != nil {
			return nil, err
		}
		if len(opts) > 0 {
			if err := json.Unmarshal(opts, &h.Options); err != nil {
				return nil, fmt.Errorf("decode options: %w", err)
			}
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
