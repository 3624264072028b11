package course

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store. Each course is one row in
// course_structures holding the tree as jsonb plus the completion gate.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a course store on the given pool.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) ContentTree(ctx context.Context, courseID string) (*Tree, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT tree FROM course_structures WHERE course_id = $1`,
		courseID,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, courseID)
		}
		return nil, fmt.Errorf("get course structure: %w", err)
	}

	var t Tree
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode course structure: %w", err)
	}
	t.CourseID = courseID
	return &t, nil
}

func (s *PostgresStore) PutTree(ctx context.Context, tree *Tree) error {
	if tree == nil || tree.CourseID == "" {
		return fmt.Errorf("course_id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	t := tree.Clone()
	t.Normalize()
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode course structure: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO course_structures (course_id, title, tree, updated_at)
		 VALUES ($1, $2, $3::jsonb, NOW())
		 ON CONFLICT (course_id) DO UPDATE
		 SET title = EXCLUDED.title, tree = EXCLUDED.tree, updated_at = NOW()`,
		t.CourseID,
		t.Title,
		string(raw),
	)
	if err != nil {
		return fmt.Errorf("put course structure: %w", err)
	}
	return nil
}

func (s *PostgresStore) CompletionFlag(ctx context.Context, courseID string) (CompletionFlag, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var flag CompletionFlag
	var announcement *string
	err := s.pool.QueryRow(ctx,
		`SELECT is_completed, completion_announcement
		 FROM course_structures
		 WHERE course_id = $1`,
		courseID,
	).Scan(&flag.IsCompleted, &announcement)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CompletionFlag{}, fmt.Errorf("%w: %s", ErrNotFound, courseID)
		}
		return CompletionFlag{}, fmt.Errorf("get completion flag: %w", err)
	}
	if announcement != nil {
		flag.Announcement = *announcement
	}
	return flag, nil
}

func (s *PostgresStore) SetCompletionFlag(ctx context.Context, courseID string, flag CompletionFlag) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE course_structures
		 SET is_completed = $2, completion_announcement = $3, updated_at = NOW()
		 WHERE course_id = $1`,
		courseID,
		flag.IsCompleted,
		nullIfEmpty(flag.Announcement),
	)
	if err != nil {
		return fmt.Errorf("set completion flag: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, courseID)
	}
	return nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
