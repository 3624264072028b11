package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-course/internal/enrollment"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates an assignment store on the given pool.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

const selectAssignment = `SELECT id::text, course_id, title, description, instructions, deadline,
	unlock_date, position, is_published, created_at, updated_at FROM assignments`

func (s *PostgresStore) Create(ctx context.Context, a *Assignment) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO assignments (id, course_id, title, description, instructions, deadline,
			unlock_date, position, is_published, created_at, updated_at)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		a.ID, a.CourseID, a.Title, a.Description, a.Instructions, a.Deadline,
		a.UnlockDate, a.Order, a.IsPublished, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Assignment, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	a, err := scanAssignment(s.pool.QueryRow(ctx, selectAssignment+` WHERE id = $1::uuid`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: assignment %s", enrollment.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) Update(ctx context.Context, a *Assignment) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE assignments
		 SET title = $2, description = $3, instructions = $4, deadline = $5,
		     unlock_date = $6, is_published = $7, updated_at = $8
		 WHERE id = $1::uuid`,
		a.ID, a.Title, a.Description, a.Instructions, a.Deadline,
		a.UnlockDate, a.IsPublished, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update assignment: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: assignment %s", enrollment.ErrNotFound, a.ID)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var courseID string
		var position int
		err := tx.QueryRow(ctx,
			`DELETE FROM assignments WHERE id = $1::uuid RETURNING course_id, position`,
			id,
		).Scan(&courseID, &position)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: assignment %s", enrollment.ErrNotFound, id)
			}
			return fmt.Errorf("delete assignment: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE assignments SET position = position - 1 WHERE course_id = $1 AND position > $2`,
			courseID, position,
		); err != nil {
			return fmt.Errorf("renumber assignments: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) ListByCourse(ctx context.Context, courseID string) ([]*Assignment, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, selectAssignment+` WHERE course_id = $1 ORDER BY position`, courseID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var out []*Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetOrder(ctx context.Context, courseID string, ids []string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for i, id := range ids {
			cmd, err := tx.Exec(ctx,
				`UPDATE assignments SET position = $3, updated_at = NOW() WHERE id = $1::uuid AND course_id = $2`,
				id, courseID, i+1,
			)
			if err != nil {
				return fmt.Errorf("reorder assignment: %w", err)
			}
			if cmd.RowsAffected() == 0 {
				return fmt.Errorf("%w: assignment %s in course %s", enrollment.ErrNotFound, id, courseID)
			}
		}
		return nil
	})
}

const selectSubmission = `SELECT id::text, assignment_id::text, learner_id, course_id, url, submitted_at,
	is_latest, is_late, feedback, grade FROM assignment_submissions`

func (s *PostgresStore) AddSubmission(ctx context.Context, sub *Submission) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE assignment_submissions SET is_latest = FALSE
			 WHERE assignment_id = $1::uuid AND learner_id = $2 AND is_latest`,
			sub.AssignmentID, sub.LearnerID,
		); err != nil {
			return fmt.Errorf("clear latest submission: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO assignment_submissions (id, assignment_id, learner_id, course_id, url, submitted_at, is_latest, is_late)
			 VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, TRUE, $7)`,
			sub.ID, sub.AssignmentID, sub.LearnerID, sub.CourseID, sub.URL, sub.SubmittedAt, sub.IsLate,
		); err != nil {
			return fmt.Errorf("insert submission: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	sub.IsLatest = true
	return nil
}

func (s *PostgresStore) Submission(ctx context.Context, id string) (*Submission, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	sub, err := scanSubmission(s.pool.QueryRow(ctx, selectSubmission+` WHERE id = $1::uuid`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: submission %s", enrollment.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) UpdateSubmission(ctx context.Context, sub *Submission) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE assignment_submissions SET feedback = $2, grade = $3 WHERE id = $1::uuid`,
		sub.ID, nullIfEmpty(sub.Feedback), sub.Grade,
	)
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: submission %s", enrollment.ErrNotFound, sub.ID)
	}
	return nil
}

func (s *PostgresStore) Submissions(ctx context.Context, assignmentID string, latestOnly bool) ([]*Submission, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		selectSubmission+` WHERE assignment_id = $1::uuid AND ($2 = FALSE OR is_latest) ORDER BY submitted_at DESC`,
		assignmentID, latestOnly,
	)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var out []*Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func scanAssignment(row pgx.Row) (*Assignment, error) {
	var a Assignment
	if err := row.Scan(&a.ID, &a.CourseID, &a.Title, &a.Description, &a.Instructions, &a.Deadline,
		&a.UnlockDate, &a.Order, &a.IsPublished, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanSubmission(row pgx.Row) (*Submission, error) {
	var sub Submission
	var feedback *string
	if err := row.Scan(&sub.ID, &sub.AssignmentID, &sub.LearnerID, &sub.CourseID, &sub.URL, &sub.SubmittedAt,
		&sub.IsLatest, &sub.IsLate, &feedback, &sub.Grade); err != nil {
		return nil, err
	}
	if feedback != nil {
		sub.Feedback = *feedback
	}
	return &sub, nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
