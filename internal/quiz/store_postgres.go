package quiz

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

// PostgresStore is a PostgreSQL-backed Store over the quizzes and
// quiz_attempts tables.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a quiz store on the given pool.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) PutQuiz(ctx context.Context, q Quiz) error {
	if q.ID == "" || q.CourseID == "" {
		return fmt.Errorf("quiz id and course_id are required")
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	questions, err := json.Marshal(q.Questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO quizzes (id, course_id, title, subchapter, passing_score, questions)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		 ON CONFLICT (id) DO UPDATE
		 SET course_id = EXCLUDED.course_id, title = EXCLUDED.title,
		     subchapter = EXCLUDED.subchapter, passing_score = EXCLUDED.passing_score,
		     questions = EXCLUDED.questions`,
		q.ID,
		q.CourseID,
		q.Title,
		nullIfEmpty(q.Subchapter),
		q.PassingScore,
		string(questions),
	)
	if err != nil {
		return fmt.Errorf("put quiz: %w", err)
	}
	return nil
}

func (s *PostgresStore) Quiz(ctx context.Context, id string) (Quiz, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := s.pool.QueryRow(ctx,
		`SELECT id, course_id, title, subchapter, passing_score, questions
		 FROM quizzes WHERE id = $1`,
		id,
	)
	q, err := scanQuiz(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quiz{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Quiz{}, fmt.Errorf("get quiz: %w", err)
	}
	return q, nil
}

func (s *PostgresStore) QuizzesForCourse(ctx context.Context, courseID string) ([]Quiz, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id, course_id, title, subchapter, passing_score, questions
		 FROM quizzes WHERE course_id = $1
		 ORDER BY created_at, id`,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()

	var out []Quiz
	for rows.Next() {
		q, err := scanQuiz(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *PostgresStore) QuizAttempts(ctx context.Context, learnerID, courseID string) ([]Attempt, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id::text, quiz_id, learner_id, course_id, score, max_score, percentage, passed, completed_at
		 FROM quiz_attempts
		 WHERE learner_id = $1 AND course_id = $2
		 ORDER BY completed_at`,
		learnerID,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("list quiz attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.ID, &a.QuizID, &a.LearnerID, &a.CourseID,
			&a.Score, &a.MaxScore, &a.Percentage, &a.Passed, &a.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan quiz attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SubmitAttempt(ctx context.Context, learnerID, quizID string, answers []int) (Attempt, error) {
	q, err := s.Quiz(ctx, quizID)
	if err != nil {
		return Attempt{}, err
	}
	a, err := q.Grade(answers)
	if err != nil {
		return Attempt{}, err
	}
	a.LearnerID = learnerID

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rawAnswers, err := json.Marshal(answers)
	if err != nil {
		return Attempt{}, fmt.Errorf("encode answers: %w", err)
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO quiz_attempts (quiz_id, learner_id, course_id, score, max_score, percentage, passed, answers)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
		 RETURNING id::text, completed_at`,
		a.QuizID,
		a.LearnerID,
		a.CourseID,
		a.Score,
		a.MaxScore,
		a.Percentage,
		a.Passed,
		string(rawAnswers),
	).Scan(&a.ID, &a.CompletedAt)
	if err != nil {
		return Attempt{}, fmt.Errorf("insert quiz attempt: %w", err)
	}
	return a, nil
}

func scanQuiz(row pgx.Row) (Quiz, error) {
	var q Quiz
	var subchapter *string
	var questions []byte
	if err := row.Scan(&q.ID, &q.CourseID, &q.Title, &subchapter, &q.PassingScore, &questions); err != nil {
		return Quiz{}, err
	}
	if subchapter != nil {
		q.Subchapter = *subchapter
	}
	if len(questions) > 0 {
		if err := json.Unmarshal(questions, &q.Questions); err != nil {
			return Quiz{}, fmt.Errorf("decode questions: %w", err)
		}
	}
	return q, nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
