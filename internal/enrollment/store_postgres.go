package enrollment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed StateStore. Each (learner, course) is
// one enrollments row; Save is a single conditional UPDATE on version.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a state store on the given pool.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

const selectState = `SELECT learner_id, course_id, progress, completed, completion_date,
	completed_after_admin_mark, completed_sections, completed_quizzes, quiz_scores,
	current_lesson, start_date, last_access_date, structure_hash, version
	FROM enrollments`

func (s *PostgresStore) Create(ctx context.Context, state *State) error {
	if state.LearnerID == "" || state.CourseID == "" {
		return fmt.Errorf("learner_id and course_id are required")
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cols, err := encodeSets(state)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO enrollments (learner_id, course_id, progress, completed, completed_sections,
			completed_quizzes, quiz_scores, current_lesson, start_date, last_access_date, structure_hash, version)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7::jsonb, $8, $9, $10, $11, 1)`,
		state.LearnerID,
		state.CourseID,
		state.Progress,
		state.Completed,
		cols.sections,
		cols.quizzes,
		cols.scores,
		nullIfEmpty(state.CurrentLesson),
		state.StartDate,
		state.LastAccessDate,
		nullIfEmpty(state.StructureHash),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrAlreadyEnrolled, state.key())
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	state.Version = 1
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, learnerID, courseID string) (*State, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	st, err := scanState(s.pool.QueryRow(ctx,
		selectState+` WHERE learner_id = $1 AND course_id = $2`,
		learnerID,
		courseID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: enrollment %s/%s", ErrNotFound, learnerID, courseID)
		}
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) Save(ctx context.Context, state *State) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cols, err := encodeSets(state)
	if err != nil {
		return err
	}
	cmd, err := s.pool.Exec(ctx,
		`UPDATE enrollments
		 SET progress = $3, completed = $4, completion_date = $5, completed_after_admin_mark = $6,
		     completed_sections = $7::jsonb, completed_quizzes = $8::jsonb, quiz_scores = $9::jsonb,
		     current_lesson = $10, last_access_date = $11, structure_hash = $12,
		     version = version + 1
		 WHERE learner_id = $1 AND course_id = $2 AND version = $13`,
		state.LearnerID,
		state.CourseID,
		state.Progress,
		state.Completed,
		state.CompletionDate,
		state.CompletedAfterAdminMark,
		cols.sections,
		cols.quizzes,
		cols.scores,
		nullIfEmpty(state.CurrentLesson),
		state.LastAccessDate,
		nullIfEmpty(state.StructureHash),
		state.Version,
	)
	if err != nil {
		return fmt.Errorf("save enrollment: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM enrollments WHERE learner_id = $1 AND course_id = $2)`,
			state.LearnerID,
			state.CourseID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check enrollment: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: enrollment %s", ErrNotFound, state.key())
		}
		return fmt.Errorf("%w: version %d is stale", ErrConflict, state.Version)
	}
	state.Version++
	return nil
}

func (s *PostgresStore) ListByCourse(ctx context.Context, courseID string) ([]*State, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, selectState+` WHERE course_id = $1 ORDER BY learner_id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()

	var out []*State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

type encodedSets struct {
	sections, quizzes, scores string
}

func encodeSets(state *State) (encodedSets, error) {
	var out encodedSets
	for _, f := range []struct {
		dst *string
		v   any
	}{
		{&out.sections, state.CompletedSections},
		{&out.quizzes, orEmpty(state.CompletedQuizzes)},
		{&out.scores, orEmpty(state.QuizScores)},
	} {
		raw, err := json.Marshal(f.v)
		if err != nil {
			return encodedSets{}, fmt.Errorf("encode enrollment: %w", err)
		}
		*f.dst = string(raw)
	}
	return out, nil
}

func orEmpty(m map[string]float64) map[string]float64 {
	if m == nil {
		return map[string]float64{}
	}
	return m
}

func scanState(row pgx.Row) (*State, error) {
	var st State
	var sections, quizzes, scores []byte
	var currentLesson, structureHash *string
	if err := row.Scan(
		&st.LearnerID,
		&st.CourseID,
		&st.Progress,
		&st.Completed,
		&st.CompletionDate,
		&st.CompletedAfterAdminMark,
		&sections,
		&quizzes,
		&scores,
		&currentLesson,
		&st.StartDate,
		&st.LastAccessDate,
		&structureHash,
		&st.Version,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sections, &st.CompletedSections); err != nil {
		return nil, fmt.Errorf("decode completed sections: %w", err)
	}
	if err := json.Unmarshal(quizzes, &st.CompletedQuizzes); err != nil {
		return nil, fmt.Errorf("decode completed quizzes: %w", err)
	}
	if err := json.Unmarshal(scores, &st.QuizScores); err != nil {
		return nil, fmt.Errorf("decode quiz scores: %w", err)
	}
	if currentLesson != nil {
		st.CurrentLesson = *currentLesson
	}
	if structureHash != nil {
		st.StructureHash = *structureHash
	}
	return &st, nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
