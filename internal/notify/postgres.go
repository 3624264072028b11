package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresSink inserts events into the events table.
type PostgresSink struct {
	pool *pgxpool.Pool
}

func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

func (s *PostgresSink) Notify(ctx context.Context, event Event) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("notification sink pool is nil")
	}
	if event.Kind == "" {
		return fmt.Errorf("event kind is required")
	}

	data, err := json.Marshal(map[string]any{
		"kind":    event.Kind,
		"title":   event.Title,
		"address": event.Address,
	})
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err = s.pool.Exec(ctx,
		`INSERT INTO events (id, learner_id, course_id, event_type, data, created_at)
		 VALUES ($1::uuid, $2, $3, $4, $5::jsonb, $6)`,
		event.ID,
		event.LearnerID,
		event.CourseID,
		"content_unlocked",
		string(data),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}
