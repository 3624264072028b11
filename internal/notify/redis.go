package notify

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher publishes a payload on a channel. *cache.Cache satisfies it.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// RedisSink publishes events on a per-learner pub/sub channel so other
// server instances can forward them to connected clients.
type RedisSink struct {
	pub    Publisher
	prefix string
}

// NewRedisSink publishes on "{prefix}:{learnerID}". An empty prefix
// defaults to "unlocks".
func NewRedisSink(pub Publisher, prefix string) *RedisSink {
	if prefix == "" {
		prefix = "unlocks"
	}
	return &RedisSink{pub: pub, prefix: prefix}
}

// Channel returns the channel events for a learner are published on.
func (s *RedisSink) Channel(learnerID string) string {
	return s.prefix + ":" + learnerID
}

func (s *RedisSink) Notify(ctx context.Context, event Event) error {
	payload, err := json.Marshal(wireEvent(event))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.pub.Publish(ctx, s.Channel(event.LearnerID), payload); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

type wire struct {
	Event
	Headline string `json:"headline"`
	Message  string `json:"message"`
}

func wireEvent(e Event) wire {
	return wire{Event: e, Headline: e.Headline(), Message: e.Message()}
}
