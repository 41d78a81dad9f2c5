// Package audit keeps a capped trail of administrative actions in Redis.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	adminKey = "audit:admin"

	// DefaultRetain bounds the trail length
	DefaultRetain = 10000
)

// Event is one administrative action
type Event struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actor_id"`
	Action     string    `json:"action"`
	Resource   string    `json:"resource,omitempty"`
	StatusCode int       `json:"status_code"`
	Success    bool      `json:"success"`
	RequestID  string    `json:"request_id,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// listStore is the subset of the Redis client used by the trail
type listStore interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
}

// Logger records and lists admin events, newest first
type Logger struct {
	store  listStore
	retain int64
	now    func() time.Time
}

// NewLogger creates an audit logger keeping the latest retain events
func NewLogger(client *redis.Client, retain int) *Logger {
	return newLogger(client, retain)
}

func newLogger(store listStore, retain int) *Logger {
	if retain <= 0 {
		retain = DefaultRetain
	}
	return &Logger{store: store, retain: int64(retain), now: time.Now}
}

// Record appends event, filling ID and Timestamp when unset
func (l *Logger) Record(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}
	if err := l.store.LPush(ctx, adminKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to store audit event: %w", err)
	}
	if err := l.store.LTrim(ctx, adminKey, 0, l.retain-1).Err(); err != nil {
		return fmt.Errorf("failed to trim audit trail: %w", err)
	}
	return nil
}

// Recent returns up to limit events after skipping offset, newest first.
// Undecodable entries are skipped.
func (l *Logger) Recent(ctx context.Context, limit, offset int) ([]*Event, error) {
	if limit <= 0 {
		return []*Event{}, nil
	}
	members, err := l.store.LRange(ctx, adminKey, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read audit trail: %w", err)
	}

	events := make([]*Event, 0, len(members))
	for _, member := range members {
		var event Event
		if err := json.Unmarshal([]byte(member), &event); err != nil {
			continue
		}
		events = append(events, &event)
	}
	return events, nil
}
