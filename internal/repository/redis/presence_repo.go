package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	onlineSetKey = "presence:online"
	// PresenceTTL bounds how long a participant stays online without a refresh
	PresenceTTL = 5 * time.Minute
)

// PresenceRepository tracks which agents hold a live session
type PresenceRepository struct {
	client *redis.Client
}

// NewPresenceRepository creates a new PresenceRepository
func NewPresenceRepository(client *redis.Client) *PresenceRepository {
	return &PresenceRepository{client: client}
}

func presenceKey(participantID string) string {
	return "presence:" + participantID
}

// SetOnline marks a participant online
func (r *PresenceRepository) SetOnline(ctx context.Context, participantID string) error {
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, presenceKey(participantID), "online", PresenceTTL)
	pipe.SAdd(ctx, onlineSetKey, participantID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set participant online: %w", err)
	}
	return nil
}

// SetOffline marks a participant offline
func (r *PresenceRepository) SetOffline(ctx context.Context, participantID string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, presenceKey(participantID))
	pipe.SRem(ctx, onlineSetKey, participantID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set participant offline: %w", err)
	}
	return nil
}

// Refresh extends the TTL of an online participant (heartbeat)
func (r *PresenceRepository) Refresh(ctx context.Context, participantID string) error {
	if err := r.client.Expire(ctx, presenceKey(participantID), PresenceTTL).Err(); err != nil {
		return fmt.Errorf("failed to refresh presence: %w", err)
	}
	return nil
}

// IsOnline checks whether the participant's presence key is alive
func (r *PresenceRepository) IsOnline(ctx context.Context, participantID string) (bool, error) {
	n, err := r.client.Exists(ctx, presenceKey(participantID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check presence: %w", err)
	}
	return n > 0, nil
}

// Online lists participants whose presence key has not expired.
// Stale set members left behind by a crashed process are pruned.
func (r *PresenceRepository) Online(ctx context.Context) ([]string, error) {
	members, err := r.client.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get online participants: %w", err)
	}

	online := make([]string, 0, len(members))
	for _, id := range members {
		alive, err := r.IsOnline(ctx, id)
		if err != nil {
			return nil, err
		}
		if !alive {
			r.client.SRem(ctx, onlineSetKey, id)
			continue
		}
		online = append(online, id)
	}
	return online, nil
}
