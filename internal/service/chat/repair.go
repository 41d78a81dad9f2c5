package chat

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"wadesk-backend/internal/repository"
	apperrors "wadesk-backend/pkg/errors"
	"wadesk-backend/pkg/logger"
)

// RepairResult describes what RepairConversation changed
type RepairResult struct {
	ConversationID string         `json:"conversation_id"`
	LastMessageID  *string        `json:"last_message_id"`
	LastFixed      bool           `json:"last_fixed"`
	ClampedCounter map[string]int `json:"clamped_counters,omitempty"`
}

// Changed reports whether anything was rewritten
func (r *RepairResult) Changed() bool {
	return r.LastFixed || len(r.ClampedCounter) > 0
}

// RepairSummary aggregates a RepairAll run
type RepairSummary struct {
	Scanned  int `json:"scanned"`
	Repaired int `json:"repaired"`
	Failed   int `json:"failed"`
}

// RepairConversation recomputes the last-message cache from the message log
// and clamps each agent counter to the number of messages they did not author.
func (s *Service) RepairConversation(ctx context.Context, conversationID string) (*RepairResult, error) {
	conv, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	result := &RepairResult{ConversationID: conv.ID, LastMessageID: conv.LastMessageID}

	latest, err := s.messages.Latest(ctx, conv.ID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		if conv.LastMessageID != nil {
			if err := s.conversations.ClearLastMessage(ctx, conv.ID); err != nil {
				return nil, apperrors.DatabaseError(err)
			}
			result.LastMessageID = nil
			result.LastFixed = true
		}
	case err != nil:
		return nil, apperrors.DatabaseError(err)
	default:
		if conv.LastMessageID == nil || *conv.LastMessageID != latest.ID {
			if err := s.conversations.SetLastMessage(ctx, conv.ID, latest.ID); err != nil {
				return nil, apperrors.DatabaseError(err)
			}
			result.LastMessageID = &latest.ID
			result.LastFixed = true
		}
	}

	for _, p := range conv.Participants {
		if !p.IsAgent() {
			continue
		}
		max, err := s.messages.CountNotAuthoredBy(ctx, conv.ID, p.ID)
		if err != nil {
			return nil, apperrors.DatabaseError(err)
		}
		if p.UnreadCount >= 0 && p.UnreadCount <= max {
			continue
		}
		if err := s.conversations.ClampUnread(ctx, conv.ID, p.ID, max); err != nil {
			return nil, apperrors.DatabaseError(err)
		}
		if result.ClampedCounter == nil {
			result.ClampedCounter = make(map[string]int)
		}
		result.ClampedCounter[p.ID] = max
	}

	return result, nil
}

// RepairAll runs RepairConversation over every conversation, continuing past failures
func (s *Service) RepairAll(ctx context.Context) (*RepairSummary, error) {
	ids, err := s.conversations.ListIDs(ctx)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	summary := &RepairSummary{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Scanned++

		result, err := s.RepairConversation(ctx, id)
		if err != nil {
			summary.Failed++
			logger.FromContext(ctx).Error("Conversation repair failed",
				zap.String("conversation_id", id),
				zap.Error(err))
			continue
		}
		if result.Changed() {
			summary.Repaired++
			logger.FromContext(ctx).Info("Conversation repaired",
				zap.String("conversation_id", id),
				zap.Bool("last_fixed", result.LastFixed),
				zap.Int("clamped", len(result.ClampedCounter)))
		}
	}
	return summary, nil
}
