package chat

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"wadesk-backend/internal/domain"
	"wadesk-backend/internal/repository"
	apperrors "wadesk-backend/pkg/errors"
	"wadesk-backend/pkg/logger"
	"wadesk-backend/pkg/metrics"
	"wadesk-backend/pkg/pubsub"
)

const maxStatusAttempts = 3

// ApplyStatus moves msg forward to status. Backward or repeated transitions
// are ignored and reported as not applied. Concurrent writers are resolved
// with compare-and-set on the stored status.
func (s *Service) ApplyStatus(ctx context.Context, msg *domain.Message, status domain.MessageStatus) (bool, error) {
	if !status.Valid() {
		return false, apperrors.InvalidArgumentError("unknown message status")
	}

	current := msg
	defer func() {
		if current != msg {
			*msg = *current
		}
	}()

	for attempt := 0; attempt < maxStatusAttempts; attempt++ {
		if !domain.CanTransition(current.Status, status) {
			return false, nil
		}

		applied, err := s.messages.UpdateStatus(ctx, current.ID, current.Status, status)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return false, apperrors.MessageNotFoundError()
			}
			return false, apperrors.DatabaseError(err)
		}
		if applied {
			current.Status = status
			current.UpdatedAt = s.now()
			s.announceStatus(ctx, current)
			return true, nil
		}

		// lost the race; re-read and decide again
		fresh, err := s.getMessage(ctx, msg.ID)
		if err != nil {
			return false, err
		}
		current = fresh
	}
	return false, nil
}

func (s *Service) announceStatus(ctx context.Context, msg *domain.Message) {
	metrics.MessageStatusTransitionsTotal.WithLabelValues(string(msg.Status)).Inc()

	view := s.View(ctx, msg)
	conv, err := s.conversations.GetByID(ctx, msg.ConversationID)
	if err != nil {
		logger.FromContext(ctx).Warn("Status applied but conversation lookup failed",
			zap.String("message_id", msg.ID),
			zap.Error(err))
	} else {
		s.notifier.PushEvent(conv.AgentIDsExcept(""), domain.EventAck, view, conv.Type == domain.ConversationUserToCustomer, "")
	}
	s.export(ctx, pubsub.KeyMessageStatusChanged, SourceWebhook, view)
}
