package chat

import (
	"context"
	"errors"

	"wadesk-backend/internal/domain"
	"wadesk-backend/internal/repository"
	apperrors "wadesk-backend/pkg/errors"
)

// MarkRead decrements the actor's unread counter by one, never below zero.
// Admins without a seat in the conversation have no counter and get a no-op.
func (s *Service) MarkRead(ctx context.Context, actor domain.ParticipantRef, conversationID string) error {
	conv, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return err
	}

	if !conv.HasParticipant(actor.ID) {
		if actor.IsAdmin() {
			return nil
		}
		return apperrors.ForbiddenError("Not a participant of this conversation")
	}

	if err := s.conversations.DecrementUnread(ctx, conv.ID, actor.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFoundError("Participant")
		}
		return apperrors.DatabaseError(err)
	}
	return nil
}

// SetStarred flags or unflags a message
func (s *Service) SetStarred(ctx context.Context, actor domain.ParticipantRef, messageID string, starred bool) (*domain.MessageView, error) {
	msg, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	conv, err := s.getConversation(ctx, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conv.CanAccess(actor) {
		return nil, apperrors.ForbiddenError("Not a participant of this conversation")
	}

	if msg.IsStarred != starred {
		if err := s.messages.SetStarred(ctx, msg.ID, starred); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperrors.MessageNotFoundError()
			}
			return nil, apperrors.DatabaseError(err)
		}
		msg.IsStarred = starred
	}
	return s.View(ctx, msg), nil
}
