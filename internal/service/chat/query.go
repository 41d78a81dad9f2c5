package chat

import (
	"context"
	"strings"

	"wadesk-backend/internal/domain"
	apperrors "wadesk-backend/pkg/errors"
	"wadesk-backend/pkg/pagination"
)

// ListMessages returns a page of a conversation's messages, newest first
func (s *Service) ListMessages(ctx context.Context, actor domain.ParticipantRef, conversationID string, params *pagination.Params) (*pagination.Page, error) {
	if params == nil {
		params = pagination.Default()
	}

	conv, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.CanAccess(actor) {
		return nil, apperrors.ForbiddenError("Not a participant of this conversation")
	}

	msgs, total, err := s.messages.ListByConversation(ctx, conv.ID, params.Limit, params.Offset)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return pagination.NewPage(params, total, s.views(ctx, msgs)), nil
}

// SearchMessages matches text and media names across the actor's conversations.
// Admins search every conversation.
func (s *Service) SearchMessages(ctx context.Context, actor domain.ParticipantRef, query string, params *pagination.Params) ([]*domain.MessageView, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.MissingFieldError("q")
	}
	return s.search(ctx, actor, &domain.MessageFilter{Query: query}, params)
}

// ListStarred returns starred messages visible to the actor
func (s *Service) ListStarred(ctx context.Context, actor domain.ParticipantRef, params *pagination.Params) ([]*domain.MessageView, error) {
	return s.search(ctx, actor, &domain.MessageFilter{StarredOnly: true}, params)
}

func (s *Service) search(ctx context.Context, actor domain.ParticipantRef, filter *domain.MessageFilter, params *pagination.Params) ([]*domain.MessageView, error) {
	if params == nil {
		params = pagination.Default()
	}
	if !actor.IsAdmin() {
		filter.ParticipantID = actor.ID
	}
	filter.Limit = params.Limit
	filter.Offset = params.Offset

	msgs, err := s.messages.Search(ctx, filter)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return s.views(ctx, msgs), nil
}
