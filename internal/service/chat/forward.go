package chat

import (
	"context"

	"wadesk-backend/internal/domain"
	apperrors "wadesk-backend/pkg/errors"
)

// MaxForwardTargets bounds a single forward request
const MaxForwardTargets = 20

// ForwardMessage copies an existing message into other conversations.
// Every target is checked before anything is sent; each copy then goes
// through the regular send pipeline under a fresh id.
func (s *Service) ForwardMessage(ctx context.Context, actor domain.ParticipantRef, messageID string, conversationIDs []string) ([]*domain.MessageView, error) {
	if len(conversationIDs) == 0 {
		return nil, apperrors.MissingFieldError("conversation_ids")
	}
	if len(conversationIDs) > MaxForwardTargets {
		return nil, apperrors.InvalidArgumentError("too many forward targets")
	}

	src, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	srcConv, err := s.getConversation(ctx, src.ConversationID)
	if err != nil {
		return nil, err
	}
	if !srcConv.CanAccess(actor) {
		return nil, apperrors.ForbiddenError("Not a participant of this conversation")
	}

	seen := make(map[string]bool, len(conversationIDs))
	targets := make([]string, 0, len(conversationIDs))
	for _, id := range conversationIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		conv, err := s.getConversation(ctx, id)
		if err != nil {
			return nil, err
		}
		if !conv.CanAccess(actor) {
			return nil, apperrors.ForbiddenError("Not a participant of conversation " + id)
		}
		targets = append(targets, id)
	}

	out := make([]*domain.MessageView, 0, len(targets))
	for _, id := range targets {
		var media *domain.Media
		if src.Media != nil {
			copied := *src.Media
			media = &copied
		}
		view, err := s.send(ctx, &SendMessageInput{
			ConversationID: id,
			Author:         actor,
			Kind:           src.Kind,
			Text:           src.Text,
			Media:          media,
		}, SourceForward)
		if err != nil {
			return out, err
		}
		out = append(out, view)
	}
	return out, nil
}
