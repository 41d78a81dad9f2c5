package webhook

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"go.uber.org/zap"

	"wadesk-backend/internal/domain"
	"wadesk-backend/internal/repository"
	apperrors "wadesk-backend/pkg/errors"
	"wadesk-backend/pkg/logger"
	"wadesk-backend/pkg/metrics"
)

// Directory resolves customers and the tenant's default sender
type Directory interface {
	ResolveCustomer(ctx context.Context, phone, name string) (*domain.Customer, *domain.Conversation, bool, error)
	DefaultSender(ctx context.Context) (domain.ParticipantRef, error)
}

// Pipeline records messages and applies status changes
type Pipeline interface {
	Record(ctx context.Context, conv *domain.Conversation, msg *domain.Message) (*domain.MessageView, error)
	ApplyStatus(ctx context.Context, msg *domain.Message, status domain.MessageStatus) (bool, error)
}

// MessageLookup finds messages by id
type MessageLookup interface {
	GetByID(ctx context.Context, messageID string) (*domain.Message, error)
}

// Rehoster copies gateway media into the blob store
type Rehoster interface {
	Rehost(ctx context.Context, body *domain.GatewayBody) (*domain.Media, error)
}

// Result describes how an event was applied
type Result struct {
	Event           string               `json:"event"`
	MessageID       string               `json:"message_id,omitempty"`
	Status          domain.MessageStatus `json:"status,omitempty"`
	Applied         bool                 `json:"applied"`
	Duplicate       bool                 `json:"duplicate,omitempty"`
	CustomerCreated bool                 `json:"customer_created,omitempty"`
}

// Service reconciles gateway webhook events with the message store
type Service struct {
	directory Directory
	pipeline  Pipeline
	messages  MessageLookup
	media     Rehoster
	token     string
	now       func() time.Time
}

// NewService creates a new webhook service. An empty token disables the token check.
func NewService(directory Directory, pipeline Pipeline, messages MessageLookup, media Rehoster, token string) *Service {
	return &Service{
		directory: directory,
		pipeline:  pipeline,
		messages:  messages,
		media:     media,
		token:     token,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// HandleEvent applies one gateway event
func (s *Service) HandleEvent(ctx context.Context, ev *domain.GatewayEvent) (*Result, error) {
	result, err := s.handle(ctx, ev)

	outcome := "ok"
	switch {
	case err != nil:
		outcome = string(apperrors.GetAppError(err).Code)
	case result.Duplicate:
		outcome = "duplicate"
	case !result.Applied:
		outcome = "ignored"
	}
	metrics.WebhookEventsTotal.WithLabelValues(eventLabel(ev), outcome).Inc()

	if err != nil {
		logger.FromContext(ctx).Warn("Gateway event rejected",
			zap.String("event", eventLabel(ev)),
			zap.Error(err))
	}
	return result, err
}

func (s *Service) handle(ctx context.Context, ev *domain.GatewayEvent) (*Result, error) {
	if ev == nil {
		return nil, apperrors.InvalidArgumentError("empty event")
	}
	if s.token != "" && subtle.ConstantTimeCompare([]byte(ev.Token), []byte(s.token)) != 1 {
		return nil, apperrors.ForbiddenError("Invalid webhook token")
	}

	switch ev.Event {
	case domain.GatewayEventMessage:
		return s.handleMessage(ctx, ev)
	case domain.GatewayEventAck:
		return s.handleAck(ctx, ev)
	default:
		return nil, apperrors.InvalidArgumentError("unknown event " + ev.Event)
	}
}

func (s *Service) handleMessage(ctx context.Context, ev *domain.GatewayEvent) (*Result, error) {
	if ev.Contact == nil || ev.Message == nil {
		return nil, apperrors.InvalidArgumentError("message event requires contact and message")
	}
	gm := ev.Message

	kind, err := domain.KindFromGatewayType(gm.Type)
	if err != nil {
		return nil, apperrors.InvalidArgumentError(err.Error())
	}
	status := domain.StatusFromAck(gm.Ack)

	var msgID string
	switch gm.Dir {
	case domain.DirectionInbound:
		msgID = gatewayMessageID(gm.UID)
	case domain.DirectionOutbound:
		if domain.IsLocalMessageID(gm.CUID) {
			// echo of a message sent from here
			return s.applyAck(ctx, domain.GatewayEventMessage, gm.CUID, gm.Ack)
		}
		msgID = gm.CUID
		if msgID == "" {
			msgID = gatewayMessageID(gm.UID)
		}
	default:
		return nil, apperrors.InvalidArgumentError("unknown message direction " + gm.Dir)
	}
	if msgID == "" {
		return nil, apperrors.MissingFieldError("message.uid")
	}

	result := &Result{Event: ev.Event, MessageID: msgID, Status: status}

	if existing, err := s.messages.GetByID(ctx, msgID); err == nil {
		result.Status = existing.Status
		result.Duplicate = true
		return result, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.DatabaseError(err)
	}

	phone := ev.Contact.Phone()
	if phone == "" {
		return nil, apperrors.MissingFieldError("contact.uid")
	}

	customer, conv, created, err := s.directory.ResolveCustomer(ctx, phone, ev.Contact.Name)
	if err != nil {
		return nil, err
	}
	result.CustomerCreated = created

	author := customer.Ref()
	if gm.Dir == domain.DirectionOutbound {
		if author, err = s.directory.DefaultSender(ctx); err != nil {
			return nil, err
		}
	}

	createdAt := s.now()
	if gm.Dtm > 0 {
		createdAt = time.Unix(gm.Dtm, 0).UTC()
	}

	msg := &domain.Message{
		ID:             msgID,
		ConversationID: conv.ID,
		Author:         author,
		Kind:           kind,
		Status:         status,
		CreatedAt:      createdAt,
		UpdatedAt:      s.now(),
	}

	if kind.IsMedia() {
		if gm.Body.URL == "" {
			return nil, apperrors.MissingFieldError("message.body.url")
		}
		media, err := s.media.Rehost(ctx, &gm.Body)
		if err != nil {
			return nil, apperrors.ExternalDependencyError("Failed to re-host media", err)
		}
		msg.Media = media
	} else {
		msg.Text = gm.Body.Text
	}

	if _, err := s.pipeline.Record(ctx, conv, msg); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			result.Duplicate = true
			return result, nil
		}
		return nil, err
	}

	result.Applied = true
	return result, nil
}

func (s *Service) handleAck(ctx context.Context, ev *domain.GatewayEvent) (*Result, error) {
	if ev.CUID == "" {
		return nil, apperrors.MissingFieldError("cuid")
	}
	if ev.Ack == nil {
		return nil, apperrors.MissingFieldError("ack")
	}
	return s.applyAck(ctx, ev.Event, ev.CUID, *ev.Ack)
}

func (s *Service) applyAck(ctx context.Context, event, messageID string, code int) (*Result, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.MessageNotFoundError()
		}
		return nil, apperrors.DatabaseError(err)
	}

	applied, err := s.pipeline.ApplyStatus(ctx, msg, domain.StatusFromAck(code))
	if err != nil {
		return nil, err
	}
	return &Result{Event: event, MessageID: msg.ID, Status: msg.Status, Applied: applied}, nil
}

func gatewayMessageID(uid string) string {
	if uid == "" {
		return ""
	}
	return domain.GatewayMessagePrefix + uid
}

func eventLabel(ev *domain.GatewayEvent) string {
	if ev == nil {
		return "unknown"
	}
	switch ev.Event {
	case domain.GatewayEventMessage, domain.GatewayEventAck:
		return ev.Event
	}
	return "unknown"
}
