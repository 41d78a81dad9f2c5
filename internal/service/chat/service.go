package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"wadesk-backend/internal/domain"
	"wadesk-backend/internal/gateway/waboxapp"
	"wadesk-backend/internal/repository"
	"wadesk-backend/pkg/constants"
	apperrors "wadesk-backend/pkg/errors"
	"wadesk-backend/pkg/logger"
	"wadesk-backend/pkg/metrics"
	"wadesk-backend/pkg/pubsub"
)

// Message sources, used for metrics and exported events
const (
	SourceAgent   = "agent"
	SourceWebhook = "webhook"
	SourceForward = "forward"
)

// ConversationRepository is the conversation store used by the pipeline
type ConversationRepository interface {
	GetByID(ctx context.Context, conversationID string) (*domain.Conversation, error)
	ListIDs(ctx context.Context) ([]string, error)
	SetLastMessage(ctx context.Context, conversationID, messageID string) error
	ClearLastMessage(ctx context.Context, conversationID string) error
	IncrementUnread(ctx context.Context, conversationID, participantID string) error
	DecrementUnread(ctx context.Context, conversationID, participantID string) error
	ClampUnread(ctx context.Context, conversationID, participantID string, max int) error
}

// MessageRepository is the message log
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, messageID string) (*domain.Message, error)
	UpdateStatus(ctx context.Context, messageID string, from, to domain.MessageStatus) (bool, error)
	SetStarred(ctx context.Context, messageID string, starred bool) error
	ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]*domain.Message, int64, error)
	Search(ctx context.Context, filter *domain.MessageFilter) ([]*domain.Message, error)
	Latest(ctx context.Context, conversationID string) (*domain.Message, error)
	CountNotAuthoredBy(ctx context.Context, conversationID, participantID string) (int, error)
}

// CustomerRepository resolves the phone of a customer participant
type CustomerRepository interface {
	GetByID(ctx context.Context, customerID string) (*domain.Customer, error)
}

// Gateway is the outbound chat channel
type Gateway interface {
	SendText(ctx context.Context, phone, messageID, text string) waboxapp.SendResult
	SendImage(ctx context.Context, phone, messageID, mediaURL string) waboxapp.SendResult
	SendFile(ctx context.Context, phone, messageID, mediaURL string) waboxapp.SendResult
}

// URLSigner turns storage keys into temporary URLs
type URLSigner interface {
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Notifier pushes events to live sessions
type Notifier interface {
	PushEvent(targets []string, kind string, message *domain.MessageView, alsoBroadcastToAdmins bool, excludeID string) int
}

// Options tune the service
type Options struct {
	SignedURLTTL time.Duration
	Producer     string
}

// Service implements the send pipeline and message read paths
type Service struct {
	conversations ConversationRepository
	messages      MessageRepository
	customers     CustomerRepository
	gateway       Gateway
	signer        URLSigner
	notifier      Notifier
	publisher     pubsub.Publisher
	opts          Options
	now           func() time.Time
}

// NewService creates a new chat service
func NewService(
	conversations ConversationRepository,
	messages MessageRepository,
	customers CustomerRepository,
	gateway Gateway,
	signer URLSigner,
	notifier Notifier,
	publisher pubsub.Publisher,
	opts Options,
) *Service {
	if opts.SignedURLTTL <= 0 {
		opts.SignedURLTTL = 15 * time.Minute
	}
	if publisher == nil {
		publisher = pubsub.NewFallback()
	}
	return &Service{
		conversations: conversations,
		messages:      messages,
		customers:     customers,
		gateway:       gateway,
		signer:        signer,
		notifier:      notifier,
		publisher:     publisher,
		opts:          opts,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// SendMessageInput contains message data
type SendMessageInput struct {
	MessageID      string // optional; generated when empty
	ConversationID string
	Author         domain.ParticipantRef
	Kind           domain.MessageKind
	Text           string
	Media          *domain.Media
}

// SendMessage persists an agent message, hands customer messages to the
// gateway and fans the message out to the other agents.
// A gateway failure is not an error: the message is returned with status failed.
func (s *Service) SendMessage(ctx context.Context, input *SendMessageInput) (*domain.MessageView, error) {
	return s.send(ctx, input, SourceAgent)
}

func (s *Service) send(ctx context.Context, input *SendMessageInput, source string) (*domain.MessageView, error) {
	msgID := input.MessageID
	if msgID == "" {
		msgID = domain.NewMessageID()
	} else if !domain.IsLocalMessageID(msgID) {
		return nil, apperrors.InvalidArgumentError(fmt.Sprintf("message id must start with %q", domain.LocalMessagePrefix))
	}

	now := s.now()
	msg := &domain.Message{
		ID:             msgID,
		ConversationID: input.ConversationID,
		Author:         input.Author,
		Kind:           input.Kind,
		Text:           input.Text,
		Media:          input.Media,
		Status:         domain.StatusSent,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := msg.Validate(); err != nil {
		return nil, apperrors.InvalidArgumentError(err.Error())
	}
	if !msg.Author.IsAgent() {
		return nil, apperrors.ForbiddenError("Only agents can send messages")
	}

	conv, err := s.getConversation(ctx, input.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conv.CanAccess(msg.Author) {
		return nil, apperrors.ForbiddenError("Not a participant of this conversation")
	}

	var customer *domain.Customer
	if ref, ok := conv.Customer(); ok {
		customer, err = s.customers.GetByID(ctx, ref.ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperrors.NotFoundError("Customer")
			}
			return nil, apperrors.DatabaseError(err)
		}
	}

	if err := s.persist(ctx, conv, msg); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.ConflictError("message id already used")
		}
		return nil, err
	}

	if customer != nil {
		s.deliver(ctx, customer, msg)
	}

	return s.fanOut(ctx, conv, msg, source), nil
}

// Record stores a message produced outside the send pipeline (gateway
// traffic) and fans it out. A message id already on file returns an error
// wrapping repository.ErrDuplicate.
func (s *Service) Record(ctx context.Context, conv *domain.Conversation, msg *domain.Message) (*domain.MessageView, error) {
	if err := msg.Validate(); err != nil {
		return nil, apperrors.InvalidArgumentError(err.Error())
	}
	if err := s.persist(ctx, conv, msg); err != nil {
		return nil, err
	}
	return s.fanOut(ctx, conv, msg, SourceWebhook), nil
}

// persist writes the message and points the conversation cache at it
func (s *Service) persist(ctx context.Context, conv *domain.Conversation, msg *domain.Message) error {
	if err := s.messages.Create(ctx, msg); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return fmt.Errorf("message %s: %w", msg.ID, err)
		}
		return apperrors.DatabaseError(err)
	}

	if err := s.conversations.SetLastMessage(ctx, conv.ID, msg.ID); err != nil {
		return apperrors.DatabaseError(err)
	}
	conv.LastMessageID = &msg.ID
	conv.LastMessage = msg
	return nil
}

// deliver performs the single gateway attempt, marking the message failed on error
func (s *Service) deliver(ctx context.Context, customer *domain.Customer, msg *domain.Message) {
	var result waboxapp.SendResult

	switch msg.Kind {
	case domain.MessageText:
		result = s.gateway.SendText(ctx, customer.Phone, msg.ID, msg.Text)
	default:
		mediaURL, err := s.signer.SignedURL(ctx, msg.Media.StorageKey, s.opts.SignedURLTTL)
		if err != nil {
			result = waboxapp.SendResult{Error: err.Error()}
			break
		}
		if msg.Kind == domain.MessageImage {
			result = s.gateway.SendImage(ctx, customer.Phone, msg.ID, mediaURL)
		} else {
			result = s.gateway.SendFile(ctx, customer.Phone, msg.ID, mediaURL)
		}
	}

	if result.Success {
		return
	}

	log := logger.FromContext(ctx).With(zap.String("message_id", msg.ID))
	log.Warn("Outbound send failed", zap.String("error", result.Error))

	applied, err := s.messages.UpdateStatus(ctx, msg.ID, msg.Status, domain.StatusFailed)
	if err != nil {
		log.Error("Failed to mark message failed", zap.Error(err))
		return
	}
	if applied {
		msg.Status = domain.StatusFailed
		metrics.MessageStatusTransitionsTotal.WithLabelValues(string(domain.StatusFailed)).Inc()
	}
}

// fanOut bumps unread counters of the other agents and pushes the message
func (s *Service) fanOut(ctx context.Context, conv *domain.Conversation, msg *domain.Message, source string) *domain.MessageView {
	metrics.MessagesCreatedTotal.WithLabelValues(source, string(msg.Kind)).Inc()

	targets := conv.AgentIDsExcept(msg.Author.ID)
	for _, participantID := range targets {
		if err := s.conversations.IncrementUnread(ctx, conv.ID, participantID); err != nil {
			logger.FromContext(ctx).Error("Failed to increment unread counter",
				zap.String("conversation_id", conv.ID),
				zap.String("participant_id", participantID),
				zap.Error(err))
		}
	}

	view := s.View(ctx, msg)
	s.notifier.PushEvent(targets, domain.EventMessage, view, conv.Type == domain.ConversationUserToCustomer, msg.Author.ID)
	s.export(ctx, pubsub.KeyMessageCreated, source, view)
	return view
}

// View renders msg with a signed media URL. Signing failures are logged
// and leave the URL empty.
func (s *Service) View(ctx context.Context, msg *domain.Message) *domain.MessageView {
	view := &domain.MessageView{Message: msg}
	if msg.Media == nil || msg.Media.StorageKey == "" {
		return view
	}

	url, err := s.signer.SignedURL(ctx, msg.Media.StorageKey, s.opts.SignedURLTTL)
	if err != nil {
		logger.FromContext(ctx).Warn("Failed to sign media URL",
			zap.String("message_id", msg.ID),
			zap.Error(err))
		return view
	}
	view.MediaURL = url
	return view
}

func (s *Service) views(ctx context.Context, msgs []*domain.Message) []*domain.MessageView {
	out := make([]*domain.MessageView, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, s.View(ctx, msg))
	}
	return out
}

type exportedMessage struct {
	Source  string              `json:"source"`
	Message *domain.MessageView `json:"message"`
}

func (s *Service) export(ctx context.Context, key, source string, view *domain.MessageView) {
	ctx, cancel := context.WithTimeout(ctx, constants.SideEffectTimeout)
	defer cancel()

	env := pubsub.NewEnvelope(key, s.opts.Producer, logger.RequestID(ctx), exportedMessage{Source: source, Message: view})
	if err := s.publisher.Publish(ctx, key, env); err != nil {
		metrics.EventExportTotal.WithLabelValues(key, "error").Inc()
		logger.FromContext(ctx).Warn("Failed to export event",
			zap.String("key", key),
			zap.String("message_id", view.ID),
			zap.Error(err))
		return
	}
	metrics.EventExportTotal.WithLabelValues(key, "ok").Inc()
}

func (s *Service) getConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ConversationNotFoundError()
		}
		return nil, apperrors.DatabaseError(err)
	}
	return conv, nil
}

func (s *Service) getMessage(ctx context.Context, messageID string) (*domain.Message, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.MessageNotFoundError()
		}
		return nil, apperrors.DatabaseError(err)
	}
	return msg, nil
}
