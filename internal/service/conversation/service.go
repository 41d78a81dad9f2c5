package conversation

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wadesk-backend/internal/domain"
	"wadesk-backend/internal/repository"
	apperrors "wadesk-backend/pkg/errors"
	"wadesk-backend/pkg/logger"
	"wadesk-backend/pkg/pagination"
	"wadesk-backend/pkg/sanitize"
)

// Tenant setting keys
const (
	SettingDefaultUser   = "default_user_id"
	SettingDefaultSender = "default_sender_id"
)

var phonePattern = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// ConversationRepository persists conversations
type ConversationRepository interface {
	Create(ctx context.Context, conv *domain.Conversation) error
	GetByID(ctx context.Context, conversationID string) (*domain.Conversation, error)
	GetByCustomer(ctx context.Context, customerID string) (*domain.Conversation, error)
	ExistsBetween(ctx context.Context, a, b string) (bool, error)
	List(ctx context.Context, filter *domain.ConversationFilter) ([]*domain.Conversation, int64, error)
	ReplaceAgent(ctx context.Context, conversationID, oldAgentID string, agent domain.ParticipantRef) error
}

// CustomerRepository persists customers
type CustomerRepository interface {
	Create(ctx context.Context, customer *domain.Customer) error
	GetByID(ctx context.Context, customerID string) (*domain.Customer, error)
	GetByPhone(ctx context.Context, phone string) (*domain.Customer, error)
	UpdateAssignedUser(ctx context.Context, customerID, userID string) error
}

// UserRepository reads the agent directory
type UserRepository interface {
	GetByID(ctx context.Context, userID string) (*domain.User, error)
	ListActive(ctx context.Context) ([]*domain.User, error)
}

// SettingsRepository stores tenant settings
type SettingsRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// MessageRenderer renders the cached last message for clients
type MessageRenderer interface {
	View(ctx context.Context, msg *domain.Message) *domain.MessageView
}

// Defaults are used when the settings table has no entry
type Defaults struct {
	UserID   string
	SenderID string
}

// Service handles conversation business logic
type Service struct {
	conversationRepo ConversationRepository
	customerRepo     CustomerRepository
	userRepo         UserRepository
	settingsRepo     SettingsRepository
	renderer         MessageRenderer
	defaults         Defaults
}

// NewService creates a new conversation service
func NewService(
	conversationRepo ConversationRepository,
	customerRepo CustomerRepository,
	userRepo UserRepository,
	settingsRepo SettingsRepository,
	renderer MessageRenderer,
	defaults Defaults,
) *Service {
	return &Service{
		conversationRepo: conversationRepo,
		customerRepo:     customerRepo,
		userRepo:         userRepo,
		settingsRepo:     settingsRepo,
		renderer:         renderer,
		defaults:         defaults,
	}
}

// ConversationView is a conversation with its rendered last message
type ConversationView struct {
	*domain.Conversation
	LastMessage *domain.MessageView `json:"last_message"`
}

// OnboardCustomerInput contains customer creation data
type OnboardCustomerInput struct {
	Name           string
	Phone          string
	Company        string
	AssignedUserID string // empty selects the tenant default user
}

// OnboardCustomer creates a customer and its single customer conversation
func (s *Service) OnboardCustomer(ctx context.Context, input *OnboardCustomerInput) (*domain.Customer, *domain.Conversation, error) {
	phone := strings.TrimSpace(input.Phone)
	if !phonePattern.MatchString(phone) {
		return nil, nil, apperrors.InvalidArgumentError("phone must be in E.164 format")
	}

	var (
		user *domain.User
		err  error
	)
	if input.AssignedUserID == "" {
		user, err = s.DefaultUser(ctx)
	} else {
		user, err = s.getUser(ctx, input.AssignedUserID)
	}
	if err != nil {
		return nil, nil, err
	}

	name := sanitize.DisplayName(input.Name)
	if name == "" {
		name = phone
	}

	now := time.Now().UTC()
	customer := &domain.Customer{
		ID:             domain.NewParticipantID(domain.ParticipantCustomer),
		Name:           name,
		Phone:          phone,
		Company:        strings.TrimSpace(input.Company),
		AssignedUserID: user.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.customerRepo.Create(ctx, customer); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, nil, apperrors.PhoneExistsError()
		}
		return nil, nil, apperrors.DatabaseError(err)
	}

	conv, err := s.createCustomerConversation(ctx, user, customer)
	if err != nil {
		return nil, nil, err
	}

	logger.FromContext(ctx).Info("Customer onboarded",
		zap.String("customer_id", customer.ID),
		zap.String("assigned_user_id", user.ID),
		zap.String("conversation_id", conv.ID))

	return customer, conv, nil
}

// ResolveCustomer returns the customer with phone and its conversation,
// onboarding both when unknown. created reports whether onboarding happened.
func (s *Service) ResolveCustomer(ctx context.Context, phone, name string) (customer *domain.Customer, conv *domain.Conversation, created bool, err error) {
	customer, err = s.customerRepo.GetByPhone(ctx, phone)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		customer, conv, err = s.OnboardCustomer(ctx, &OnboardCustomerInput{Name: name, Phone: phone})
		if err == nil {
			return customer, conv, true, nil
		}
		if !apperrors.HasCode(err, apperrors.ErrCodePhoneExists) {
			return nil, nil, false, err
		}
		// lost a race with a concurrent first contact
		customer, err = s.customerRepo.GetByPhone(ctx, phone)
		if err != nil {
			return nil, nil, false, apperrors.DatabaseError(err)
		}
	default:
		return nil, nil, false, apperrors.DatabaseError(err)
	}

	conv, err = s.conversationRepo.GetByCustomer(ctx, customer.ID)
	if err == nil {
		return customer, conv, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, nil, false, apperrors.DatabaseError(err)
	}

	// customer row without a conversation; recreate it for the assignee
	user, err := s.getUser(ctx, customer.AssignedUserID)
	if err != nil {
		if user, err = s.DefaultUser(ctx); err != nil {
			return nil, nil, false, err
		}
	}
	conv, err = s.createCustomerConversation(ctx, user, customer)
	if err != nil {
		return nil, nil, false, err
	}
	return customer, conv, false, nil
}

func (s *Service) createCustomerConversation(ctx context.Context, user *domain.User, customer *domain.Customer) (*domain.Conversation, error) {
	conv := domain.NewUserToCustomer(uuid.NewString(), user.Ref(), customer.Ref(), time.Now().UTC())
	if err := conv.Validate(); err != nil {
		return nil, apperrors.InvalidArgumentError(err.Error())
	}

	if err := s.conversationRepo.Create(ctx, conv); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			existing, getErr := s.conversationRepo.GetByCustomer(ctx, customer.ID)
			if getErr != nil {
				return nil, apperrors.DatabaseError(getErr)
			}
			return existing, nil
		}
		return nil, apperrors.DatabaseError(err)
	}
	return conv, nil
}

// ProvisionUser creates the missing user_to_user conversations between
// userID and every other active directory user
func (s *Service) ProvisionUser(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	others, err := s.userRepo.ListActive(ctx)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	var created []*domain.Conversation
	for _, other := range others {
		if other.ID == user.ID {
			continue
		}

		exists, err := s.conversationRepo.ExistsBetween(ctx, user.ID, other.ID)
		if err != nil {
			return created, apperrors.DatabaseError(err)
		}
		if exists {
			continue
		}

		conv := domain.NewUserToUser(uuid.NewString(), user.Ref(), other.Ref(), time.Now().UTC())
		if err := s.conversationRepo.Create(ctx, conv); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				continue
			}
			return created, apperrors.DatabaseError(err)
		}
		created = append(created, conv)
	}

	logger.FromContext(ctx).Info("User provisioned",
		zap.String("user_id", user.ID),
		zap.Int("conversations_created", len(created)))

	return created, nil
}

// ListConversations returns a page of conversations visible to actor
func (s *Service) ListConversations(ctx context.Context, actor domain.ParticipantRef, convType domain.ConversationType, params *pagination.Params) (*pagination.Page, error) {
	if convType != "" && !convType.Valid() {
		return nil, apperrors.InvalidArgumentError("unknown conversation type")
	}
	if params == nil {
		params = pagination.Default()
	}

	filter := &domain.ConversationFilter{Type: convType, Limit: params.Limit, Offset: params.Offset}
	views, total, err := s.list(ctx, actor, filter)
	if err != nil {
		return nil, err
	}
	return pagination.NewPage(params, total, views), nil
}

// SearchConversations matches customer details and last message content
func (s *Service) SearchConversations(ctx context.Context, actor domain.ParticipantRef, query string, params *pagination.Params) ([]*ConversationView, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.MissingFieldError("q")
	}
	if params == nil {
		params = pagination.Default()
	}

	views, _, err := s.list(ctx, actor, &domain.ConversationFilter{Query: query, Limit: params.Limit, Offset: params.Offset})
	return views, err
}

func (s *Service) list(ctx context.Context, actor domain.ParticipantRef, filter *domain.ConversationFilter) ([]*ConversationView, int64, error) {
	if !actor.IsAdmin() {
		filter.ParticipantID = actor.ID
	}

	convs, total, err := s.conversationRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, apperrors.DatabaseError(err)
	}

	views := make([]*ConversationView, 0, len(convs))
	for _, conv := range convs {
		view := &ConversationView{Conversation: conv}
		if conv.LastMessage != nil {
			view.LastMessage = s.renderer.View(ctx, conv.LastMessage)
		}
		views = append(views, view)
	}
	return views, total, nil
}

// Reassign moves a customer conversation to userID. Unread counts of the
// seat carry over to the new agent.
func (s *Service) Reassign(ctx context.Context, conversationID, userID string) (*domain.Conversation, error) {
	conv, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ConversationNotFoundError()
		}
		return nil, apperrors.DatabaseError(err)
	}

	customer, ok := conv.Customer()
	if !ok {
		return nil, apperrors.InvalidArgumentError("only customer conversations can be reassigned")
	}

	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	agents := conv.Agents()
	if len(agents) != 1 {
		return nil, apperrors.InternalError("customer conversation without a single agent")
	}
	current := agents[0]
	if current.ID == user.ID {
		return conv, nil
	}

	if err := s.conversationRepo.ReplaceAgent(ctx, conv.ID, current.ID, user.Ref()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ConversationNotFoundError()
		}
		return nil, apperrors.DatabaseError(err)
	}
	if err := s.customerRepo.UpdateAssignedUser(ctx, customer.ID, user.ID); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	logger.FromContext(ctx).Info("Conversation reassigned",
		zap.String("conversation_id", conv.ID),
		zap.String("from", current.ID),
		zap.String("to", user.ID))

	conv, err = s.conversationRepo.GetByID(ctx, conv.ID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return conv, nil
}

// DefaultUser returns the user new customers are assigned to
func (s *Service) DefaultUser(ctx context.Context) (*domain.User, error) {
	id, err := s.setting(ctx, SettingDefaultUser, s.defaults.UserID)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, apperrors.InternalError("no default user configured")
	}
	return s.getUser(ctx, id)
}

// SetDefaultUser changes the user new customers are assigned to
func (s *Service) SetDefaultUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, apperrors.InvalidArgumentError("user is not active")
	}
	if err := s.settingsRepo.Set(ctx, SettingDefaultUser, user.ID); err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return user, nil
}

// DefaultSender returns the author of messages sent outside this system
// through the gateway console. Falls back to the default user.
func (s *Service) DefaultSender(ctx context.Context) (domain.ParticipantRef, error) {
	id, err := s.setting(ctx, SettingDefaultSender, s.defaults.SenderID)
	if err != nil {
		return domain.ParticipantRef{}, err
	}

	var user *domain.User
	if id == "" {
		user, err = s.DefaultUser(ctx)
	} else {
		user, err = s.getUser(ctx, id)
	}
	if err != nil {
		return domain.ParticipantRef{}, err
	}
	return user.Ref(), nil
}

func (s *Service) setting(ctx context.Context, key, fallback string) (string, error) {
	value, err := s.settingsRepo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fallback, nil
		}
		return "", apperrors.DatabaseError(err)
	}
	return value, nil
}

func (s *Service) getUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFoundError("User")
		}
		return nil, apperrors.DatabaseError(err)
	}
	return user, nil
}
