package chat

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"wadesk-backend/internal/domain"
	"wadesk-backend/internal/gateway/waboxapp"
	"wadesk-backend/internal/repository"
	"wadesk-backend/pkg/pubsub"
)

// memStore is an in-memory conversation and message store
type memStore struct {
	mu            sync.Mutex
	conversations map[string]*domain.Conversation
	messages      map[string]*domain.Message
}

func newMemStore(convs ...*domain.Conversation) *memStore {
	s := &memStore{
		conversations: make(map[string]*domain.Conversation),
		messages:      make(map[string]*domain.Message),
	}
	for _, c := range convs {
		s.conversations[c.ID] = c
	}
	return s
}

func (s *memStore) unread(convID, participantID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.conversations[convID].Participant(participantID); p != nil {
		return p.UnreadCount
	}
	return -1
}

func (s *memStore) setUnread(convID, participantID string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[convID].Participant(participantID).UnreadCount = n
}

func (s *memStore) lastMessageID(convID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id := s.conversations[convID].LastMessageID; id != nil {
		return *id
	}
	return ""
}

func (s *memStore) status(messageID string) domain.MessageStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[messageID].Status
}

type memConversations struct{ *memStore }

func (r memConversations) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	cp.Participants = append([]domain.Participant(nil), c.Participants...)
	return &cp, nil
}

func (r memConversations) ListIDs(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.conversations))
	for id := range r.conversations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r memConversations) SetLastMessage(ctx context.Context, convID, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[convID]
	if !ok {
		return repository.ErrNotFound
	}
	id := messageID
	c.LastMessageID = &id
	return nil
}

func (r memConversations) ClearLastMessage(ctx context.Context, convID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations[convID].LastMessageID = nil
	return nil
}

func (r memConversations) adjust(convID, participantID string, fn func(int) int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[convID]
	if !ok {
		return repository.ErrNotFound
	}
	p := c.Participant(participantID)
	if p == nil {
		return repository.ErrNotFound
	}
	p.UnreadCount = fn(p.UnreadCount)
	return nil
}

func (r memConversations) IncrementUnread(ctx context.Context, convID, participantID string) error {
	return r.adjust(convID, participantID, func(n int) int { return n + 1 })
}

func (r memConversations) DecrementUnread(ctx context.Context, convID, participantID string) error {
	return r.adjust(convID, participantID, func(n int) int {
		if n <= 0 {
			return 0
		}
		return n - 1
	})
}

func (r memConversations) ClampUnread(ctx context.Context, convID, participantID string, max int) error {
	return r.adjust(convID, participantID, func(n int) int {
		if n < 0 {
			n = 0
		}
		if n > max {
			n = max
		}
		return n
	})
}

type memMessages struct{ *memStore }

func (r memMessages) Create(ctx context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.messages[msg.ID]; ok {
		return repository.ErrDuplicate
	}
	cp := *msg
	r.messages[msg.ID] = &cp
	return nil
}

func (r memMessages) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r memMessages) UpdateStatus(ctx context.Context, id string, from, to domain.MessageStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if m.Status != from {
		return false, nil
	}
	m.Status = to
	return true, nil
}

func (r memMessages) SetStarred(ctx context.Context, id string, starred bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.IsStarred = starred
	return nil
}

func (r memMessages) sorted(convID string) []*domain.Message {
	var out []*domain.Message
	for _, m := range r.messages {
		if convID == "" || m.ConversationID == convID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r memMessages) ListByConversation(ctx context.Context, convID string, limit, offset int) ([]*domain.Message, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.sorted(convID)
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (r memMessages) Search(ctx context.Context, f *domain.MessageFilter) ([]*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Message
	for _, m := range r.sorted(f.ConversationID) {
		if f.StarredOnly && !m.IsStarred {
			continue
		}
		if f.Query != "" && !strings.Contains(strings.ToLower(m.Preview()), strings.ToLower(f.Query)) {
			continue
		}
		if f.ParticipantID != "" && !r.conversations[m.ConversationID].HasParticipant(f.ParticipantID) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (r memMessages) Latest(ctx context.Context, convID string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.sorted(convID)
	if len(all) == 0 {
		return nil, repository.ErrNotFound
	}
	return all[0], nil
}

func (r memMessages) CountNotAuthoredBy(ctx context.Context, convID, participantID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages {
		if m.ConversationID == convID && m.Author.ID != participantID {
			n++
		}
	}
	return n, nil
}

type MockCustomerRepository struct {
	mock.Mock
}

func (m *MockCustomerRepository) GetByID(ctx context.Context, id string) (*domain.Customer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Customer), args.Error(1)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) SendText(ctx context.Context, phone, messageID, text string) waboxapp.SendResult {
	args := m.Called(ctx, phone, messageID, text)
	return args.Get(0).(waboxapp.SendResult)
}

func (m *MockGateway) SendImage(ctx context.Context, phone, messageID, url string) waboxapp.SendResult {
	args := m.Called(ctx, phone, messageID, url)
	return args.Get(0).(waboxapp.SendResult)
}

func (m *MockGateway) SendFile(ctx context.Context, phone, messageID, url string) waboxapp.SendResult {
	args := m.Called(ctx, phone, messageID, url)
	return args.Get(0).(waboxapp.SendResult)
}

type MockSigner struct {
	mock.Mock
}

func (m *MockSigner) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, key, ttl)
	return args.String(0), args.Error(1)
}

// pushed records one PushEvent call
type pushed struct {
	Targets   []string
	Kind      string
	MessageID string
	Admins    bool
	Exclude   string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []pushed
}

func (n *recordingNotifier) PushEvent(targets []string, kind string, msg *domain.MessageView, admins bool, exclude string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, pushed{Targets: targets, Kind: kind, MessageID: msg.ID, Admins: admins, Exclude: exclude})
	return len(targets)
}

func (n *recordingNotifier) all() []pushed {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]pushed(nil), n.events...)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, key string, env pubsub.Envelope) error {
	args := m.Called(ctx, key, env)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	return m.Called().Error(0)
}
