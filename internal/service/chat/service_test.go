package chat

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"wadesk-backend/internal/domain"
	"wadesk-backend/internal/gateway/waboxapp"
	"wadesk-backend/internal/repository"
	apperrors "wadesk-backend/pkg/errors"
	"wadesk-backend/pkg/pubsub"
)

var (
	agentRef    = domain.ParticipantRef{ID: "user-agent00001", Kind: domain.ParticipantUser}
	otherRef    = domain.ParticipantRef{ID: "user-agent00002", Kind: domain.ParticipantUser}
	adminRef    = domain.ParticipantRef{ID: "admin-boss00001", Kind: domain.ParticipantAdmin}
	customerRef = domain.ParticipantRef{ID: "customer-cust00001", Kind: domain.ParticipantCustomer}
	testNow     = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

type fixture struct {
	store     *memStore
	customers *MockCustomerRepository
	gateway   *MockGateway
	signer    *MockSigner
	notifier  *recordingNotifier
	service   *Service
}

func newFixture(t *testing.T, publisher pubsub.Publisher, convs ...*domain.Conversation) *fixture {
	t.Helper()
	f := &fixture{
		store:     newMemStore(convs...),
		customers: new(MockCustomerRepository),
		gateway:   new(MockGateway),
		signer:    new(MockSigner),
		notifier:  &recordingNotifier{},
	}
	f.service = NewService(
		memConversations{f.store},
		memMessages{f.store},
		f.customers,
		f.gateway,
		f.signer,
		f.notifier,
		publisher,
		Options{SignedURLTTL: time.Minute, Producer: "test"},
	)
	return f
}

func customerConversation() *domain.Conversation {
	return domain.NewUserToCustomer("conv-customer", agentRef, customerRef, testNow)
}

func agentConversation() *domain.Conversation {
	return domain.NewUserToUser("conv-agents", agentRef, otherRef, testNow)
}

func (f *fixture) expectCustomer() {
	f.customers.On("GetByID", mock.Anything, customerRef.ID).
		Return(&domain.Customer{ID: customerRef.ID, Phone: "+15550001111"}, nil)
}

func TestSendMessage_TextToCustomer(t *testing.T) {
	f := newFixture(t, nil, customerConversation())
	f.expectCustomer()
	f.gateway.On("SendText", mock.Anything, "+15550001111", mock.AnythingOfType("string"), "hello").
		Return(waboxapp.SendResult{Success: true, RemoteID: "x"})

	view, err := f.service.SendMessage(context.Background(), &SendMessageInput{
		ConversationID: "conv-customer",
		Author:         agentRef,
		Kind:           domain.MessageText,
		Text:           "hello",
	})

	require.NoError(t, err)
	assert.True(t, domain.IsLocalMessageID(view.ID))
	assert.Equal(t, domain.StatusSent, view.Status)
	assert.Equal(t, domain.StatusSent, f.store.status(view.ID))
	assert.Equal(t, view.ID, f.store.lastMessageID("conv-customer"))
	// only agent is the author, nothing to bump
	assert.Equal(t, 0, f.store.unread("conv-customer", agentRef.ID))

	events := f.notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventMessage, events[0].Kind)
	assert.Empty(t, events[0].Targets)
	assert.True(t, events[0].Admins)
	assert.Equal(t, agentRef.ID, events[0].Exclude)

	f.gateway.AssertExpectations(t)
	f.customers.AssertExpectations(t)
}

func TestSendMessage_GatewayFailureMarksFailed(t *testing.T) {
	f := newFixture(t, nil, customerConversation())
	f.expectCustomer()
	f.gateway.On("SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(waboxapp.SendResult{Error: "gateway unreachable"})

	view, err := f.service.SendMessage(context.Background(), &SendMessageInput{
		MessageID:      "message-fixed0001",
		ConversationID: "conv-customer",
		Author:         agentRef,
		Kind:           domain.MessageText,
		Text:           "hello",
	})

	require.NoError(t, err)
	assert.Equal(t, "message-fixed0001", view.ID)
	assert.Equal(t, domain.StatusFailed, view.Status)
	assert.Equal(t, domain.StatusFailed, f.store.status(view.ID))
	assert.Equal(t, view.ID, f.store.lastMessageID("conv-customer"))
	f.gateway.AssertNumberOfCalls(t, "SendText", 1)
}

func TestSendMessage_ImageUsesSignedURL(t *testing.T) {
	f := newFixture(t, nil, customerConversation())
	f.expectCustomer()
	f.signer.On("SignedURL", mock.Anything, "outbound/abc.png", time.Minute).
		Return("https://blob.example/outbound/abc.png?sig=1", nil)
	f.gateway.On("SendImage", mock.Anything, "+15550001111", mock.Anything, "https://blob.example/outbound/abc.png?sig=1").
		Return(waboxapp.SendResult{Success: true})

	view, err := f.service.SendMessage(context.Background(), &SendMessageInput{
		ConversationID: "conv-customer",
		Author:         agentRef,
		Kind:           domain.MessageImage,
		Media:          &domain.Media{Name: "abc.png", Size: 10, StorageKey: "outbound/abc.png", MimeType: "image/png"},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, view.Status)
	assert.Equal(t, "https://blob.example/outbound/abc.png?sig=1", view.MediaURL)
	f.gateway.AssertExpectations(t)
}

func TestSendMessage_VideoGoesThroughFileEndpoint(t *testing.T) {
	f := newFixture(t, nil, customerConversation())
	f.expectCustomer()
	f.signer.On("SignedURL", mock.Anything, "outbound/clip.mp4", time.Minute).Return("https://blob/clip", nil)
	f.gateway.On("SendFile", mock.Anything, mock.Anything, mock.Anything, "https://blob/clip").
		Return(waboxapp.SendResult{Success: true})

	_, err := f.service.SendMessage(context.Background(), &SendMessageInput{
		ConversationID: "conv-customer",
		Author:         agentRef,
		Kind:           domain.MessageVideo,
		Media:          &domain.Media{Name: "clip.mp4", Size: 99, StorageKey: "outbound/clip.mp4"},
	})

	require.NoError(t, err)
	f.gateway.AssertNotCalled(t, "SendImage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.gateway.AssertExpectations(t)
}

func TestSendMessage_AgentConversationSkipsGateway(t *testing.T) {
	f := newFixture(t, nil, agentConversation())

	view, err := f.service.SendMessage(context.Background(), &SendMessageInput{
		ConversationID: "conv-agents",
		Author:         agentRef,
		Kind:           domain.MessageText,
		Text:           "ping",
	})

	require.NoError(t, err)
	assert.Equal(t, 1, f.store.unread("conv-agents", otherRef.ID))
	assert.Equal(t, 0, f.store.unread("conv-agents", agentRef.ID))

	events := f.notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, []string{otherRef.ID}, events[0].Targets)
	assert.False(t, events[0].Admins)
	assert.Equal(t, view.ID, events[0].MessageID)
	f.gateway.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessage_RejectedBeforeAnyWrite(t *testing.T) {
	tests := []struct {
		name  string
		input *SendMessageInput
		code  apperrors.ErrorCode
	}{
		{
			name:  "unknown conversation",
			input: &SendMessageInput{ConversationID: "nope", Author: agentRef, Kind: domain.MessageText, Text: "x"},
			code:  apperrors.ErrCodeConversationNotFound,
		},
		{
			name:  "not a participant",
			input: &SendMessageInput{ConversationID: "conv-customer", Author: otherRef, Kind: domain.MessageText, Text: "x"},
			code:  apperrors.ErrCodeForbidden,
		},
		{
			name:  "customer author",
			input: &SendMessageInput{ConversationID: "conv-customer", Author: customerRef, Kind: domain.MessageText, Text: "x"},
			code:  apperrors.ErrCodeForbidden,
		},
		{
			name:  "empty text",
			input: &SendMessageInput{ConversationID: "conv-customer", Author: agentRef, Kind: domain.MessageText},
			code:  apperrors.ErrCodeInvalidArgument,
		},
		{
			name:  "media without file",
			input: &SendMessageInput{ConversationID: "conv-customer", Author: agentRef, Kind: domain.MessageImage},
			code:  apperrors.ErrCodeInvalidArgument,
		},
		{
			name:  "foreign message id",
			input: &SendMessageInput{MessageID: "gw-123", ConversationID: "conv-customer", Author: agentRef, Kind: domain.MessageText, Text: "x"},
			code:  apperrors.ErrCodeInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil, customerConversation())

			_, err := f.service.SendMessage(context.Background(), tt.input)

			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
			assert.Empty(t, f.store.messages)
			assert.Empty(t, f.store.lastMessageID("conv-customer"))
			assert.Empty(t, f.notifier.all())
		})
	}
}

func TestSendMessage_AdminMayPostAnywhere(t *testing.T) {
	f := newFixture(t, nil, agentConversation())

	_, err := f.service.SendMessage(context.Background(), &SendMessageInput{
		ConversationID: "conv-agents",
		Author:         adminRef,
		Kind:           domain.MessageText,
		Text:           "hi all",
	})

	require.NoError(t, err)
	assert.Equal(t, 1, f.store.unread("conv-agents", agentRef.ID))
	assert.Equal(t, 1, f.store.unread("conv-agents", otherRef.ID))
}

func TestSendMessage_ConcurrentSendsCountEveryMessage(t *testing.T) {
	f := newFixture(t, nil, agentConversation())

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.SendMessage(context.Background(), &SendMessageInput{
				ConversationID: "conv-agents",
				Author:         agentRef,
				Kind:           domain.MessageText,
				Text:           "burst",
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, n, f.store.unread("conv-agents", otherRef.ID))
	assert.Len(t, f.notifier.all(), n)
}

func TestSendMessage_ExportsCreatedEvent(t *testing.T) {
	publisher := new(MockPublisher)
	publisher.On("Publish", mock.Anything, pubsub.KeyMessageCreated, mock.MatchedBy(func(env pubsub.Envelope) bool {
		return env.Meta.Type == pubsub.KeyMessageCreated && env.Meta.Producer == "test"
	})).Return(nil).Once()

	f := newFixture(t, publisher, agentConversation())
	_, err := f.service.SendMessage(context.Background(), &SendMessageInput{
		ConversationID: "conv-agents",
		Author:         agentRef,
		Kind:           domain.MessageText,
		Text:           "exported",
	})

	require.NoError(t, err)
	publisher.AssertExpectations(t)
}

func TestSendMessage_ExportFailureDoesNotFailSend(t *testing.T) {
	publisher := new(MockPublisher)
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	f := newFixture(t, publisher, agentConversation())
	view, err := f.service.SendMessage(context.Background(), &SendMessageInput{
		ConversationID: "conv-agents",
		Author:         agentRef,
		Kind:           domain.MessageText,
		Text:           "still works",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, view.Status)
}

func TestSendMessage_ReusedIDConflicts(t *testing.T) {
	f := newFixture(t, nil, agentConversation())
	input := func() *SendMessageInput {
		return &SendMessageInput{
			MessageID:      "message-fixed0002",
			ConversationID: "conv-agents",
			Author:         agentRef,
			Kind:           domain.MessageText,
			Text:           "once",
		}
	}

	_, err := f.service.SendMessage(context.Background(), input())
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.unread("conv-agents", otherRef.ID))

	_, err = f.service.SendMessage(context.Background(), input())
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	assert.Equal(t, http.StatusConflict, appErr.StatusCode)
	assert.Equal(t, apperrors.ErrCodeConflict, appErr.Code)
	assert.Equal(t, 1, f.store.unread("conv-agents", otherRef.ID))
	assert.Len(t, f.notifier.all(), 1)
}

func TestRecord_DuplicateID(t *testing.T) {
	f := newFixture(t, nil, customerConversation())
	conv, err := memConversations{f.store}.GetByID(context.Background(), "conv-customer")
	require.NoError(t, err)

	msg := func() *domain.Message {
		return &domain.Message{
			ID:             "gw-abc",
			ConversationID: conv.ID,
			Author:         customerRef,
			Kind:           domain.MessageText,
			Text:           "hi",
			Status:         domain.StatusSent,
			CreatedAt:      testNow,
		}
	}

	_, err = f.service.Record(context.Background(), conv, msg())
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.unread(conv.ID, agentRef.ID))

	_, err = f.service.Record(context.Background(), conv, msg())
	assert.ErrorIs(t, err, repository.ErrDuplicate)
	assert.Equal(t, 1, f.store.unread(conv.ID, agentRef.ID))
	assert.Len(t, f.notifier.all(), 1)
}
