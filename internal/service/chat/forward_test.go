package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"wadesk-backend/internal/domain"
	"wadesk-backend/internal/gateway/waboxapp"
	apperrors "wadesk-backend/pkg/errors"
)

func TestForwardMessage(t *testing.T) {
	f := newFixture(t, nil, agentConversation(), customerConversation())
	seedHistory(t, f, "conv-agents", otherRef, "look at this")
	f.expectCustomer()
	f.gateway.On("SendText", mock.Anything, "+15550001111", mock.Anything, "look at this").
		Return(waboxapp.SendResult{Success: true})

	views, err := f.service.ForwardMessage(context.Background(), agentRef, "message-conv-agents-00",
		[]string{"conv-customer", "conv-customer"})

	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.NotEqual(t, "message-conv-agents-00", views[0].ID)
	assert.Equal(t, agentRef, views[0].Author)
	assert.Equal(t, "conv-customer", views[0].ConversationID)
	assert.Equal(t, domain.StatusSent, views[0].Status)
	f.gateway.AssertExpectations(t)
}

func TestForwardMessage_ChecksEveryTargetFirst(t *testing.T) {
	other := domain.NewUserToUser("conv-private", otherRef, adminRef, testNow)
	f := newFixture(t, nil, agentConversation(), other)
	seedHistory(t, f, "conv-agents", otherRef, "secret")

	_, err := f.service.ForwardMessage(context.Background(), agentRef, "message-conv-agents-00",
		[]string{"conv-agents", "conv-private"})

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeForbidden))
	assert.Len(t, f.store.messages, 1)
}

func TestForwardMessage_NoTargets(t *testing.T) {
	f := newFixture(t, nil, agentConversation())

	_, err := f.service.ForwardMessage(context.Background(), agentRef, "message-x", nil)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeMissingField))
}
