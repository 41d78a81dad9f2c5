package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "wadesk-backend/pkg/errors"
	"wadesk-backend/pkg/pagination"
)

func TestMarkRead(t *testing.T) {
	f := newFixture(t, nil, agentConversation())
	f.store.setUnread("conv-agents", otherRef.ID, 2)
	ctx := context.Background()

	require.NoError(t, f.service.MarkRead(ctx, otherRef, "conv-agents"))
	assert.Equal(t, 1, f.store.unread("conv-agents", otherRef.ID))

	require.NoError(t, f.service.MarkRead(ctx, otherRef, "conv-agents"))
	require.NoError(t, f.service.MarkRead(ctx, otherRef, "conv-agents"))
	assert.Equal(t, 0, f.store.unread("conv-agents", otherRef.ID))

	assert.Empty(t, f.notifier.all())
}

func TestMarkRead_Access(t *testing.T) {
	f := newFixture(t, nil, customerConversation())
	ctx := context.Background()

	err := f.service.MarkRead(ctx, otherRef, "conv-customer")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeForbidden))

	assert.NoError(t, f.service.MarkRead(ctx, adminRef, "conv-customer"))

	err = f.service.MarkRead(ctx, agentRef, "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConversationNotFound))
}

func TestSetStarred_AndListStarred(t *testing.T) {
	f := newFixture(t, nil, customerConversation(), agentConversation())
	msg := seedMessage(t, f, "message-star0001", "sent")
	ctx := context.Background()

	view, err := f.service.SetStarred(ctx, agentRef, msg.ID, true)
	require.NoError(t, err)
	assert.True(t, view.IsStarred)

	starred, err := f.service.ListStarred(ctx, agentRef, pagination.Default())
	require.NoError(t, err)
	require.Len(t, starred, 1)
	assert.Equal(t, msg.ID, starred[0].ID)

	// otherRef does not sit in conv-customer
	starred, err = f.service.ListStarred(ctx, otherRef, pagination.Default())
	require.NoError(t, err)
	assert.Empty(t, starred)

	_, err = f.service.SetStarred(ctx, otherRef, msg.ID, false)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeForbidden))

	_, err = f.service.SetStarred(ctx, agentRef, "message-missing", true)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeMessageNotFound))
}
