package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairConversation(t *testing.T) {
	f := newFixture(t, nil, agentConversation())
	seedHistory(t, f, "conv-agents", agentRef, "a", "b", "c")
	ctx := context.Background()

	require.NoError(t, memConversations{f.store}.SetLastMessage(ctx, "conv-agents", "message-conv-agents-00"))
	f.store.setUnread("conv-agents", otherRef.ID, 40)
	f.store.setUnread("conv-agents", agentRef.ID, 1)

	result, err := f.service.RepairConversation(ctx, "conv-agents")
	require.NoError(t, err)

	assert.True(t, result.LastFixed)
	assert.Equal(t, "message-conv-agents-02", f.store.lastMessageID("conv-agents"))
	assert.Equal(t, map[string]int{otherRef.ID: 3, agentRef.ID: 0}, result.ClampedCounter)
	assert.Equal(t, 3, f.store.unread("conv-agents", otherRef.ID))
	assert.Equal(t, 0, f.store.unread("conv-agents", agentRef.ID))

	again, err := f.service.RepairConversation(ctx, "conv-agents")
	require.NoError(t, err)
	assert.False(t, again.Changed())
}

func TestRepairConversation_ClearsDanglingLast(t *testing.T) {
	f := newFixture(t, nil, agentConversation())
	ctx := context.Background()
	require.NoError(t, memConversations{f.store}.SetLastMessage(ctx, "conv-agents", "message-gone"))

	result, err := f.service.RepairConversation(ctx, "conv-agents")
	require.NoError(t, err)
	assert.True(t, result.LastFixed)
	assert.Nil(t, result.LastMessageID)
	assert.Empty(t, f.store.lastMessageID("conv-agents"))
}

func TestRepairAll(t *testing.T) {
	f := newFixture(t, nil, agentConversation(), customerConversation())
	seedHistory(t, f, "conv-agents", agentRef, "x")

	summary, err := f.service.RepairAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Scanned)
	assert.Equal(t, 1, summary.Repaired)
	assert.Equal(t, 0, summary.Failed)
}
