package services_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidesk/omnidesk/modules/livechat/domain/aggregates/conversation"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/chatsettings"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/queueentry"
)

func enqueueConversation(t *testing.T, env *testEnv, priority conversation.Priority, queuedAt time.Time) conversation.Conversation {
	t.Helper()
	conv := conversation.New(
		env.tenantID,
		"customer-"+time.Now().Format("150405.000000000"),
		conversation.WithPriority(priority),
		conversation.WithTimestamps(queuedAt, queuedAt, queuedAt),
	)
	conv, err := env.conversations.Create(env.ctx, conv)
	require.NoError(t, err)
	_, err = env.queueService.Enqueue(env.ctx, conv)
	require.NoError(t, err)
	return conv
}

func TestQueueService_FIFOWithinSamePriority(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	base := time.Now().Add(-time.Minute)
	first := enqueueConversation(t, env, conversation.PriorityNormal, base)
	second := enqueueConversation(t, env, conversation.PriorityNormal, base.Add(time.Second))
	third := enqueueConversation(t, env, conversation.PriorityNormal, base.Add(2*time.Second))

	entries, err := env.queue.List(env.ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, first.ID(), entries[0].ConversationID())
	assert.Equal(t, second.ID(), entries[1].ConversationID())
	assert.Equal(t, third.ID(), entries[2].ConversationID())
	for i, entry := range entries {
		assert.Equal(t, i+1, entry.Position())
	}
}

func TestQueueService_HigherPriorityJumpsAhead(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	base := time.Now().Add(-time.Minute)
	normal := enqueueConversation(t, env, conversation.PriorityNormal, base)
	urgent := enqueueConversation(t, env, conversation.PriorityUrgent, base.Add(time.Second))
	high := enqueueConversation(t, env, conversation.PriorityHigh, base.Add(2*time.Second))

	entries, err := env.queue.List(env.ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, urgent.ID(), entries[0].ConversationID())
	assert.Equal(t, high.ID(), entries[1].ConversationID())
	assert.Equal(t, normal.ID(), entries[2].ConversationID())
}

func TestQueueService_EqualPriorityDoesNotOvertake(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	base := time.Now().Add(-time.Minute)
	first := enqueueConversation(t, env, conversation.PriorityHigh, base)
	second := enqueueConversation(t, env, conversation.PriorityHigh, base.Add(time.Second))

	entries, err := env.queue.List(env.ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, first.ID(), entries[0].ConversationID())
	assert.Equal(t, second.ID(), entries[1].ConversationID())
}

func TestQueueService_QueueFull(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.saveSettings(t, chatsettings.WithMaxQueueSize(2))

	base := time.Now().Add(-time.Minute)
	enqueueConversation(t, env, conversation.PriorityNormal, base)
	enqueueConversation(t, env, conversation.PriorityNormal, base.Add(time.Second))

	conv := conversation.New(env.tenantID, "customer-overflow")
	conv, err := env.conversations.Create(env.ctx, conv)
	require.NoError(t, err)
	_, err = env.queueService.Enqueue(env.ctx, conv)
	require.ErrorIs(t, err, queueentry.ErrQueueFull)

	count, err := env.queue.Count(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestQueueService_RemovalKeepsPositionsDense(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	base := time.Now().Add(-time.Minute)
	first := enqueueConversation(t, env, conversation.PriorityNormal, base)
	second := enqueueConversation(t, env, conversation.PriorityNormal, base.Add(time.Second))
	third := enqueueConversation(t, env, conversation.PriorityNormal, base.Add(2*time.Second))

	removed, err := env.queueService.Dequeue(env.ctx, second.ID())
	require.NoError(t, err)
	require.True(t, removed)

	entries, err := env.queue.List(env.ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, first.ID(), entries[0].ConversationID())
	assert.Equal(t, 1, entries[0].Position())
	assert.Equal(t, third.ID(), entries[1].ConversationID())
	assert.Equal(t, 2, entries[1].Position())
}

func TestQueueService_DequeueUnknownConversation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	conv := enqueueConversation(t, env, conversation.PriorityNormal, time.Now())
	removed, err := env.queueService.Dequeue(env.ctx, conv.ID())
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = env.queueService.Dequeue(env.ctx, conv.ID())
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestQueueService_PositionMirroredOnConversation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	base := time.Now().Add(-time.Minute)
	first := enqueueConversation(t, env, conversation.PriorityNormal, base)
	urgent := enqueueConversation(t, env, conversation.PriorityUrgent, base.Add(time.Second))

	stored, err := env.conversations.GetByID(env.ctx, first.ID())
	require.NoError(t, err)
	require.NotNil(t, stored.QueuePosition())
	assert.Equal(t, 2, *stored.QueuePosition())

	stored, err = env.conversations.GetByID(env.ctx, urgent.ID())
	require.NoError(t, err)
	require.NotNil(t, stored.QueuePosition())
	assert.Equal(t, 1, *stored.QueuePosition())
}

func TestQueueService_EstimateWait(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.saveSettings(t, chatsettings.WithAvgHandleTime(4*time.Minute, 10))

	// No agents online: the estimate assumes a single agent.
	wait, err := env.queueService.EstimateWait(env.ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 12*time.Minute, wait)

	env.onlineAgent(t)
	env.onlineAgent(t)
	wait, err = env.queueService.EstimateWait(env.ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 6*time.Minute, wait)
}

func TestQueueService_Status(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	base := time.Now().Add(-time.Minute)
	enqueueConversation(t, env, conversation.PriorityNormal, base)
	enqueueConversation(t, env, conversation.PriorityNormal, base.Add(time.Second))
	env.onlineAgent(t)

	status, err := env.queueService.Status(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.Depth)
	assert.Equal(t, chatsettings.DefaultMaxQueueSize, status.MaxSize)
	assert.Equal(t, 1, status.AvailableAgents)
	require.Len(t, status.Entries, 2)
}

func TestQueueService_PeekNextFiltersBySkills(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	billing := enqueueWithSkills(t, env, []string{"billing"}, nil)
	shipping := enqueueWithSkills(t, env, []string{"shipping"}, nil)

	// The billing entry is ahead but a shipping-only agent cannot serve
	// it, so the peek skips past it.
	entry, err := env.queueService.PeekNext(env.ctx, []string{"shipping"})
	require.NoError(t, err)
	assert.Equal(t, shipping.ID(), entry.ConversationID())

	entry, err = env.queueService.PeekNext(env.ctx, []string{"billing", "shipping"})
	require.NoError(t, err)
	assert.Equal(t, billing.ID(), entry.ConversationID())

	_, err = env.queueService.PeekNext(env.ctx, []string{"returns"})
	require.ErrorIs(t, err, queueentry.ErrNotFound)
}

func TestQueueService_PeekNextDoesNotDequeue(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	enqueueWithSkills(t, env, nil, nil)
	_, err := env.queueService.PeekNext(env.ctx, nil)
	require.NoError(t, err)

	count, err := env.queue.Count(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
