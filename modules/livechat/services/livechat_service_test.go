package services_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidesk/omnidesk/modules/livechat/domain/aggregates/conversation"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/agent"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/chatsettings"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/queueentry"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/transfer"
	"github.com/omnidesk/omnidesk/modules/livechat/services"
)

func startConversation(t *testing.T, env *testEnv) *services.StartConversationResult {
	t.Helper()
	result, err := env.chatService.StartConversation(env.ctx, services.StartConversationInput{
		CustomerIdentifier: "customer-" + uuid.NewString()[:8],
		CustomerName:       "Dana",
		HandoffReason:      "user_requested",
		OriginalQuestion:   "Where is my refund?",
		Priority:           conversation.PriorityNormal,
	})
	require.NoError(t, err)
	return result
}

func TestLiveChatService_StartAssignsWhenAgentFree(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	a := env.onlineAgent(t)
	result := startConversation(t, env)

	require.NotNil(t, result.Assignment)
	assert.Equal(t, a.ID(), result.Assignment.Agent.ID())
	assert.Equal(t, conversation.StatusActive, result.Conversation.Status())
	assert.Nil(t, result.Conversation.QueuePosition())

	count, err := env.queue.Count(env.ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestLiveChatService_StartQueuesWhenNobodyOnline(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	result := startConversation(t, env)

	assert.Nil(t, result.Assignment)
	assert.Equal(t, conversation.StatusQueued, result.Conversation.Status())
	require.NotNil(t, result.Conversation.QueuePosition())
	assert.Equal(t, 1, *result.Conversation.QueuePosition())
	require.NotNil(t, result.Entry)
	assert.Equal(t, 1, result.Entry.Position())
	assert.Positive(t, result.Entry.EstimatedWaitSeconds())
}

func TestLiveChatService_StartRejectedWhenQueueFull(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.saveSettings(t, chatsettings.WithMaxQueueSize(1))

	startConversation(t, env)
	_, err := env.chatService.StartConversation(env.ctx, services.StartConversationInput{
		CustomerIdentifier: "customer-overflow",
	})
	require.ErrorIs(t, err, queueentry.ErrQueueFull)
}

func TestLiveChatService_StartRejectedWhenDisabled(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.saveSettings(t, chatsettings.WithEnabled(false))

	_, err := env.chatService.StartConversation(env.ctx, services.StartConversationInput{
		CustomerIdentifier: "customer-1",
	})
	require.ErrorIs(t, err, services.ErrChatDisabled)
}

func TestLiveChatService_AbandonFromQueue(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	first := startConversation(t, env)
	second := startConversation(t, env)

	abandoned, err := env.chatService.AbandonConversation(env.ctx, first.Conversation.ID())
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusAbandoned, abandoned.Status())
	assert.Nil(t, abandoned.QueuePosition())
	assert.Equal(t, "customer", abandoned.ClosedBy())
	assert.Equal(t, "abandoned_in_queue", abandoned.ClosureReason())

	// The survivor moves up to the head of the queue.
	stored, err := env.conversations.GetByID(env.ctx, second.Conversation.ID())
	require.NoError(t, err)
	require.NotNil(t, stored.QueuePosition())
	assert.Equal(t, 1, *stored.QueuePosition())
}

func TestLiveChatService_AbandonLosesRaceToAssignment(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	result := startConversation(t, env)
	a := env.onlineAgent(t)
	assignment, err := env.chatService.AgentAcceptsNext(env.ctx, a.ID())
	require.NoError(t, err)
	require.NotNil(t, assignment)

	_, err = env.chatService.AbandonConversation(env.ctx, result.Conversation.ID())
	require.ErrorIs(t, err, conversation.ErrAlreadyAssigned)

	stored, err := env.conversations.GetByID(env.ctx, result.Conversation.ID())
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusActive, stored.Status())
}

func TestLiveChatService_MessagesUpdateCounters(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.onlineAgent(t)
	result := startConversation(t, env)
	id := result.Conversation.ID()

	_, err := env.chatService.CustomerMessage(env.ctx, id)
	require.NoError(t, err)
	conv, err := env.chatService.AgentMessage(env.ctx, id)
	require.NoError(t, err)

	assert.Equal(t, 2, conv.MessageCount())
	assert.Equal(t, 1, conv.CustomerMessageCount())
	assert.Equal(t, 1, conv.AgentMessageCount())
	assert.NotNil(t, conv.FirstResponseAt())
}

func TestLiveChatService_CloseFreesAgentAndRecordsMetrics(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	a := env.onlineAgent(t)
	result := startConversation(t, env)
	id := result.Conversation.ID()

	_, err := env.chatService.AgentMessage(env.ctx, id)
	require.NoError(t, err)

	rating := 5
	closed, err := env.chatService.CloseConversation(env.ctx, services.CloseInput{
		ConversationID: id,
		ClosedBy:       "agent",
		Reason:         "resolved",
		Resolution:     "answered",
		Satisfaction:   &rating,
	})
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusResolved, closed.Status())
	require.NotNil(t, closed.Satisfaction())
	assert.Equal(t, 5, *closed.Satisfaction())
	require.NotNil(t, closed.DurationSeconds())
	require.NotNil(t, closed.ResponseTimeSeconds())

	reloaded, err := env.agents.GetByID(env.ctx, a.ID())
	require.NoError(t, err)
	assert.Zero(t, reloaded.ActiveConversations())

	settings, err := env.settings.Get(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, settings.HandledCount())
}

func TestLiveChatService_CloseTwiceFails(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.onlineAgent(t)
	result := startConversation(t, env)

	input := services.CloseInput{ConversationID: result.Conversation.ID(), ClosedBy: "agent"}
	_, err := env.chatService.CloseConversation(env.ctx, input)
	require.NoError(t, err)
	_, err = env.chatService.CloseConversation(env.ctx, input)
	require.ErrorIs(t, err, conversation.ErrInvalidTransition)
}

func TestLiveChatService_TransferMovesConversation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	from := env.onlineAgent(t)
	result := startConversation(t, env)
	to := env.onlineAgent(t)

	record, err := env.chatService.TransferConversation(env.ctx, services.TransferInput{
		ConversationID:      result.Conversation.ID(),
		FromAgentID:         from.ID(),
		ToAgentID:           to.ID(),
		Reason:              "needs billing specialist",
		ConversationSummary: "customer disputes an invoice",
	})
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusCompleted, record.Status())
	assert.NotNil(t, record.CompletedAt())

	stored, err := env.conversations.GetByID(env.ctx, result.Conversation.ID())
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusActive, stored.Status())
	require.NotNil(t, stored.AssignedAgentID())
	assert.Equal(t, to.ID(), *stored.AssignedAgentID())
	require.NotNil(t, stored.PreviousAgentID())
	assert.Equal(t, from.ID(), *stored.PreviousAgentID())
	assert.Equal(t, conversation.MethodTransfer, stored.AssignmentMethod())

	fromReloaded, err := env.agents.GetByID(env.ctx, from.ID())
	require.NoError(t, err)
	assert.Zero(t, fromReloaded.ActiveConversations())
	toReloaded, err := env.agents.GetByID(env.ctx, to.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, toReloaded.ActiveConversations())
}

func TestLiveChatService_TransferRejectedWhenTargetFull(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	from := env.onlineAgent(t)
	result := startConversation(t, env)
	busy := env.onlineAgent(t, agent.WithMaxConcurrentChats(1), agent.WithActiveConversations(1))

	record, err := env.chatService.TransferConversation(env.ctx, services.TransferInput{
		ConversationID: result.Conversation.ID(),
		FromAgentID:    from.ID(),
		ToAgentID:      busy.ID(),
	})
	require.ErrorIs(t, err, transfer.ErrRejected)

	// The rejection itself is returned and persisted.
	require.NotNil(t, record)
	assert.Equal(t, transfer.StatusRejected, record.Status())

	// The conversation never left the source agent.
	stored, err := env.conversations.GetByID(env.ctx, result.Conversation.ID())
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusActive, stored.Status())
	require.NotNil(t, stored.AssignedAgentID())
	assert.Equal(t, from.ID(), *stored.AssignedAgentID())

	history, err := env.chatService.TransferHistory(env.ctx, result.Conversation.ID())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, transfer.StatusRejected, history[0].Status())
}

func TestLiveChatService_TransferRequiresCurrentAgent(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.onlineAgent(t)
	result := startConversation(t, env)
	other := env.onlineAgent(t)
	stranger := env.onlineAgent(t)

	_, err := env.chatService.TransferConversation(env.ctx, services.TransferInput{
		ConversationID: result.Conversation.ID(),
		FromAgentID:    stranger.ID(),
		ToAgentID:      other.ID(),
	})
	require.ErrorIs(t, err, conversation.ErrInvalidTransition)
}

func TestLiveChatService_EscalateKeepsAgent(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	a := env.onlineAgent(t)
	result := startConversation(t, env)

	escalated, err := env.chatService.EscalateConversation(env.ctx, result.Conversation.ID(), "agent")
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusEscalated, escalated.Status())
	require.NotNil(t, escalated.AssignedAgentID())
	assert.Equal(t, a.ID(), *escalated.AssignedAgentID())

	// An escalated conversation can still be closed.
	closed, err := env.chatService.CloseConversation(env.ctx, services.CloseInput{
		ConversationID: result.Conversation.ID(),
		ClosedBy:       "supervisor",
	})
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusResolved, closed.Status())
}

func TestLiveChatService_AgentOnlineDrainsQueue(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	first := startConversation(t, env)
	second := startConversation(t, env)

	a := agent.New(env.tenantID, "late@support.example.com", "Late Arrival")
	a, err := env.presenceService.RegisterAgent(env.ctx, a)
	require.NoError(t, err)

	updated, assigned, err := env.chatService.AgentStatusChanged(env.ctx, a.ID(), agent.StatusOnline)
	require.NoError(t, err)
	assert.Equal(t, agent.StatusOnline, updated.Status())
	require.Len(t, assigned, 2)
	assert.Equal(t, first.Conversation.ID(), assigned[0].Conversation.ID())
	assert.Equal(t, second.Conversation.ID(), assigned[1].Conversation.ID())

	count, err := env.queue.Count(env.ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestLiveChatService_AgentAwayStopsNewAssignments(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	a := env.onlineAgent(t)
	_, _, err := env.chatService.AgentStatusChanged(env.ctx, a.ID(), agent.StatusAway)
	require.NoError(t, err)

	result := startConversation(t, env)
	assert.Nil(t, result.Assignment)
	assert.Equal(t, conversation.StatusQueued, result.Conversation.Status())
}

func TestLiveChatService_RoutingHistoryAccumulates(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	result := startConversation(t, env)
	id := result.Conversation.ID()

	// First decision: nobody available. Second: assigned on drain.
	a := agent.New(env.tenantID, "a@support.example.com", "A")
	a, err := env.presenceService.RegisterAgent(env.ctx, a)
	require.NoError(t, err)
	_, _, err = env.chatService.AgentStatusChanged(env.ctx, a.ID(), agent.StatusOnline)
	require.NoError(t, err)

	history, err := env.chatService.RoutingHistory(env.ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "no_agent_available", history[0].FallbackReason())
	require.NotNil(t, history[1].SelectedAgentID())
	assert.Equal(t, a.ID(), *history[1].SelectedAgentID())
}

func TestLiveChatService_CloseUpdatesTagPerformance(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	a := env.onlineAgent(t, agent.WithTags([]agent.Tag{{Name: "billing", Proficiency: 0.9}}))
	result, err := env.chatService.StartConversation(env.ctx, services.StartConversationInput{
		CustomerIdentifier: "customer-billing",
		SkillsRequired:     []string{"billing"},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Assignment)

	rating := 5
	_, err = env.chatService.CloseConversation(env.ctx, services.CloseInput{
		ConversationID: result.Conversation.ID(),
		ClosedBy:       "agent",
		Satisfaction:   &rating,
	})
	require.NoError(t, err)

	reloaded, err := env.agents.GetByID(env.ctx, a.ID())
	require.NoError(t, err)
	tag, ok := reloaded.TagByName("billing")
	require.True(t, ok)
	assert.Equal(t, 1, tag.ConversationsHandled)
	assert.InDelta(t, 1.0, tag.SuccessRate, 0.001)
	assert.InDelta(t, 5.0, tag.AvgSatisfaction, 0.001)
}

func TestLiveChatService_CloseRollsTagAverages(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	a := env.onlineAgent(t, agent.WithTags([]agent.Tag{{
		Name:                 "billing",
		Proficiency:          0.9,
		SuccessRate:          0.75,
		AvgSatisfaction:      4,
		ConversationsHandled: 4,
	}}))
	result, err := env.chatService.StartConversation(env.ctx, services.StartConversationInput{
		CustomerIdentifier: "customer-billing",
		SkillsRequired:     []string{"billing"},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Assignment)

	rating := 2
	_, err = env.chatService.CloseConversation(env.ctx, services.CloseInput{
		ConversationID: result.Conversation.ID(),
		ClosedBy:       "agent",
		Resolution:     "resolved",
		Satisfaction:   &rating,
	})
	require.NoError(t, err)

	reloaded, err := env.agents.GetByID(env.ctx, a.ID())
	require.NoError(t, err)
	tag, ok := reloaded.TagByName("billing")
	require.True(t, ok)
	assert.Equal(t, 5, tag.ConversationsHandled)
	assert.InDelta(t, 0.8, tag.SuccessRate, 0.001)
	assert.InDelta(t, 3.6, tag.AvgSatisfaction, 0.001)
}

func TestLiveChatService_PeekNextPreviewsAgentQueue(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	billingConv, err := env.chatService.StartConversation(env.ctx, services.StartConversationInput{
		CustomerIdentifier: "customer-billing",
		SkillsRequired:     []string{"billing"},
	})
	require.NoError(t, err)
	shippingConv, err := env.chatService.StartConversation(env.ctx, services.StartConversationInput{
		CustomerIdentifier: "customer-shipping",
		SkillsRequired:     []string{"shipping"},
	})
	require.NoError(t, err)
	require.Nil(t, billingConv.Assignment)
	require.Nil(t, shippingConv.Assignment)

	// Registered but never brought online, so nothing auto-assigns.
	a, err := env.presenceService.RegisterAgent(env.ctx, agent.New(
		env.tenantID,
		"peek@support.example.com",
		"Peek",
		agent.WithTags([]agent.Tag{{Name: "shipping", Proficiency: 1}}),
	))
	require.NoError(t, err)

	entry, err := env.chatService.PeekNextForAgent(env.ctx, a.ID())
	require.NoError(t, err)
	assert.Equal(t, shippingConv.Conversation.ID(), entry.ConversationID())

	// Peeking never mutates the queue.
	count, err := env.queue.Count(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestLiveChatService_StartPublishesLifecycleEvents(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	var queued, assigned int
	env.bus.Subscribe(func(*conversation.QueuedEvent) { queued++ })
	env.bus.Subscribe(func(*conversation.AssignedEvent) { assigned++ })

	env.onlineAgent(t)
	startConversation(t, env)
	assert.Equal(t, 1, queued)
	assert.Equal(t, 1, assigned)
}

func TestLiveChatService_RejectedStartPublishesNothing(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.saveSettings(t, chatsettings.WithMaxQueueSize(1))

	var queued int
	env.bus.Subscribe(func(*conversation.QueuedEvent) { queued++ })

	startConversation(t, env)
	_, err := env.chatService.StartConversation(env.ctx, services.StartConversationInput{
		CustomerIdentifier: "customer-overflow",
	})
	require.ErrorIs(t, err, queueentry.ErrQueueFull)
	assert.Equal(t, 1, queued)
}
