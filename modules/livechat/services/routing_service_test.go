package services_test

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidesk/omnidesk/modules/livechat/domain/aggregates/conversation"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/agent"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/chatsettings"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/queueentry"
)

func enqueueWithSkills(t *testing.T, env *testEnv, skills []string, preferred *uuid.UUID) conversation.Conversation {
	t.Helper()
	conv := conversation.New(env.tenantID, "customer-"+uuid.NewString()[:8])
	conv, err := env.conversations.Create(env.ctx, conv)
	require.NoError(t, err)
	_, err = env.queueService.Enqueue(env.ctx, conv,
		queueentry.WithSkillsRequired(skills),
		queueentry.WithPreferredAgentID(preferred),
	)
	require.NoError(t, err)
	return conv
}

func TestRoutingService_SkillsBasedPrefersTagMatch(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.onlineAgent(t)
	billing := env.onlineAgent(t, agent.WithTags([]agent.Tag{{Name: "billing", Proficiency: 0.9}}))

	conv := enqueueWithSkills(t, env, []string{"billing"}, nil)
	result, err := env.routingService.AssignConversation(env.ctx, conv.ID())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, billing.ID(), result.Agent.ID())
	assert.Equal(t, conversation.MethodSkillsBased, result.Method)
	assert.Equal(t, conversation.StatusActive, result.Conversation.Status())
}

func TestRoutingService_AssignmentClearsQueueAndBumpsLoad(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	a := env.onlineAgent(t)
	conv := enqueueWithSkills(t, env, nil, nil)

	result, err := env.routingService.AssignConversation(env.ctx, conv.ID())
	require.NoError(t, err)
	require.NotNil(t, result)

	count, err := env.queue.Count(env.ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	stored, err := env.conversations.GetByID(env.ctx, conv.ID())
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusActive, stored.Status())
	assert.Nil(t, stored.QueuePosition())
	require.NotNil(t, stored.AssignedAgentID())
	assert.Equal(t, a.ID(), *stored.AssignedAgentID())

	reloaded, err := env.agents.GetByID(env.ctx, a.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.ActiveConversations())
	assert.NotNil(t, reloaded.LastAssignedAt())
}

func TestRoutingService_NoSkillMatchFallsBackToRoundRobin(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	a := env.onlineAgent(t, agent.WithTags([]agent.Tag{{Name: "shipping", Proficiency: 1}}))
	conv := enqueueWithSkills(t, env, []string{"billing"}, nil)

	result, err := env.routingService.AssignConversation(env.ctx, conv.ID())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, a.ID(), result.Agent.ID())
	assert.Equal(t, conversation.MethodFallback, result.Method)

	log, err := env.routingLog.ListByConversation(env.ctx, conv.ID())
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, "no_skill_match", log[0].FallbackReason())
}

func TestRoutingService_LowConfidenceFallsBackToRoundRobin(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	// Weak tag match plus a nearly full plate keeps the score under the
	// confidence floor.
	a := env.onlineAgent(t,
		agent.WithTags([]agent.Tag{{Name: "billing", Proficiency: 0.2}}),
		agent.WithActiveConversations(2),
	)
	conv := enqueueWithSkills(t, env, []string{"billing"}, nil)

	result, err := env.routingService.AssignConversation(env.ctx, conv.ID())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, a.ID(), result.Agent.ID())
	assert.Equal(t, conversation.MethodFallback, result.Method)

	log, err := env.routingLog.ListByConversation(env.ctx, conv.ID())
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, "low_confidence", log[0].FallbackReason())
	assert.NotEmpty(t, log[0].Candidates())
}

func TestRoutingService_PreferredAgentBonusBreaksTie(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	tags := []agent.Tag{{Name: "billing", Proficiency: 0.8}}
	env.onlineAgent(t, agent.WithTags(tags))
	preferred := env.onlineAgent(t, agent.WithTags(tags))

	preferredID := preferred.ID()
	conv := enqueueWithSkills(t, env, []string{"billing"}, &preferredID)

	result, err := env.routingService.AssignConversation(env.ctx, conv.ID())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, preferred.ID(), result.Agent.ID())
}

func TestRoutingService_LeastBusyPicksLowestLoad(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.saveSettings(t, chatsettings.WithAssignmentMethod(chatsettings.MethodLeastBusy))

	env.onlineAgent(t, agent.WithActiveConversations(2))
	idle := env.onlineAgent(t)

	conv := enqueueWithSkills(t, env, nil, nil)
	result, err := env.routingService.AssignConversation(env.ctx, conv.ID())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, idle.ID(), result.Agent.ID())
	assert.Equal(t, conversation.MethodLeastBusy, result.Method)
}

func TestRoutingService_RoundRobinPicksLongestIdle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.saveSettings(t, chatsettings.WithAssignmentMethod(chatsettings.MethodRoundRobin))

	older := time.Now().Add(-time.Hour)
	newer := time.Now().Add(-time.Minute)
	longestIdle := env.onlineAgent(t, agent.WithLastAssignedAt(&older))
	env.onlineAgent(t, agent.WithLastAssignedAt(&newer))

	conv := enqueueWithSkills(t, env, nil, nil)
	result, err := env.routingService.AssignConversation(env.ctx, conv.ID())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, longestIdle.ID(), result.Agent.ID())
	assert.Equal(t, conversation.MethodRoundRobin, result.Method)
}

func TestRoutingService_RoundRobinRotates(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.saveSettings(t, chatsettings.WithAssignmentMethod(chatsettings.MethodRoundRobin))

	a := env.onlineAgent(t)
	b := env.onlineAgent(t)

	first := enqueueWithSkills(t, env, nil, nil)
	second := enqueueWithSkills(t, env, nil, nil)

	firstResult, err := env.routingService.AssignConversation(env.ctx, first.ID())
	require.NoError(t, err)
	require.NotNil(t, firstResult)

	secondResult, err := env.routingService.AssignConversation(env.ctx, second.ID())
	require.NoError(t, err)
	require.NotNil(t, secondResult)

	assert.NotEqual(t, firstResult.Agent.ID(), secondResult.Agent.ID())
	got := map[uuid.UUID]bool{firstResult.Agent.ID(): true, secondResult.Agent.ID(): true}
	assert.True(t, got[a.ID()])
	assert.True(t, got[b.ID()])
}

func TestRoutingService_NoAgentAvailableKeepsConversationQueued(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	conv := enqueueWithSkills(t, env, nil, nil)
	result, err := env.routingService.AssignConversation(env.ctx, conv.ID())
	require.NoError(t, err)
	assert.Nil(t, result)

	stored, err := env.conversations.GetByID(env.ctx, conv.ID())
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusQueued, stored.Status())
	require.NotNil(t, stored.QueuePosition())
	assert.Equal(t, 1, *stored.QueuePosition())

	log, err := env.routingLog.ListByConversation(env.ctx, conv.ID())
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Nil(t, log[0].SelectedAgentID())
	assert.Equal(t, "no_agent_available", log[0].FallbackReason())
}

func TestRoutingService_AgentAtCapacitySkipped(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.onlineAgent(t, agent.WithMaxConcurrentChats(2), agent.WithActiveConversations(2))
	conv := enqueueWithSkills(t, env, nil, nil)

	result, err := env.routingService.AssignConversation(env.ctx, conv.ID())
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestRoutingService_OverflowAgentTakesOneExtra(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	overflow := env.onlineAgent(t,
		agent.WithMaxConcurrentChats(2),
		agent.WithActiveConversations(2),
		agent.WithAcceptsOverflow(true),
	)
	conv := enqueueWithSkills(t, env, nil, nil)

	result, err := env.routingService.AssignConversation(env.ctx, conv.ID())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, overflow.ID(), result.Agent.ID())

	// The extra slot is spent now; the next conversation waits.
	next := enqueueWithSkills(t, env, nil, nil)
	result, err = env.routingService.AssignConversation(env.ctx, next.ID())
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestRoutingService_NotAcceptingAgentSkipped(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.onlineAgent(t, agent.WithAcceptingChats(false))
	conv := enqueueWithSkills(t, env, nil, nil)

	result, err := env.routingService.AssignConversation(env.ctx, conv.ID())
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestRoutingService_ConcurrentAcceptsSingleWinner(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	a := env.onlineAgent(t)
	b := env.onlineAgent(t)
	enqueueWithSkills(t, env, nil, nil)

	var wg sync.WaitGroup
	results := make([]bool, 2)
	errs := make([]error, 2)
	for i, agentID := range []uuid.UUID{a.ID(), b.ID()} {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			res, err := env.routingService.AssignNext(env.ctx, id)
			errs[i] = err
			results[i] = res != nil
		}(i, agentID)
	}
	wg.Wait()

	winners := 0
	for i, won := range results {
		require.NoError(t, errs[i])
		if won {
			winners++
		}
	}
	assert.Equal(t, 1, winners)

	count, err := env.queue.Count(env.ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRoutingService_AssignNextSkipsUnmatchedSkills(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	a := env.onlineAgent(t, agent.WithTags([]agent.Tag{{Name: "shipping", Proficiency: 1}}))
	billingConv := enqueueWithSkills(t, env, []string{"billing"}, nil)
	shippingConv := enqueueWithSkills(t, env, []string{"shipping"}, nil)

	result, err := env.routingService.AssignNext(env.ctx, a.ID())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, shippingConv.ID(), result.Conversation.ID())

	stored, err := env.conversations.GetByID(env.ctx, billingConv.ID())
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusQueued, stored.Status())
	require.NotNil(t, stored.QueuePosition())
	assert.Equal(t, 1, *stored.QueuePosition())
}

func TestRoutingService_DrainQueueAssignsUpToCapacity(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.onlineAgent(t, agent.WithMaxConcurrentChats(2))
	for range [3]struct{}{} {
		enqueueWithSkills(t, env, nil, nil)
	}

	results, err := env.routingService.DrainQueue(env.ctx)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	count, err := env.queue.Count(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRoutingService_SkillsBasedPrefersProvenSuccessRate(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.onlineAgent(t, agent.WithTags([]agent.Tag{
		{Name: "billing", Proficiency: 1, SuccessRate: 0.05, AvgSatisfaction: 3, ConversationsHandled: 20},
	}))
	proven := env.onlineAgent(t, agent.WithTags([]agent.Tag{
		{Name: "billing", Proficiency: 1, SuccessRate: 0.98, AvgSatisfaction: 3, ConversationsHandled: 20},
	}))

	conv := enqueueWithSkills(t, env, []string{"billing"}, nil)
	result, err := env.routingService.AssignConversation(env.ctx, conv.ID())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, proven.ID(), result.Agent.ID())
	assert.Equal(t, conversation.MethodSkillsBased, result.Method)
}

func TestRoutingService_SkillsBasedPrefersHigherSatisfaction(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.onlineAgent(t, agent.WithTags([]agent.Tag{
		{Name: "billing", Proficiency: 0.8, SuccessRate: 0.9, AvgSatisfaction: 2, ConversationsHandled: 10},
	}))
	liked := env.onlineAgent(t, agent.WithTags([]agent.Tag{
		{Name: "billing", Proficiency: 0.8, SuccessRate: 0.9, AvgSatisfaction: 4.8, ConversationsHandled: 10},
	}))

	conv := enqueueWithSkills(t, env, []string{"billing"}, nil)
	result, err := env.routingService.AssignConversation(env.ctx, conv.ID())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, liked.ID(), result.Agent.ID())
}

func TestRoutingService_OverflowSlotWaitsForUnderCapacityAgents(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.saveSettings(t, chatsettings.WithAssignmentMethod(chatsettings.MethodRoundRobin))

	recently := time.Now().Add(-time.Minute)
	overflow := env.onlineAgent(t,
		agent.WithMaxConcurrentChats(1),
		agent.WithActiveConversations(1),
		agent.WithAcceptsOverflow(true),
	)
	regular := env.onlineAgent(t,
		agent.WithMaxConcurrentChats(1),
		agent.WithLastAssignedAt(&recently),
	)

	// The never-assigned overflow agent would win round-robin, but their
	// extra slot only opens once nobody is under capacity.
	conv := enqueueWithSkills(t, env, nil, nil)
	result, err := env.routingService.AssignConversation(env.ctx, conv.ID())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, regular.ID(), result.Agent.ID())

	next := enqueueWithSkills(t, env, nil, nil)
	result, err = env.routingService.AssignConversation(env.ctx, next.ID())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, overflow.ID(), result.Agent.ID())
}
