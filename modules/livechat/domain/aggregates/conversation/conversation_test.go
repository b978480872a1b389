package conversation_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidesk/omnidesk/modules/livechat/domain/aggregates/conversation"
)

func TestStatus_TransitionTable(t *testing.T) {
	t.Parallel()
	cases := []struct {
		from    conversation.Status
		to      conversation.Status
		allowed bool
	}{
		{conversation.StatusQueued, conversation.StatusActive, true},
		{conversation.StatusQueued, conversation.StatusAbandoned, true},
		{conversation.StatusQueued, conversation.StatusResolved, false},
		{conversation.StatusActive, conversation.StatusResolved, true},
		{conversation.StatusActive, conversation.StatusPendingTransfer, true},
		{conversation.StatusActive, conversation.StatusEscalated, true},
		{conversation.StatusActive, conversation.StatusAbandoned, false},
		{conversation.StatusActive, conversation.StatusQueued, false},
		{conversation.StatusEscalated, conversation.StatusResolved, true},
		{conversation.StatusEscalated, conversation.StatusPendingTransfer, true},
		{conversation.StatusPendingTransfer, conversation.StatusActive, true},
		{conversation.StatusPendingTransfer, conversation.StatusResolved, false},
		{conversation.StatusResolved, conversation.StatusActive, false},
		{conversation.StatusAbandoned, conversation.StatusActive, false},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.allowed, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestConversation_NewStartsQueued(t *testing.T) {
	t.Parallel()
	c := conversation.New(uuid.New(), "cust-1")
	assert.Equal(t, conversation.StatusQueued, c.Status())
	assert.Nil(t, c.AssignedAgentID())
	assert.Nil(t, c.QueuePosition())
}

func TestConversation_Assign(t *testing.T) {
	t.Parallel()
	queuedAt := time.Now().Add(-30 * time.Second)
	c := conversation.New(uuid.New(), "cust-1",
		conversation.WithTimestamps(queuedAt, queuedAt, queuedAt))
	pos := 1
	c.SetQueuePosition(&pos)

	agentID := uuid.New()
	updated, err := c.Assign(agentID, conversation.MethodSkillsBased, time.Now())
	require.NoError(t, err)

	assert.Equal(t, conversation.StatusActive, updated.Status())
	require.NotNil(t, updated.AssignedAgentID())
	assert.Equal(t, agentID, *updated.AssignedAgentID())
	assert.Nil(t, updated.QueuePosition())
	require.NotNil(t, updated.WaitTimeSeconds())
	assert.GreaterOrEqual(t, *updated.WaitTimeSeconds(), 29)

	// A second assignment attempt must hit the transition guard.
	_, err = updated.Assign(uuid.New(), conversation.MethodSkillsBased, time.Now())
	assert.ErrorIs(t, err, conversation.ErrInvalidTransition)
}

func TestConversation_AbandonOnlyFromQueued(t *testing.T) {
	t.Parallel()
	c := conversation.New(uuid.New(), "cust-1")
	_, err := c.Assign(uuid.New(), conversation.MethodDirect, time.Now())
	require.NoError(t, err)

	_, err = c.Abandon(time.Now())
	assert.ErrorIs(t, err, conversation.ErrInvalidTransition)

	queued := conversation.New(uuid.New(), "cust-2")
	abandoned, err := queued.Abandon(time.Now())
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusAbandoned, abandoned.Status())
	assert.Equal(t, "customer", abandoned.ClosedBy())
}

func TestConversation_CloseComputesMetrics(t *testing.T) {
	t.Parallel()
	start := time.Now().Add(-10 * time.Minute)
	c := conversation.New(uuid.New(), "cust-1",
		conversation.WithTimestamps(start, start, start))
	_, err := c.Assign(uuid.New(), conversation.MethodLeastBusy, start.Add(time.Minute))
	require.NoError(t, err)
	c.RecordAgentMessage(start.Add(2 * time.Minute))

	closed, err := c.Close("agent", "issue solved", "resolved", start.Add(10*time.Minute))
	require.NoError(t, err)

	assert.Equal(t, conversation.StatusResolved, closed.Status())
	require.NotNil(t, closed.DurationSeconds())
	assert.Equal(t, 600, *closed.DurationSeconds())
	require.NotNil(t, closed.ResponseTimeSeconds())
	assert.Equal(t, 120, *closed.ResponseTimeSeconds())
}

func TestConversation_TransferFlow(t *testing.T) {
	t.Parallel()
	c := conversation.New(uuid.New(), "cust-1")
	firstAgent := uuid.New()
	_, err := c.Assign(firstAgent, conversation.MethodRoundRobin, time.Now())
	require.NoError(t, err)

	_, err = c.BeginTransfer(time.Now())
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusPendingTransfer, c.Status())

	secondAgent := uuid.New()
	done, err := c.CompleteTransfer(secondAgent, time.Now())
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusActive, done.Status())
	require.NotNil(t, done.PreviousAgentID())
	assert.Equal(t, firstAgent, *done.PreviousAgentID())
	assert.Equal(t, secondAgent, *done.AssignedAgentID())
}

func TestConversation_MessageCounters(t *testing.T) {
	t.Parallel()
	c := conversation.New(uuid.New(), "cust-1")
	c.RecordCustomerMessage(time.Now())
	c.RecordCustomerMessage(time.Now())
	c.RecordAgentMessage(time.Now())

	assert.Equal(t, 3, c.MessageCount())
	assert.Equal(t, 2, c.CustomerMessageCount())
	assert.Equal(t, 1, c.AgentMessageCount())
	assert.NotNil(t, c.FirstResponseAt())
}

func TestConversation_RateSatisfaction(t *testing.T) {
	t.Parallel()
	c := conversation.New(uuid.New(), "cust-1")
	_, err := c.RateSatisfaction(0)
	require.Error(t, err)
	_, err = c.RateSatisfaction(6)
	require.Error(t, err)
	rated, err := c.RateSatisfaction(4)
	require.NoError(t, err)
	require.NotNil(t, rated.Satisfaction())
	assert.Equal(t, 4, *rated.Satisfaction())
}
