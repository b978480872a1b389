package services_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/agent"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/agentsession"
	"github.com/omnidesk/omnidesk/modules/livechat/services"
)

func TestPresenceService_OnlineOpensSession(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	a := env.onlineAgent(t)

	session, err := env.sessions.GetByAgentID(env.ctx, a.ID())
	require.NoError(t, err)
	assert.Equal(t, a.ID(), session.AgentID())
	assert.Equal(t, env.tenantID, session.TenantID())

	reloaded, err := env.agents.GetByID(env.ctx, a.ID())
	require.NoError(t, err)
	assert.Equal(t, agent.StatusOnline, reloaded.Status())
	assert.NotNil(t, reloaded.LastSeenAt())
}

func TestPresenceService_OfflineClosesSession(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	a := env.onlineAgent(t)
	_, err := env.presenceService.SetStatus(env.ctx, a.ID(), agent.StatusOffline)
	require.NoError(t, err)

	_, err = env.sessions.GetByAgentID(env.ctx, a.ID())
	require.ErrorIs(t, err, agentsession.ErrNotFound)
}

func TestPresenceService_RejectsUnknownStatus(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	a := env.onlineAgent(t)
	_, err := env.presenceService.SetStatus(env.ctx, a.ID(), agent.Status("asleep"))
	require.ErrorIs(t, err, services.ErrInvalidAgentStatus)
}

func TestPresenceService_HeartbeatTouchesSession(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	a := env.onlineAgent(t)
	before, err := env.sessions.GetByAgentID(env.ctx, a.ID())
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, env.presenceService.Heartbeat(env.ctx, a.ID()))

	after, err := env.sessions.GetByAgentID(env.ctx, a.ID())
	require.NoError(t, err)
	assert.True(t, after.LastActivityAt().After(before.LastActivityAt()))
}

func TestPresenceService_HeartbeatWithoutSession(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	a := agent.New(env.tenantID, "offline@support.example.com", "Offline")
	a, err := env.presenceService.RegisterAgent(env.ctx, a)
	require.NoError(t, err)

	err = env.presenceService.Heartbeat(env.ctx, a.ID())
	require.ErrorIs(t, err, agentsession.ErrNotFound)
}

func TestPresenceService_StatusChangePublishesEvent(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	events := make(chan *agent.StatusChangedEvent, 1)
	env.bus.Subscribe(func(e *agent.StatusChangedEvent) {
		events <- e
	})

	a := env.onlineAgent(t)

	select {
	case e := <-events:
		assert.Equal(t, a.ID(), e.AgentID)
		assert.Equal(t, agent.StatusOffline, e.Previous)
		assert.Equal(t, agent.StatusOnline, e.Current)
	case <-time.After(time.Second):
		t.Fatal("expected a status change event")
	}
}
