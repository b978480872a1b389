package services_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/agent"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/chatsettings"
	"github.com/omnidesk/omnidesk/modules/livechat/infrastructure/persistence"
	"github.com/omnidesk/omnidesk/modules/livechat/services"
	"github.com/omnidesk/omnidesk/pkg/composables"
	"github.com/omnidesk/omnidesk/pkg/eventbus"
)

type testEnv struct {
	ctx      context.Context
	tenantID uuid.UUID

	conversations *persistence.InmemConversationRepository
	agents        *persistence.InmemAgentRepository
	queue         *persistence.InmemQueueRepository
	transfers     *persistence.InmemTransferRepository
	routingLog    *persistence.InmemRoutingLogRepository
	settings      *persistence.InmemChatSettingsRepository
	sessions      *persistence.InmemSessionRepository

	queueService    *services.QueueService
	routingService  *services.RoutingService
	presenceService *services.PresenceService
	chatService     *services.LiveChatService
	bus             eventbus.EventBus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	tenantID := uuid.New()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	bus := eventbus.NewEventPublisher(log)

	conversations := persistence.NewInmemConversationRepository()
	agents := persistence.NewInmemAgentRepository()
	queue := persistence.NewInmemQueueRepository(conversations)
	transfers := persistence.NewInmemTransferRepository()
	routingLog := persistence.NewInmemRoutingLogRepository()
	settings := persistence.NewInmemChatSettingsRepository()
	sessions := persistence.NewInmemSessionRepository()

	queueService := services.NewQueueService(queue, agents, settings, bus)
	routingService := services.NewRoutingService(conversations, agents, queue, routingLog, settings, bus)
	presenceService := services.NewPresenceService(agents, sessions, bus)
	chatService := services.NewLiveChatService(
		conversations, transfers, routingLog, agents, settings,
		queueService, routingService, presenceService, bus,
	)

	return &testEnv{
		ctx:             composables.WithTenantID(context.Background(), tenantID),
		tenantID:        tenantID,
		conversations:   conversations,
		agents:          agents,
		queue:           queue,
		transfers:       transfers,
		routingLog:      routingLog,
		settings:        settings,
		sessions:        sessions,
		queueService:    queueService,
		routingService:  routingService,
		presenceService: presenceService,
		chatService:     chatService,
		bus:             bus,
	}
}

// onlineAgent registers an agent and brings them online through the
// presence layer, the same path production agents take.
func (e *testEnv) onlineAgent(t *testing.T, opts ...agent.Option) agent.Agent {
	t.Helper()
	a := agent.New(
		e.tenantID,
		uuid.NewString()+"@support.example.com",
		"Agent "+uuid.NewString()[:8],
		opts...,
	)
	a, err := e.presenceService.RegisterAgent(e.ctx, a)
	if err != nil {
		t.Fatalf("register agent: %v", err)
	}
	a, err = e.presenceService.SetStatus(e.ctx, a.ID(), agent.StatusOnline)
	if err != nil {
		t.Fatalf("set agent online: %v", err)
	}
	return a
}

func (e *testEnv) saveSettings(t *testing.T, opts ...chatsettings.Option) {
	t.Helper()
	if _, err := e.settings.Save(e.ctx, chatsettings.New(e.tenantID, opts...)); err != nil {
		t.Fatalf("save settings: %v", err)
	}
}
