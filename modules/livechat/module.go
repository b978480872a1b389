package livechat

import (
	"embed"

	"github.com/omnidesk/omnidesk/modules/livechat/infrastructure/persistence"
	"github.com/omnidesk/omnidesk/modules/livechat/presentation/controllers"
	"github.com/omnidesk/omnidesk/modules/livechat/services"
	"github.com/omnidesk/omnidesk/pkg/application"
	"github.com/omnidesk/omnidesk/pkg/configuration"
)

//go:embed infrastructure/persistence/schema/livechat-schema.sql
var MigrationFiles embed.FS

func NewModule() application.Module {
	return &Module{}
}

type Module struct {
}

func (m *Module) Register(app application.Application) error {
	app.Migrations().RegisterSchema(&MigrationFiles)

	conf := configuration.Use()

	conversationRepo := persistence.NewConversationRepository()
	agentRepo := persistence.NewAgentRepository()
	queueRepo := persistence.NewQueueRepository()
	transferRepo := persistence.NewTransferRepository()
	routingRepo := persistence.NewRoutingLogRepository()
	settingsRepo := persistence.NewChatSettingsRepository()
	sessionRepo := persistence.NewSessionRepository(
		app.Redis(),
		conf.Presence.KeyPrefix,
		conf.Presence.SessionTTL,
	)

	queueService := services.NewQueueService(queueRepo, agentRepo, settingsRepo, app.EventPublisher())
	routingService := services.NewRoutingService(
		conversationRepo, agentRepo, queueRepo, routingRepo, settingsRepo, app.EventPublisher(),
	)
	presenceService := services.NewPresenceService(agentRepo, sessionRepo, app.EventPublisher())
	livechatService := services.NewLiveChatService(
		conversationRepo, transferRepo, routingRepo, agentRepo, settingsRepo,
		queueService, routingService, presenceService, app.EventPublisher(),
	)

	app.RegisterServices(
		queueService,
		routingService,
		presenceService,
		livechatService,
	)

	hub := application.NewHub(&application.HuberOptions{
		Logger: app.Logger(),
	})
	app.RegisterControllers(
		controllers.NewLiveChatAPIController(app),
		controllers.NewWebSocketController(hub),
	)

	registerEventRelay(app.EventPublisher(), hub)
	registerMetrics(app.EventPublisher())
	return nil
}

func (m *Module) Name() string {
	return "livechat"
}
