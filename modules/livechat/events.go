package livechat

import (
	"github.com/omnidesk/omnidesk/modules/livechat/domain/aggregates/conversation"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/agent"
	"github.com/omnidesk/omnidesk/modules/livechat/presentation/controllers/dtos"
	"github.com/omnidesk/omnidesk/pkg/application"
	"github.com/omnidesk/omnidesk/pkg/eventbus"
	"github.com/omnidesk/omnidesk/pkg/metrics"
)

// registerEventRelay pushes domain events from the in-process bus out to
// websocket subscribers. The tenant channel sees everything; an assigned
// agent additionally gets a copy on their own channel.
func registerEventRelay(bus eventbus.EventBus, hub application.Huber) {
	bus.Subscribe(func(e *conversation.QueuedEvent) {
		payload := dtos.NewConversationResponse(e.Conversation)
		hub.BroadcastToTenant(e.Conversation.TenantID(), "conversation.queued", payload)
	})
	bus.Subscribe(func(e *conversation.AssignedEvent) {
		payload := dtos.NewConversationResponse(e.Conversation)
		hub.BroadcastToTenant(e.Conversation.TenantID(), "conversation.assigned", payload)
		hub.BroadcastToAgent(e.Conversation.TenantID(), e.AgentID, "conversation.assigned", payload)
	})
	bus.Subscribe(func(e *conversation.TransferredEvent) {
		payload := dtos.NewConversationResponse(e.Conversation)
		hub.BroadcastToTenant(e.Conversation.TenantID(), "conversation.transferred", payload)
		hub.BroadcastToAgent(e.Conversation.TenantID(), e.ToAgentID, "conversation.transferred", payload)
	})
	bus.Subscribe(func(e *conversation.EscalatedEvent) {
		hub.BroadcastToTenant(e.Conversation.TenantID(), "conversation.escalated",
			dtos.NewConversationResponse(e.Conversation))
	})
	bus.Subscribe(func(e *conversation.ClosedEvent) {
		hub.BroadcastToTenant(e.Conversation.TenantID(), "conversation.closed",
			dtos.NewConversationResponse(e.Conversation))
	})
	bus.Subscribe(func(e *conversation.AbandonedEvent) {
		hub.BroadcastToTenant(e.Conversation.TenantID(), "conversation.abandoned",
			dtos.NewConversationResponse(e.Conversation))
	})
	bus.Subscribe(func(e *agent.StatusChangedEvent) {
		hub.BroadcastToTenant(e.TenantID, "agent.status_changed", map[string]string{
			"agent_id": e.AgentID.String(),
			"previous": string(e.Previous),
			"current":  string(e.Current),
		})
	})
}

// registerMetrics folds domain events into the Prometheus collectors.
func registerMetrics(bus eventbus.EventBus) {
	bus.Subscribe(func(e *conversation.QueuedEvent) {
		metrics.ConversationsStarted.Inc()
		metrics.QueueDepth.WithLabelValues(e.Conversation.TenantID().String()).Inc()
	})
	bus.Subscribe(func(e *conversation.AssignedEvent) {
		metrics.AssignmentsTotal.WithLabelValues(string(e.Method)).Inc()
		metrics.QueueDepth.WithLabelValues(e.Conversation.TenantID().String()).Dec()
		if wait := e.Conversation.WaitTimeSeconds(); wait != nil {
			metrics.QueueWaitSeconds.Observe(float64(*wait))
		}
	})
	bus.Subscribe(func(e *conversation.TransferredEvent) {
		metrics.TransfersTotal.WithLabelValues("completed").Inc()
	})
	bus.Subscribe(func(e *conversation.AbandonedEvent) {
		metrics.AbandonedTotal.Inc()
		metrics.QueueDepth.WithLabelValues(e.Conversation.TenantID().String()).Dec()
	})
	bus.Subscribe(func(e *conversation.ClosedEvent) {
		if duration := e.Conversation.DurationSeconds(); duration != nil {
			metrics.HandleTimeSeconds.Observe(float64(*duration))
		}
	})
}
