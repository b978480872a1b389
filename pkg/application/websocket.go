package application

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/omnidesk/omnidesk/pkg/composables"
	"github.com/omnidesk/omnidesk/pkg/ws"
)

type HuberOptions struct {
	Logger      *logrus.Logger
	CheckOrigin func(r *http.Request) bool
}

// Huber fans live events out to connected clients. Every connection
// joins its tenant channel; connections opened with an agent_id query
// parameter additionally join that agent's channel.
type Huber interface {
	http.Handler
	BroadcastToTenant(tenantID uuid.UUID, event string, payload interface{})
	BroadcastToAgent(tenantID, agentID uuid.UUID, event string, payload interface{})
}

func NewHub(opts *HuberOptions) Huber {
	appHub := &huber{
		logger:          opts.Logger,
		connectionsMeta: make(map[*ws.Connection]*MetaInfo),
	}
	hub := ws.NewHub(&ws.HubOptions{
		Logger:       opts.Logger,
		CheckOrigin:  opts.CheckOrigin,
		OnConnect:    appHub.onConnect,
		OnDisconnect: appHub.onDisconnect,
	})
	appHub.hub = hub
	return appHub
}

type MetaInfo struct {
	TenantID uuid.UUID
	AgentID  uuid.UUID
}

type huber struct {
	hub    *ws.Hub
	logger *logrus.Logger

	mu              sync.Mutex
	connectionsMeta map[*ws.Connection]*MetaInfo
}

func (h *huber) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeHTTP(w, r)
}

func (h *huber) onConnect(r *http.Request, hub *ws.Hub, conn *ws.Connection) error {
	tenantID, err := composables.UseTenantID(r.Context())
	if err != nil {
		return err
	}
	meta := &MetaInfo{TenantID: tenantID}
	hub.JoinChannel(tenantChannel(tenantID), conn)

	if raw := r.URL.Query().Get("agent_id"); raw != "" {
		agentID, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid agent_id %q: %w", raw, err)
		}
		meta.AgentID = agentID
		hub.JoinChannel(agentChannel(tenantID, agentID), conn)
	}

	h.mu.Lock()
	h.connectionsMeta[conn] = meta
	h.mu.Unlock()
	return nil
}

func (h *huber) onDisconnect(conn *ws.Connection) {
	h.mu.Lock()
	delete(h.connectionsMeta, conn)
	h.mu.Unlock()
}

func (h *huber) BroadcastToTenant(tenantID uuid.UUID, event string, payload interface{}) {
	h.broadcast(tenantChannel(tenantID), event, payload)
}

func (h *huber) BroadcastToAgent(tenantID, agentID uuid.UUID, event string, payload interface{}) {
	h.broadcast(agentChannel(tenantID, agentID), event, payload)
}

func (h *huber) broadcast(channel, event string, payload interface{}) {
	message, err := json.Marshal(map[string]interface{}{
		"event":   event,
		"payload": payload,
	})
	if err != nil {
		h.logger.WithError(err).WithField("event", event).Error("failed to marshal websocket event")
		return
	}
	h.hub.BroadcastToChannel(channel, message)
}

func tenantChannel(tenantID uuid.UUID) string {
	return "tenant/" + tenantID.String()
}

func agentChannel(tenantID, agentID uuid.UUID) string {
	return "agent/" + tenantID.String() + "/" + agentID.String()
}
