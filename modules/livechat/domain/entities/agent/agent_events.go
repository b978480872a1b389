package agent

import (
	"time"

	"github.com/google/uuid"
)

type StatusChangedEvent struct {
	AgentID   uuid.UUID
	TenantID  uuid.UUID
	Previous  Status
	Current   Status
	ChangedAt time.Time
}

func NewStatusChangedEvent(agentID, tenantID uuid.UUID, previous, current Status) *StatusChangedEvent {
	return &StatusChangedEvent{
		AgentID:   agentID,
		TenantID:  tenantID,
		Previous:  previous,
		Current:   current,
		ChangedAt: time.Now(),
	}
}
