package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Events emitted by the live-chat services. Delivery (email, websocket
// push) is the subscribing collaborator's concern.

type QueuedEvent struct {
	Conversation Conversation
	Position     int
	QueuedAt     time.Time
}

func NewQueuedEvent(c Conversation, position int) *QueuedEvent {
	return &QueuedEvent{Conversation: c, Position: position, QueuedAt: time.Now()}
}

type AssignedEvent struct {
	Conversation Conversation
	AgentID      uuid.UUID
	Method       AssignmentMethod
	AssignedAt   time.Time
}

func NewAssignedEvent(c Conversation, agentID uuid.UUID, method AssignmentMethod) *AssignedEvent {
	return &AssignedEvent{Conversation: c, AgentID: agentID, Method: method, AssignedAt: time.Now()}
}

type TransferredEvent struct {
	Conversation Conversation
	FromAgentID  uuid.UUID
	ToAgentID    uuid.UUID
	Reason       string
}

func NewTransferredEvent(c Conversation, from, to uuid.UUID, reason string) *TransferredEvent {
	return &TransferredEvent{Conversation: c, FromAgentID: from, ToAgentID: to, Reason: reason}
}

type ClosedEvent struct {
	Conversation Conversation
	ClosedBy     string
	Reason       string
}

func NewClosedEvent(c Conversation, closedBy, reason string) *ClosedEvent {
	return &ClosedEvent{Conversation: c, ClosedBy: closedBy, Reason: reason}
}

type AbandonedEvent struct {
	Conversation Conversation
}

func NewAbandonedEvent(c Conversation) *AbandonedEvent {
	return &AbandonedEvent{Conversation: c}
}

type EscalatedEvent struct {
	Conversation Conversation
	EscalatedBy  string
}

func NewEscalatedEvent(c Conversation, escalatedBy string) *EscalatedEvent {
	return &EscalatedEvent{Conversation: c, EscalatedBy: escalatedBy}
}
