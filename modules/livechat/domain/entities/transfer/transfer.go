package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("transfer not found")
	// ErrRejected means the target agent is offline or at capacity; the
	// conversation stays with the original agent.
	ErrRejected = errors.New("transfer rejected")
)

type Status string

const (
	StatusInitiated Status = "initiated"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
)

type Repository interface {
	Create(ctx context.Context, t Transfer) (Transfer, error)
	GetByID(ctx context.Context, id uuid.UUID) (Transfer, error)
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]Transfer, error)
}

// Transfer captures one agent-to-agent handoff. Records are immutable once
// completed; Complete and Reject return the finished record for persisting.
type Transfer interface {
	ID() uuid.UUID
	TenantID() uuid.UUID
	ConversationID() uuid.UUID
	FromAgentID() uuid.UUID
	ToAgentID() uuid.UUID
	Reason() string
	Notes() string
	Status() Status
	ConversationSummary() string
	CustomerContext() string
	InitiatedAt() time.Time
	CompletedAt() *time.Time

	Complete(at time.Time) Transfer
	Reject(at time.Time) Transfer
}

type record struct {
	id                  uuid.UUID
	tenantID            uuid.UUID
	conversationID      uuid.UUID
	fromAgentID         uuid.UUID
	toAgentID           uuid.UUID
	reason              string
	notes               string
	status              Status
	conversationSummary string
	customerContext     string
	initiatedAt         time.Time
	completedAt         *time.Time
}

func New(tenantID, conversationID, fromAgentID, toAgentID uuid.UUID, opts ...Option) Transfer {
	t := &record{
		id:             uuid.New(),
		tenantID:       tenantID,
		conversationID: conversationID,
		fromAgentID:    fromAgentID,
		toAgentID:      toAgentID,
		status:         StatusInitiated,
		initiatedAt:    time.Now(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type Option func(*record)

func WithID(id uuid.UUID) Option {
	return func(t *record) {
		if id != uuid.Nil {
			t.id = id
		}
	}
}

func WithReason(reason string) Option {
	return func(t *record) { t.reason = reason }
}

func WithNotes(notes string) Option {
	return func(t *record) { t.notes = notes }
}

func WithStatus(s Status) Option {
	return func(t *record) { t.status = s }
}

func WithConversationSummary(summary string) Option {
	return func(t *record) { t.conversationSummary = summary }
}

func WithCustomerContext(context string) Option {
	return func(t *record) { t.customerContext = context }
}

func WithInitiatedAt(at time.Time) Option {
	return func(t *record) {
		if !at.IsZero() {
			t.initiatedAt = at
		}
	}
}

func WithCompletedAt(at *time.Time) Option {
	return func(t *record) { t.completedAt = at }
}

func (t *record) ID() uuid.UUID               { return t.id }
func (t *record) TenantID() uuid.UUID         { return t.tenantID }
func (t *record) ConversationID() uuid.UUID   { return t.conversationID }
func (t *record) FromAgentID() uuid.UUID      { return t.fromAgentID }
func (t *record) ToAgentID() uuid.UUID        { return t.toAgentID }
func (t *record) Reason() string              { return t.reason }
func (t *record) Notes() string               { return t.notes }
func (t *record) Status() Status              { return t.status }
func (t *record) ConversationSummary() string { return t.conversationSummary }
func (t *record) CustomerContext() string     { return t.customerContext }
func (t *record) InitiatedAt() time.Time      { return t.initiatedAt }
func (t *record) CompletedAt() *time.Time     { return t.completedAt }

func (t *record) Complete(at time.Time) Transfer {
	t.status = StatusCompleted
	t.completedAt = &at
	return t
}

func (t *record) Reject(at time.Time) Transfer {
	t.status = StatusRejected
	t.completedAt = &at
	return t
}
