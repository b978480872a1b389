package routinglog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is append-only from the assignment engine's perspective;
// entries are never mutated after the fact.
type Repository interface {
	Append(ctx context.Context, e Entry) (Entry, error)
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]Entry, error)
}

// CandidateScore is the scoring breakdown for one considered agent.
type CandidateScore struct {
	AgentID        uuid.UUID `json:"agent_id"`
	TagMatchScore  float64   `json:"tag_match_score"`
	LoadScore      float64   `json:"load_score"`
	PreferredBonus float64   `json:"preferred_bonus"`
	TotalScore     float64   `json:"total_score"`
}

type Entry interface {
	ID() uuid.UUID
	TenantID() uuid.UUID
	ConversationID() uuid.UUID
	Method() string
	SelectedAgentID() *uuid.UUID
	Confidence() float64
	Candidates() []CandidateScore
	FallbackReason() string
	CreatedAt() time.Time
}

type entry struct {
	id              uuid.UUID
	tenantID        uuid.UUID
	conversationID  uuid.UUID
	method          string
	selectedAgentID *uuid.UUID
	confidence      float64
	candidates      []CandidateScore
	fallbackReason  string
	createdAt       time.Time
}

func New(tenantID, conversationID uuid.UUID, method string, opts ...Option) Entry {
	e := &entry{
		id:             uuid.New(),
		tenantID:       tenantID,
		conversationID: conversationID,
		method:         method,
		createdAt:      time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type Option func(*entry)

func WithID(id uuid.UUID) Option {
	return func(e *entry) {
		if id != uuid.Nil {
			e.id = id
		}
	}
}

func WithSelectedAgent(id uuid.UUID, confidence float64) Option {
	return func(e *entry) {
		e.selectedAgentID = &id
		e.confidence = confidence
	}
}

func WithCandidates(candidates []CandidateScore) Option {
	return func(e *entry) { e.candidates = candidates }
}

func WithFallbackReason(reason string) Option {
	return func(e *entry) { e.fallbackReason = reason }
}

func WithCreatedAt(at time.Time) Option {
	return func(e *entry) {
		if !at.IsZero() {
			e.createdAt = at
		}
	}
}

func (e *entry) ID() uuid.UUID                { return e.id }
func (e *entry) TenantID() uuid.UUID          { return e.tenantID }
func (e *entry) ConversationID() uuid.UUID    { return e.conversationID }
func (e *entry) Method() string               { return e.method }
func (e *entry) SelectedAgentID() *uuid.UUID  { return e.selectedAgentID }
func (e *entry) Confidence() float64          { return e.confidence }
func (e *entry) Candidates() []CandidateScore { return e.candidates }
func (e *entry) FallbackReason() string       { return e.fallbackReason }
func (e *entry) CreatedAt() time.Time         { return e.createdAt }
