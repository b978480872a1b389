package queueentry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrQueueFull = errors.New("tenant queue is full")
	ErrNotFound  = errors.New("queue entry not found")
)

type EntryReason string

const (
	ReasonNew      EntryReason = "new"
	ReasonTransfer EntryReason = "transfer"
	ReasonReassign EntryReason = "reassign"
)

// Repository maintains the per-tenant ordered waiting list. Implementations
// must serialize mutations per tenant: Lock acquires the tenant's
// queue-control scope and is required before InsertAt or Remove.
type Repository interface {
	// Lock takes the per-tenant mutual-exclusion scope for queue
	// renumbering. Must be called inside a transaction; the lock is held
	// until that transaction ends.
	Lock(ctx context.Context) error
	GetByConversationID(ctx context.Context, conversationID uuid.UUID) (QueueEntry, error)
	// List returns the tenant's entries ordered by position ascending.
	List(ctx context.Context) ([]QueueEntry, error)
	Count(ctx context.Context) (int, error)
	// InsertAt places entry at position and shifts every entry at or after
	// it one place down, keeping positions dense 1..N.
	InsertAt(ctx context.Context, entry QueueEntry, position int) (QueueEntry, error)
	// Remove deletes the conversation's entry and shifts later entries up
	// to close the gap. Returns false when the conversation is not queued.
	Remove(ctx context.Context, conversationID uuid.UUID) (bool, error)
}

type QueueEntry interface {
	ID() uuid.UUID
	TenantID() uuid.UUID
	ConversationID() uuid.UUID
	Position() int
	Priority() int
	PreferredAgentID() *uuid.UUID
	SkillsRequired() []string
	EntryReason() EntryReason
	QueuedAt() time.Time
	EstimatedWaitSeconds() int

	WithPosition(pos int) QueueEntry
	WithEstimatedWait(seconds int) QueueEntry
	// MatchesSkills reports whether the required skills are a subset of,
	// or unconstrained by, the given agent skills.
	MatchesSkills(agentSkills []string) bool
}

type entry struct {
	id                   uuid.UUID
	tenantID             uuid.UUID
	conversationID       uuid.UUID
	position             int
	priority             int
	preferredAgentID     *uuid.UUID
	skillsRequired       []string
	entryReason          EntryReason
	queuedAt             time.Time
	estimatedWaitSeconds int
}

func New(tenantID, conversationID uuid.UUID, opts ...Option) QueueEntry {
	e := &entry{
		id:             uuid.New(),
		tenantID:       tenantID,
		conversationID: conversationID,
		priority:       1,
		entryReason:    ReasonNew,
		queuedAt:       time.Now(),
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

func WithPosition(pos int) Option {
	return func(e *entry) { e.position = pos }
}

func WithPriority(p int) Option {
	return func(e *entry) {
		if p > 0 {
			e.priority = p
		}
	}
}

func WithPreferredAgentID(id *uuid.UUID) Option {
	return func(e *entry) { e.preferredAgentID = id }
}

func WithSkillsRequired(skills []string) Option {
	return func(e *entry) { e.skillsRequired = skills }
}

func WithEntryReason(r EntryReason) Option {
	return func(e *entry) { e.entryReason = r }
}

func WithQueuedAt(t time.Time) Option {
	return func(e *entry) {
		if !t.IsZero() {
			e.queuedAt = t
		}
	}
}

func WithEstimatedWait(seconds int) Option {
	return func(e *entry) { e.estimatedWaitSeconds = seconds }
}

func (e *entry) ID() uuid.UUID                { return e.id }
func (e *entry) TenantID() uuid.UUID          { return e.tenantID }
func (e *entry) ConversationID() uuid.UUID    { return e.conversationID }
func (e *entry) Position() int                { return e.position }
func (e *entry) Priority() int                { return e.priority }
func (e *entry) PreferredAgentID() *uuid.UUID { return e.preferredAgentID }
func (e *entry) SkillsRequired() []string     { return e.skillsRequired }
func (e *entry) EntryReason() EntryReason     { return e.entryReason }
func (e *entry) QueuedAt() time.Time          { return e.queuedAt }
func (e *entry) EstimatedWaitSeconds() int    { return e.estimatedWaitSeconds }

func (e *entry) WithPosition(pos int) QueueEntry {
	e.position = pos
	return e
}

func (e *entry) WithEstimatedWait(seconds int) QueueEntry {
	e.estimatedWaitSeconds = seconds
	return e
}

func (e *entry) MatchesSkills(agentSkills []string) bool {
	if len(e.skillsRequired) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(agentSkills))
	for _, s := range agentSkills {
		have[s] = struct{}{}
	}
	for _, required := range e.skillsRequired {
		if _, ok := have[required]; !ok {
			return false
		}
	}
	return true
}

// Less orders entries for insertion: priority descending, then queued-at
// ascending, then conversation id as the final deterministic tie-break.
func Less(a, b QueueEntry) bool {
	if a.Priority() != b.Priority() {
		return a.Priority() > b.Priority()
	}
	if !a.QueuedAt().Equal(b.QueuedAt()) {
		return a.QueuedAt().Before(b.QueuedAt())
	}
	return a.ConversationID().String() < b.ConversationID().String()
}
