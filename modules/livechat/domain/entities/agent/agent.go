package agent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("agent not found")
)

type Status string

const (
	StatusOnline  Status = "online"
	StatusBusy    Status = "busy"
	StatusAway    Status = "away"
	StatusOffline Status = "offline"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusBusy, StatusAway, StatusOffline:
		return true
	}
	return false
}

// Tag is a routable skill with rolling performance statistics. The stats
// feed assignment scoring as inputs, never as hard filters.
type Tag struct {
	Name                 string
	Proficiency          float64 // 0..1
	SuccessRate          float64 // 0..1
	AvgSatisfaction      float64 // 1..5, 0 when unrated
	ConversationsHandled int
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (Agent, error)
	List(ctx context.Context) ([]Agent, error)
	// ListAvailable returns online, accepting agents ordered by current
	// load ascending.
	ListAvailable(ctx context.Context) ([]Agent, error)
	Create(ctx context.Context, a Agent) (Agent, error)
	Update(ctx context.Context, a Agent) (Agent, error)
	SetStatus(ctx context.Context, id uuid.UUID, status Status) error
	// IncrementLoad and DecrementLoad must be atomic at the store: an
	// agent can be assigned a chat and finish another concurrently.
	IncrementLoad(ctx context.Context, id uuid.UUID) error
	DecrementLoad(ctx context.Context, id uuid.UUID) error
	TouchAssigned(ctx context.Context, id uuid.UUID, at time.Time) error
}

type Agent interface {
	ID() uuid.UUID
	TenantID() uuid.UUID
	Email() string
	DisplayName() string
	Status() Status
	MaxConcurrentChats() int
	ActiveConversations() int
	IsAcceptingChats() bool
	AcceptsOverflow() bool
	AutoAssign() bool
	Tags() []Tag
	LastAssignedAt() *time.Time
	LastSeenAt() *time.Time
	CreatedAt() time.Time
	UpdatedAt() time.Time

	// HasCapacity reports whether the agent can take another chat within
	// its configured limit.
	HasCapacity() bool
	// SkillNames returns the agent's tag names for subset matching.
	SkillNames() []string
	TagByName(name string) (Tag, bool)
	SetStatus(status Status) Agent
	// RecordOutcome folds one finished conversation into the rolling
	// statistics of every tag named in skills.
	RecordOutcome(skills []string, resolved bool, satisfaction *int) Agent
}

type agent struct {
	id                  uuid.UUID
	tenantID            uuid.UUID
	email               string
	displayName         string
	status              Status
	maxConcurrentChats  int
	activeConversations int
	isAcceptingChats    bool
	acceptsOverflow     bool
	autoAssign          bool
	tags                []Tag
	lastAssignedAt      *time.Time
	lastSeenAt          *time.Time
	createdAt           time.Time
	updatedAt           time.Time
}

func New(tenantID uuid.UUID, email, displayName string, opts ...Option) Agent {
	now := time.Now()
	a := &agent{
		id:                 uuid.New(),
		tenantID:           tenantID,
		email:              email,
		displayName:        displayName,
		status:             StatusOffline,
		maxConcurrentChats: 3,
		isAcceptingChats:   true,
		autoAssign:         true,
		createdAt:          now,
		updatedAt:          now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type Option func(*agent)

func WithID(id uuid.UUID) Option {
	return func(a *agent) {
		if id != uuid.Nil {
			a.id = id
		}
	}
}

func WithStatus(s Status) Option {
	return func(a *agent) { a.status = s }
}

func WithMaxConcurrentChats(n int) Option {
	return func(a *agent) {
		if n > 0 {
			a.maxConcurrentChats = n
		}
	}
}

func WithActiveConversations(n int) Option {
	return func(a *agent) { a.activeConversations = n }
}

func WithAcceptingChats(v bool) Option {
	return func(a *agent) { a.isAcceptingChats = v }
}

func WithAcceptsOverflow(v bool) Option {
	return func(a *agent) { a.acceptsOverflow = v }
}

func WithAutoAssign(v bool) Option {
	return func(a *agent) { a.autoAssign = v }
}

func WithTags(tags []Tag) Option {
	return func(a *agent) { a.tags = tags }
}

func WithLastAssignedAt(t *time.Time) Option {
	return func(a *agent) { a.lastAssignedAt = t }
}

func WithLastSeenAt(t *time.Time) Option {
	return func(a *agent) { a.lastSeenAt = t }
}

func WithTimestamps(createdAt, updatedAt time.Time) Option {
	return func(a *agent) {
		if !createdAt.IsZero() {
			a.createdAt = createdAt
		}
		if !updatedAt.IsZero() {
			a.updatedAt = updatedAt
		}
	}
}

func (a *agent) ID() uuid.UUID              { return a.id }
func (a *agent) TenantID() uuid.UUID        { return a.tenantID }
func (a *agent) Email() string              { return a.email }
func (a *agent) DisplayName() string        { return a.displayName }
func (a *agent) Status() Status             { return a.status }
func (a *agent) MaxConcurrentChats() int    { return a.maxConcurrentChats }
func (a *agent) ActiveConversations() int   { return a.activeConversations }
func (a *agent) IsAcceptingChats() bool     { return a.isAcceptingChats }
func (a *agent) AcceptsOverflow() bool      { return a.acceptsOverflow }
func (a *agent) AutoAssign() bool           { return a.autoAssign }
func (a *agent) Tags() []Tag                { return a.tags }
func (a *agent) LastAssignedAt() *time.Time { return a.lastAssignedAt }
func (a *agent) LastSeenAt() *time.Time     { return a.lastSeenAt }
func (a *agent) CreatedAt() time.Time       { return a.createdAt }
func (a *agent) UpdatedAt() time.Time       { return a.updatedAt }

func (a *agent) HasCapacity() bool {
	return a.activeConversations < a.maxConcurrentChats
}

func (a *agent) SkillNames() []string {
	names := make([]string, 0, len(a.tags))
	for _, t := range a.tags {
		names = append(names, t.Name)
	}
	return names
}

func (a *agent) TagByName(name string) (Tag, bool) {
	for _, t := range a.tags {
		if t.Name == name {
			return t, true
		}
	}
	return Tag{}, false
}

func (a *agent) SetStatus(status Status) Agent {
	a.status = status
	a.updatedAt = time.Now()
	return a
}

// RecordOutcome updates each matching tag's rolling averages. The success
// rate counts resolved closures over conversations handled; the
// satisfaction average only moves when the customer left a rating.
func (a *agent) RecordOutcome(skills []string, resolved bool, satisfaction *int) Agent {
	involved := make(map[string]struct{}, len(skills))
	for _, name := range skills {
		involved[name] = struct{}{}
	}
	for i := range a.tags {
		tag := &a.tags[i]
		if _, ok := involved[tag.Name]; !ok {
			continue
		}
		successes := tag.SuccessRate * float64(tag.ConversationsHandled)
		if resolved {
			successes++
		}
		tag.ConversationsHandled++
		tag.SuccessRate = successes / float64(tag.ConversationsHandled)
		if satisfaction != nil {
			if tag.AvgSatisfaction > 0 {
				tag.AvgSatisfaction = (tag.AvgSatisfaction*float64(tag.ConversationsHandled-1) + float64(*satisfaction)) / float64(tag.ConversationsHandled)
			} else {
				tag.AvgSatisfaction = float64(*satisfaction)
			}
		}
	}
	a.updatedAt = time.Now()
	return a
}
